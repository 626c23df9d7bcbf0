package tokensource

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/zalando/go-keyring"
)

var (
	// ErrNoToken is returned when the store holds no credential.
	ErrNoToken = errors.New("no token stored")
	// ErrReadOnly is returned when writing to a store that cannot be written.
	ErrReadOnly = errors.New("token store is read-only")
)

// Store persists a single secret. Writing an empty string clears it.
type Store interface {
	Read(ctx context.Context) (string, error)
	Write(ctx context.Context, token string) error
}

// EnvStore reads the secret from an environment variable.
type EnvStore struct {
	Var string
}

var _ Store = (*EnvStore)(nil)

func NewEnvStore(name string) *EnvStore {
	return &EnvStore{Var: name}
}

func (s *EnvStore) Read(ctx context.Context) (string, error) {
	token := strings.TrimSpace(os.Getenv(s.Var))
	if token == "" {
		return "", fmt.Errorf("%w: environment variable %s is empty", ErrNoToken, s.Var)
	}
	return token, nil
}

func (s *EnvStore) Write(ctx context.Context, token string) error {
	return ErrReadOnly
}

// FileStore keeps the secret in a file readable only by the current user.
type FileStore struct {
	Path string
}

var _ Store = (*FileStore)(nil)

func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

func (s *FileStore) Read(ctx context.Context) (string, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%w: %s does not exist", ErrNoToken, s.Path)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read token file: %w", err)
	}

	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("%w: %s is empty", ErrNoToken, s.Path)
	}
	return token, nil
}

func (s *FileStore) Write(ctx context.Context, token string) error {
	if token == "" {
		if err := os.Remove(s.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove token file: %w", err)
		}
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(s.Path), 0o700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}
	if err := os.WriteFile(s.Path, []byte(token+"\n"), 0o600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return nil
}

// KeyringStore keeps the secret in the operating system keyring.
type KeyringStore struct {
	Service string
	User    string
}

var _ Store = (*KeyringStore)(nil)

func NewKeyringStore(service, user string) *KeyringStore {
	return &KeyringStore{Service: service, User: user}
}

func (s *KeyringStore) Read(ctx context.Context) (string, error) {
	token, err := keyring.Get(s.Service, s.User)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", fmt.Errorf("%w: keyring entry %s/%s not found", ErrNoToken, s.Service, s.User)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read keyring: %w", err)
	}
	return token, nil
}

func (s *KeyringStore) Write(ctx context.Context, token string) error {
	if token == "" {
		if err := keyring.Delete(s.Service, s.User); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			return fmt.Errorf("failed to delete keyring entry: %w", err)
		}
		return nil
	}

	if err := keyring.Set(s.Service, s.User, token); err != nil {
		return fmt.Errorf("failed to write keyring: %w", err)
	}
	return nil
}
