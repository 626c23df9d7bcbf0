// Package tokensource provides the credentials used to call the backend API.
//
// The backend API key lives in a Store (environment variable, file or the OS
// keyring). NewTokenSource exposes it as an oauth2.TokenSource that re-reads
// the store periodically, so a key rotated with `auth login` is picked up
// without a restart. Transport injects the key into outgoing requests.
//
//	store := tokensource.NewKeyringStore("switchboard", "anthropic")
//	ts := tokensource.NewTokenSource(store)
//	client := &http.Client{Transport: &tokensource.Transport{Source: ts}}
package tokensource
