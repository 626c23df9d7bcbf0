package proxy

import (
	"net/http"
	"time"

	"github.com/florianilch/switchboard/internal/catalog"
)

// modelEntry merges the OpenAI and Anthropic model object fields. Clients
// of either protocol ignore the fields they do not know.
type modelEntry struct {
	// OpenAI
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`

	// Anthropic
	Type        string `json:"type"`
	DisplayName string `json:"display_name"`
	CreatedAt   string `json:"created_at"`
}

type modelList struct {
	// OpenAI
	Object string       `json:"object"`
	Data   []modelEntry `json:"data"`

	// Anthropic
	HasMore bool    `json:"has_more"`
	FirstID *string `json:"first_id"`
	LastID  *string `json:"last_id"`
}

func newModelList(c *catalog.Catalog) modelList {
	models := c.Models()
	list := modelList{Object: "list", Data: make([]modelEntry, 0, len(models))}
	for _, m := range models {
		list.Data = append(list.Data, modelEntry{
			ID:          m.ID,
			Object:      "model",
			Created:     m.CreatedAt.Unix(),
			OwnedBy:     m.OwnedBy,
			Type:        "model",
			DisplayName: m.DisplayName,
			CreatedAt:   m.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	if len(list.Data) > 0 {
		list.FirstID = &list.Data[0].ID
		list.LastID = &list.Data[len(list.Data)-1].ID
	}
	return list
}

// modelsHandler lists the catalog in a merged format understood by both
// OpenAI and Anthropic clients. The list is built once.
func modelsHandler(c *catalog.Catalog) http.HandlerFunc {
	list := newModelList(c)
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(r.Context(), w, list, http.StatusOK)
	}
}
