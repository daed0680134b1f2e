package purge

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/painel-alugueis/painel/internal/cache"
	"github.com/painel-alugueis/painel/internal/dataservice"
)

// MethodPurge is the request method that invalidates cached collections.
const MethodPurge = "PURGE"

const (
	purgeTimestampHeader = "X-Purge-Timestamp"
	cacheKeyHeader       = "X-Cache-Key"
	pathPrefix           = "/api/cache"
)

type Handler struct {
	Data *dataservice.Service
}

type purgePayload struct {
	Key string `json:"key"`
}

// ServeHTTP invalidates one collection, or all of them when no key is given.
// With X-Purge-Timestamp set, entries cached after that instant are kept. The purge is
// broadcast either way and every replica applies the timestamp to its own entries.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != MethodPurge {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if r.URL.Path != pathPrefix && !strings.HasPrefix(r.URL.Path, pathPrefix+"/") {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	raw, err := readKey(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var purgeTime time.Time
	if tsHeader := strings.TrimSpace(r.Header.Get(purgeTimestampHeader)); tsHeader != "" {
		purgeTime, err = time.Parse(time.RFC3339, tsHeader)
		if err != nil {
			http.Error(w, "invalid purge timestamp", http.StatusBadRequest)
			return
		}
	}

	ctx := r.Context()
	if raw == "" {
		if err := h.Data.PurgeAllBefore(ctx, purgeTime); err != nil {
			slog.Error("Failed to broadcast cache clear", "error", err)
			http.Error(w, "broadcast failed", http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	key, err := cache.ParseKey(raw)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err := h.Data.PurgeBefore(ctx, key, purgeTime); err != nil {
		slog.Error("Failed to broadcast invalidation", "key", key, "error", err)
		http.Error(w, "broadcast failed", http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// readKey returns the key from the path, query, header or JSON body, in that order.
// An empty key means all collections.
func readKey(r *http.Request) (string, error) {
	if v := strings.Trim(strings.TrimPrefix(r.URL.Path, pathPrefix), "/"); v != "" {
		return v, nil
	}
	if v := r.URL.Query().Get("key"); v != "" {
		return v, nil
	}
	if v := r.Header.Get(cacheKeyHeader); v != "" {
		return strings.TrimSpace(v), nil
	}
	if r.Body == nil {
		return "", nil
	}
	defer r.Body.Close()
	var payload purgePayload
	err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&payload)
	if errors.Is(err, io.EOF) {
		return "", nil
	}
	if err != nil {
		return "", errors.New("invalid purge body")
	}
	return strings.TrimSpace(payload.Key), nil
}
