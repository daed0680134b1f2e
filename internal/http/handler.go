package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/painel-alugueis/painel/internal/api"
	"github.com/painel-alugueis/painel/internal/cache"
	"github.com/painel-alugueis/painel/internal/dataservice"
	"github.com/painel-alugueis/painel/internal/model"
)

const (
	cacheStatusHeader = "X-Painel-Cache"
	maxBodyBytes      = 1 << 20

	// statusClientClosedRequest is nginx's code for a client that went away before the response.
	statusClientClosedRequest = 499
)

type HealthChecker interface {
	Health(ctx context.Context) error
}

// Handler serves the collections and mutations used by the admin frontend.
type Handler struct {
	Data    *dataservice.Service
	Backend HealthChecker
	mux     *http.ServeMux
}

type cacheStat struct {
	Key              string    `json:"key"`
	UpdatedAt        time.Time `json:"updated_at"`
	Age              string    `json:"age"`
	AgeSeconds       float64   `json:"age_seconds"`
	ExpiresInSeconds float64   `json:"expires_in_seconds"`
}

func NewHandler(data *dataservice.Service, backend HealthChecker) *Handler {
	h := &Handler{Data: data, Backend: backend, mux: http.NewServeMux()}
	h.mux.HandleFunc("GET /api/cache", h.stats)
	h.mux.HandleFunc("GET /api/{kind}", h.list)
	h.mux.HandleFunc("POST /api/proprietarios", h.create)
	h.mux.HandleFunc("POST /api/imoveis", h.create)
	h.mux.HandleFunc("POST /api/alugueis/criar", h.create)
	h.mux.HandleFunc("PUT /api/{kind}/{id}", h.update)
	h.mux.HandleFunc("DELETE /api/{kind}/{id}", h.delete)
	h.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h.mux.HandleFunc("GET /readyz", h.ready)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	info := ClassifyRequest(r)
	if info.Reason != "" {
		writeError(w, http.StatusNotFound, info.Reason)
		return
	}
	res, err := h.Data.Fetch(r.Context(), info.Key, info.Force)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	w.Header().Set(cacheStatusHeader, string(res.Status))
	writeJSON(w, http.StatusOK, res.Data)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	info := ClassifyRequest(r)
	in, ok := decodeInput(w, r, info)
	if !ok {
		return
	}
	out, err := h.Data.Create(r.Context(), info.Key, in)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	info := ClassifyRequest(r)
	in, ok := decodeInput(w, r, info)
	if !ok {
		return
	}
	out, err := h.Data.Update(r.Context(), info.Key, info.ID, in)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	info := ClassifyRequest(r)
	if info.Reason != "" {
		writeError(w, http.StatusNotFound, info.Reason)
		return
	}
	out, err := h.Data.Delete(r.Context(), info.Key, info.ID)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	if len(out) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	stats := h.Data.Stats()
	out := make([]cacheStat, 0, len(stats))
	for _, s := range stats {
		out = append(out, cacheStat{
			Key:              string(s.Key),
			UpdatedAt:        s.Timestamp,
			Age:              humanize.RelTime(s.Timestamp, s.Timestamp.Add(s.Age), "ago", "from now"),
			AgeSeconds:       s.Age.Seconds(),
			ExpiresInSeconds: s.ExpiresIn.Seconds(),
		})
	}
	b, err := json.Marshal(out)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *Handler) ready(w http.ResponseWriter, r *http.Request) {
	if h.Backend == nil {
		w.WriteHeader(http.StatusOK)
		return
	}
	if err := h.Backend.Health(r.Context()); err != nil {
		slog.Warn("backend not ready", "error", err)
		writeError(w, http.StatusServiceUnavailable, "backend unavailable")
		return
	}
	w.WriteHeader(http.StatusOK)
}

func decodeInput(w http.ResponseWriter, r *http.Request, info RequestInfo) (model.Input, bool) {
	if info.Reason != "" {
		writeError(w, http.StatusNotFound, info.Reason)
		return nil, false
	}
	in := newInput(info.Key)
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return nil, false
	}
	return in, true
}

// writeFailure maps data layer errors to responses. Backend status errors are relayed as is.
func writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	var se *api.StatusError
	switch {
	case errors.As(err, &se):
		if json.Valid(se.Body) {
			writeJSON(w, se.StatusCode, se.Body)
			return
		}
		writeError(w, se.StatusCode, se.Status)
	case errors.Is(err, model.ErrInvalid):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, cache.ErrUnknownKey):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, context.Canceled):
		slog.Debug("request canceled", "method", r.Method, "path", r.URL.Path)
		w.WriteHeader(statusClientClosedRequest)
	default:
		slog.Error("backend request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusBadGateway, "backend unavailable")
	}
}

func writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	b, _ := json.Marshal(map[string]string{"erro": msg})
	writeJSON(w, status, b)
}
