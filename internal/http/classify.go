package httpx

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/painel-alugueis/painel/internal/cache"
	"github.com/painel-alugueis/painel/internal/model"
)

type RequestInfo struct {
	Key    cache.Key
	ID     string
	Force  bool
	Reason string
}

// ClassifyRequest resolves the resource kind, item id and refresh flag of a routed request.
// Reason is set when the request does not name a known resource.
func ClassifyRequest(r *http.Request) RequestInfo {
	kind := r.PathValue("kind")
	if kind == "" {
		kind = kindFromPath(r.URL.Path)
	}
	key, err := cache.ParseKey(kind)
	if err != nil {
		return RequestInfo{Reason: "unknown-resource"}
	}
	return RequestInfo{
		Key:   key,
		ID:    strings.TrimSpace(r.PathValue("id")),
		Force: isRefresh(r),
	}
}

// kindFromPath returns the resource segment of paths like /api/alugueis/criar.
func kindFromPath(p string) string {
	p = strings.TrimPrefix(p, "/api/")
	kind, _, _ := strings.Cut(p, "/")
	return kind
}

func isRefresh(r *http.Request) bool {
	q := r.URL.Query()
	for _, name := range []string{"refresh", "forceRefresh"} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return strings.EqualFold(r.Header.Get("Cache-Control"), "no-cache")
}

func newInput(key cache.Key) model.Input {
	switch key {
	case cache.KeyProprietarios:
		return &model.Proprietario{}
	case cache.KeyImoveis:
		return &model.Imovel{}
	case cache.KeyAlugueis:
		return &model.Aluguel{}
	default:
		return nil
	}
}
