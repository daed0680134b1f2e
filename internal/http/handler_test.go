package httpx_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/painel-alugueis/painel/internal/api"
	"github.com/painel-alugueis/painel/internal/cache"
	"github.com/painel-alugueis/painel/internal/dataservice"
	httpx "github.com/painel-alugueis/painel/internal/http"
)

const backendURL = "http://backend.local"

type fixture struct {
	mt      *httpmock.MockTransport
	data    *dataservice.Service
	handler *httpx.Handler
}

func newFixture() *fixture {
	mt := httpmock.NewMockTransport()
	client := api.NewClient(backendURL, api.Options{HTTPClient: &http.Client{Transport: mt}})
	data := dataservice.New(client, cache.NewMemory(0, nil), dataservice.Options{})
	return &fixture{mt: mt, data: data, handler: httpx.NewHandler(data, client)}
}

func (f *fixture) do(method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) calls(method, url string) int {
	return f.mt.GetCallCountInfo()[method+" "+url]
}

func TestList(t *testing.T) {
	t.Run("serves collection and marks cache status", func(t *testing.T) {
		// given
		f := newFixture()
		f.mt.RegisterResponder("GET", backendURL+"/api/imoveis",
			httpmock.NewStringResponder(http.StatusOK, `[{"id":1,"endereco":"Rua A","proprietario_id":1}]`))
		// when
		first := f.do("GET", "/api/imoveis", "")
		second := f.do("GET", "/api/imoveis", "")
		// then
		assert.Equal(t, http.StatusOK, first.Code)
		assert.Equal(t, "MISS", first.Header().Get("X-Painel-Cache"))
		assert.Equal(t, "application/json", first.Header().Get("Content-Type"))
		assert.JSONEq(t, `[{"id":1,"endereco":"Rua A","proprietario_id":1}]`, first.Body.String())
		assert.Equal(t, "HIT", second.Header().Get("X-Painel-Cache"))
		assert.Equal(t, 1, f.calls("GET", backendURL+"/api/imoveis"))
	})
	t.Run("refresh query forces backend call", func(t *testing.T) {
		f := newFixture()
		f.mt.RegisterResponder("GET", backendURL+"/api/alugueis", httpmock.NewStringResponder(http.StatusOK, `[]`))
		f.do("GET", "/api/alugueis", "")
		rec := f.do("GET", "/api/alugueis?refresh=1", "")
		assert.Equal(t, "REFRESH", rec.Header().Get("X-Painel-Cache"))
		assert.Equal(t, 2, f.calls("GET", backendURL+"/api/alugueis"))
	})
	t.Run("unknown resource is not found", func(t *testing.T) {
		f := newFixture()
		rec := f.do("GET", "/api/usuarios", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
	t.Run("relays backend status errors", func(t *testing.T) {
		f := newFixture()
		f.mt.RegisterResponder("GET", backendURL+"/api/proprietarios",
			httpmock.NewStringResponder(http.StatusUnauthorized, `{"erro":"sessao expirada"}`))
		rec := f.do("GET", "/api/proprietarios", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"erro":"sessao expirada"}`, rec.Body.String())
	})
	t.Run("reports transport errors as bad gateway", func(t *testing.T) {
		f := newFixture()
		f.mt.RegisterResponder("GET", backendURL+"/api/proprietarios",
			httpmock.NewErrorResponder(errors.New("connection refused")))
		rec := f.do("GET", "/api/proprietarios", "")
		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})
	t.Run("reports canceled requests with a status", func(t *testing.T) {
		// given
		f := newFixture()
		f.mt.RegisterResponder("GET", backendURL+"/api/imoveis",
			httpmock.NewStringResponder(http.StatusOK, `[]`).Delay(500*time.Millisecond))
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		req := httptest.NewRequest("GET", "/api/imoveis", nil).WithContext(ctx)
		rec := httptest.NewRecorder()
		// when
		f.handler.ServeHTTP(rec, req)
		// then
		assert.Equal(t, 499, rec.Code)
		assert.Empty(t, rec.Header().Get("X-Painel-Cache"))
	})
}

func TestMutations(t *testing.T) {
	t.Run("create invalidates the cached collection", func(t *testing.T) {
		// given
		f := newFixture()
		f.mt.RegisterResponder("GET", backendURL+"/api/proprietarios",
			httpmock.NewStringResponder(http.StatusOK, `[{"id":1,"nome":"Maria"}]`))
		f.mt.RegisterResponder("POST", backendURL+"/api/proprietarios",
			httpmock.NewStringResponder(http.StatusCreated, `{"id":2,"nome":"Ana"}`))
		f.do("GET", "/api/proprietarios", "")
		// when
		rec := f.do("POST", "/api/proprietarios", `{"nome":"Ana"}`)
		// then
		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.JSONEq(t, `{"id":2,"nome":"Ana"}`, rec.Body.String())
		next := f.do("GET", "/api/proprietarios", "")
		assert.Equal(t, "MISS", next.Header().Get("X-Painel-Cache"))
		assert.Equal(t, 2, f.calls("GET", backendURL+"/api/proprietarios"))
	})
	t.Run("creates rentals on the criar path", func(t *testing.T) {
		f := newFixture()
		f.mt.RegisterResponder("POST", backendURL+"/api/alugueis/criar",
			httpmock.NewStringResponder(http.StatusOK, `{"id":5}`))
		rec := f.do("POST", "/api/alugueis/criar",
			`{"imovel_id":1,"inquilino":"Joao","valor":900,"data_inicio":"2026-03-01"}`)
		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, 1, f.calls("POST", backendURL+"/api/alugueis/criar"))
	})
	t.Run("can update and delete", func(t *testing.T) {
		f := newFixture()
		f.mt.RegisterResponder("PUT", backendURL+"/api/imoveis/4",
			httpmock.NewStringResponder(http.StatusOK, `{"id":4}`))
		f.mt.RegisterResponder("DELETE", backendURL+"/api/imoveis/4",
			httpmock.NewStringResponder(http.StatusOK, ``))
		rec := f.do("PUT", "/api/imoveis/4", `{"endereco":"Rua D","proprietario_id":1}`)
		assert.Equal(t, http.StatusOK, rec.Code)
		rec = f.do("DELETE", "/api/imoveis/4", "")
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})
	t.Run("rejects malformed json", func(t *testing.T) {
		f := newFixture()
		rec := f.do("POST", "/api/imoveis", `{"endereco":`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
	t.Run("rejects invalid input without calling backend", func(t *testing.T) {
		f := newFixture()
		rec := f.do("POST", "/api/imoveis", `{"endereco":"Rua A"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, 0, f.mt.GetTotalCallCount())
	})
	t.Run("relays backend validation errors", func(t *testing.T) {
		f := newFixture()
		f.mt.RegisterResponder("PUT", backendURL+"/api/alugueis/9",
			httpmock.NewStringResponder(http.StatusConflict, `{"erro":"imovel ocupado"}`))
		rec := f.do("PUT", "/api/alugueis/9", `{"imovel_id":1,"inquilino":"Joao","data_inicio":"2026-03-01"}`)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

type healthFunc func(ctx context.Context) error

func (f healthFunc) Health(ctx context.Context) error {
	return f(ctx)
}

func TestProbes(t *testing.T) {
	t.Run("healthz is always ok", func(t *testing.T) {
		f := newFixture()
		rec := f.do("GET", "/healthz", "")
		assert.Equal(t, http.StatusOK, rec.Code)
	})
	t.Run("readyz reflects backend health", func(t *testing.T) {
		data := dataservice.New(nil, cache.NewMemory(0, nil), dataservice.Options{})
		ok := httpx.NewHandler(data, healthFunc(func(context.Context) error { return nil }))
		down := httpx.NewHandler(data, healthFunc(func(context.Context) error { return errors.New("down") }))

		rec := httptest.NewRecorder()
		ok.ServeHTTP(rec, httptest.NewRequest("GET", "/readyz", nil))
		assert.Equal(t, http.StatusOK, rec.Code)

		rec = httptest.NewRecorder()
		down.ServeHTTP(rec, httptest.NewRequest("GET", "/readyz", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestStats(t *testing.T) {
	f := newFixture()
	f.mt.RegisterResponder("GET", backendURL+"/api/imoveis", httpmock.NewStringResponder(http.StatusOK, `[]`))
	f.do("GET", "/api/imoveis", "")

	rec := f.do("GET", "/api/cache", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var got []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "imoveis", got[0]["key"])
	assert.Contains(t, got[0], "age")
	assert.Contains(t, got[0], "expires_in_seconds")
}
