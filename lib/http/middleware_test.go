package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func runMiddleware(t *testing.T, m Middleware, h http.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/", nil)
	m(h).ServeHTTP(rec, req)
	return rec
}

func TestMiddlewareMimeOverrideJS(t *testing.T) {
	rec := runMiddleware(t, MiddlewareMimeOverride(), func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Disposition", `inline; filename="main.js"`)
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write([]byte("console.log(1)"))
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/javascript", rec.Header().Get("Content-Type"))
}

func TestMiddlewareMimeOverrideWasm(t *testing.T) {
	rec := runMiddleware(t, MiddlewareMimeOverride(), func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Disposition", `inline; filename="engine_bg.wasm"`)
		w.Header().Set("Content-Type", "application/octet-stream")
		w.WriteHeader(http.StatusOK)
	})
	assert.Equal(t, "application/wasm", rec.Header().Get("Content-Type"))
}

// Headers which don't parse as a media type still get the suffix check
func TestMiddlewareMimeOverrideRawValue(t *testing.T) {
	rec := runMiddleware(t, MiddlewareMimeOverride(), func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Disposition", "somefile.wasm")
		w.WriteHeader(http.StatusOK)
	})
	assert.Equal(t, "application/wasm", rec.Header().Get("Content-Type"))
}

func TestMiddlewareMimeOverrideNoDisposition(t *testing.T) {
	rec := runMiddleware(t, MiddlewareMimeOverride(), func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<h1>hello</h1>"))
	})
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
}

func TestMiddlewareMimeOverrideOtherExtension(t *testing.T) {
	rec := runMiddleware(t, MiddlewareMimeOverride(), func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Disposition", `inline; filename="notes.txt"`)
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
	})
	assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"))
}

func TestDispositionFilename(t *testing.T) {
	for _, test := range []struct {
		in   string
		want string
	}{
		{`inline; filename="main.js"`, "main.js"},
		{`attachment; filename="a b.wasm"`, "a b.wasm"},
		{`inline`, "inline"},
		{`main.js`, "main.js"},
	} {
		assert.Equal(t, test.want, dispositionFilename(test.in), test.in)
	}
}

func TestMiddlewareCORS(t *testing.T) {
	rec := runMiddleware(t, MiddlewareCORS("http://example.com"), func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	assert.Equal(t, "http://example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Methods"))
}

func TestMiddlewareCORSEmpty(t *testing.T) {
	rec := runMiddleware(t, MiddlewareCORS(""), func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMiddlewareCacheControl(t *testing.T) {
	rec := runMiddleware(t, MiddlewareCacheControl("no-store"), func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestMiddlewareCrossOriginIsolation(t *testing.T) {
	rec := runMiddleware(t, MiddlewareCrossOriginIsolation(), func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	assert.Equal(t, "same-origin", rec.Header().Get("Cross-Origin-Opener-Policy"))
	assert.Equal(t, "require-corp", rec.Header().Get("Cross-Origin-Embedder-Policy"))
}

func TestMiddlewareStripPrefix(t *testing.T) {
	var gotPath string
	m := MiddlewareStripPrefix("/app")
	h := m(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/app/file.txt", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/file.txt", gotPath)
}
