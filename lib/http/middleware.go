package http

import (
	"mime"
	"net/http"
	"path"
	"strings"
	"sync"

	"github.com/aaronboult/rust-simulation-engine/lib/log"
)

var onlyOnceWarningAllowOrigin sync.Once

// MiddlewareCORS instantiates middleware that handles basic CORS protections
func MiddlewareCORS(allowOrigin string) Middleware {
	onlyOnceWarningAllowOrigin.Do(func() {
		if allowOrigin == "*" {
			log.Logf(nil, "Warning: Allow origin set to *. This can cause serious security problems.")
		}
	})

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// skip cors for unix sockets
			if IsUnixSocket(r) {
				next.ServeHTTP(w, r)
				return
			}

			if allowOrigin != "" {
				w.Header().Add("Access-Control-Allow-Origin", allowOrigin)
				w.Header().Add("Access-Control-Allow-Headers", "Content-Type")
				w.Header().Add("Access-Control-Allow-Methods", "GET, HEAD, OPTIONS")
			}

			next.ServeHTTP(w, r)
		})
	}
}

// MiddlewareStripPrefix instantiates middleware that removes the BaseURL from the path
func MiddlewareStripPrefix(prefix string) Middleware {
	return func(next http.Handler) http.Handler {
		stripPrefixHandler := http.StripPrefix(prefix, next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Allow OPTIONS on the root only
			if r.URL.Path == "/" && r.Method == "OPTIONS" {
				next.ServeHTTP(w, r)
				return
			}
			stripPrefixHandler.ServeHTTP(w, r)
		})
	}
}

// MiddlewareCacheControl instantiates middleware that sets the
// Cache-Control header on every response
func MiddlewareCacheControl(value string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", value)
			next.ServeHTTP(w, r)
		})
	}
}

// MiddlewareCrossOriginIsolation instantiates middleware that sends the
// headers which opt the page into cross-origin isolation. Browsers
// require these before enabling SharedArrayBuffer, which WebAssembly
// threading is built on.
func MiddlewareCrossOriginIsolation() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
			w.Header().Set("Cross-Origin-Embedder-Policy", "require-corp")
			next.ServeHTTP(w, r)
		})
	}
}

// dispositionFilename extracts the filename a Content-Disposition
// header describes, falling back to the raw header value.
func dispositionFilename(disposition string) string {
	if _, params, err := mime.ParseMediaType(disposition); err == nil {
		if filename := params["filename"]; filename != "" {
			return filename
		}
	}
	return disposition
}

// fixContentType forces the Content-Type for file types browsers
// refuse to run when served with a generic type. Only responses which
// name the file they are serving via Content-Disposition are touched.
func fixContentType(header http.Header) {
	disposition := header.Get("Content-Disposition")
	if disposition == "" {
		return
	}
	switch strings.ToLower(path.Ext(dispositionFilename(disposition))) {
	case ".js":
		header.Set("Content-Type", "text/javascript")
	case ".wasm":
		header.Set("Content-Type", "application/wasm")
	}
}

// mimeOverrideWriter intercepts the header flush so headers can be
// corrected after the handler has set them but before they are sent.
type mimeOverrideWriter struct {
	http.ResponseWriter
	wroteHeader bool
}

// WriteHeader writes the headers correcting the Content-Type if needed
func (w *mimeOverrideWriter) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	fixContentType(w.Header())
	w.ResponseWriter.WriteHeader(code)
}

// Write writes the headers if they haven't been written yet
func (w *mimeOverrideWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

// Flush sends any buffered data to the client
func (w *mimeOverrideWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// MiddlewareMimeOverride instantiates middleware that runs after every
// response is generated and forces the Content-Type of .js and .wasm
// downloads so browsers treat them as script and WebAssembly module
// rather than as an attachment or generic binary. Responses without a
// Content-Disposition header pass through untouched.
func MiddlewareMimeOverride() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(&mimeOverrideWriter{ResponseWriter: w}, r)
		})
	}
}
