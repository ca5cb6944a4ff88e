package serve

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testRoot = filepath.Join("testdata", "files")

// startServer starts the server on a random port serving root and
// returns its base URL with a trailing /
func startServer(t *testing.T, root string, tweak func(*Options)) string {
	t.Helper()
	opt := DefaultOpt()
	opt.HTTP.ListenAddr = []string{"127.0.0.1:0"}
	if tweak != nil {
		tweak(&opt)
	}

	s, err := newServer(context.Background(), root, &opt)
	require.NoError(t, err)
	s.Server.Serve()
	t.Cleanup(func() {
		require.NoError(t, s.Shutdown())
	})

	urls := s.URLs()
	require.Len(t, urls, 1)

	// wait for the server to accept connections
	var resp *http.Response
	pause := time.Millisecond
	for i := 0; i < 10; i++ {
		resp, err = http.Head(urls[0])
		if err == nil {
			_ = resp.Body.Close()
			break
		}
		time.Sleep(pause)
		pause *= 2
	}
	require.NoError(t, err)

	return urls[0]
}

func TestServeFiles(t *testing.T) {
	baseURL := startServer(t, testRoot, nil)

	index, err := os.ReadFile(filepath.Join(testRoot, "index.html"))
	require.NoError(t, err)

	for _, test := range []struct {
		name        string
		URL         string
		method      string
		status      int
		body        string
		contentType string
	}{
		{
			name:        "Root",
			URL:         "",
			status:      http.StatusOK,
			body:        string(index),
			contentType: "text/html; charset=utf-8",
		},
		{
			name:        "File",
			URL:         "one.txt",
			status:      http.StatusOK,
			body:        "one\n",
			contentType: "text/plain",
		},
		{
			name:        "Subdirectory",
			URL:         "pkg/two.txt",
			status:      http.StatusOK,
			body:        "two\n",
			contentType: "text/plain",
		},
		{
			name:        "Javascript",
			URL:         "app.js",
			status:      http.StatusOK,
			contentType: "text/javascript",
		},
		{
			name:        "Wasm",
			URL:         "engine_bg.wasm",
			status:      http.StatusOK,
			body:        "not really wasm\n",
			contentType: "application/wasm",
		},
		{
			name:   "NotFound",
			URL:    "potato.txt",
			status: http.StatusNotFound,
		},
		{
			name:   "Directory",
			URL:    "pkg/",
			status: http.StatusNotFound,
		},
		{
			name:   "TraversalDotDot",
			URL:    "../secret.txt",
			status: http.StatusNotFound,
		},
		{
			name:   "TraversalEncoded",
			URL:    "%2e%2e/secret.txt",
			status: http.StatusNotFound,
		},
		{
			name:   "TraversalDeep",
			URL:    "pkg/%2e%2e/%2e%2e/secret.txt",
			status: http.StatusNotFound,
		},
		{
			name:   "Post",
			URL:    "one.txt",
			method: "POST",
			status: http.StatusMethodNotAllowed,
		},
		{
			name:   "Head",
			URL:    "one.txt",
			method: "HEAD",
			status: http.StatusOK,
			body:   "",
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			method := test.method
			if method == "" {
				method = "GET"
			}
			req, err := http.NewRequest(method, baseURL+test.URL, nil)
			require.NoError(t, err)
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer func() {
				require.NoError(t, resp.Body.Close())
			}()

			assert.Equal(t, test.status, resp.StatusCode)
			assert.True(t, strings.HasPrefix(resp.Header.Get("Server"), "devserve/"))

			if resp.StatusCode == http.StatusOK {
				assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
			}
			if test.contentType != "" {
				assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), test.contentType),
					"Content-Type %q should start with %q", resp.Header.Get("Content-Type"), test.contentType)
			}
			if test.body != "" || method == "HEAD" {
				body, err := io.ReadAll(resp.Body)
				require.NoError(t, err)
				assert.Equal(t, test.body, string(body))
			}
		})
	}
}

// The content type forced for .js and .wasm must be exact, with no
// parameters, so check it separately from the prefix matches above.
func TestServeForcedContentTypes(t *testing.T) {
	baseURL := startServer(t, testRoot, nil)

	for urlPath, want := range map[string]string{
		"app.js":         "text/javascript",
		"engine_bg.wasm": "application/wasm",
	} {
		resp, err := http.Get(baseURL + urlPath)
		require.NoError(t, err)
		assert.Equal(t, want, resp.Header.Get("Content-Type"), urlPath)
		require.NoError(t, resp.Body.Close())
	}
}

func TestServeContentDisposition(t *testing.T) {
	baseURL := startServer(t, testRoot, nil)

	resp, err := http.Get(baseURL + "pkg/two.txt")
	require.NoError(t, err)
	defer func() {
		require.NoError(t, resp.Body.Close())
	}()
	assert.Equal(t, `inline; filename="two.txt"`, resp.Header.Get("Content-Disposition"))
}

func TestServeRootFallback(t *testing.T) {
	baseURL := startServer(t, t.TempDir(), nil)

	resp, err := http.Get(baseURL)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, resp.Body.Close())
	}()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Equal(t, "<h1>index.html not found</h1>", string(body))
}

func TestServeCustomIndex(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "main.html"), []byte("<p>main</p>"), 0o644))

	baseURL := startServer(t, root, func(opt *Options) {
		opt.IndexName = "main.html"
	})

	resp, err := http.Get(baseURL)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, resp.Body.Close())
	}()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "<p>main</p>", string(body))
}

func TestServeCrossOriginIsolation(t *testing.T) {
	baseURL := startServer(t, testRoot, func(opt *Options) {
		opt.HTTP.CrossOriginIsolation = true
	})

	resp, err := http.Get(baseURL + "one.txt")
	require.NoError(t, err)
	defer func() {
		require.NoError(t, resp.Body.Close())
	}()
	assert.Equal(t, "same-origin", resp.Header.Get("Cross-Origin-Opener-Policy"))
	assert.Equal(t, "require-corp", resp.Header.Get("Cross-Origin-Embedder-Policy"))
}

func TestNewServerBadRoot(t *testing.T) {
	opt := DefaultOpt()
	opt.HTTP.ListenAddr = []string{"127.0.0.1:0"}

	_, err := newServer(context.Background(), "testdata/does-not-exist", &opt)
	require.Error(t, err)

	_, err = newServer(context.Background(), filepath.Join(testRoot, "one.txt"), &opt)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a directory")
}

func TestResolve(t *testing.T) {
	s := &server{root: filepath.FromSlash("/srv/files")}
	for _, test := range []struct {
		in         string
		wantRemote string
	}{
		{"/one.txt", "one.txt"},
		{"/pkg/two.txt", "pkg/two.txt"},
		{"/../secret.txt", "secret.txt"},
		{"/pkg/../../secret.txt", "secret.txt"},
		{"/../../../../etc/passwd", "etc/passwd"},
		{"//one.txt", "one.txt"},
		{"/./one.txt", "one.txt"},
	} {
		filePath, remote := s.resolve(test.in)
		assert.Equal(t, test.wantRemote, remote, test.in)
		assert.Equal(t, filepath.Join(s.root, filepath.FromSlash(test.wantRemote)), filePath, test.in)
	}
}

func TestMimeTypeOf(t *testing.T) {
	assert.Equal(t, "text/javascript", mimeTypeOf("pkg/engine.js"))
	assert.Equal(t, "application/wasm", mimeTypeOf("engine_bg.wasm"))
	assert.Equal(t, "text/javascript", mimeTypeOf("UPPER.JS"))
	assert.True(t, strings.HasPrefix(mimeTypeOf("readme.txt"), "text/plain"))
}
