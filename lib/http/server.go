// Package http provides a registration interface for http services
package http

import (
	"context"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/pflag"

	"github.com/aaronboult/rust-simulation-engine/lib/atexit"
	"github.com/aaronboult/rust-simulation-engine/lib/flags"
	"github.com/aaronboult/rust-simulation-engine/lib/log"
)

// Help returns text describing the http server to add to the command
// help.
func Help(prefix string) string {
	help := `### Server options

Use ` + "`--{{ .Prefix }}addr`" + ` to specify which IP address and port the server should
listen on, e.g. ` + "`--{{ .Prefix }}addr 1.2.3.4:8000` or `--{{ .Prefix }}addr :8080`" + ` to listen to all
IPs.  By default it only listens on localhost.  You can use port
:0 to let the OS choose an available port.

You can use a unix socket by setting the addr to ` + "`unix:///path/to/socket`" + `
or just by using an absolute path name.

` + "`--{{ .Prefix }}addr`" + ` may be repeated to listen on multiple IPs/ports/sockets.

` + "`--{{ .Prefix }}server-read-timeout` and `--{{ .Prefix }}server-write-timeout`" + ` can be used to
control the timeouts on the server.  Note that this is the total time
for a transfer.

` + "`--{{ .Prefix }}max-header-bytes`" + ` controls the maximum number of bytes the server will
accept in the HTTP header.

` + "`--{{ .Prefix }}baseurl`" + ` controls the URL prefix that the server serves from.  By default
the server will serve from the root.  If you used ` + "`--{{ .Prefix }}baseurl \"/app\"`" + ` then
it would serve from a URL starting with "/app/".  Leading and trailing
"/" on ` + "`--{{ .Prefix }}baseurl`" + ` are inserted automatically, so ` + "`--{{ .Prefix }}baseurl \"app\"`" + `,
` + "`--{{ .Prefix }}baseurl \"/app\"` and `--{{ .Prefix }}baseurl \"/app/\"`" + ` are all treated
identically.

` + "`--{{ .Prefix }}allow-origin`" + ` sets the Access-Control-Allow-Origin header so pages
served elsewhere may fetch the test builds.

` + "`--{{ .Prefix }}cross-origin-isolation`" + ` sends the Cross-Origin-Opener-Policy and
Cross-Origin-Embedder-Policy headers needed for SharedArrayBuffer based
WebAssembly threading.

` + "`--{{ .Prefix }}no-cache`" + ` (on by default) sends "Cache-Control: no-store" with
every response so the browser always fetches the latest test build.
Disable with ` + "`--{{ .Prefix }}no-cache=false`" + `.
`
	tmpl, err := template.New("server help").Parse(help)
	if err != nil {
		log.Fatalf(nil, "Fatal error parsing template: %v", err)
	}

	data := struct {
		Prefix string
	}{
		Prefix: prefix,
	}
	buf := &strings.Builder{}
	err = tmpl.Execute(buf, data)
	if err != nil {
		log.Fatalf(nil, "Fatal error executing template: %v", err)
	}
	return buf.String()
}

// Middleware function signature required by chi.Router.Use()
type Middleware func(http.Handler) http.Handler

// Config contains options for the http Server
type Config struct {
	ListenAddr           []string      // Port to listen on
	BaseURL              string        // prefix to strip from URLs
	ServerReadTimeout    time.Duration // Timeout for server reading data
	ServerWriteTimeout   time.Duration // Timeout for server writing data
	MaxHeaderBytes       int           // Maximum size of request header
	AllowOrigin          string        // AllowOrigin sets the Access-Control-Allow-Origin header
	NoCache              bool          // Set Cache-Control: no-store on all responses
	CrossOriginIsolation bool          // Send COOP/COEP headers for SharedArrayBuffer support
}

// AddFlagsPrefix adds flags for the httplib
func (cfg *Config) AddFlagsPrefix(flagSet *pflag.FlagSet, prefix string) {
	flags.StringArrayVarP(flagSet, &cfg.ListenAddr, prefix+"addr", "", cfg.ListenAddr, "IPaddress:Port, :Port or [unix://]/path/to/socket to bind server to")
	flags.DurationVarP(flagSet, &cfg.ServerReadTimeout, prefix+"server-read-timeout", "", cfg.ServerReadTimeout, "Timeout for server reading data")
	flags.DurationVarP(flagSet, &cfg.ServerWriteTimeout, prefix+"server-write-timeout", "", cfg.ServerWriteTimeout, "Timeout for server writing data")
	flags.IntVarP(flagSet, &cfg.MaxHeaderBytes, prefix+"max-header-bytes", "", cfg.MaxHeaderBytes, "Maximum size of request header")
	flags.StringVarP(flagSet, &cfg.BaseURL, prefix+"baseurl", "", cfg.BaseURL, "Prefix for URLs - leave blank for root")
	flags.StringVarP(flagSet, &cfg.AllowOrigin, prefix+"allow-origin", "", cfg.AllowOrigin, "Origin which cross-domain request (CORS) can be executed from")
	flags.BoolVarP(flagSet, &cfg.NoCache, prefix+"no-cache", "", cfg.NoCache, "Send Cache-Control: no-store with every response")
	flags.BoolVarP(flagSet, &cfg.CrossOriginIsolation, prefix+"cross-origin-isolation", "", cfg.CrossOriginIsolation, "Send Cross-Origin-Opener-Policy and Cross-Origin-Embedder-Policy headers")
}

// DefaultCfg is the default values used for Config
func DefaultCfg() Config {
	return Config{
		ListenAddr:         []string{"localhost:8080"},
		ServerReadTimeout:  1 * time.Hour,
		ServerWriteTimeout: 1 * time.Hour,
		MaxHeaderBytes:     4096,
		NoCache:            true,
	}
}

type instance struct {
	url        string
	listener   net.Listener
	httpServer *http.Server
}

func (s instance) serve(wg *sync.WaitGroup) {
	defer wg.Done()
	err := s.httpServer.Serve(s.listener)
	if err != http.ErrServerClosed && err != nil {
		log.Errorf(nil, "%s: unexpected error: %s", s.listener.Addr(), err.Error())
	}
}

// Server contains info about the running http server
type Server struct {
	wg           sync.WaitGroup
	mux          chi.Router
	instances    []instance
	cfg          Config
	template     *TemplateConfig
	htmlTemplate *template.Template
	atexitHandle atexit.FnHandle
}

// Option allows customizing the server
type Option func(*Server)

// WithConfig option applies the Config to the server, overriding defaults
func WithConfig(cfg Config) Option {
	return func(s *Server) {
		s.cfg = cfg
	}
}

// WithTemplate option allows the parsing of a template
func WithTemplate(cfg TemplateConfig) Option {
	return func(s *Server) {
		s.template = &cfg
	}
}

type ctxKey int

const (
	ctxKeyURL ctxKey = iota
	ctxKeyUnixSock
)

// NewBaseContext initializes the context for all requests of a listener
func NewBaseContext(ctx context.Context, url string) func(l net.Listener) context.Context {
	return func(l net.Listener) context.Context {
		if l.Addr().Network() == "unix" {
			return context.WithValue(ctx, ctxKeyUnixSock, true)
		}
		return context.WithValue(ctx, ctxKeyURL, url)
	}
}

// IsUnixSocket returns true if the request was received on a unix socket
func IsUnixSocket(r *http.Request) bool {
	v, _ := r.Context().Value(ctxKeyUnixSock).(bool)
	return v
}

// PublicURL returns the URL of the listener the request arrived on
func PublicURL(r *http.Request) string {
	v, _ := r.Context().Value(ctxKeyURL).(string)
	return v
}

// For a given listener construct an instance.
// The url string ends up in the `url` field of the `instance`.
func newInstance(ctx context.Context, s *Server, listener net.Listener, url string) *instance {
	return &instance{
		url:      url,
		listener: listener,
		httpServer: &http.Server{
			Handler:           s.mux,
			ReadTimeout:       s.cfg.ServerReadTimeout,
			WriteTimeout:      s.cfg.ServerWriteTimeout,
			MaxHeaderBytes:    s.cfg.MaxHeaderBytes,
			ReadHeaderTimeout: 10 * time.Second, // time to send the headers
			IdleTimeout:       60 * time.Second, // time to keep idle connections open
			BaseContext:       NewBaseContext(ctx, url),
		},
	}
}

// NewServer instantiates a new http server using provided listeners and options
//
// A http server can listen using multiple listeners. For example, a
// listener for port 8080, and a unix socket.
func NewServer(ctx context.Context, options ...Option) (*Server, error) {
	s := &Server{
		mux: chi.NewRouter(),
		cfg: DefaultCfg(),
	}

	for _, opt := range options {
		opt(s)
	}

	// Build base router
	s.mux.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})
	s.mux.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	// Ignore passing "/" for BaseURL
	s.cfg.BaseURL = strings.Trim(s.cfg.BaseURL, "/")
	if s.cfg.BaseURL != "" {
		s.cfg.BaseURL = "/" + s.cfg.BaseURL
		s.mux.Use(MiddlewareStripPrefix(s.cfg.BaseURL))
	}

	err := s.initTemplate()
	if err != nil {
		return nil, err
	}

	s.mux.Use(MiddlewareCORS(s.cfg.AllowOrigin))
	if s.cfg.NoCache {
		s.mux.Use(MiddlewareCacheControl("no-store"))
	}
	if s.cfg.CrossOriginIsolation {
		s.mux.Use(MiddlewareCrossOriginIsolation())
	}
	s.mux.Use(MiddlewareMimeOverride())

	// Process all listeners specified in the CLI Args.
	for _, addr := range s.cfg.ListenAddr {
		var instance *instance

		if strings.HasPrefix(addr, "unix://") || filepath.IsAbs(addr) {
			addr = strings.TrimPrefix(addr, "unix://")

			listener, err := net.Listen("unix", addr)
			if err != nil {
				return nil, err
			}
			instance = newInstance(ctx, s, listener, addr)
		} else {
			addr = strings.TrimPrefix(addr, "http://")
			listener, err := net.Listen("tcp", addr)
			if err != nil {
				return nil, err
			}
			instance = newInstance(ctx, s, listener, fmt.Sprintf("http://%s%s/", listener.Addr().String(), s.cfg.BaseURL))
		}

		s.instances = append(s.instances, *instance)
	}

	return s, nil
}

func (s *Server) initTemplate() error {
	if s.template == nil {
		return nil
	}

	var err error
	s.htmlTemplate, err = GetTemplate(s.template.Path)
	if err != nil {
		err = fmt.Errorf("failed to get template: %w", err)
	}

	return err
}

// Serve starts the HTTP server on each listener
func (s *Server) Serve() {
	s.wg.Add(len(s.instances))
	for _, ii := range s.instances {
		go ii.serve(&s.wg)
	}
	// Install an atexit handler to shutdown gracefully
	s.atexitHandle = atexit.Register(func() { _ = s.Shutdown() })
}

// Wait blocks while the server is serving requests
func (s *Server) Wait() {
	s.wg.Wait()
}

// Router returns the server base router
func (s *Server) Router() chi.Router {
	return s.mux
}

// Time to wait to Shutdown an HTTP server
const gracefulShutdownTime = 10 * time.Second

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown() error {
	// Stop the atexit handler
	if s.atexitHandle != nil {
		atexit.Unregister(s.atexitHandle)
		s.atexitHandle = nil
	}
	for _, ii := range s.instances {
		expiry := time.Now().Add(gracefulShutdownTime)
		ctx, cancel := context.WithDeadline(context.Background(), expiry)
		if err := ii.httpServer.Shutdown(ctx); err != nil {
			log.Errorf(nil, "error shutting down server: %s", err)
		}
		cancel()
	}
	s.wg.Wait()
	return nil
}

// HTMLTemplate returns the parsed template, if WithTemplate option was passed.
func (s *Server) HTMLTemplate() *template.Template {
	return s.htmlTemplate
}

// URLs returns all configured URLS
func (s *Server) URLs() []string {
	var out []string
	for _, ii := range s.instances {
		if ii.listener.Addr().Network() == "unix" {
			continue
		}
		out = append(out, ii.url)
	}
	return out
}
