// Package serve implements the HTTP development server.
package serve

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pkg/errors"
	"github.com/skratchdot/open-golang/open"
	"github.com/spf13/cobra"

	"github.com/aaronboult/rust-simulation-engine/cmd"
	"github.com/aaronboult/rust-simulation-engine/lib/buildinfo"
	"github.com/aaronboult/rust-simulation-engine/lib/env"
	"github.com/aaronboult/rust-simulation-engine/lib/flags"
	libhttp "github.com/aaronboult/rust-simulation-engine/lib/http"
	"github.com/aaronboult/rust-simulation-engine/lib/log"
)

// Options required for the server
type Options struct {
	HTTP      libhttp.Config
	Template  libhttp.TemplateConfig
	IndexName string // name of the root document
	Open      bool   // open the URL in a browser after starting
}

// DefaultOpt is the default values used for Options
func DefaultOpt() Options {
	return Options{
		HTTP:      libhttp.DefaultCfg(),
		Template:  libhttp.DefaultTemplateCfg(),
		IndexName: "index.html",
	}
}

// Opt is options set by command line flags
var Opt = DefaultOpt()

func init() {
	flagSet := Command.Flags()
	Opt.HTTP.AddFlagsPrefix(flagSet, "")
	Opt.Template.AddFlagsPrefix(flagSet, "")
	flags.StringVarP(flagSet, &Opt.IndexName, "index", "", Opt.IndexName, "Name of the root document")
	flags.BoolVarP(flagSet, &Opt.Open, "open", "", Opt.Open, "Open the served URL in the default browser after starting")
	cmd.Root.AddCommand(Command)
}

// Command definition for cobra
var Command = &cobra.Command{
	Use:   "serve [dir]",
	Short: `Serve a directory of WebAssembly test builds over HTTP.`,
	Long: `Serve dir (or the current directory) over HTTP for testing
WebAssembly builds in a browser.

A request for / returns the root document (index.html by default, see
--index) from the served directory.  If the root document is missing a
placeholder page is returned instead - still with a 200 status so the
build can be dropped in without restarting the server or fighting the
browser's error page cache.

Any other path is served as a static file relative to the served
directory.  Paths are cleaned before use so requests can never escape
the served directory.  Missing files return 404.  .js files are always
sent as text/javascript and .wasm files as application/wasm - some OS
mime databases get these wrong which stops the browser from running
the module.

` + libhttp.Help("") + libhttp.TemplateHelp(""),
	RunE: func(command *cobra.Command, args []string) error {
		cmd.CheckArgs(0, 1, command, args)
		root := "."
		if len(args) > 0 {
			root = env.ShellExpand(args[0])
		}
		s, err := newServer(context.Background(), root, &Opt)
		if err != nil {
			return err
		}
		return s.serve()
	},
}

// server contains everything to run the server
type server struct {
	*libhttp.Server
	root string
	opt  Options
}

// newServer makes a new server to serve the root directory
func newServer(ctx context.Context, root string, opt *Options) (*server, error) {
	fi, err := os.Stat(root)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to find %q", root)
	}
	if !fi.IsDir() {
		return nil, errors.Errorf("%q is not a directory", root)
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve %q", root)
	}

	s := &server{
		root: absRoot,
		opt:  *opt,
	}
	s.Server, err = libhttp.NewServer(ctx,
		libhttp.WithConfig(opt.HTTP),
		libhttp.WithTemplate(opt.Template),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to init server: %w", err)
	}

	router := s.Server.Router()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Server", "devserve/"+buildinfo.Version)
			next.ServeHTTP(w, r)
		})
	})
	router.Get("/*", s.handler)
	router.Head("/*", s.handler)
	return s, nil
}

// serve runs the server and blocks until it is shut down
func (s *server) serve() error {
	s.Server.Serve()
	urls := s.URLs()
	for _, url := range urls {
		log.Logf(nil, "Serving %s on %s", s.root, url)
	}
	if s.opt.Open && len(urls) > 0 {
		if err := open.Start(urls[0]); err != nil {
			log.Errorf(nil, "Failed to open browser: %v", err)
		}
	}
	s.Wait()
	return nil
}

// internalError returns an http.StatusInternalServerError and logs the error
func internalError(what interface{}, w http.ResponseWriter, text string, err error) {
	log.Errorf(what, "%s: %v", text, err)
	http.Error(w, text+".", http.StatusInternalServerError)
}

// handler reads incoming requests and dispatches them
func (s *server) handler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/" {
		s.serveRoot(w, r)
		return
	}
	s.serveFile(w, r, r.URL.Path)
}

// serveRoot serves the root document, or the fallback page if it is
// missing.  The fallback is deliberately a 200 and not a 404 so the
// root document can be dropped in while the server is running without
// the browser caching an error for the app root.
func (s *server) serveRoot(w http.ResponseWriter, r *http.Request) {
	name := filepath.Join(s.root, s.opt.IndexName)
	body, err := os.ReadFile(name)
	if os.IsNotExist(err) {
		log.Infof(s.opt.IndexName, "%s: Serving fallback page", r.RemoteAddr)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		err = s.HTMLTemplate().Execute(w, libhttp.FallbackData{Index: s.opt.IndexName})
		if err != nil {
			log.Errorf(s.opt.IndexName, "Failed to render fallback page: %v", err)
		}
		return
	} else if err != nil {
		internalError(s.opt.IndexName, w, "Failed to read root document", err)
		return
	}
	log.Infof(s.opt.IndexName, "%s: Serving root document", r.RemoteAddr)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	_, _ = w.Write(body)
}

// resolve maps a request path to a file within the serving root.
//
// The path is rooted at "/" and cleaned before joining so traversal
// sequences can never escape the root.
func (s *server) resolve(urlPath string) (filePath, remote string) {
	remote = strings.Trim(path.Clean("/"+urlPath), "/")
	filePath = filepath.Join(s.root, filepath.FromSlash(remote))
	return filePath, remote
}

// serveFile serves a file from within the serving root
func (s *server) serveFile(w http.ResponseWriter, r *http.Request, urlPath string) {
	filePath, remote := s.resolve(urlPath)

	fi, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		log.Infof(remote, "%s: File not found", r.RemoteAddr)
		http.Error(w, "File not found", http.StatusNotFound)
		return
	} else if err != nil {
		internalError(remote, w, "Failed to find file", err)
		return
	}
	if fi.IsDir() {
		log.Infof(remote, "%s: Is a directory", r.RemoteAddr)
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}

	leaf := path.Base(remote)

	// Set content length since we know how long the file is
	w.Header().Set("Content-Length", strconv.FormatInt(fi.Size(), 10))
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", leaf))
	if mimeType := mimeTypeOf(filePath); mimeType != "" {
		w.Header().Set("Content-Type", mimeType)
	}

	in, err := os.Open(filePath)
	if err != nil {
		internalError(remote, w, "Failed to open file", err)
		return
	}
	defer func() {
		if err := in.Close(); err != nil {
			log.Errorf(remote, "Failed to close file: %v", err)
		}
	}()

	log.Infof(remote, "%s: Serving file", r.RemoteAddr)
	http.ServeContent(w, r, leaf, fi.ModTime(), in)
}

// Types for extensions browsers are picky about.  Some OS mime
// databases return text/plain or application/octet-stream for these,
// which stops the browser from running the module.
var forcedMimeTypes = map[string]string{
	".js":   "text/javascript",
	".wasm": "application/wasm",
}

// mimeTypeOf returns the content type to serve filePath with, or ""
// if it can't be worked out.
func mimeTypeOf(filePath string) string {
	ext := strings.ToLower(path.Ext(filepath.ToSlash(filePath)))
	if mimeType, ok := forcedMimeTypes[ext]; ok {
		return mimeType
	}
	if mimeType := mime.TypeByExtension(ext); mimeType != "" {
		return mimeType
	}
	if ext == "" {
		if detected, err := mimetype.DetectFile(filePath); err == nil {
			return detected.String()
		}
	}
	return ""
}
