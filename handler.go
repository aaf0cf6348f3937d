package main

import (
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"path"
	"strings"
)

var indexPages = []string{"index.html", "index.htm"}

// fileHandler resolves every request through http.Dir, which refuses names
// that would step outside the root on any platform.
type fileHandler struct {
	fs      http.FileSystem
	listing *lister
	logger  *slog.Logger
}

func newFileHandler(cfg *Config, logger *slog.Logger) (*fileHandler, error) {
	l, err := newLister(cfg.Readme, logger)
	if err != nil {
		return nil, err
	}
	return &fileHandler{
		fs:      http.Dir(cfg.Root),
		listing: l,
		logger:  logger,
	}, nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	size   int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.size += n
	return n, err
}

func (h *fileHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rec := &statusRecorder{ResponseWriter: w}
	h.serve(rec, r)
	if rec.status == 0 {
		rec.status = http.StatusOK
	}
	h.logger.Info("request",
		"method", r.Method,
		"path", r.URL.Path,
		"status", rec.status,
		"bytes", rec.size,
		"remote", r.RemoteAddr,
	)
}

func (h *fileHandler) serve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "Unsupported method ("+r.Method+")", http.StatusNotImplemented)
		return
	}

	urlPath := r.URL.Path
	if !strings.HasPrefix(urlPath, "/") {
		urlPath = "/" + urlPath
	}
	urlPath = path.Clean(urlPath)
	slashed := strings.HasSuffix(r.URL.Path, "/")

	f, err := h.fs.Open(urlPath)
	if err != nil {
		openError(w, err)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		openError(w, err)
		return
	}

	if !info.IsDir() {
		if slashed {
			http.NotFound(w, r)
			return
		}
		http.ServeContent(w, r, info.Name(), info.ModTime(), f)
		return
	}

	if !slashed {
		target := path.Base(urlPath) + "/"
		if r.URL.RawQuery != "" {
			target += "?" + r.URL.RawQuery
		}
		w.Header().Set("Location", target)
		w.WriteHeader(http.StatusMovedPermanently)
		return
	}
	if urlPath != "/" {
		urlPath += "/"
	}
	if h.serveIndex(w, r, urlPath) {
		return
	}
	if err := h.listing.render(w, r, h.fs, f, urlPath); err != nil {
		h.logger.Warn("failed to list directory", "path", urlPath, "error", err)
		http.NotFound(w, r)
	}
}

func openError(w http.ResponseWriter, err error) {
	if errors.Is(err, fs.ErrPermission) {
		http.Error(w, "403 Forbidden", http.StatusForbidden)
		return
	}
	http.Error(w, "404 page not found", http.StatusNotFound)
}

func (h *fileHandler) serveIndex(w http.ResponseWriter, r *http.Request, dir string) bool {
	for _, name := range indexPages {
		f, err := h.fs.Open(dir + name)
		if err != nil {
			continue
		}
		info, err := f.Stat()
		if err != nil || info.IsDir() {
			f.Close()
			continue
		}
		http.ServeContent(w, r, name, info.ModTime(), f)
		f.Close()
		return true
	}
	return false
}
