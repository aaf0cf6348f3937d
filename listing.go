package main

import (
	"bytes"
	"embed"
	"html/template"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/dustin/go-humanize"
	"github.com/xplshn/tracerr2"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	gmdhtml "github.com/yuin/goldmark/renderer/html"
)

//go:embed html/*.tmpl
var embedFS embed.FS

var md = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithParserOptions(
		parser.WithAutoHeadingID(),
	),
	goldmark.WithRendererOptions(
		gmdhtml.WithHardWraps(),
		gmdhtml.WithXHTML(),
	),
)

type ListingEntry struct {
	Name     string
	Href     string
	Size     string
	Modified string
	Language string
	IsDir    bool
}

type ListingPageData struct {
	Path    string
	Entries []*ListingEntry
	Readme  template.HTML
}

type lister struct {
	readme string
	tmpl   *template.Template
	logger *slog.Logger
}

func newLister(readme string, logger *slog.Logger) (*lister, error) {
	ts, err := template.New("listing.page.tmpl").ParseFS(embedFS, "html/listing.page.tmpl", "html/base.layout.tmpl")
	if err != nil {
		return nil, tracerr.Wrapf(err, "failed to parse listing templates")
	}
	return &lister{readme: readme, tmpl: ts, logger: logger}, nil
}

func toPretty(b int64) string {
	return humanize.Bytes(uint64(b))
}

func languageOf(name string) string {
	if lexer := lexers.Match(name); lexer != nil {
		return lexer.Config().Name
	}
	return ""
}

func statPath(fsys http.FileSystem, name string) (fs.FileInfo, error) {
	f, err := fsys.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return f.Stat()
}

// entries reads an open directory; dir is its slash-terminated URL path.
func (l *lister) entries(fsys http.FileSystem, f http.File, dir string) ([]*ListingEntry, error) {
	infos, err := f.Readdir(-1)
	if err != nil {
		return nil, tracerr.Wrapf(err, "failed to read directory %s", dir)
	}

	sort.Slice(infos, func(i, j int) bool {
		return strings.ToLower(infos[i].Name()) < strings.ToLower(infos[j].Name())
	})

	list := make([]*ListingEntry, 0, len(infos))
	for _, fi := range infos {
		name := fi.Name()
		entry := &ListingEntry{Name: name, Href: (&url.URL{Path: name}).String(), Size: "-", Modified: "-"}

		// Readdir does not follow symlinks; a link to a directory is linked as one.
		info, symlink := fi, fi.Mode()&fs.ModeSymlink != 0
		var statErr error
		if symlink {
			info, statErr = statPath(fsys, dir+name)
		}
		if statErr == nil {
			entry.Modified = humanize.Time(info.ModTime())
			if info.IsDir() {
				entry.IsDir = true
				entry.Name += "/"
				entry.Href += "/"
			} else {
				entry.Size = toPretty(info.Size())
				entry.Language = languageOf(name)
			}
		}
		if symlink {
			entry.Name = name + "@"
		}
		list = append(list, entry)
	}
	return list, nil
}

func (l *lister) renderReadme(fsys http.FileSystem, dir string) template.HTML {
	if l.readme == "" {
		return ""
	}
	f, err := fsys.Open(path.Join(dir, l.readme))
	if err != nil {
		return ""
	}
	defer f.Close()
	if info, err := f.Stat(); err != nil || info.IsDir() {
		return ""
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return ""
	}
	var buf bytes.Buffer
	if err := md.Convert(data, &buf); err != nil {
		l.logger.Error("markdown conversion failed", "dir", dir, "error", err)
		return ""
	}
	return template.HTML(buf.String())
}

func (l *lister) render(w http.ResponseWriter, r *http.Request, fsys http.FileSystem, f http.File, dir string) error {
	list, err := l.entries(fsys, f, dir)
	if err != nil {
		return err
	}

	data := &ListingPageData{
		Path:    dir,
		Entries: list,
		Readme:  l.renderReadme(fsys, dir),
	}
	var buf bytes.Buffer
	if err := l.tmpl.ExecuteTemplate(&buf, "base", data); err != nil {
		return tracerr.Wrapf(err, "failed to execute listing template")
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return nil
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		l.logger.Debug("listing write interrupted", "path", dir, "error", err)
	}
	return nil
}
