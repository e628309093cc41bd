// Package images downloads a page's images into a local folder and rewrites
// their references to point at the downloaded copies.
package images

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/page-bundler/internal/bundle"
)

// DefaultExtension is appended to generated names for images whose remote
// path carries no extension.
const DefaultExtension = ".jpg"

var errUnsupportedScheme = errors.New("unsupported image scheme")

// Request describes one localize pass.
type Request struct {
	Doc     *goquery.Document
	BaseURL string
	Headers http.Header
	// Root is the directory the images folder lives in.
	Root string
	// Folder is the images folder name; rewritten sources are Folder/<file>.
	Folder string
}

// Dir returns the on-disk location of the images folder.
func (r Request) Dir() string {
	return filepath.Join(r.Root, r.Folder)
}

// Localizer fetches images sequentially and rewrites their src attributes.
type Localizer struct {
	fetcher bundle.Fetcher
	names   bundle.IDGenerator
	logger  *zap.Logger
}

// NewLocalizer wires a Localizer. names supplies unique stems for images
// without an extension.
func NewLocalizer(fetcher bundle.Fetcher, names bundle.IDGenerator, logger *zap.Logger) *Localizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Localizer{fetcher: fetcher, names: names, logger: logger}
}

type imageRef struct {
	sel *goquery.Selection
	src string
}

// Localize creates the images folder and processes every img element with a
// non-empty src. Individual failures are recorded in the report and leave the
// element untouched; only a folder that cannot be created is an error.
func (l *Localizer) Localize(ctx context.Context, req Request) (bundle.ImageReport, error) {
	report := bundle.ImageReport{Folder: req.Dir()}
	if err := os.MkdirAll(req.Dir(), 0o750); err != nil {
		return report, fmt.Errorf("create images folder %s: %w", req.Dir(), err)
	}
	base, err := url.Parse(req.BaseURL)
	if err != nil {
		return report, fmt.Errorf("parse base url: %w", err)
	}

	refs := collectImages(req.Doc)
	for _, ref := range refs {
		outcome := l.localizeOne(ctx, req, base, ref)
		if outcome.OK() {
			l.logger.Debug("saved image",
				zap.String("image", outcome.Resolved),
				zap.String("path", outcome.LocalPath),
			)
		} else {
			l.logger.Warn("image localize failed",
				zap.String("image", outcome.Resolved),
				zap.String("error", outcome.Error),
			)
		}
		report.Outcomes = append(report.Outcomes, outcome)
	}
	return report, nil
}

func collectImages(doc *goquery.Document) []imageRef {
	var refs []imageRef
	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		src, ok := s.Attr("src")
		if !ok || src == "" {
			return
		}
		refs = append(refs, imageRef{sel: s, src: src})
	})
	return refs
}

func (l *Localizer) localizeOne(ctx context.Context, req Request, base *url.URL, ref imageRef) bundle.ImageOutcome {
	outcome := bundle.ImageOutcome{Source: ref.src}
	target, err := base.Parse(ref.src)
	if err != nil {
		outcome.Resolved = ref.src
		outcome.Error = fmt.Sprintf("resolve src: %v", err)
		return outcome
	}
	outcome.Resolved = target.String()
	if scheme := strings.ToLower(target.Scheme); scheme != "http" && scheme != "https" {
		outcome.Error = fmt.Errorf("%w: %q", errUnsupportedScheme, target.Scheme).Error()
		return outcome
	}

	resp, err := l.fetcher.Fetch(ctx, bundle.FetchRequest{URL: outcome.Resolved, Headers: req.Headers})
	if err != nil {
		outcome.Error = err.Error()
		return outcome
	}

	filename, err := l.filename(target)
	if err != nil {
		outcome.Error = err.Error()
		return outcome
	}
	if err := os.WriteFile(filepath.Join(req.Dir(), filename), resp.Body, 0o600); err != nil {
		outcome.Error = fmt.Sprintf("write image: %v", err)
		return outcome
	}

	outcome.LocalPath = path.Join(req.Folder, filename)
	outcome.Bytes = len(resp.Body)
	ref.sel.SetAttr("src", outcome.LocalPath)
	return outcome
}

// filename reuses the remote basename when it has an extension and otherwise
// generates a unique name with DefaultExtension.
func (l *Localizer) filename(target *url.URL) (string, error) {
	name := RemoteBasename(target)
	if name != "" {
		return name, nil
	}
	id, err := l.names.NewID()
	if err != nil {
		return "", fmt.Errorf("generate image name: %w", err)
	}
	return id + DefaultExtension, nil
}

// RemoteBasename returns the last escaped path segment of target when it
// contains a dot, or "" when a name must be generated.
func RemoteBasename(target *url.URL) string {
	p := target.EscapedPath()
	name := p[strings.LastIndex(p, "/")+1:]
	if name == "." || name == ".." || !strings.Contains(name, ".") {
		return ""
	}
	return name
}
