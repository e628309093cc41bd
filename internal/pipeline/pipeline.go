// Package pipeline turns one URL into a bundle: fetch, parse, extract
// metadata, localize images, render content, archive.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/page-bundler/internal/archive"
	"github.com/JakeFAU/page-bundler/internal/bundle"
	"github.com/JakeFAU/page-bundler/internal/extract"
	"github.com/JakeFAU/page-bundler/internal/images"
	"github.com/JakeFAU/page-bundler/internal/metrics"
	"github.com/JakeFAU/page-bundler/internal/sanitize"
)

// Run results used as metric labels.
const (
	ResultSuccess     = "success"
	ResultFetchFailed = "fetch_failed"
	ResultError       = "error"
)

// ArchiveContentType is sent with mirrored archives.
const ArchiveContentType = "application/zip"

// Config controls Pipeline behavior.
type Config struct {
	// OutputDir is where image folders and archives are written.
	OutputDir string
	// DefaultMode applies when Run is called with an empty mode.
	DefaultMode bundle.ContentMode
	// Headers are added to every page and image request.
	Headers http.Header
	// MirrorPrefix is prepended to mirrored archive paths.
	MirrorPrefix string
	// Topic receives bundle.created events.
	Topic string
}

// Deps are the collaborators of a Pipeline. Mirror, Recorder and Publisher
// are optional.
type Deps struct {
	Fetcher    bundle.Fetcher
	ProcessIDs bundle.IDGenerator
	ImageNames bundle.IDGenerator
	Hasher     bundle.Hasher
	Clock      bundle.Clock
	Mirror     bundle.BlobStore
	Recorder   bundle.RunRecorder
	Publisher  bundle.Publisher
}

// Pipeline executes bundle runs. It is safe for concurrent use as long as
// concurrent runs target different URLs.
type Pipeline struct {
	deps      Deps
	cfg       Config
	localizer *images.Localizer
	logger    *zap.Logger
}

// Created is published after every successful run.
type Created struct {
	ID           string             `json:"id"`
	Permalink    string             `json:"permalink"`
	PageTitle    string             `json:"page_title"`
	ContentMode  bundle.ContentMode `json:"content_mode"`
	ContentHash  string             `json:"content_hash"`
	ArchiveURI   string             `json:"archive_uri,omitempty"`
	ImagesTotal  int                `json:"images_total"`
	ImagesFailed int                `json:"images_failed"`
	Timestamp    string             `json:"timestamp"`
}

// EventName implements the event attribute hook of the Pub/Sub publisher.
func (Created) EventName() string { return "bundle.created" }

// New constructs a Pipeline.
func New(deps Deps, cfg Config, logger *zap.Logger) (*Pipeline, error) {
	if deps.Fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if deps.ProcessIDs == nil || deps.ImageNames == nil {
		return nil, fmt.Errorf("id generators are required")
	}
	if deps.Hasher == nil || deps.Clock == nil {
		return nil, fmt.Errorf("hasher and clock are required")
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = "."
	}
	if cfg.DefaultMode == "" {
		cfg.DefaultMode = bundle.ContentModeClean
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()

	imageFetcher := observedFetcher{next: deps.Fetcher, kind: "image"}
	return &Pipeline{
		deps:      deps,
		cfg:       cfg,
		localizer: images.NewLocalizer(imageFetcher, deps.ImageNames, logger.Named("images")),
		logger:    logger,
	}, nil
}

// Run produces a bundle for rawURL. A fetch failure returns an error wrapping
// bundle.ErrFetchFailed; image failures are reported in the result; archive
// failures are returned.
func (p *Pipeline) Run(ctx context.Context, rawURL string, mode bundle.ContentMode) (bundle.Result, error) {
	start := p.deps.Clock.Now()
	if mode == "" {
		mode = p.cfg.DefaultMode
	}
	result, err := p.run(ctx, rawURL, mode, start)
	elapsed := p.deps.Clock.Now().Sub(start)
	switch {
	case err == nil:
		metrics.ObserveRun(ResultSuccess, elapsed)
	case errors.Is(err, bundle.ErrFetchFailed):
		metrics.ObserveRun(ResultFetchFailed, elapsed)
	default:
		metrics.ObserveRun(ResultError, elapsed)
	}
	return result, err
}

func (p *Pipeline) run(ctx context.Context, rawURL string, mode bundle.ContentMode, start time.Time) (bundle.Result, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return bundle.Result{}, fmt.Errorf("url is required")
	}
	logger := p.logger.With(zap.String("url", rawURL))

	folder, err := images.FolderName(rawURL)
	if err != nil {
		return bundle.Result{}, fmt.Errorf("derive images folder: %w", err)
	}
	id, err := p.deps.ProcessIDs.NewID()
	if err != nil {
		return bundle.Result{}, fmt.Errorf("generate process id: %w", err)
	}
	logger = logger.With(zap.String("id", id))

	resp, err := observedFetcher{next: p.deps.Fetcher, kind: "page"}.Fetch(ctx, bundle.FetchRequest{
		URL:     rawURL,
		Headers: p.cfg.Headers,
	})
	if err != nil {
		logger.Warn("page fetch failed", zap.Error(err))
		return bundle.Result{}, err
	}
	logger.Debug("page fetched", zap.Int("status", resp.StatusCode), zap.Int("bytes", len(resp.Body)))

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return bundle.Result{}, fmt.Errorf("parse page: %w", err)
	}

	meta := extract.Extract(doc)
	logger.Debug("metadata extracted",
		zap.String("page_title", meta.PageTitle),
		zap.Int("meta_tags", len(meta.MetaTags)),
	)

	report, err := p.localizer.Localize(ctx, images.Request{
		Doc:     doc,
		BaseURL: rawURL,
		Headers: p.cfg.Headers,
		Root:    p.cfg.OutputDir,
		Folder:  folder,
	})
	if err != nil {
		return bundle.Result{}, fmt.Errorf("localize images: %w", err)
	}
	metrics.ObserveImages(report.Succeeded(), report.Failed())
	logger.Info("images localized",
		zap.String("folder", report.Folder),
		zap.Int("succeeded", report.Succeeded()),
		zap.Int("failed", report.Failed()),
	)

	content, err := sanitize.Render(doc, mode)
	if err != nil {
		return bundle.Result{}, fmt.Errorf("render %s content: %w", mode, err)
	}

	zipPath, err := archive.Zip(report.Folder)
	if err != nil {
		return bundle.Result{}, fmt.Errorf("archive images: %w", err)
	}
	if info, statErr := os.Stat(zipPath); statErr == nil {
		metrics.ObserveArchive(info.Size())
	}

	hash, err := p.deps.Hasher.Hash([]byte(content))
	if err != nil {
		return bundle.Result{}, fmt.Errorf("hash content: %w", err)
	}

	result := bundle.Result{
		ID: id,
		Bundle: bundle.Bundle{
			PageTitle:       meta.PageTitle,
			MetaTitle:       meta.MetaTitle,
			MetaDescription: meta.MetaDescription,
			MetaTags:        meta.MetaTags,
			Permalink:       rawURL,
			Content:         content,
			ArchivePath:     zipPath,
			ContentMode:     mode,
		},
		Images:      report,
		ContentHash: hash,
		CreatedAt:   p.deps.Clock.Now(),
	}

	result.ArchiveURI = p.mirror(ctx, logger, id, zipPath)
	p.record(ctx, logger, result, start)
	p.publish(ctx, logger, result)

	logger.Info("bundle created",
		zap.String("archive", zipPath),
		zap.String("archive_uri", result.ArchiveURI),
		zap.String("content_mode", string(mode)),
	)
	return result, nil
}

// MirrorPath is the blob path a run's archive is mirrored to.
func (p *Pipeline) MirrorPath(id, zipPath string) string {
	name := path.Join(id, filepath.Base(zipPath))
	if prefix := strings.Trim(p.cfg.MirrorPrefix, "/"); prefix != "" {
		return path.Join(prefix, name)
	}
	return name
}

func (p *Pipeline) mirror(ctx context.Context, logger *zap.Logger, id, zipPath string) string {
	if p.deps.Mirror == nil {
		return ""
	}
	// #nosec G304 -- zipPath was just written by archive.Zip.
	f, err := os.Open(zipPath)
	if err != nil {
		metrics.ObserveSideEffectError("mirror")
		logger.Warn("open archive for mirror failed", zap.Error(err))
		return ""
	}
	defer f.Close() //nolint:errcheck // read-only handle

	uri, err := p.deps.Mirror.PutObject(ctx, p.MirrorPath(id, zipPath), ArchiveContentType, f)
	if err != nil {
		metrics.ObserveSideEffectError("mirror")
		logger.Warn("archive mirror failed", zap.Error(err))
		return ""
	}
	return uri
}

func (p *Pipeline) record(ctx context.Context, logger *zap.Logger, result bundle.Result, start time.Time) {
	if p.deps.Recorder == nil {
		return
	}
	rec := bundle.RunRecord{
		ID:             result.ID,
		Permalink:      result.Bundle.Permalink,
		ContentMode:    result.Bundle.ContentMode,
		PageTitle:      result.Bundle.PageTitle,
		ImagesTotal:    len(result.Images.Outcomes),
		ImagesFailed:   result.Images.Failed(),
		ArchivePath:    result.Bundle.ArchivePath,
		ArchiveURI:     result.ArchiveURI,
		ContentHash:    result.ContentHash,
		CreatedAt:      result.CreatedAt,
		DurationMillis: result.CreatedAt.Sub(start).Milliseconds(),
	}
	if err := p.deps.Recorder.RecordRun(ctx, rec); err != nil {
		metrics.ObserveSideEffectError("record")
		logger.Warn("record run failed", zap.Error(err))
	}
}

func (p *Pipeline) publish(ctx context.Context, logger *zap.Logger, result bundle.Result) {
	if p.deps.Publisher == nil || p.cfg.Topic == "" {
		return
	}
	event := Created{
		ID:           result.ID,
		Permalink:    result.Bundle.Permalink,
		PageTitle:    result.Bundle.PageTitle,
		ContentMode:  result.Bundle.ContentMode,
		ContentHash:  result.ContentHash,
		ArchiveURI:   result.ArchiveURI,
		ImagesTotal:  len(result.Images.Outcomes),
		ImagesFailed: result.Images.Failed(),
		Timestamp:    result.CreatedAt.Format(time.RFC3339),
	}
	msgID, err := p.deps.Publisher.Publish(ctx, p.cfg.Topic, event)
	if err != nil {
		metrics.ObserveSideEffectError("publish")
		logger.Warn("publish bundle event failed", zap.Error(err))
		return
	}
	logger.Debug("bundle event published", zap.String("message_id", msgID))
}

// observedFetcher counts fetches by kind.
type observedFetcher struct {
	next bundle.Fetcher
	kind string
}

func (f observedFetcher) Fetch(ctx context.Context, req bundle.FetchRequest) (bundle.FetchResponse, error) {
	resp, err := f.next.Fetch(ctx, req)
	metrics.ObserveFetch(req.URL, f.kind, err == nil, len(resp.Body))
	return resp, err
}
