package pipeline

import (
	"archive/zip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/page-bundler/internal/bundle"
	collyfetcher "github.com/JakeFAU/page-bundler/internal/fetcher/colly"
	"github.com/JakeFAU/page-bundler/internal/hash/sha256"
	memorypub "github.com/JakeFAU/page-bundler/internal/publisher/memory"
	"github.com/JakeFAU/page-bundler/internal/storage/memory"
)

const pageHTML = `<!DOCTYPE html><html><head><title>Tab Title</title>` +
	`<meta property="og:title" content="OG Title">` +
	`<meta name="description" content="  A short description ">` +
	`<meta name="author" content="Ann">` +
	`<style>p { color: red; }</style></head>` +
	`<body><h1>Hello <em>World</em></h1><!-- note --><p class="lead">Intro <a href="/x">link</a></p>` +
	`<img src="/img/a.png"><img src="/img/missing.png"><img src="/img/photo">` +
	`<script>var x = 1;</script></body></html>`

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(10 * time.Millisecond)
	return c.now
}

type seqIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

func (s *seqIDs) NewID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("%s-%d", s.prefix, s.n), nil
}

type recorder struct {
	mu      sync.Mutex
	records []bundle.RunRecord
	err     error
}

func (r *recorder) RecordRun(_ context.Context, rec bundle.RunRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.records = append(r.records, rec)
	return nil
}

type blobStoreFunc func() (string, error)

func (f blobStoreFunc) PutObject(context.Context, string, string, io.Reader) (string, error) {
	return f()
}

func newSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/blog/post", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(pageHTML))
	})
	mux.HandleFunc("/img/a.png", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("png-a"))
	})
	mux.HandleFunc("/img/photo", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("jpeg-photo"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type fixture struct {
	pipeline  *Pipeline
	mirror    *memory.BlobStore
	publisher *memorypub.Publisher
	recorder  *recorder
	outputDir string
}

func newFixture(t *testing.T, mutate func(*Deps, *Config)) fixture {
	t.Helper()
	f := fixture{
		mirror:    memory.NewBlobStore(),
		publisher: memorypub.New(),
		recorder:  &recorder{},
		outputDir: t.TempDir(),
	}
	deps := Deps{
		Fetcher:    collyfetcher.New(collyfetcher.Config{Timeout: 5 * time.Second}, nil),
		ProcessIDs: &seqIDs{prefix: "proc"},
		ImageNames: &seqIDs{prefix: "img"},
		Hasher:     sha256.New(),
		Clock:      &fixedClock{now: time.Unix(1700000000, 0).UTC()},
		Mirror:     f.mirror,
		Recorder:   f.recorder,
		Publisher:  f.publisher,
	}
	cfg := Config{OutputDir: f.outputDir, MirrorPrefix: "zips", Topic: "bundles"}
	if mutate != nil {
		mutate(&deps, &cfg)
	}
	p, err := New(deps, cfg, nil)
	require.NoError(t, err)
	f.pipeline = p
	return f
}

func zipEntries(t *testing.T, path string) []string {
	t.Helper()
	zr, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer zr.Close()
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	return names
}

func TestRunCleanModeEndToEnd(t *testing.T) {
	t.Parallel()

	srv := newSite(t)
	f := newFixture(t, nil)
	pageURL := srv.URL + "/blog/post"

	result, err := f.pipeline.Run(context.Background(), pageURL, "")
	require.NoError(t, err)

	b := result.Bundle
	assert.Equal(t, "proc-1", result.ID)
	assert.Equal(t, "HelloWorld", b.PageTitle, "stripped text joins trimmed text nodes")
	assert.Equal(t, "OG Title", b.MetaTitle)
	assert.Equal(t, "A short description", b.MetaDescription)
	assert.Equal(t, map[string]string{"og:title": "OG Title", "description": "A short description", "author": "Ann"}, b.MetaTags)
	assert.Equal(t, pageURL, b.Permalink)
	assert.Equal(t, bundle.ContentModeClean, b.ContentMode)
	assert.Equal(t, "Hello World<p>Intro <a>link</a></p>", b.Content)

	folder := filepath.Join(f.outputDir, "blog_post_images")
	assert.Equal(t, folder, result.Images.Folder)
	assert.Equal(t, folder+".zip", b.ArchivePath)
	assert.Equal(t, 2, result.Images.Succeeded())
	assert.Equal(t, 1, result.Images.Failed())
	assert.Equal(t, []string{"a.png", "img-1.jpg"}, zipEntries(t, b.ArchivePath))

	data, err := os.ReadFile(filepath.Join(folder, "a.png"))
	require.NoError(t, err)
	assert.Equal(t, "png-a", string(data))

	want, err := sha256.New().Hash([]byte(b.Content))
	require.NoError(t, err)
	assert.Equal(t, want, result.ContentHash)

	assert.Equal(t, "memory://zips/proc-1/blog_post_images.zip", result.ArchiveURI)
	mirrored, contentType, ok := f.mirror.Object("zips/proc-1/blog_post_images.zip")
	require.True(t, ok)
	assert.Equal(t, ArchiveContentType, contentType)
	onDisk, err := os.ReadFile(b.ArchivePath)
	require.NoError(t, err)
	assert.Equal(t, onDisk, mirrored)

	require.Len(t, f.recorder.records, 1)
	rec := f.recorder.records[0]
	assert.Equal(t, "proc-1", rec.ID)
	assert.Equal(t, 3, rec.ImagesTotal)
	assert.Equal(t, 1, rec.ImagesFailed)
	assert.Equal(t, result.ArchiveURI, rec.ArchiveURI)
	assert.Positive(t, rec.DurationMillis)

	msgs := f.publisher.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "bundles", msgs[0].Topic)
	var event map[string]any
	require.NoError(t, json.Unmarshal(msgs[0].Data, &event))
	assert.Equal(t, "proc-1", event["id"])
	assert.Equal(t, result.ContentHash, event["content_hash"])
}

func TestRunFullModeRendersRewrittenSources(t *testing.T) {
	t.Parallel()

	srv := newSite(t)
	f := newFixture(t, func(_ *Deps, cfg *Config) { cfg.DefaultMode = bundle.ContentModeFull })

	result, err := f.pipeline.Run(context.Background(), srv.URL+"/blog/post", "")
	require.NoError(t, err)

	content := result.Bundle.Content
	assert.Equal(t, bundle.ContentModeFull, result.Bundle.ContentMode)
	assert.Contains(t, content, `<img src="blog_post_images/a.png"/>`)
	assert.Contains(t, content, `<img src="blog_post_images/img-1.jpg"/>`)
	assert.Contains(t, content, `<img src="/img/missing.png"/>`)
	assert.Contains(t, content, "<script>var x = 1;</script>")
	assert.Contains(t, content, "<title>Tab Title</title>")
}

func TestRunFetchFailure(t *testing.T) {
	t.Parallel()

	srv := newSite(t)
	f := newFixture(t, nil)

	_, err := f.pipeline.Run(context.Background(), srv.URL+"/nope", bundle.ContentModeClean)
	require.ErrorIs(t, err, bundle.ErrFetchFailed)
	assert.Empty(t, f.recorder.records)
	assert.Empty(t, f.publisher.Messages())

	entries, err := os.ReadDir(f.outputDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "a failed fetch must not create an images folder")
}

func TestRunRejectsEmptyURL(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	_, err := f.pipeline.Run(context.Background(), "  ", "")
	require.Error(t, err)
	assert.False(t, errors.Is(err, bundle.ErrFetchFailed))
}

func TestRunSideEffectFailuresAreBestEffort(t *testing.T) {
	t.Parallel()

	srv := newSite(t)
	rec := &recorder{err: errors.New("db down")}
	f := newFixture(t, func(d *Deps, _ *Config) {
		d.Mirror = blobStoreFunc(func() (string, error) { return "", errors.New("bucket unavailable") })
		d.Recorder = rec
	})

	result, err := f.pipeline.Run(context.Background(), srv.URL+"/blog/post", "")
	require.NoError(t, err)
	assert.Empty(t, result.ArchiveURI)
	assert.NotEmpty(t, result.Bundle.ArchivePath)
	assert.Len(t, f.publisher.Messages(), 1)
}

func TestRunArchiveFailureIsReturned(t *testing.T) {
	t.Parallel()

	srv := newSite(t)
	f := newFixture(t, nil)

	// A directory squatting on the archive path makes the zip write fail.
	require.NoError(t, os.MkdirAll(filepath.Join(f.outputDir, "blog_post_images.zip"), 0o750))

	_, err := f.pipeline.Run(context.Background(), srv.URL+"/blog/post", "")
	require.ErrorContains(t, err, "archive images")
	assert.Empty(t, f.recorder.records)
}

func TestNewValidatesDeps(t *testing.T) {
	t.Parallel()

	_, err := New(Deps{}, Config{}, nil)
	require.Error(t, err)

	_, err = New(Deps{Fetcher: collyfetcher.New(collyfetcher.Config{}, nil)}, Config{}, nil)
	require.Error(t, err)

	_, err = New(Deps{
		Fetcher:    collyfetcher.New(collyfetcher.Config{}, nil),
		ProcessIDs: &seqIDs{},
		ImageNames: &seqIDs{},
	}, Config{}, nil)
	require.Error(t, err)
}

func TestMirrorPath(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	assert.Equal(t, "zips/id-1/post_images.zip", f.pipeline.MirrorPath("id-1", "/tmp/out/post_images.zip"))

	g := newFixture(t, func(_ *Deps, cfg *Config) { cfg.MirrorPrefix = "" })
	assert.Equal(t, "id-1/post_images.zip", g.pipeline.MirrorPath("id-1", "post_images.zip"))
}
