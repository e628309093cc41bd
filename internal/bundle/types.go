package bundle

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ContentMode selects how the page body is rendered into Bundle.Content.
type ContentMode string

// Supported content modes.
const (
	ContentModeClean ContentMode = "clean"
	ContentModeFull  ContentMode = "full"
)

// ParseContentMode maps a user supplied selector onto a ContentMode. An empty
// selector means clean.
func ParseContentMode(raw string) (ContentMode, error) {
	switch ContentMode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ContentModeClean:
		return ContentModeClean, nil
	case ContentModeFull:
		return ContentModeFull, nil
	default:
		return "", fmt.Errorf("unknown content mode %q", raw)
	}
}

// Bundle is the output record of one pipeline run for one URL.
type Bundle struct {
	PageTitle       string            `json:"page_title"`
	MetaTitle       string            `json:"meta_title"`
	MetaDescription string            `json:"meta_description"`
	MetaTags        map[string]string `json:"meta_tags"`
	Permalink       string            `json:"permalink"`
	Content         string            `json:"content"`
	// ArchivePath references the images ZIP on local disk. It is cleared by
	// TakeArchive when the bundle is forwarded.
	ArchivePath string      `json:"archive_path,omitempty"`
	ContentMode ContentMode `json:"content_mode"`
}

// TakeArchive returns the archive path and removes it from the bundle. The
// second value is false when the archive was already consumed.
func (b *Bundle) TakeArchive() (string, bool) {
	if b.ArchivePath == "" {
		return "", false
	}
	path := b.ArchivePath
	b.ArchivePath = ""
	return path, true
}

// Clone returns a deep copy of the bundle.
func (b Bundle) Clone() Bundle {
	cp := b
	if b.MetaTags != nil {
		cp.MetaTags = make(map[string]string, len(b.MetaTags))
		for k, v := range b.MetaTags {
			cp.MetaTags[k] = v
		}
	}
	return cp
}

// ImageOutcome is the result of localizing a single image element.
type ImageOutcome struct {
	Source    string `json:"source"`
	Resolved  string `json:"resolved"`
	LocalPath string `json:"local_path,omitempty"`
	Bytes     int    `json:"bytes,omitempty"`
	Error     string `json:"error,omitempty"`
}

// OK reports whether the image was downloaded and rewritten.
func (o ImageOutcome) OK() bool {
	return o.Error == ""
}

// ImageReport collects the per-image outcomes of one localize pass.
type ImageReport struct {
	Folder   string         `json:"folder"`
	Outcomes []ImageOutcome `json:"outcomes"`
}

// Succeeded counts localized images.
func (r ImageReport) Succeeded() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.OK() {
			n++
		}
	}
	return n
}

// Failed counts images left pointing at their remote source.
func (r ImageReport) Failed() int {
	return len(r.Outcomes) - r.Succeeded()
}

// DeliveryOutcome records the webhook POST for one bundle property.
type DeliveryOutcome struct {
	Property   string `json:"property"`
	StatusCode int    `json:"status_code,omitempty"`
	Error      string `json:"error,omitempty"`
}

// DeliveryReport collects the outcomes of forwarding one bundle.
type DeliveryReport struct {
	ArchivePath string            `json:"archive_path"`
	Outcomes    []DeliveryOutcome `json:"outcomes"`
}

// Delivered counts properties the webhook accepted.
func (r DeliveryReport) Delivered() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Error == "" {
			n++
		}
	}
	return n
}

// Dropped counts properties that failed to deliver.
func (r DeliveryReport) Dropped() int {
	return len(r.Outcomes) - r.Delivered()
}

// Result is what one pipeline run hands to the service layer.
type Result struct {
	ID          string      `json:"id"`
	Bundle      Bundle      `json:"bundle"`
	Images      ImageReport `json:"images"`
	ArchiveURI  string      `json:"archive_uri,omitempty"`
	ContentHash string      `json:"content_hash"`
	CreatedAt   time.Time   `json:"created_at"`
}

// RunRecord is persisted for every completed pipeline run.
type RunRecord struct {
	ID             string
	Permalink      string
	ContentMode    ContentMode
	PageTitle      string
	ImagesTotal    int
	ImagesFailed   int
	ArchivePath    string
	ArchiveURI     string
	ContentHash    string
	CreatedAt      time.Time
	DurationMillis int64
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}
