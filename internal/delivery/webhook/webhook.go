// Package webhook forwards a bundle to a downstream endpoint, one
// multipart POST per property with the image archive attached to each.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/page-bundler/internal/bundle"
	"github.com/JakeFAU/page-bundler/internal/metrics"
)

// DefaultTimeout bounds each POST.
const DefaultTimeout = 30 * time.Second

// Multipart field names understood by the receiver.
const (
	DataField    = "data"
	ArchiveField = "zip_file"
)

// Config controls the delivery client.
type Config struct {
	URL     string
	Timeout time.Duration
	// Client overrides the HTTP client; Timeout is ignored when set.
	Client *http.Client
}

// Deliverer posts bundle properties to a webhook.
type Deliverer struct {
	url    string
	client *http.Client
	logger *zap.Logger
}

// Payload is the JSON document carried in the data part.
type Payload struct {
	Property string `json:"property"`
	Value    any    `json:"value"`
}

type property struct {
	name  string
	value any
}

// New builds a Deliverer.
func New(cfg Config, logger *zap.Logger) (*Deliverer, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("webhook url is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	metrics.Init()
	return &Deliverer{url: cfg.URL, client: client, logger: logger}, nil
}

// properties lists the bundle fields in delivery order.
func properties(b *bundle.Bundle) []property {
	tags := b.MetaTags
	if tags == nil {
		tags = map[string]string{}
	}
	return []property{
		{"page_title", b.PageTitle},
		{"meta_title", b.MetaTitle},
		{"meta_description", b.MetaDescription},
		{"meta_tags", tags},
		{"permalink", b.Permalink},
		{"content", b.Content},
		{"content_mode", string(b.ContentMode)},
	}
}

// Deliver consumes the bundle's archive path and POSTs every remaining
// property in order. Per-property failures are recorded in the report and do
// not stop the loop. An error is returned only when there is no archive to
// attach.
func (d *Deliverer) Deliver(ctx context.Context, b *bundle.Bundle) (bundle.DeliveryReport, error) {
	if b == nil {
		return bundle.DeliveryReport{}, fmt.Errorf("bundle is required")
	}
	archivePath, ok := b.TakeArchive()
	if !ok {
		return bundle.DeliveryReport{}, bundle.ErrArchiveConsumed
	}
	report := bundle.DeliveryReport{ArchivePath: archivePath}

	// #nosec G304 -- the archive path is produced by the pipeline.
	archive, err := os.ReadFile(archivePath)
	if err != nil {
		return report, fmt.Errorf("read archive %s: %w", archivePath, err)
	}

	for _, p := range properties(b) {
		outcome := d.send(ctx, p, archivePath, archive)
		metrics.ObserveDelivery(p.name, outcome.Error == "")
		if outcome.Error != "" {
			d.logger.Warn("webhook property failed",
				zap.String("property", p.name),
				zap.Int("status", outcome.StatusCode),
				zap.String("error", outcome.Error),
			)
		} else {
			d.logger.Info("webhook property sent",
				zap.String("property", p.name),
				zap.Int("status", outcome.StatusCode),
			)
		}
		report.Outcomes = append(report.Outcomes, outcome)
	}
	return report, nil
}

func (d *Deliverer) send(ctx context.Context, p property, archivePath string, archive []byte) bundle.DeliveryOutcome {
	outcome := bundle.DeliveryOutcome{Property: p.name}

	body, contentType, err := EncodeForm(Payload{Property: p.name, Value: p.value}, filepath.Base(archivePath), archive)
	if err != nil {
		outcome.Error = err.Error()
		return outcome
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, body)
	if err != nil {
		outcome.Error = fmt.Sprintf("build request: %v", err)
		return outcome
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := d.client.Do(req)
	if err != nil {
		outcome.Error = fmt.Sprintf("post: %v", err)
		return outcome
	}
	defer resp.Body.Close() //nolint:errcheck // body is drained below
	_, _ = io.Copy(io.Discard, resp.Body)

	outcome.StatusCode = resp.StatusCode
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		outcome.Error = fmt.Sprintf("unexpected status %d", resp.StatusCode)
	}
	return outcome
}

// EncodeForm builds the multipart body for one property: a JSON data part
// and the archive as a file part.
func EncodeForm(payload Payload, archiveName string, archive []byte) (*bytes.Buffer, string, error) {
	var data bytes.Buffer
	enc := json.NewEncoder(&data)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		return nil, "", fmt.Errorf("encode payload: %w", err)
	}

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)

	dataHeader := textproto.MIMEHeader{}
	dataHeader.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q`, DataField))
	dataHeader.Set("Content-Type", "application/json")
	part, err := w.CreatePart(dataHeader)
	if err != nil {
		return nil, "", fmt.Errorf("create data part: %w", err)
	}
	if _, err := part.Write(bytes.TrimRight(data.Bytes(), "\n")); err != nil {
		return nil, "", fmt.Errorf("write data part: %w", err)
	}

	zipHeader := textproto.MIMEHeader{}
	zipHeader.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, ArchiveField, archiveName))
	zipHeader.Set("Content-Type", "application/zip")
	part, err = w.CreatePart(zipHeader)
	if err != nil {
		return nil, "", fmt.Errorf("create archive part: %w", err)
	}
	if _, err := part.Write(archive); err != nil {
		return nil, "", fmt.Errorf("write archive part: %w", err)
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return body, w.FormDataContentType(), nil
}
