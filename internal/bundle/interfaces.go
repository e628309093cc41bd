package bundle

import (
	"context"
	"io"
	"time"
)

// Fetcher retrieves a URL. Failures wrap ErrFetchFailed.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// BundleStore keeps pipeline results between creation and delivery.
type BundleStore interface {
	Put(ctx context.Context, result Result) error
	Get(ctx context.Context, id string) (Result, error)
	// Take returns the result and removes it from the store.
	Take(ctx context.Context, id string) (Result, error)
	Delete(ctx context.Context, id string) error
}

// BlobStore writes archives and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes bundle notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// RunRecorder persists one row per pipeline run.
type RunRecorder interface {
	RecordRun(ctx context.Context, record RunRecord) error
}

// Deliverer forwards a bundle downstream, consuming its archive.
type Deliverer interface {
	Deliver(ctx context.Context, b *Bundle) (DeliveryReport, error)
}

// Hasher computes content digests.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces process ids.
type IDGenerator interface {
	NewID() (string, error)
}
