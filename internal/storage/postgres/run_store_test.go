package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/page-bundler/internal/bundle"
)

func sampleRecord() bundle.RunRecord {
	return bundle.RunRecord{
		ID:             "0190c1de-0000-7000-8000-000000000001",
		Permalink:      "https://example.com/blog/post",
		ContentMode:    bundle.ContentModeClean,
		PageTitle:      "Hello",
		ImagesTotal:    3,
		ImagesFailed:   1,
		ArchivePath:    "blog_post_images.zip",
		ArchiveURI:     "gs://bucket/zips/blog_post_images.zip",
		ContentHash:    "abc123",
		CreatedAt:      time.Unix(1700000000, 0).UTC(),
		DurationMillis: 420,
	}
}

func TestRecordRunInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRunStoreWithPool(mock, "bundle_runs")
	require.NoError(t, err)

	rec := sampleRecord()
	mock.ExpectExec("INSERT INTO bundle_runs").
		WithArgs(
			rec.ID,
			rec.Permalink,
			"clean",
			rec.PageTitle,
			rec.ImagesTotal,
			rec.ImagesFailed,
			rec.ArchivePath,
			rec.ArchiveURI,
			rec.ContentHash,
			rec.CreatedAt,
			rec.DurationMillis,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.RecordRun(context.Background(), rec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRunPropagatesErrors(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRunStoreWithPool(mock, "")
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO " + DefaultTable).WillReturnError(errors.New("connection reset"))
	err = store.RecordRun(context.Background(), sampleRecord())
	require.ErrorContains(t, err, "connection reset")

	require.Error(t, store.RecordRun(context.Background(), bundle.RunRecord{}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewRunStoreValidation(t *testing.T) {
	t.Parallel()

	_, err := NewRunStoreWithPool(nil, "")
	require.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	_, err = NewRunStoreWithPool(mock, "runs; DROP TABLE x")
	require.ErrorContains(t, err, "invalid table name")

	_, err = NewRunStore(context.Background(), RunStoreConfig{})
	require.Error(t, err)
	_, err = NewRunStore(context.Background(), RunStoreConfig{DSN: "://bad"})
	require.Error(t, err)
}

func TestRunStoreCloseNil(t *testing.T) {
	t.Parallel()

	var store *RunStore
	store.Close()
}
