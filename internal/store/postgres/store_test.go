package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/civicrag/webharvest/internal/crawl"
	"github.com/civicrag/webharvest/internal/normalize"
	"github.com/civicrag/webharvest/internal/textsplit"
)

func TestSaveDocumentInsertsDocumentAndChunks(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewStoreWithPool(mock)
	require.NoError(t, err)

	doc := normalize.Document{
		URL:         "https://example.com/page",
		Title:       "Example Page",
		Text:        "first chunk text second chunk text",
		Fingerprint: "abc123",
	}
	chunks := []textsplit.Chunk{
		{Position: 0, Start: 0, End: 16, Text: "first chunk text"},
		{Position: 1, Start: 17, End: 34, Text: "second chunk text"},
	}

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO documents").
		WithArgs("run-1", doc.URL, doc.Title, doc.Fingerprint, doc.Text, pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("doc-1"))
	mock.ExpectExec("INSERT INTO chunks").
		WithArgs("doc-1", 0, 0, 16, "first chunk text").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO chunks").
		WithArgs("doc-1", 1, 17, 34, "second chunk text").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()
	mock.ExpectRollback()

	err = store.SaveDocument(context.Background(), "run-1", doc, chunks)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveDocumentRollsBackOnChunkFailure(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewStoreWithPool(mock)
	require.NoError(t, err)

	doc := normalize.Document{URL: "https://example.com", Text: "text"}
	chunks := []textsplit.Chunk{{Position: 0, End: 4, Text: "text"}}

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO documents").
		WithArgs("run-1", doc.URL, doc.Title, doc.Fingerprint, doc.Text, pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("doc-1"))
	mock.ExpectExec("INSERT INTO chunks").
		WithArgs("doc-1", 0, 0, 4, "text").
		WillReturnError(errors.New("constraint violation"))
	mock.ExpectRollback()

	err = store.SaveDocument(context.Background(), "run-1", doc, chunks)
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveDocumentRequiresRunID(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewStoreWithPool(mock)
	require.NoError(t, err)

	err = store.SaveDocument(context.Background(), "", normalize.Document{}, nil)
	require.Error(t, err)
}

func TestSaveRunInsertsRecord(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewStoreWithPool(mock)
	require.NoError(t, err)

	started := time.Unix(1700000000, 0).UTC()
	run := crawl.RunRecord{
		ID:         "run-1",
		Strategy:   "static",
		Seeds:      []string{"https://example.com/"},
		StartedAt:  started,
		FinishedAt: started.Add(time.Minute),
		Summary:    crawl.Summary{PagesFetched: 3, ChunksEmitted: 9},
	}

	mock.ExpectExec("INSERT INTO ingestion_runs").
		WithArgs(run.ID, run.Strategy, run.Seeds, run.StartedAt, run.FinishedAt, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.SaveRun(context.Background(), run))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewStoreWithPoolRequiresPool(t *testing.T) {
	t.Parallel()

	_, err := NewStoreWithPool(nil)
	require.Error(t, err)
}
