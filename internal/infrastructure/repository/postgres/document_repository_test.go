package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/lexigraph/case-assistant/internal/core/domain"
)

func newRepoWithMock(t *testing.T) (*DocumentRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &DocumentRepository{db: db}, mock, func() { _ = db.Close() }
}

func TestGetByIDReturnsDomainNotFound(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT id, case_id, file_name, mime_type").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetByIDScansDocument(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	created := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"id", "case_id", "file_name", "mime_type", "storage_path",
		"status", "status_message", "created_at", "updated_at", "processed_at",
	}).AddRow("doc-1", "case-1", "lease.pdf", "application/pdf", "case-1/doc-1.pdf",
		"pending", "", created, created, nil)

	mock.ExpectQuery("SELECT id, case_id, file_name, mime_type").
		WithArgs("doc-1").
		WillReturnRows(rows)

	doc, err := repo.GetByID(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if doc.CaseID != "case-1" || doc.Status != domain.StatusPending {
		t.Fatalf("unexpected document: %+v", doc)
	}
	if doc.ProcessedAt != nil {
		t.Fatalf("expected nil processed_at for pending document")
	}
}

func TestUpdateStatusReturnsDomainNotFoundWhenNoRowsAffected(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE documents").
		WithArgs("missing", string(domain.StatusProcessing), "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus(context.Background(), "missing", domain.StatusProcessing, "")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestMarkCompletedGuardsOnProcessingStatus(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE documents").
		WithArgs("doc-1", string(domain.StatusCompleted), "Successfully indexed.", sqlmock.AnyArg(), string(domain.StatusProcessing)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.MarkCompleted(context.Background(), "doc-1", "Successfully indexed."); err != nil {
		t.Fatalf("MarkCompleted() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestMarkCompletedRejectsSecondTransition(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	// Already completed: the status guard matches zero rows.
	mock.ExpectExec("UPDATE documents").
		WithArgs("doc-1", string(domain.StatusCompleted), "again", sqlmock.AnyArg(), string(domain.StatusProcessing)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkCompleted(context.Background(), "doc-1", "again")
	if !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
}
