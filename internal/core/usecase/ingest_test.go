package usecase

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/lexigraph/case-assistant/internal/core/domain"
)

type ingestRepoFake struct {
	created []*domain.Document
	err     error
}

func (f *ingestRepoFake) Create(_ context.Context, doc *domain.Document) error {
	if f.err != nil {
		return f.err
	}
	f.created = append(f.created, doc)
	return nil
}

func (f *ingestRepoFake) GetByID(context.Context, string) (*domain.Document, error) {
	return nil, domain.ErrDocumentNotFound
}

func (f *ingestRepoFake) UpdateStatus(context.Context, string, domain.DocumentStatus, string) error {
	return nil
}

func (f *ingestRepoFake) MarkCompleted(context.Context, string, string) error {
	return nil
}

type storageFake struct {
	saved map[string][]byte
	err   error
}

func (f *storageFake) Save(_ context.Context, key string, body io.Reader) error {
	if f.err != nil {
		return f.err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	if f.saved == nil {
		f.saved = make(map[string][]byte)
	}
	f.saved[key] = data
	return nil
}

func (f *storageFake) Open(context.Context, string) (io.ReadCloser, error) {
	return nil, errors.New("not implemented")
}

type queueFake struct {
	published []string
	err       error
}

func (f *queueFake) PublishDocumentIngested(_ context.Context, documentID string) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, documentID)
	return nil
}

func (f *queueFake) SubscribeDocumentIngested(context.Context, func(ctx context.Context, documentID string) error) error {
	return errors.New("not implemented")
}

func TestUploadCreatesPendingAndPublishes(t *testing.T) {
	repo := &ingestRepoFake{}
	storage := &storageFake{}
	queue := &queueFake{}
	uc := NewIngestDocumentUseCase(repo, storage, queue)

	doc, err := uc.Upload(context.Background(), "case-1", "lease agreement.pdf", "application/pdf", bytes.NewBufferString("%PDF-1.4"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if doc.Status != domain.StatusPending {
		t.Fatalf("expected pending status, got %s", doc.Status)
	}
	if doc.CaseID != "case-1" || doc.FileName != "lease agreement.pdf" {
		t.Fatalf("unexpected document: %+v", doc)
	}
	if len(repo.created) != 1 {
		t.Fatalf("expected one record created, got %d", len(repo.created))
	}
	if len(queue.published) != 1 || queue.published[0] != doc.ID {
		t.Fatalf("expected one event for %s, got %v", doc.ID, queue.published)
	}
	if !strings.HasPrefix(doc.StoragePath, "case-1/") || !strings.HasSuffix(doc.StoragePath, ".pdf") {
		t.Fatalf("unexpected storage path %q", doc.StoragePath)
	}
	if _, ok := storage.saved[doc.StoragePath]; !ok {
		t.Fatalf("file not saved under %q", doc.StoragePath)
	}
}

func TestUploadRejectsEmptyCaseID(t *testing.T) {
	uc := NewIngestDocumentUseCase(&ingestRepoFake{}, &storageFake{}, &queueFake{})

	_, err := uc.Upload(context.Background(), "  ", "a.txt", "text/plain", bytes.NewBufferString("x"))
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestUploadStorageFailureCreatesNothing(t *testing.T) {
	repo := &ingestRepoFake{}
	queue := &queueFake{}
	uc := NewIngestDocumentUseCase(repo, &storageFake{err: errors.New("disk full")}, queue)

	_, err := uc.Upload(context.Background(), "case-1", "a.txt", "text/plain", bytes.NewBufferString("x"))
	if err == nil {
		t.Fatal("expected error")
	}
	if len(repo.created) != 0 || len(queue.published) != 0 {
		t.Fatal("storage failure must leave no record or event behind")
	}
}

func TestUploadPublishFailureSurfaces(t *testing.T) {
	uc := NewIngestDocumentUseCase(&ingestRepoFake{}, &storageFake{}, &queueFake{err: errors.New("nats down")})

	_, err := uc.Upload(context.Background(), "case-1", "a.txt", "text/plain", bytes.NewBufferString("x"))
	if err == nil || !strings.Contains(err.Error(), "publish ingestion event") {
		t.Fatalf("expected publish failure, got %v", err)
	}
}

func TestSanitizeFileName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"lease agreement.pdf", "lease_agreement.pdf"},
		{"../../etc/passwd", "passwd"},
		{"Überweisung (final).xlsx", "_berweisung__final_.xlsx"},
		{"report-v2.txt", "report-v2.txt"},
	}
	for _, tc := range cases {
		if got := sanitizeFileName(tc.in); got != tc.want {
			t.Errorf("sanitizeFileName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
