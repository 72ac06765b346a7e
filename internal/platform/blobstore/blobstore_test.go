package blobstore

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestPatientKey(t *testing.T) {
	key := PatientKey("P2024010001", "../../etc/Lab Report.pdf")
	if !strings.HasPrefix(key, "patients/P2024010001/") {
		t.Errorf("unexpected prefix in %q", key)
	}
	if !strings.HasSuffix(key, "_Lab_Report.pdf") {
		t.Errorf("expected sanitized file name in %q", key)
	}
	if strings.Contains(key, "..") {
		t.Errorf("key must not contain traversal: %q", key)
	}
}

func TestValidateUpload(t *testing.T) {
	if err := ValidateUpload("scan.pdf", "application/pdf"); err != nil {
		t.Errorf("expected pdf to be allowed: %v", err)
	}
	if err := ValidateUpload("note.txt", "text/plain; charset=utf-8"); err != nil {
		t.Errorf("expected text/plain with params to be allowed: %v", err)
	}
	if err := ValidateUpload("", "application/pdf"); !errors.Is(err, ErrMissingFileName) {
		t.Errorf("expected ErrMissingFileName, got %v", err)
	}
	if err := ValidateUpload("x.exe", "application/x-msdownload"); !errors.Is(err, ErrInvalidContentType) {
		t.Errorf("expected ErrInvalidContentType, got %v", err)
	}
}

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	k1 := PatientKey("P2024010001", "a.pdf")
	k2 := PatientKey("P2024010001", "b.pdf")
	k3 := PatientKey("P2024010002", "c.pdf")
	for _, k := range []string{k1, k2, k3} {
		n, err := s.Put(ctx, k, strings.NewReader("content of "+k))
		if err != nil {
			t.Fatalf("Put(%s): %v", k, err)
		}
		if n != int64(len("content of "+k)) {
			t.Errorf("Put(%s) size = %d", k, n)
		}
	}

	rc, err := s.Open(ctx, k1)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "content of "+k1 {
		t.Errorf("unexpected content %q", data)
	}

	if err := s.Delete(ctx, k2); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Open(ctx, k2); !errors.Is(err, ErrBlobNotFound) {
		t.Errorf("expected ErrBlobNotFound after delete, got %v", err)
	}

	if err := s.DeletePrefix(ctx, PatientPrefix("P2024010001")); err != nil {
		t.Fatalf("DeletePrefix: %v", err)
	}
	if _, err := s.Open(ctx, k1); !errors.Is(err, ErrBlobNotFound) {
		t.Errorf("expected patient blobs removed, got %v", err)
	}
	if _, err := s.Open(ctx, k3); err != nil {
		t.Errorf("other patient's blob must survive: %v", err)
	}
	if err := s.DeletePrefix(ctx, PatientPrefix("P1999010001")); err != nil {
		t.Errorf("missing prefix should not error: %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestDiskStore(t *testing.T) {
	s, err := NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewDiskStore: %v", err)
	}
	exerciseStore(t, s)
}

func TestDiskStore_RejectsTraversal(t *testing.T) {
	s, err := NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewDiskStore: %v", err)
	}
	for _, key := range []string{"../escape", "/abs/path", "patients/../../x", ""} {
		if _, err := s.Put(context.Background(), key, strings.NewReader("x")); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("Put(%q): expected ErrInvalidKey, got %v", key, err)
		}
	}
}
