package storage

import (
	"context"
	"io"
	"strings"
	"testing"
)

func TestFileStoreSaveAndOpen(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	path, err := fs.Save(context.Background(), "report-abc.pdf", strings.NewReader("%PDF-1.4 content"), 0, "application/pdf")
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	r, err := fs.Open(context.Background(), path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "%PDF-1.4 content" {
		t.Fatalf("unexpected content %q", data)
	}
}

func TestFileStoreSanitizesNames(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	path, err := fs.Save(context.Background(), "../../escape.pdf", strings.NewReader("x"), 0, "application/pdf")
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if !strings.HasPrefix(path, dir) {
		t.Fatalf("expected path under %q, got %q", dir, path)
	}
}
