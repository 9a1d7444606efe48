package memory

import (
	"bytes"
	"context"
	"testing"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte("content")
	uri, err := store.PutObject(context.Background(), "path/page.html", "text/html", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("PutObject() error = %v", err)
	}
	if uri != "memory://path/page.html" {
		t.Fatalf("unexpected uri %s", uri)
	}
	payload[0] = 'C'
	stored, ok := store.Object("path/page.html")
	if !ok {
		t.Fatal("expected stored object")
	}
	if string(stored) != "content" {
		t.Fatalf("expected stored copy to be immutable, got %q", stored)
	}
}

func TestBlobStorePaths(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	for _, path := range []string{"b/two.html", "a/one.html"} {
		if _, err := store.PutObject(context.Background(), path, "text/html", bytes.NewReader([]byte("x"))); err != nil {
			t.Fatalf("PutObject(%s) error = %v", path, err)
		}
	}
	paths := store.Paths()
	if len(paths) != 2 || paths[0] != "a/one.html" || paths[1] != "b/two.html" {
		t.Fatalf("unexpected paths %v", paths)
	}
}
