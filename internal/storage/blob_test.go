package storage

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	_ "gocloud.dev/blob/fileblob"
)

func openFileBlob(t *testing.T) *BlobStore {
	t.Helper()
	store, err := OpenBlobStore(context.Background(), "file://"+t.TempDir(), "panos/")
	if err != nil {
		t.Fatalf("OpenBlobStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestBlobStoreRoundTrip(t *testing.T) {
	store := openFileBlob(t)
	ctx := context.Background()
	key := PanoramaKey("abc123")

	exists, err := store.Exists(ctx, key)
	if err != nil || exists {
		t.Fatalf("Exists before write = %v, %v", exists, err)
	}

	if err := store.Write(ctx, key, []byte("jpeg")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	data, err := store.Read(ctx, key)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if string(data) != "jpeg" {
		t.Errorf("Read = %q", data)
	}

	info, err := store.Head(ctx, key)
	if err != nil {
		t.Fatalf("Head failed: %v", err)
	}
	if info.Size != 4 || info.Key != key {
		t.Errorf("unexpected head %+v", info)
	}

	if store.Backend() != "file" {
		t.Errorf("Backend = %s, want file", store.Backend())
	}
	if !strings.HasSuffix(store.URI(key), "/panos/ab/abc123.jpg") {
		t.Errorf("unexpected URI %s", store.URI(key))
	}
}

func TestBlobStoreNotFound(t *testing.T) {
	store := openFileBlob(t)
	ctx := context.Background()

	if _, err := store.Read(ctx, PanoramaKey("missing")); !errors.Is(err, ErrNotFound) {
		t.Errorf("Read: expected ErrNotFound, got %v", err)
	}
	if _, err := store.Head(ctx, PanoramaKey("missing")); !errors.Is(err, ErrNotFound) {
		t.Errorf("Head: expected ErrNotFound, got %v", err)
	}
}

func TestBlobStoreListStripsPrefix(t *testing.T) {
	store := openFileBlob(t)
	ctx := context.Background()

	for _, key := range []string{PanoramaKey("abc123"), DescriptorKey("abc123"), PanoramaKey("xyz789")} {
		if err := store.Write(ctx, key, []byte(key)); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}

	keys, err := store.List(ctx, "ab/")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	slices.Sort(keys)
	want := []string{"ab/abc123.jpg", "ab/abc123.xml"}
	if !slices.Equal(keys, want) {
		t.Errorf("List = %v, want %v", keys, want)
	}
}

func TestBlobStoreCancelledWriteLeavesNothing(t *testing.T) {
	store := openFileBlob(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := store.Write(ctx, PanoramaKey("abc123"), []byte("jpeg")); err == nil {
		t.Fatal("expected error writing with cancelled context")
	}

	exists, err := store.Exists(context.Background(), PanoramaKey("abc123"))
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if exists {
		t.Error("cancelled write must not publish an object")
	}
}
