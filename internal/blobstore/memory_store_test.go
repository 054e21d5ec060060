package blobstore

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestMemoryStoreRoundTripCopiesInput(t *testing.T) {
	store := NewMemoryStore()
	col, err := store.Open(context.Background())
	if err != nil {
		t.Fatalf("open error: %v", err)
	}

	if _, err := col.Get(context.Background(), "/v/a.mp4"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	blob := []byte("video")
	if err := col.Put(context.Background(), "/v/a.mp4", blob); err != nil {
		t.Fatalf("put error: %v", err)
	}
	blob[0] = 'X'

	got, err := col.Get(context.Background(), "/v/a.mp4")
	if err != nil {
		t.Fatalf("get error: %v", err)
	}
	if string(got) != "video" {
		t.Fatalf("stored blob should not alias caller buffer, got %q", got)
	}
	if store.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", store.Len())
	}
}

func TestMemoryStoreOpenHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMemoryStore().Open(ctx)
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if !strings.Contains(err.Error(), context.Canceled.Error()) {
		t.Fatalf("cause should be kept in the message, got %v", err)
	}
}
