package server

import (
	"context"
	"errors"
	"testing"

	"github.com/vidcache/vidcache/internal/blobstore"
	"github.com/vidcache/vidcache/internal/handle"
	"github.com/vidcache/vidcache/internal/loader"
	"github.com/vidcache/vidcache/internal/render"
)

type stubFetcher struct{}

func (stubFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	return []byte("bytes:" + url), nil
}

func newTestRegistry(t *testing.T) (*PlayerRegistry, *blobstore.MemoryStore, *handle.Registry) {
	t.Helper()
	store := blobstore.NewMemoryStore()
	handles := handle.NewRegistry("http://127.0.0.1:5000")
	players := NewPlayerRegistry(loader.Options{
		Store:   store,
		Fetcher: stubFetcher{},
		Handles: handles,
	})
	t.Cleanup(func() {
		players.Close()
		players.Wait()
	})
	return players, store, handles
}

func TestPlayerRegistryCreateAndLookup(t *testing.T) {
	players, _, _ := newTestRegistry(t)

	player, err := players.Create(render.DefaultAttributes())
	if err != nil {
		t.Fatalf("create error: %v", err)
	}
	got, ok := players.Lookup(player.ID)
	if !ok || got != player {
		t.Fatalf("lookup should return the created player")
	}
	if players.Len() != 1 {
		t.Fatalf("expected 1 player, got %d", players.Len())
	}
	if plan := player.Plan(); plan.Kind != render.KindEmpty {
		t.Fatalf("unresolved player should render empty, got %s", plan.Kind)
	}
}

func TestPlayerRegistryRemoveReleasesHandle(t *testing.T) {
	players, store, handles := newTestRegistry(t)
	if err := store.Put(context.Background(), "/v/a.mp4", []byte("cached")); err != nil {
		t.Fatalf("seed error: %v", err)
	}

	player, err := players.Create(render.DefaultAttributes())
	if err != nil {
		t.Fatalf("create error: %v", err)
	}
	state, err := player.Loader.Resolve(context.Background(), "/v/a.mp4")
	if err != nil {
		t.Fatalf("resolve error: %v", err)
	}
	if state.Source.Kind != loader.SourceLocal {
		t.Fatalf("expected local source, got %s", state.Source.Kind)
	}
	if handles.Len() != 1 {
		t.Fatalf("expected 1 handle, got %d", handles.Len())
	}

	if !players.Remove(player.ID) {
		t.Fatalf("remove should succeed")
	}
	if players.Remove(player.ID) {
		t.Fatalf("second remove should report false")
	}
	if handles.Len() != 0 {
		t.Fatalf("handle should be released on unmount")
	}
	if _, err := player.Loader.Resolve(context.Background(), "/v/b.mp4"); !errors.Is(err, loader.ErrClosed) {
		t.Fatalf("expected ErrClosed after unmount, got %v", err)
	}
}

func TestPlayerRegistryListOrdersByCreation(t *testing.T) {
	players, _, _ := newTestRegistry(t)
	var ids []string
	for i := 0; i < 3; i++ {
		p, err := players.Create(render.DefaultAttributes())
		if err != nil {
			t.Fatalf("create error: %v", err)
		}
		ids = append(ids, p.ID)
	}

	list := players.List()
	if len(list) != 3 {
		t.Fatalf("expected 3 snapshots, got %d", len(list))
	}
	seen := make(map[string]bool)
	for i, snap := range list {
		seen[snap.ID] = true
		if i > 0 && snap.CreatedAt.Before(list[i-1].CreatedAt) {
			t.Fatalf("snapshots not ordered by creation time")
		}
	}
	for _, id := range ids {
		if !seen[id] {
			t.Fatalf("player %s missing from list", id)
		}
	}
}

func TestPlayerRegistryCloseRejectsNewMounts(t *testing.T) {
	players, _, handles := newTestRegistry(t)
	player, err := players.Create(render.DefaultAttributes())
	if err != nil {
		t.Fatalf("create error: %v", err)
	}
	if _, err := player.Loader.Resolve(context.Background(), "/v/a.mp4"); err != nil {
		t.Fatalf("resolve error: %v", err)
	}

	players.Close()
	players.Wait()

	if players.Len() != 0 {
		t.Fatalf("close should unmount everything")
	}
	if !player.Loader.Closed() {
		t.Fatalf("loader should be closed")
	}
	if handles.Len() != 0 {
		t.Fatalf("no handle should survive close")
	}
	if _, err := players.Create(render.DefaultAttributes()); !errors.Is(err, ErrRegistryClosed) {
		t.Fatalf("expected ErrRegistryClosed, got %v", err)
	}
}

func TestPlayerAttributesDoNotTriggerResolution(t *testing.T) {
	players, _, _ := newTestRegistry(t)
	player, err := players.Create(render.DefaultAttributes())
	if err != nil {
		t.Fatalf("create error: %v", err)
	}
	first, err := player.Loader.Resolve(context.Background(), "/v/a.mp4")
	if err != nil {
		t.Fatalf("resolve error: %v", err)
	}

	attrs := render.DefaultAttributes()
	attrs.Loop = true
	player.SetAttributes(attrs)

	snap := player.Snapshot()
	if !snap.Plan.Attributes.Loop {
		t.Fatalf("attributes should be forwarded to the plan")
	}
	if snap.State.Key != first.Key || snap.State.Source != first.Source {
		t.Fatalf("attribute change must not alter resolution")
	}
}
