package dispatch

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

func TestMemoryProgress(t *testing.T) {
	store := NewMemoryProgress()
	id := uuid.New()
	if _, ok, _ := store.Load(context.Background(), id); ok {
		t.Fatalf("expected no snapshot")
	}
	_ = store.Save(context.Background(), Snapshot{Progress: Progress{RunID: id, Processed: 2, Total: 5}, Status: "processing"})
	s, ok, err := store.Load(context.Background(), id)
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if s.Processed != 2 || s.Total != 5 || s.Status != "processing" {
		t.Fatalf("unexpected snapshot %+v", s)
	}
}
