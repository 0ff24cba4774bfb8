package domain

import "testing"

func TestPointIDIsComposite(t *testing.T) {
	if got := PointID("tenant-1", "chunk-1"); got != "tenant-1_chunk-1" {
		t.Fatalf("got %q", got)
	}
}

func TestWireIDIsDeterministic(t *testing.T) {
	a := WireID(PointID("tenant-1", "chunk-1"))
	b := WireID(PointID("tenant-1", "chunk-1"))
	if a != b {
		t.Fatalf("expected stable UUID, got %q and %q", a, b)
	}
}

func TestWireIDDiffersByChunk(t *testing.T) {
	a := WireID(PointID("tenant-1", "chunk-1"))
	b := WireID(PointID("tenant-1", "chunk-2"))
	if a == b {
		t.Fatal("distinct chunks must not collide")
	}
}

func TestWireIDLooksLikeUUID(t *testing.T) {
	id := WireID(PointID("tenant-1", "chunk-1"))
	if len(id) != 36 {
		t.Fatalf("expected RFC4122 UUID string, got %q", id)
	}
}
