package storage

import (
	"testing"

	"github.com/chronos-tachyon/aoe-cas/block"
)

func TestSnapshotListMarshalRoundTrip(t *testing.T) {
	h := block.HashBytes([]byte("snapshot root"))
	in := SnapshotList{
		{Timestamp: 1000, Root: h, Description: "before migration"},
		{Timestamp: 2000, Root: block.ZeroHash, Description: ""},
	}

	data, err := in.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}

	var out SnapshotList
	if err := out.UnmarshalJSON(data); err != nil {
		t.Fatalf("UnmarshalJSON: %v", err)
	}

	if len(out) != len(in) {
		t.Fatalf("got %d snapshots, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("[%2d] got %+v, want %+v", i, out[i], in[i])
		}
	}
}

func TestSnapshotListUnmarshalRejectsBadHash(t *testing.T) {
	var out SnapshotList
	bad := []byte(`[{"timestamp":1,"root":"not-a-hash","description":""}]`)
	if err := out.UnmarshalJSON(bad); err == nil {
		t.Fatalf("expected error unmarshaling malformed root hash")
	}
}

func TestSnapshotPath(t *testing.T) {
	got := SnapshotPath("/var/lib/aoe-cas/blobs")
	want := "/var/lib/aoe-cas/snapshots.json"
	if got != want {
		t.Fatalf("SnapshotPath = %q, want %q", got, want)
	}
}

func TestSnapshotPathNoParent(t *testing.T) {
	got := SnapshotPath("blobs")
	want := "snapshots.json"
	if got != want {
		t.Fatalf("SnapshotPath = %q, want %q", got, want)
	}
}
