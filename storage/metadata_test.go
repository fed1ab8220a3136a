package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/chronos-tachyon/aoe-cas/block"
)

func TestSaveLoadMetadataRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "meta.json")

	in := Metadata{
		Root:         block.HashBytes([]byte("root")),
		TotalSectors: 2048,
		SectorSize:   4096,
		Depth:        3,
		Fanout:       128,
		Snapshots: SnapshotList{
			{Timestamp: 42, Root: block.HashBytes([]byte("snap")), Description: "nightly"},
		},
	}

	if err := SaveMetadata(path, in); err != nil {
		t.Fatalf("SaveMetadata: %v", err)
	}

	out, err := LoadMetadata(path)
	if err != nil {
		t.Fatalf("LoadMetadata: %v", err)
	}

	if out.Root != in.Root || out.TotalSectors != in.TotalSectors || out.SectorSize != in.SectorSize ||
		out.Depth != in.Depth || out.Fanout != in.Fanout {
		t.Fatalf("got %+v, want %+v", out, in)
	}
	if len(out.Snapshots) != 1 || out.Snapshots[0].Root != in.Snapshots[0].Root {
		t.Fatalf("snapshot list did not round-trip: %+v", out.Snapshots)
	}

	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file should have been renamed away")
	}
}

func TestSaveMetadataOverwritesExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "meta.json")

	first := Metadata{Root: block.ZeroHash, TotalSectors: 1, SectorSize: 512, Depth: 1, Fanout: 16}
	second := Metadata{Root: block.HashBytes([]byte("x")), TotalSectors: 1, SectorSize: 512, Depth: 1, Fanout: 16}

	if err := SaveMetadata(path, first); err != nil {
		t.Fatalf("SaveMetadata(first): %v", err)
	}
	if err := SaveMetadata(path, second); err != nil {
		t.Fatalf("SaveMetadata(second): %v", err)
	}

	out, err := LoadMetadata(path)
	if err != nil {
		t.Fatalf("LoadMetadata: %v", err)
	}
	if out.Root != second.Root {
		t.Fatalf("expected overwritten root %q, got %q", second.Root, out.Root)
	}
}

func TestLoadMetadataMissingFile(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadMetadata(filepath.Join(dir, "does-not-exist.json"))
	if !os.IsNotExist(err) {
		t.Fatalf("expected os.IsNotExist, got %v", err)
	}
}
