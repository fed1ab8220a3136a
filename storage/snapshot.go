package storage // import "github.com/chronos-tachyon/aoe-cas/storage"

import (
	"encoding/json"
	"path/filepath"

	"github.com/chronos-tachyon/aoe-cas/block"
)

// Snapshot is a recorded root hash, optionally annotated, that can later
// be restored.
type Snapshot struct {
	Timestamp   int64      `json:"timestamp"`
	Root        block.Hash `json:"root"`
	Description string     `json:"description,omitempty"`
}

// snapshotJSON mirrors Snapshot but renders Root as hex, since block.Hash
// has no MarshalJSON of its own.
type snapshotJSON struct {
	Timestamp   int64  `json:"timestamp"`
	Root        string `json:"root"`
	Description string `json:"description,omitempty"`
}

// SnapshotList is the append-only ordered sequence of recorded snapshots.
type SnapshotList []Snapshot

// MarshalJSON renders the list as the external load/save byte format.
func (list SnapshotList) MarshalJSON() ([]byte, error) {
	out := make([]snapshotJSON, len(list))
	for i, s := range list {
		out[i] = snapshotJSON{
			Timestamp:   s.Timestamp,
			Root:        s.Root.String(),
			Description: s.Description,
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (list *SnapshotList) UnmarshalJSON(data []byte) error {
	var in []snapshotJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	out := make(SnapshotList, len(in))
	for i, s := range in {
		root, err := block.ParseHash(s.Root)
		if err != nil {
			return err
		}
		out[i] = Snapshot{
			Timestamp:   s.Timestamp,
			Root:        root,
			Description: s.Description,
		}
	}
	*list = out
	return nil
}

// SnapshotPath returns the conventional location of the snapshot sidecar
// file alongside a blob store root: its parent directory, plus
// "snapshots.json".
func SnapshotPath(blobRoot string) string {
	dir := filepath.Dir(blobRoot)
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, "snapshots.json")
}
