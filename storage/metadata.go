package storage // import "github.com/chronos-tachyon/aoe-cas/storage"

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"

	"github.com/chronos-tachyon/aoe-cas/block"
)

// Metadata is the per-CAS-target sidecar persisted alongside the blob
// store: the current root hash, the device's fixed geometry, and the
// snapshot list. A reopened disk must decode its tree identically, which
// is why Depth and Fanout are persisted rather than recomputed blind.
type Metadata struct {
	Root         block.Hash   `json:"root"`
	TotalSectors uint64       `json:"total_sectors"`
	SectorSize   uint32       `json:"sector_size"`
	Depth        int          `json:"depth"`
	Fanout       int          `json:"fanout"`
	Snapshots    SnapshotList `json:"snapshots"`
}

type metadataJSON struct {
	Root         string       `json:"root"`
	TotalSectors uint64       `json:"total_sectors"`
	SectorSize   uint32       `json:"sector_size"`
	Depth        int          `json:"depth"`
	Fanout       int          `json:"fanout"`
	Snapshots    SnapshotList `json:"snapshots"`
}

func (m Metadata) toJSON() metadataJSON {
	return metadataJSON{
		Root:         m.Root.String(),
		TotalSectors: m.TotalSectors,
		SectorSize:   m.SectorSize,
		Depth:        m.Depth,
		Fanout:       m.Fanout,
		Snapshots:    m.Snapshots,
	}
}

func (j metadataJSON) toMetadata() (Metadata, error) {
	root, err := block.ParseHash(j.Root)
	if err != nil {
		return Metadata{}, err
	}
	return Metadata{
		Root:         root,
		TotalSectors: j.TotalSectors,
		SectorSize:   j.SectorSize,
		Depth:        j.Depth,
		Fanout:       j.Fanout,
		Snapshots:    j.Snapshots,
	}, nil
}

// SaveMetadata writes m to path via a temp-file-then-rename, the same
// atomicity discipline the blobstore package uses for individual blobs.
func SaveMetadata(path string, m Metadata) error {
	data, err := json.MarshalIndent(m.toJSON(), "", "  ")
	if err != nil {
		return errors.Wrap(err, "storage: marshal metadata")
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0666); err != nil {
		return errors.Wrapf(err, "storage: write %q", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.Wrapf(err, "storage: rename %q to %q", tmp, path)
	}
	return nil
}

// LoadMetadata reads and decodes the sidecar written by SaveMetadata. It
// returns os.ErrNotExist (wrapped) if path does not exist, so callers can
// distinguish "disk never had a write" from "disk metadata is corrupt".
func LoadMetadata(path string) (Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, err
	}
	var j metadataJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return Metadata{}, errors.Wrapf(err, "storage: unmarshal metadata %q", path)
	}
	return j.toMetadata()
}
