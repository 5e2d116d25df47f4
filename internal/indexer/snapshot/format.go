// Package snapshot persists a built index as a single versioned file and
// hands the currently published snapshot to readers.
package snapshot

import (
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docrank/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/docrank/internal/indexer/vsm"
	apperrors "github.com/Adithya-Monish-Kumar-K/docrank/pkg/errors"
)

// MagicBytes identifies a .dsnp snapshot file ("DSNP").
const (
	MagicBytes    uint32 = 0x504E5344
	FormatVersion uint32 = 1
	HeaderSize    int    = 96
	FooterSize    int    = 16
	FileExt              = ".dsnp"
	CurrentFile          = "CURRENT"
)

// Header is the fixed little-endian header at the start of every snapshot.
//
//	 0  magic        uint32
//	 4  version      uint32
//	 8  doc count    uint32
//	12  term count   uint32
//	16  features     uint32
//	20  reserved     uint32
//	24  created at   int64 (unix nanoseconds)
//	32  docs         offset, size
//	48  model        offset, size
//	64  postings     offset, size
//	80  matrix       offset, size
type Header struct {
	Magic        uint32
	Version      uint32
	DocCount     uint32
	TermCount    uint32
	FeatureCount uint32
	CreatedAt    int64
	Docs         Section
	Model        Section
	Postings     Section
	Matrix       Section
}

type Section struct {
	Offset int64
	Size   int64
}

// DocMeta describes one indexed document. Row i of the matrix belongs to
// Docs[i].
type DocMeta struct {
	ID     string `json:"id"`
	URL    string `json:"url"`
	Title  string `json:"title"`
	Length int    `json:"length"`
}

// Snapshot is an immutable, fully built index.
type Snapshot struct {
	ID        string
	CreatedAt time.Time
	Docs      []DocMeta
	Index     *index.InvertedIndex
	Model     *vsm.Model
	Matrix    vsm.Matrix
}

// Validate checks that the snapshot's parts describe the same corpus.
func (s *Snapshot) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: nil snapshot", apperrors.ErrInvalidInput)
	}
	if s.ID == "" {
		return fmt.Errorf("%w: snapshot has no id", apperrors.ErrInvalidInput)
	}
	if s.Index == nil || s.Model == nil {
		return fmt.Errorf("%w: snapshot %s is missing its index or model", apperrors.ErrInvalidInput, s.ID)
	}
	if len(s.Matrix) != len(s.Docs) {
		return fmt.Errorf("%w: %d matrix rows for %d documents", apperrors.ErrInvalidInput, len(s.Matrix), len(s.Docs))
	}
	if s.Index.DocCount() != len(s.Docs) {
		return fmt.Errorf("%w: index covers %d documents, snapshot lists %d", apperrors.ErrInvalidInput, s.Index.DocCount(), len(s.Docs))
	}
	size := s.Model.Size()
	for i, row := range s.Matrix {
		if len(row.Indices) != len(row.Values) {
			return fmt.Errorf("%w: row %d is malformed", apperrors.ErrInvalidInput, i)
		}
		for j, idx := range row.Indices {
			if idx < 0 || idx >= size || (j > 0 && row.Indices[j-1] >= idx) {
				return fmt.Errorf("%w: row %d has invalid feature index %d", apperrors.ErrInvalidInput, i, idx)
			}
		}
	}
	return nil
}

// AvgDocLength is the mean token count over the snapshot's documents.
func (s *Snapshot) AvgDocLength() float64 {
	if len(s.Docs) == 0 {
		return 0
	}
	total := 0
	for _, d := range s.Docs {
		total += d.Length
	}
	return float64(total) / float64(len(s.Docs))
}

// FileName returns the on-disk name for a snapshot id.
func FileName(id string) string {
	return "snap-" + id + FileExt
}

type docsSection struct {
	ID   string    `json:"id"`
	Docs []DocMeta `json:"docs"`
}

type postingsSection struct {
	MaxPositions int               `json:"max_positions"`
	Entries      []index.TermEntry `json:"entries"`
}
