package snapshot

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"math"
	"os"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docrank/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/docrank/internal/indexer/vsm"
	apperrors "github.com/Adithya-Monish-Kumar-K/docrank/pkg/errors"
)

// Read loads and verifies a snapshot file. Any structural problem, including
// a version mismatch or checksum failure, is reported as ErrSnapshotCorrupt.
func Read(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot file: %w", err)
	}
	return decode(data)
}

func decode(data []byte) (*Snapshot, error) {
	if len(data) < HeaderSize+FooterSize {
		return nil, corrupt("file is %d bytes, too short", len(data))
	}
	h := decodeHeader(data[:HeaderSize])
	if h.Magic != MagicBytes {
		return nil, corrupt("bad magic bytes %x", h.Magic)
	}
	if h.Version != FormatVersion {
		return nil, corrupt("unsupported format version %d", h.Version)
	}

	footer := data[len(data)-FooterSize:]
	body := data[HeaderSize : len(data)-FooterSize]
	if magic := binary.LittleEndian.Uint32(footer[4:8]); magic != MagicBytes {
		return nil, corrupt("bad footer magic %x", magic)
	}
	if n := binary.LittleEndian.Uint64(footer[8:16]); n != uint64(len(body)) {
		return nil, corrupt("body is %d bytes, footer records %d", len(body), n)
	}
	if sum := crc32.ChecksumIEEE(body); sum != binary.LittleEndian.Uint32(footer[0:4]) {
		return nil, corrupt("checksum mismatch")
	}

	limit := int64(len(data) - FooterSize)
	section := func(s Section, name string) ([]byte, error) {
		if s.Offset < int64(HeaderSize) || s.Size < 0 || s.Offset+s.Size > limit {
			return nil, corrupt("%s section out of bounds", name)
		}
		return data[s.Offset : s.Offset+s.Size], nil
	}

	raw, err := section(h.Docs, "docs")
	if err != nil {
		return nil, err
	}
	var docs docsSection
	if err := json.Unmarshal(raw, &docs); err != nil {
		return nil, corrupt("parsing documents: %v", err)
	}

	if raw, err = section(h.Model, "model"); err != nil {
		return nil, err
	}
	var state vsm.State
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, corrupt("parsing model: %v", err)
	}
	model, err := vsm.Restore(state)
	if err != nil {
		return nil, err
	}

	if raw, err = section(h.Postings, "postings"); err != nil {
		return nil, err
	}
	var post postingsSection
	if err := json.Unmarshal(raw, &post); err != nil {
		return nil, corrupt("parsing postings: %v", err)
	}
	docIDs := make([]string, len(docs.Docs))
	for i, d := range docs.Docs {
		docIDs[i] = d.ID
	}
	ix, err := index.Restore(post.MaxPositions, docIDs, post.Entries)
	if err != nil {
		return nil, err
	}

	if raw, err = section(h.Matrix, "matrix"); err != nil {
		return nil, err
	}
	matrix, err := readMatrix(raw, len(docs.Docs))
	if err != nil {
		return nil, err
	}

	if int(h.DocCount) != len(docs.Docs) || int(h.TermCount) != ix.TermCount() || int(h.FeatureCount) != model.Size() {
		return nil, corrupt("header counts do not match sections")
	}

	snap := &Snapshot{
		ID:        docs.ID,
		CreatedAt: time.Unix(0, h.CreatedAt).UTC(),
		Docs:      docs.Docs,
		Index:     ix,
		Model:     model,
		Matrix:    matrix,
	}
	if err := snap.Validate(); err != nil {
		return nil, corrupt("%v", err)
	}
	return snap, nil
}

func decodeHeader(b []byte) Header {
	h := Header{
		Magic:        binary.LittleEndian.Uint32(b[0:4]),
		Version:      binary.LittleEndian.Uint32(b[4:8]),
		DocCount:     binary.LittleEndian.Uint32(b[8:12]),
		TermCount:    binary.LittleEndian.Uint32(b[12:16]),
		FeatureCount: binary.LittleEndian.Uint32(b[16:20]),
		CreatedAt:    int64(binary.LittleEndian.Uint64(b[24:32])),
	}
	sections := []*Section{&h.Docs, &h.Model, &h.Postings, &h.Matrix}
	for i, s := range sections {
		base := 32 + i*16
		s.Offset = int64(binary.LittleEndian.Uint64(b[base : base+8]))
		s.Size = int64(binary.LittleEndian.Uint64(b[base+8 : base+16]))
	}
	return h
}

func readMatrix(raw []byte, rows int) (vsm.Matrix, error) {
	m := make(vsm.Matrix, rows)
	pos := 0
	for r := 0; r < rows; r++ {
		if pos+4 > len(raw) {
			return nil, corrupt("matrix truncated at row %d", r)
		}
		n := int(binary.LittleEndian.Uint32(raw[pos : pos+4]))
		pos += 4
		if n < 0 || pos+12*n > len(raw) {
			return nil, corrupt("matrix row %d overruns section", r)
		}
		row := vsm.Vector{Indices: make([]int, n), Values: make([]float64, n)}
		for i := 0; i < n; i++ {
			row.Indices[i] = int(binary.LittleEndian.Uint32(raw[pos : pos+4]))
			row.Values[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[pos+4 : pos+12]))
			pos += 12
		}
		m[r] = row
	}
	if pos != len(raw) {
		return nil, corrupt("matrix section has %d trailing bytes", len(raw)-pos)
	}
	return m, nil
}

func corrupt(format string, args ...any) error {
	return fmt.Errorf("%w: %s", apperrors.ErrSnapshotCorrupt, fmt.Sprintf(format, args...))
}
