package snapshot

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/Adithya-Monish-Kumar-K/docrank/internal/indexer/vsm"
)

// Write atomically creates dir/snap-<id>.dsnp. It writes to a .tmp file,
// fsyncs it and renames on success, so a failed write never leaves a
// partial snapshot under the final name.
func Write(dir string, snap *Snapshot) (string, error) {
	if err := snap.Validate(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating snapshot directory: %w", err)
	}
	finalPath := filepath.Join(dir, FileName(snap.ID))
	tmpPath := finalPath + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("creating temp snapshot file: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			f.Close()
			os.Remove(tmpPath)
		}
	}()

	if err := encode(f, snap); err != nil {
		return "", err
	}
	if err := f.Sync(); err != nil {
		return "", fmt.Errorf("syncing snapshot file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("closing snapshot file: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return "", fmt.Errorf("renaming snapshot file: %w", err)
	}
	committed = true
	syncDir(dir)
	return finalPath, nil
}

func encode(f *os.File, snap *Snapshot) error {
	docs, err := json.Marshal(docsSection{ID: snap.ID, Docs: snap.Docs})
	if err != nil {
		return fmt.Errorf("marshaling documents: %w", err)
	}
	model, err := json.Marshal(snap.Model.State())
	if err != nil {
		return fmt.Errorf("marshaling model: %w", err)
	}
	postings, err := json.Marshal(postingsSection{
		MaxPositions: snap.Index.MaxPositions(),
		Entries:      snap.Index.Entries(),
	})
	if err != nil {
		return fmt.Errorf("marshaling postings: %w", err)
	}

	header := Header{
		Magic:        MagicBytes,
		Version:      FormatVersion,
		DocCount:     uint32(len(snap.Docs)),
		TermCount:    uint32(snap.Index.TermCount()),
		FeatureCount: uint32(snap.Model.Size()),
		CreatedAt:    snap.CreatedAt.UnixNano(),
	}
	offset := int64(HeaderSize)
	header.Docs = Section{Offset: offset, Size: int64(len(docs))}
	offset += header.Docs.Size
	header.Model = Section{Offset: offset, Size: int64(len(model))}
	offset += header.Model.Size
	header.Postings = Section{Offset: offset, Size: int64(len(postings))}
	offset += header.Postings.Size
	header.Matrix = Section{Offset: offset, Size: matrixSize(snap.Matrix)}

	bw := bufio.NewWriter(f)
	if _, err := bw.Write(encodeHeader(header)); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	crc := crc32.NewIEEE()
	body := io.MultiWriter(bw, crc)
	for _, section := range [][]byte{docs, model, postings} {
		if _, err := body.Write(section); err != nil {
			return fmt.Errorf("writing section: %w", err)
		}
	}
	if err := writeMatrix(body, snap.Matrix); err != nil {
		return fmt.Errorf("writing matrix: %w", err)
	}

	footer := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(footer[0:4], crc.Sum32())
	binary.LittleEndian.PutUint32(footer[4:8], MagicBytes)
	binary.LittleEndian.PutUint64(footer[8:16], uint64(offset+header.Matrix.Size-int64(HeaderSize)))
	if _, err := bw.Write(footer); err != nil {
		return fmt.Errorf("writing footer: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flushing snapshot file: %w", err)
	}
	return nil
}

func encodeHeader(h Header) []byte {
	b := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(b[0:4], h.Magic)
	binary.LittleEndian.PutUint32(b[4:8], h.Version)
	binary.LittleEndian.PutUint32(b[8:12], h.DocCount)
	binary.LittleEndian.PutUint32(b[12:16], h.TermCount)
	binary.LittleEndian.PutUint32(b[16:20], h.FeatureCount)
	binary.LittleEndian.PutUint64(b[24:32], uint64(h.CreatedAt))
	for i, s := range []Section{h.Docs, h.Model, h.Postings, h.Matrix} {
		base := 32 + i*16
		binary.LittleEndian.PutUint64(b[base:base+8], uint64(s.Offset))
		binary.LittleEndian.PutUint64(b[base+8:base+16], uint64(s.Size))
	}
	return b
}

// Matrix rows are written as a uint32 entry count followed by
// (uint32 feature, uint64 float64 bits) pairs.
func writeMatrix(w io.Writer, m vsm.Matrix) error {
	buf := make([]byte, 12)
	for _, row := range m {
		binary.LittleEndian.PutUint32(buf[0:4], uint32(len(row.Indices)))
		if _, err := w.Write(buf[0:4]); err != nil {
			return err
		}
		for i, idx := range row.Indices {
			binary.LittleEndian.PutUint32(buf[0:4], uint32(idx))
			binary.LittleEndian.PutUint64(buf[4:12], math.Float64bits(row.Values[i]))
			if _, err := w.Write(buf); err != nil {
				return err
			}
		}
	}
	return nil
}

func matrixSize(m vsm.Matrix) int64 {
	var n int64
	for _, row := range m {
		n += 4 + 12*int64(len(row.Indices))
	}
	return n
}

// writeFileAtomic replaces path with data using the same tmp, fsync and
// rename sequence as Write.
func writeFileAtomic(path string, data []byte) error {
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	syncDir(filepath.Dir(path))
	return nil
}

// syncDir makes a rename durable. Errors are ignored; some platforms cannot
// fsync a directory.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	d.Close()
}
