package vector

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/kgweave/kgweave/pkg/kgerr"
)

// fileMagic identifies a kgweave vector index file.
const fileMagic uint32 = 0x4b475631 // "KGV1"

// fileVersion is the current on-disk format version.
const fileVersion uint32 = 1

// Save writes idx to w in the versioned binary format: a self-describing
// header (magic, version, dimension, count, construction parameters)
// followed by each entry's URI, metadata, and raw float32 vector.
//
// The format is intentionally a bespoke binary encoding rather than a
// general-purpose serialisation library: no dependency in the reference
// pack specialises in ANN-index persistence, so encoding/binary is the
// documented stdlib choice here (see DESIGN.md).
func (idx *Index) Save(w io.Writer) error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	bw := bufio.NewWriter(w)

	header := []uint32{fileMagic, fileVersion, uint32(idx.dimension), uint32(len(idx.ids)), uint32(idx.capacity), uint32(idx.efConstruction), uint32(idx.m)}
	for _, h := range header {
		if err := binary.Write(bw, binary.LittleEndian, h); err != nil {
			return kgerr.New(kgerr.Index, "vector.Save", err)
		}
	}

	for i, uri := range idx.ids {
		if err := writeString(bw, uri); err != nil {
			return kgerr.New(kgerr.Index, "vector.Save", err)
		}
		if err := writeStringMap(bw, idx.metadata[i]); err != nil {
			return kgerr.New(kgerr.Index, "vector.Save", err)
		}
		for _, f := range idx.vectors[i] {
			if err := binary.Write(bw, binary.LittleEndian, f); err != nil {
				return kgerr.New(kgerr.Index, "vector.Save", err)
			}
		}
	}

	if err := bw.Flush(); err != nil {
		return kgerr.New(kgerr.Index, "vector.Save", err)
	}
	return nil
}

// Load reads an Index previously written by Save. A corrupt or
// unrecognised header is a fatal IndexError for this operation only (no
// deterministic fallback exists for index load, per spec.md §7).
func Load(r io.Reader) (*Index, error) {
	br := bufio.NewReader(r)

	var magic, version, dimension, count, capacity, ef, m uint32
	for _, v := range []*uint32{&magic, &version, &dimension, &count, &capacity, &ef, &m} {
		if err := binary.Read(br, binary.LittleEndian, v); err != nil {
			return nil, kgerr.New(kgerr.Index, "vector.Load", fmt.Errorf("read header: %w", err))
		}
	}
	if magic != fileMagic {
		return nil, kgerr.New(kgerr.Index, "vector.Load", fmt.Errorf("bad magic %x", magic))
	}
	if version != fileVersion {
		return nil, kgerr.New(kgerr.Index, "vector.Load", fmt.Errorf("unsupported version %d", version))
	}

	idx := New(Params{Dimension: int(dimension), Capacity: int(capacity), EFConstruction: int(ef), M: int(m)})

	for n := uint32(0); n < count; n++ {
		uri, err := readString(br)
		if err != nil {
			return nil, kgerr.New(kgerr.Index, "vector.Load", fmt.Errorf("read uri: %w", err))
		}
		md, err := readStringMap(br)
		if err != nil {
			return nil, kgerr.New(kgerr.Index, "vector.Load", fmt.Errorf("read metadata: %w", err))
		}
		vec := make([]float32, dimension)
		for i := range vec {
			if err := binary.Read(br, binary.LittleEndian, &vec[i]); err != nil {
				return nil, kgerr.New(kgerr.Index, "vector.Load", fmt.Errorf("read vector: %w", err))
			}
		}
		if err := idx.AddNode(uri, vec, md); err != nil {
			return nil, kgerr.New(kgerr.Index, "vector.Load", err)
		}
	}
	return idx, nil
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func writeStringMap(w io.Writer, m map[string]string) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(m))); err != nil {
		return err
	}
	for k, v := range m {
		if err := writeString(w, k); err != nil {
			return err
		}
		if err := writeString(w, v); err != nil {
			return err
		}
	}
	return nil
}

func readStringMap(r io.Reader) (map[string]string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	out := make(map[string]string, n)
	for i := uint32(0); i < n; i++ {
		k, err := readString(r)
		if err != nil {
			return nil, err
		}
		v, err := readString(r)
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}
