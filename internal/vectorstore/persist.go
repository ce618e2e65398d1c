package vectorstore

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
)

// File layout (little-endian):
//
//	magic   [4]byte "DCIX"
//	version uint32
//	dim     uint32
//	nextID  int64
//	count   uint32
//	count records of: id int64, dead uint8, dim float32s
//
// Tombstoned vectors are persisted too, so a reload before compaction sees
// the same logical state it saved.

var fileMagic = [4]byte{'D', 'C', 'I', 'X'}

const fileVersion = 1

// Save writes the index to path atomically (temp file + rename).
func (ix *Index) Save(path string) error {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create vector file: %w", err)
	}
	defer func() { _ = os.Remove(tmp) }()

	w := bufio.NewWriter(f)
	if err := ix.writeTo(w); err != nil {
		_ = f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (ix *Index) writeTo(w io.Writer) error {
	if _, err := w.Write(fileMagic[:]); err != nil {
		return err
	}
	header := []interface{}{
		uint32(fileVersion),
		uint32(ix.dim),
		ix.nextID,
		uint32(len(ix.vectors)),
	}
	for _, v := range header {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return err
		}
	}

	ids := make([]int64, 0, len(ix.vectors))
	for id := range ix.vectors {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	buf := make([]byte, 4)
	for _, id := range ids {
		if err := binary.Write(w, binary.LittleEndian, id); err != nil {
			return err
		}
		var dead uint8
		if _, ok := ix.tombstones[id]; ok {
			dead = 1
		}
		if err := binary.Write(w, binary.LittleEndian, dead); err != nil {
			return err
		}
		for _, x := range ix.vectors[id] {
			binary.LittleEndian.PutUint32(buf, math.Float32bits(x))
			if _, err := w.Write(buf); err != nil {
				return err
			}
		}
	}
	return nil
}

// Load reads an index previously written by Save. A missing file yields an
// empty index rather than an error, so first runs need no special casing.
func Load(path string, opts Options) (*Index, error) {
	ix := New(opts)

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return ix, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open vector file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if err := ix.readFrom(bufio.NewReader(f)); err != nil {
		return nil, fmt.Errorf("failed to read vector file %s: %w", path, err)
	}
	return ix, nil
}

func (ix *Index) readFrom(r io.Reader) error {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return err
	}
	if magic != fileMagic {
		return fmt.Errorf("bad magic %q", magic[:])
	}

	var version, dim, count uint32
	var nextID int64
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return err
	}
	if version != fileVersion {
		return fmt.Errorf("unsupported vector file version %d", version)
	}
	if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
		return err
	}
	if err := binary.Read(r, binary.LittleEndian, &nextID); err != nil {
		return err
	}
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return err
	}

	ix.dim = int(dim)
	ix.nextID = nextID

	raw := make([]byte, int(dim)*4)
	for i := uint32(0); i < count; i++ {
		var id int64
		var dead uint8
		if err := binary.Read(r, binary.LittleEndian, &id); err != nil {
			return err
		}
		if err := binary.Read(r, binary.LittleEndian, &dead); err != nil {
			return err
		}
		if _, err := io.ReadFull(r, raw); err != nil {
			return err
		}
		vector := make([]float32, dim)
		for j := range vector {
			vector[j] = math.Float32frombits(binary.LittleEndian.Uint32(raw[j*4:]))
		}

		ix.vectors[id] = vector
		ix.norms[id] = norm(vector)
		ix.assign[id] = ix.assignPartition(vector)
		if dead == 1 {
			ix.tombstones[id] = struct{}{}
		}
	}
	return nil
}
