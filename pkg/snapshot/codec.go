// Package snapshot implements the versioned binary format for index
// dumps. The frame is a 4-byte magic followed by a little-endian
// payload and a trailing CRC-32 (IEEE) over that payload:
//
//	magic "VXS1"
//	payload:
//	  version, dimension, metric, precision, M, efConstruction,
//	  node count, top layer, entry point
//	  deleted bitmap (roaring, length-prefixed)
//	  per node: level, vector presence flag, vector, per-layer adjacency
//	  metadata: id -> key/value pairs
//	crc32(payload)
//
// Any structural or checksum mismatch surfaces as ErrCorruptSnapshot
// and restoration aborts without partial state.
package snapshot

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"math"
	"sort"

	"github.com/RoaringBitmap/roaring"

	"github.com/vexdb/vexdb/pkg/distance"
	"github.com/vexdb/vexdb/pkg/hnsw"
	"github.com/vexdb/vexdb/pkg/vectorstore"
)

// ErrCorruptSnapshot reports a snapshot that fails structural or
// checksum validation.
var ErrCorruptSnapshot = errors.New("corrupt snapshot")

const (
	magic         = "VXS1"
	formatVersion = 1
)

// Write dumps the index to w. The dump is taken under the index's read
// lock, so it is a consistent point-in-time view.
func Write(w io.Writer, ix *hnsw.Index) error {
	return WriteWithMetadata(w, ix, nil)
}

// WriteWithMetadata dumps the index together with per-id metadata.
// Metadata is written in sorted order so identical states produce
// byte-identical snapshots.
func WriteWithMetadata(w io.Writer, ix *hnsw.Index, meta map[uint32]map[string]string) error {
	payload, err := encode(ix.State(), meta)
	if err != nil {
		return err
	}

	var frame bytes.Buffer
	frame.Grow(len(magic) + len(payload) + 4)
	frame.WriteString(magic)
	frame.Write(payload)
	binary.Write(&frame, binary.LittleEndian, crc32.ChecksumIEEE(payload))

	_, err = w.Write(frame.Bytes())
	return err
}

// Read restores an index from r, discarding any metadata section.
func Read(r io.Reader) (*hnsw.Index, error) {
	ix, _, err := ReadWithMetadata(r)
	return ix, err
}

// ReadWithMetadata restores an index and its metadata from r.
func ReadWithMetadata(r io.Reader) (*hnsw.Index, map[uint32]map[string]string, error) {
	head := make([]byte, len(magic))
	if _, err := io.ReadFull(r, head); err != nil {
		return nil, nil, fmt.Errorf("%w: missing magic: %v", ErrCorruptSnapshot, err)
	}
	if string(head) != magic {
		return nil, nil, fmt.Errorf("%w: bad magic %q", ErrCorruptSnapshot, head)
	}

	rest, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("reading snapshot: %w", err)
	}
	if len(rest) < 4 {
		return nil, nil, fmt.Errorf("%w: truncated frame", ErrCorruptSnapshot)
	}

	payload, sum := rest[:len(rest)-4], binary.LittleEndian.Uint32(rest[len(rest)-4:])
	if crc32.ChecksumIEEE(payload) != sum {
		return nil, nil, fmt.Errorf("%w: checksum mismatch", ErrCorruptSnapshot)
	}

	st, meta, err := decode(payload)
	if err != nil {
		return nil, nil, err
	}
	ix, err := hnsw.FromState(st)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	return ix, meta, nil
}

func encode(st *hnsw.State, meta map[uint32]map[string]string) ([]byte, error) {
	var b bytes.Buffer
	le := binary.LittleEndian

	binary.Write(&b, le, uint16(formatVersion))
	binary.Write(&b, le, uint32(st.Dimension))
	if err := writeString(&b, string(st.Metric)); err != nil {
		return nil, err
	}
	if err := writeString(&b, string(st.Precision)); err != nil {
		return nil, err
	}
	binary.Write(&b, le, uint32(st.M))
	binary.Write(&b, le, uint32(st.EfConstruction))
	binary.Write(&b, le, uint32(len(st.Nodes)))
	binary.Write(&b, le, int32(st.TopLayer))
	binary.Write(&b, le, st.EntryPoint)

	deleted := st.Deleted
	if deleted == nil {
		deleted = roaring.New()
	}
	bm, err := deleted.ToBytes()
	if err != nil {
		return nil, fmt.Errorf("serializing tombstones: %w", err)
	}
	binary.Write(&b, le, uint32(len(bm)))
	b.Write(bm)

	for i, ns := range st.Nodes {
		binary.Write(&b, le, uint16(ns.Level))
		if ns.Vector == nil {
			b.WriteByte(0)
		} else {
			if len(ns.Vector) != st.Dimension {
				return nil, fmt.Errorf("node %d: vector length %d, dimension %d",
					i, len(ns.Vector), st.Dimension)
			}
			b.WriteByte(1)
			for _, v := range ns.Vector {
				binary.Write(&b, le, math.Float32bits(v))
			}
		}
		if len(ns.Neighbors) != ns.Level+1 {
			return nil, fmt.Errorf("node %d: %d adjacency layers for level %d",
				i, len(ns.Neighbors), ns.Level)
		}
		for _, nbrs := range ns.Neighbors {
			binary.Write(&b, le, uint16(len(nbrs)))
			for _, nb := range nbrs {
				binary.Write(&b, le, nb)
			}
		}
	}

	ids := make([]uint32, 0, len(meta))
	for id := range meta {
		if len(meta[id]) > 0 {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	binary.Write(&b, le, uint32(len(ids)))
	for _, id := range ids {
		fields := meta[id]
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		binary.Write(&b, le, id)
		binary.Write(&b, le, uint16(len(keys)))
		for _, k := range keys {
			if err := writeString16(&b, k); err != nil {
				return nil, fmt.Errorf("metadata id %d: %w", id, err)
			}
			if err := writeString16(&b, fields[k]); err != nil {
				return nil, fmt.Errorf("metadata id %d key %q: %w", id, k, err)
			}
		}
	}

	return b.Bytes(), nil
}

func decode(payload []byte) (*hnsw.State, map[uint32]map[string]string, error) {
	d := &decoder{r: bytes.NewReader(payload)}

	if v := d.u16(); v != formatVersion {
		if d.err == nil {
			d.err = fmt.Errorf("unsupported format version %d", v)
		}
		return nil, nil, d.corrupt()
	}

	st := &hnsw.State{}
	st.Dimension = int(d.u32())
	st.Metric = distance.Metric(d.str())
	st.Precision = vectorstore.Precision(d.str())
	st.M = int(d.u32())
	st.EfConstruction = int(d.u32())
	nodeCount := d.u32()
	st.TopLayer = int(d.i32())
	st.EntryPoint = d.u32()

	bmLen := d.u32()
	bm := d.bytes(int(bmLen))
	if d.err != nil {
		return nil, nil, d.corrupt()
	}
	st.Deleted = roaring.New()
	if len(bm) > 0 {
		if _, err := st.Deleted.FromBuffer(bm); err != nil {
			d.err = fmt.Errorf("tombstone bitmap: %v", err)
			return nil, nil, d.corrupt()
		}
	}

	// Each node costs at least level(2) + flag(1) + one adjacency
	// count(2); reject counts the remaining bytes cannot possibly hold.
	if int64(nodeCount)*5 > int64(d.r.Len()) {
		d.err = fmt.Errorf("node count %d exceeds frame size", nodeCount)
		return nil, nil, d.corrupt()
	}

	st.Nodes = make([]hnsw.NodeState, nodeCount)
	for i := range st.Nodes {
		ns := &st.Nodes[i]
		ns.Level = int(d.u16())

		switch d.u8() {
		case 0:
		case 1:
			ns.Vector = d.vector(st.Dimension)
		default:
			if d.err == nil {
				d.err = fmt.Errorf("node %d: bad vector flag", i)
			}
		}
		if d.err != nil {
			return nil, nil, d.corrupt()
		}

		ns.Neighbors = make([][]uint32, ns.Level+1)
		for l := range ns.Neighbors {
			n := int(d.u16())
			if int64(n)*4 > int64(d.r.Len()) {
				d.err = fmt.Errorf("node %d layer %d: neighbor count %d exceeds frame size", i, l, n)
				return nil, nil, d.corrupt()
			}
			nbrs := make([]uint32, n)
			for j := range nbrs {
				nbrs[j] = d.u32()
			}
			ns.Neighbors[l] = nbrs
		}
	}

	metaCount := d.u32()
	if int64(metaCount)*6 > int64(d.r.Len()) {
		d.err = fmt.Errorf("metadata count %d exceeds frame size", metaCount)
		return nil, nil, d.corrupt()
	}
	var meta map[uint32]map[string]string
	if metaCount > 0 {
		meta = make(map[uint32]map[string]string, metaCount)
	}
	for i := uint32(0); i < metaCount; i++ {
		id := d.u32()
		fieldCount := int(d.u16())
		fields := make(map[string]string, fieldCount)
		for j := 0; j < fieldCount; j++ {
			k := d.str16()
			fields[k] = d.str16()
		}
		if d.err != nil {
			return nil, nil, d.corrupt()
		}
		meta[id] = fields
	}

	if d.err != nil {
		return nil, nil, d.corrupt()
	}
	if d.r.Len() != 0 {
		d.err = fmt.Errorf("%d trailing bytes", d.r.Len())
		return nil, nil, d.corrupt()
	}
	return st, meta, nil
}

// decoder reads little-endian values with a sticky error, so the happy
// path stays free of per-read error checks.
type decoder struct {
	r   *bytes.Reader
	err error
}

func (d *decoder) corrupt() error {
	return fmt.Errorf("%w: %v", ErrCorruptSnapshot, d.err)
}

func (d *decoder) bytes(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || n > d.r.Len() {
		d.err = fmt.Errorf("need %d bytes, have %d", n, d.r.Len())
		return nil
	}
	buf := make([]byte, n)
	io.ReadFull(d.r, buf)
	return buf
}

func (d *decoder) u8() byte {
	if d.err != nil {
		return 0
	}
	b, err := d.r.ReadByte()
	if err != nil {
		d.err = err
	}
	return b
}

func (d *decoder) u16() uint16 {
	b := d.bytes(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (d *decoder) u32() uint32 {
	b := d.bytes(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (d *decoder) i32() int32 {
	return int32(d.u32())
}

func (d *decoder) str() string {
	n := d.u8()
	return string(d.bytes(int(n)))
}

func (d *decoder) str16() string {
	n := d.u16()
	return string(d.bytes(int(n)))
}

func (d *decoder) vector(dim int) []float32 {
	b := d.bytes(dim * 4)
	if b == nil {
		return nil
	}
	vec := make([]float32, dim)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return vec
}

// writeString writes a u8-length-prefixed string, used for the short
// enum names in the header.
func writeString(b *bytes.Buffer, s string) error {
	if len(s) > math.MaxUint8 {
		return fmt.Errorf("string %q... exceeds %d bytes", s[:16], math.MaxUint8)
	}
	b.WriteByte(byte(len(s)))
	b.WriteString(s)
	return nil
}

// writeString16 writes a u16-length-prefixed string, used for metadata
// keys and values. Over-long strings are an encode error, never
// truncated: a snapshot must read back exactly what was written.
func writeString16(b *bytes.Buffer, s string) error {
	if len(s) > math.MaxUint16 {
		return fmt.Errorf("metadata string of %d bytes exceeds %d", len(s), math.MaxUint16)
	}
	binary.Write(b, binary.LittleEndian, uint16(len(s)))
	b.WriteString(s)
	return nil
}
