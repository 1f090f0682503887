package graph

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"math"
	"os"
	"unsafe"
)

const (
	magicBytes = "TBLROUTE"
	version    = uint32(1)
	maxNodes   = 10_000_000
	maxEdges   = 50_000_000
)

// Section presence bits in the file header.
const (
	sectionMLD = uint32(1 << 0) // partition + cell storage present
)

// RoutingData bundles everything the query engines need: the base graph for
// snapping and geometry, the contracted overlay for CH queries, and the
// optional partition plus cell storage for MLD queries.
type RoutingData struct {
	Base       *Graph
	Contracted *ContractedGraph
	Partition  *MultiLevelPartition
	Cells      *CellStorage
}

// MLD assembles the multi-level query facade, or nil when the file carried no
// partition section.
func (d *RoutingData) MLD() *MultiLevelGraph {
	if d.Partition == nil || d.Cells == nil {
		return nil
	}
	return &MultiLevelGraph{Graph: d.Base, Partition: d.Partition, Cells: d.Cells}
}

// fileHeader is the binary header.
type fileHeader struct {
	Magic           [8]byte
	Version         uint32
	Sections        uint32
	NumNodes        uint32
	NumBaseEdges    uint32
	NumOverlayEdges uint32
}

// WriteBinary serializes a RoutingData bundle to a binary file.
// Uses unsafe.Slice for fast zero-copy I/O.
func WriteBinary(path string, data *RoutingData) error {
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		f.Close()
		os.Remove(tmpPath) // clean up on error
	}()

	crcWriter := crc32Writer{w: f, hash: crc32.NewIEEE()}
	w := &crcWriter

	g := data.Base
	cg := data.Contracted

	var sections uint32
	if data.Partition != nil && data.Cells != nil {
		sections |= sectionMLD
	}

	hdr := fileHeader{
		Version:         version,
		Sections:        sections,
		NumNodes:        g.NumNodes,
		NumBaseEdges:    g.NumEdges,
		NumOverlayEdges: uint32(len(cg.Head)),
	}
	copy(hdr.Magic[:], magicBytes)
	if err := binary.Write(w, binary.LittleEndian, &hdr); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	// Base graph.
	if err := writeUint32Slice(w, g.FirstOut); err != nil {
		return fmt.Errorf("write FirstOut: %w", err)
	}
	if err := writeUint32Slice(w, g.Head); err != nil {
		return fmt.Errorf("write Head: %w", err)
	}
	if err := writeInt32Slice(w, g.Weight); err != nil {
		return fmt.Errorf("write Weight: %w", err)
	}
	if err := writeInt32Slice(w, g.Duration); err != nil {
		return fmt.Errorf("write Duration: %w", err)
	}
	if err := writeByteSlice(w, g.Flags); err != nil {
		return fmt.Errorf("write Flags: %w", err)
	}
	if err := writeFloat64Slice(w, g.NodeLat); err != nil {
		return fmt.Errorf("write NodeLat: %w", err)
	}
	if err := writeFloat64Slice(w, g.NodeLon); err != nil {
		return fmt.Errorf("write NodeLon: %w", err)
	}

	// Geometry (length-prefixed for variable-size arrays).
	if err := writeLenPrefixedUint32(w, g.GeoFirstOut); err != nil {
		return fmt.Errorf("write GeoFirstOut: %w", err)
	}
	if err := writeLenPrefixedFloat64(w, g.GeoShapeLat); err != nil {
		return fmt.Errorf("write GeoShapeLat: %w", err)
	}
	if err := writeLenPrefixedFloat64(w, g.GeoShapeLon); err != nil {
		return fmt.Errorf("write GeoShapeLon: %w", err)
	}

	// Contracted overlay.
	if err := writeUint32Slice(w, cg.Rank); err != nil {
		return fmt.Errorf("write Rank: %w", err)
	}
	if err := writeUint32Slice(w, cg.FirstOut); err != nil {
		return fmt.Errorf("write overlay FirstOut: %w", err)
	}
	if err := writeUint32Slice(w, cg.Head); err != nil {
		return fmt.Errorf("write overlay Head: %w", err)
	}
	if err := writeInt32Slice(w, cg.Weight); err != nil {
		return fmt.Errorf("write overlay Weight: %w", err)
	}
	if err := writeInt32Slice(w, cg.Duration); err != nil {
		return fmt.Errorf("write overlay Duration: %w", err)
	}
	if err := writeByteSlice(w, cg.Flags); err != nil {
		return fmt.Errorf("write overlay Flags: %w", err)
	}
	if err := writeUint32Slice(w, cg.Middle); err != nil {
		return fmt.Errorf("write Middle: %w", err)
	}
	if err := writeInt32Slice(w, cg.Loop); err != nil {
		return fmt.Errorf("write Loop: %w", err)
	}
	if err := writeInt32Slice(w, cg.LoopDuration); err != nil {
		return fmt.Errorf("write LoopDuration: %w", err)
	}

	if sections&sectionMLD != 0 {
		if err := writePartition(w, data.Partition); err != nil {
			return fmt.Errorf("write partition: %w", err)
		}
		if err := writeCells(w, data.Cells); err != nil {
			return fmt.Errorf("write cells: %w", err)
		}
	}

	// Write CRC32 trailer.
	checksum := crcWriter.hash.Sum32()
	if err := binary.Write(f, binary.LittleEndian, checksum); err != nil {
		return fmt.Errorf("write CRC32: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	// Atomic rename.
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}

	return nil
}

// ReadBinary deserializes a RoutingData bundle from a binary file.
func ReadBinary(path string) (*RoutingData, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	crcReader := crc32Reader{r: f, hash: crc32.NewIEEE()}
	r := &crcReader

	// Read and validate header.
	var hdr fileHeader
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	if string(hdr.Magic[:]) != magicBytes {
		return nil, fmt.Errorf("invalid magic bytes: %q", hdr.Magic)
	}
	if hdr.Version != version {
		return nil, fmt.Errorf("unsupported version: %d", hdr.Version)
	}
	if hdr.NumNodes > maxNodes {
		return nil, fmt.Errorf("NumNodes %d exceeds limit %d", hdr.NumNodes, maxNodes)
	}
	if hdr.NumBaseEdges > maxEdges || hdr.NumOverlayEdges > maxEdges {
		return nil, fmt.Errorf("edge count exceeds limit %d", maxEdges)
	}

	g := &Graph{NumNodes: hdr.NumNodes, NumEdges: hdr.NumBaseEdges}

	if g.FirstOut, err = readUint32Slice(r, int(hdr.NumNodes+1)); err != nil {
		return nil, fmt.Errorf("read FirstOut: %w", err)
	}
	if g.Head, err = readUint32Slice(r, int(hdr.NumBaseEdges)); err != nil {
		return nil, fmt.Errorf("read Head: %w", err)
	}
	if g.Weight, err = readInt32Slice(r, int(hdr.NumBaseEdges)); err != nil {
		return nil, fmt.Errorf("read Weight: %w", err)
	}
	if g.Duration, err = readInt32Slice(r, int(hdr.NumBaseEdges)); err != nil {
		return nil, fmt.Errorf("read Duration: %w", err)
	}
	if g.Flags, err = readByteSlice(r, int(hdr.NumBaseEdges)); err != nil {
		return nil, fmt.Errorf("read Flags: %w", err)
	}
	if g.NodeLat, err = readFloat64Slice(r, int(hdr.NumNodes)); err != nil {
		return nil, fmt.Errorf("read NodeLat: %w", err)
	}
	if g.NodeLon, err = readFloat64Slice(r, int(hdr.NumNodes)); err != nil {
		return nil, fmt.Errorf("read NodeLon: %w", err)
	}

	if g.GeoFirstOut, err = readLenPrefixedUint32(r); err != nil {
		return nil, fmt.Errorf("read GeoFirstOut: %w", err)
	}
	if g.GeoShapeLat, err = readLenPrefixedFloat64(r); err != nil {
		return nil, fmt.Errorf("read GeoShapeLat: %w", err)
	}
	if g.GeoShapeLon, err = readLenPrefixedFloat64(r); err != nil {
		return nil, fmt.Errorf("read GeoShapeLon: %w", err)
	}

	cg := &ContractedGraph{NumNodes: hdr.NumNodes}

	if cg.Rank, err = readUint32Slice(r, int(hdr.NumNodes)); err != nil {
		return nil, fmt.Errorf("read Rank: %w", err)
	}
	if cg.FirstOut, err = readUint32Slice(r, int(hdr.NumNodes+1)); err != nil {
		return nil, fmt.Errorf("read overlay FirstOut: %w", err)
	}
	if cg.Head, err = readUint32Slice(r, int(hdr.NumOverlayEdges)); err != nil {
		return nil, fmt.Errorf("read overlay Head: %w", err)
	}
	if cg.Weight, err = readInt32Slice(r, int(hdr.NumOverlayEdges)); err != nil {
		return nil, fmt.Errorf("read overlay Weight: %w", err)
	}
	if cg.Duration, err = readInt32Slice(r, int(hdr.NumOverlayEdges)); err != nil {
		return nil, fmt.Errorf("read overlay Duration: %w", err)
	}
	if cg.Flags, err = readByteSlice(r, int(hdr.NumOverlayEdges)); err != nil {
		return nil, fmt.Errorf("read overlay Flags: %w", err)
	}
	if cg.Middle, err = readUint32Slice(r, int(hdr.NumOverlayEdges)); err != nil {
		return nil, fmt.Errorf("read Middle: %w", err)
	}
	if cg.Loop, err = readInt32Slice(r, int(hdr.NumNodes)); err != nil {
		return nil, fmt.Errorf("read Loop: %w", err)
	}
	if cg.LoopDuration, err = readInt32Slice(r, int(hdr.NumNodes)); err != nil {
		return nil, fmt.Errorf("read LoopDuration: %w", err)
	}

	data := &RoutingData{Base: g, Contracted: cg}

	if hdr.Sections&sectionMLD != 0 {
		if data.Partition, err = readPartition(r, hdr.NumNodes); err != nil {
			return nil, fmt.Errorf("read partition: %w", err)
		}
		if data.Cells, err = readCells(r, data.Partition); err != nil {
			return nil, fmt.Errorf("read cells: %w", err)
		}
	}

	// Read and validate CRC32.
	expectedCRC := crcReader.hash.Sum32()
	var storedCRC uint32
	if err := binary.Read(f, binary.LittleEndian, &storedCRC); err != nil {
		return nil, fmt.Errorf("read CRC32: %w", err)
	}
	if storedCRC != expectedCRC {
		return nil, fmt.Errorf("CRC32 mismatch: stored=%08x computed=%08x", storedCRC, expectedCRC)
	}

	// Validate CSR invariants.
	if err := validateCSR(g.FirstOut, g.Head, hdr.NumNodes); err != nil {
		return nil, fmt.Errorf("base CSR invalid: %w", err)
	}
	if err := validateCSR(cg.FirstOut, cg.Head, hdr.NumNodes); err != nil {
		return nil, fmt.Errorf("overlay CSR invalid: %w", err)
	}

	return data, nil
}

// writePartition serializes the per-level cell assignments.
func writePartition(w io.Writer, p *MultiLevelPartition) error {
	numLevels := uint32(len(p.cells))
	if err := binary.Write(w, binary.LittleEndian, numLevels); err != nil {
		return err
	}
	for l := uint32(0); l < numLevels; l++ {
		if err := binary.Write(w, binary.LittleEndian, p.numCells[l]); err != nil {
			return err
		}
		if err := writeUint32Slice(w, p.cells[l]); err != nil {
			return err
		}
	}
	return nil
}

func readPartition(r io.Reader, numNodes uint32) (*MultiLevelPartition, error) {
	var numLevels uint32
	if err := binary.Read(r, binary.LittleEndian, &numLevels); err != nil {
		return nil, err
	}
	if numLevels > 16 {
		return nil, fmt.Errorf("level count %d exceeds limit", numLevels)
	}

	cells := make([][]CellID, numLevels)
	numCells := make([]uint32, numLevels)
	for l := uint32(0); l < numLevels; l++ {
		if err := binary.Read(r, binary.LittleEndian, &numCells[l]); err != nil {
			return nil, err
		}
		var err error
		if cells[l], err = readUint32Slice(r, int(numNodes)); err != nil {
			return nil, err
		}
		for _, c := range cells[l] {
			if c >= numCells[l] {
				return nil, fmt.Errorf("cell id %d out of range at level %d", c, l+1)
			}
		}
	}

	return NewMultiLevelPartition(cells, numCells), nil
}

// writeCells serializes the per-cell clique tables. Only the out-view is
// written; the transposed in-view is rebuilt on load.
func writeCells(w io.Writer, cs *CellStorage) error {
	for _, cells := range cs.levels {
		for ci := range cells {
			e := &cells[ci]
			dims := [2]uint32{uint32(len(e.source)), uint32(len(e.dest))}
			if err := binary.Write(w, binary.LittleEndian, dims); err != nil {
				return err
			}
			if err := writeUint32Slice(w, e.source); err != nil {
				return err
			}
			if err := writeUint32Slice(w, e.dest); err != nil {
				return err
			}
			if err := writeInt32Slice(w, e.outWeight); err != nil {
				return err
			}
			if err := writeInt32Slice(w, e.outDuration); err != nil {
				return err
			}
		}
	}
	return nil
}

func readCells(r io.Reader, p *MultiLevelPartition) (*CellStorage, error) {
	numLevels := uint32(len(p.cells))
	levels := make([][]CellData, numLevels)
	for l := uint32(0); l < numLevels; l++ {
		cells := make([]CellData, p.numCells[l])
		for ci := range cells {
			var dims [2]uint32
			if err := binary.Read(r, binary.LittleEndian, &dims); err != nil {
				return nil, err
			}
			ns, nd := int(dims[0]), int(dims[1])
			if ns > int(maxNodes) || nd > int(maxNodes) {
				return nil, fmt.Errorf("cell dimensions %dx%d exceed limit", ns, nd)
			}
			var cd CellData
			var err error
			if cd.Source, err = readUint32Slice(r, ns); err != nil {
				return nil, err
			}
			if cd.Dest, err = readUint32Slice(r, nd); err != nil {
				return nil, err
			}
			if cd.OutWeight, err = readInt32Slice(r, ns*nd); err != nil {
				return nil, err
			}
			if cd.OutDuration, err = readInt32Slice(r, ns*nd); err != nil {
				return nil, err
			}
			cells[ci] = cd
		}
		levels[l] = cells
	}
	return NewCellStorage(levels), nil
}

// validateCSR checks CSR invariants.
func validateCSR(firstOut, head []uint32, numNodes uint32) error {
	if uint32(len(firstOut)) != numNodes+1 {
		return fmt.Errorf("FirstOut length %d != NumNodes+1 %d", len(firstOut), numNodes+1)
	}
	numEdges := firstOut[numNodes]
	if uint32(len(head)) != numEdges {
		return fmt.Errorf("Head length %d != FirstOut[NumNodes] %d", len(head), numEdges)
	}
	for i := uint32(1); i <= numNodes; i++ {
		if firstOut[i] < firstOut[i-1] {
			return fmt.Errorf("FirstOut not monotonic at %d: %d < %d", i, firstOut[i], firstOut[i-1])
		}
	}
	for i, h := range head {
		if h >= numNodes {
			return fmt.Errorf("Head[%d]=%d >= NumNodes=%d", i, h, numNodes)
		}
	}
	return nil
}

// Zero-copy I/O helpers using unsafe.Slice.

func writeByteSlice(w io.Writer, s []byte) error {
	if len(s) == 0 {
		return nil
	}
	_, err := w.Write(s)
	return err
}

func writeUint32Slice(w io.Writer, s []uint32) error {
	if len(s) == 0 {
		return nil
	}
	b := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*4)
	_, err := w.Write(b)
	return err
}

func writeInt32Slice(w io.Writer, s []int32) error {
	if len(s) == 0 {
		return nil
	}
	b := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*4)
	_, err := w.Write(b)
	return err
}

func writeFloat64Slice(w io.Writer, s []float64) error {
	if len(s) == 0 {
		return nil
	}
	b := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*8)
	_, err := w.Write(b)
	return err
}

func readByteSlice(r io.Reader, n int) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	s := make([]byte, n)
	if _, err := io.ReadFull(r, s); err != nil {
		return nil, err
	}
	return s, nil
}

func readUint32Slice(r io.Reader, n int) ([]uint32, error) {
	if n == 0 {
		return nil, nil
	}
	s := make([]uint32, n)
	b := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), n*4)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return s, nil
}

func readInt32Slice(r io.Reader, n int) ([]int32, error) {
	if n == 0 {
		return nil, nil
	}
	s := make([]int32, n)
	b := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), n*4)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return s, nil
}

func readFloat64Slice(r io.Reader, n int) ([]float64, error) {
	if n == 0 {
		return nil, nil
	}
	s := make([]float64, n)
	b := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), n*8)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return s, nil
}

func writeLenPrefixedUint32(w io.Writer, s []uint32) error {
	n := uint32(len(s))
	if err := binary.Write(w, binary.LittleEndian, n); err != nil {
		return err
	}
	return writeUint32Slice(w, s)
}

func writeLenPrefixedFloat64(w io.Writer, s []float64) error {
	n := uint32(len(s))
	if err := binary.Write(w, binary.LittleEndian, n); err != nil {
		return err
	}
	return writeFloat64Slice(w, s)
}

func readLenPrefixedUint32(r io.Reader) ([]uint32, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	if n > math.MaxUint32/4 {
		return nil, fmt.Errorf("slice length %d exceeds limit", n)
	}
	return readUint32Slice(r, int(n))
}

func readLenPrefixedFloat64(r io.Reader) ([]float64, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	if n > math.MaxUint32/8 {
		return nil, fmt.Errorf("slice length %d exceeds limit", n)
	}
	return readFloat64Slice(r, int(n))
}

// CRC32 wrapping writers/readers.

type crc32Writer struct {
	w    io.Writer
	hash crc32Hash
}

type crc32Hash interface {
	Write([]byte) (int, error)
	Sum32() uint32
}

func (cw *crc32Writer) Write(p []byte) (int, error) {
	cw.hash.Write(p)
	return cw.w.Write(p)
}

type crc32Reader struct {
	r    io.Reader
	hash crc32Hash
}

func (cr *crc32Reader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	if n > 0 {
		cr.hash.Write(p[:n])
	}
	return n, err
}
