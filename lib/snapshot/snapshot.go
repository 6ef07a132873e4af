/*package snapshot writes and reads compressed checkpoints of a swarm's
live particle data. A snapshot holds the active particles of one block,
packed densely in ascending slot order: the attribute labels and kinds, and
one zstd-compressed payload containing every column. Restoring a snapshot
into a swarm with the same registration sequence reproduces every value
exactly.*/
package snapshot

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/DataDog/zstd"

	errs "github.com/meshforge/swarm/lib/error"
	"github.com/meshforge/swarm/lib/swarm"
)

const (
	// MagicNumber is an arbitrary number at the start of all snapshot
	// files which should help identify when something else is read by
	// accident.
	MagicNumber = uint32(0x5357524d)
	Version     = uint32(1)

	// compressionLevel trades ratio for speed; checkpoints are written
	// far more often than they are read back.
	compressionLevel = 1
)

var byteOrder = binary.LittleEndian

// Snapshot is the decoded contents of one checkpoint.
type Snapshot struct {
	// N is the number of particles.
	N int
	// RealLabels and IntLabels are the attribute labels in the order
	// their columns appear.
	RealLabels []string
	IntLabels  []string
	// RealColumns and IntColumns hold one length-N array per attribute.
	RealColumns [][]float64
	IntColumns  [][]int64
}

// Write checkpoints a swarm's active particles to w.
func Write(w io.Writer, sw *swarm.Swarm) error {
	p, store := sw.Pool(), sw.Store()
	n := p.ActiveCount()
	realLabels := store.RealLabels()
	intLabels := store.IntLabels()

	if err := binary.Write(w, byteOrder, MagicNumber); err != nil { return err }
	if err := binary.Write(w, byteOrder, Version); err != nil { return err }
	if err := binary.Write(w, byteOrder, int64(n)); err != nil { return err }

	if err := writeLabels(w, realLabels); err != nil { return err }
	if err := writeLabels(w, intLabels); err != nil { return err }

	// Gather the active values in ascending slot order into dense columns
	// and compress all of them as a single payload.
	raw := &bytes.Buffer{ }
	realBuf := make([]float64, 0, n)
	for _, label := range realLabels {
		x, err := store.Real(label)
		if err != nil { return err }
		realBuf = realBuf[:0]
		for i := 0; i <= p.MaxActiveIndex(); i++ {
			if p.IsActive(i) { realBuf = append(realBuf, x[i]) }
		}
		if err := binary.Write(raw, byteOrder, realBuf); err != nil {
			return err
		}
	}
	intBuf := make([]int64, 0, n)
	for _, label := range intLabels {
		x, err := store.Int(label)
		if err != nil { return err }
		intBuf = intBuf[:0]
		for i := 0; i <= p.MaxActiveIndex(); i++ {
			if p.IsActive(i) { intBuf = append(intBuf, x[i]) }
		}
		if err := binary.Write(raw, byteOrder, intBuf); err != nil {
			return err
		}
	}

	comp, err := zstd.CompressLevel(nil, raw.Bytes(), compressionLevel)
	if err != nil { return err }

	if err := binary.Write(w, byteOrder, int64(raw.Len())); err != nil {
		return err
	}
	if err := binary.Write(w, byteOrder, int64(len(comp))); err != nil {
		return err
	}
	_, err = w.Write(comp)
	return err
}

// Read decodes one checkpoint from r.
func Read(r io.Reader) (*Snapshot, error) {
	var magic, version uint32
	if err := binary.Read(r, byteOrder, &magic); err != nil { return nil, err }
	if magic != MagicNumber {
		return nil, errs.Invariantf(
			"The stream starts with 0x%x, not the snapshot magic number "+
				"0x%x. This is not a swarm snapshot.", magic, MagicNumber,
		)
	}
	if err := binary.Read(r, byteOrder, &version); err != nil { return nil, err }
	if version != Version {
		return nil, errs.Invariantf(
			"The snapshot has version %d, but only version %d is supported.",
			version, Version,
		)
	}

	var n int64
	if err := binary.Read(r, byteOrder, &n); err != nil { return nil, err }

	realLabels, err := readLabels(r)
	if err != nil { return nil, err }
	intLabels, err := readLabels(r)
	if err != nil { return nil, err }

	var rawLen, compLen int64
	if err := binary.Read(r, byteOrder, &rawLen); err != nil { return nil, err }
	if err := binary.Read(r, byteOrder, &compLen); err != nil { return nil, err }

	comp := make([]byte, compLen)
	if _, err := io.ReadFull(r, comp); err != nil { return nil, err }

	raw, err := zstd.Decompress(make([]byte, rawLen), comp)
	if err != nil { return nil, err }
	if int64(len(raw)) != rawLen {
		return nil, errs.Invariantf(
			"The snapshot payload decompressed to %d bytes, but the header "+
				"promised %d.", len(raw), rawLen,
		)
	}

	snap := &Snapshot{
		N: int(n), RealLabels: realLabels, IntLabels: intLabels,
	}
	rd := bytes.NewReader(raw)
	for range realLabels {
		col := make([]float64, n)
		if err := binary.Read(rd, byteOrder, col); err != nil { return nil, err }
		snap.RealColumns = append(snap.RealColumns, col)
	}
	for range intLabels {
		col := make([]int64, n)
		if err := binary.Read(rd, byteOrder, col); err != nil { return nil, err }
		snap.IntColumns = append(snap.IntColumns, col)
	}

	return snap, nil
}

// Restore adds the snapshot's particles to a swarm. Every label in the
// snapshot must already be registered with the matching kind.
func (snap *Snapshot) Restore(sw *swarm.Swarm) error {
	store := sw.Store()
	for _, label := range snap.RealLabels {
		if _, err := store.Real(label); err != nil {
			return errs.Preconditionf(
				"The snapshot holds the Real attribute '%s', which the "+
					"swarm '%s' does not register.", label, sw.Label,
			)
		}
	}
	for _, label := range snap.IntLabels {
		if _, err := store.Int(label); err != nil {
			return errs.Preconditionf(
				"The snapshot holds the Integer attribute '%s', which the "+
					"swarm '%s' does not register.", label, sw.Label,
			)
		}
	}

	if snap.N == 0 { return nil }

	slots, err := sw.AddParticles(snap.N)
	if err != nil { return err }

	for j, label := range snap.RealLabels {
		x, _ := store.Real(label)
		col := snap.RealColumns[j]
		for i, slot := range slots {
			x[slot] = col[i]
		}
	}
	for j, label := range snap.IntLabels {
		x, _ := store.Int(label)
		col := snap.IntColumns[j]
		for i, slot := range slots {
			x[slot] = col[i]
		}
	}

	return nil
}

func writeLabels(w io.Writer, labels []string) error {
	if err := binary.Write(w, byteOrder, int64(len(labels))); err != nil {
		return err
	}
	for _, label := range labels {
		b := []byte(label)
		if err := binary.Write(w, byteOrder, int64(len(b))); err != nil {
			return err
		}
		if _, err := w.Write(b); err != nil { return err }
	}
	return nil
}

func readLabels(r io.Reader) ([]string, error) {
	var n int64
	if err := binary.Read(r, byteOrder, &n); err != nil { return nil, err }

	labels := make([]string, n)
	for i := range labels {
		var m int64
		if err := binary.Read(r, byteOrder, &m); err != nil { return nil, err }
		b := make([]byte, m)
		if _, err := io.ReadFull(r, b); err != nil { return nil, err }
		labels[i] = string(b)
	}

	return labels, nil
}
