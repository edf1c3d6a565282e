package frameio

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/lastephey/gpu-specter/internal/extract"
)

// frameMagic identifies the frame container format.
const frameMagic = "SPXF"

// frameHeader is the JSON preamble of a frame file. The numeric blocks
// follow it as little-endian float64 in a fixed order: flux, ivar,
// chi2, rdiags, then the mask as bytes.
type frameHeader struct {
	SpecMin int       `json:"specmin"`
	NSpec   int       `json:"nspec"`
	NWave   int       `json:"nwave"`
	NDiag   int       `json:"ndiag"`
	Wave    []float64 `json:"wave"`
}

// WriteFrame persists a finished frame. The format is a four-byte
// magic, a big-endian uint32 header length, the JSON header, then the
// raw numeric blocks. Wavelengths live in the header; everything bulky
// is binary.
func WriteFrame(path string, fr *extract.Frame) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create frame: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	hdr := frameHeader{
		SpecMin: fr.SpecMin,
		NSpec:   len(fr.Flux),
		NWave:   len(fr.Wave),
		NDiag:   fr.NDiag,
		Wave:    fr.Wave,
	}
	hbytes, err := json.Marshal(hdr)
	if err != nil {
		return fmt.Errorf("encode frame header: %w", err)
	}
	if _, err := w.WriteString(frameMagic); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, uint32(len(hbytes))); err != nil {
		return err
	}
	if _, err := w.Write(hbytes); err != nil {
		return err
	}

	for _, block := range [][][]float64{fr.Flux, fr.Ivar, fr.Chi2} {
		for _, row := range block {
			if err := writeFloats(w, row); err != nil {
				return err
			}
		}
	}
	for _, spec := range fr.Rdiags {
		for _, diag := range spec {
			if err := writeFloats(w, diag); err != nil {
				return err
			}
		}
	}
	for _, row := range fr.Mask {
		if _, err := w.Write(row); err != nil {
			return err
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("write frame %s: %w", path, err)
	}
	return nil
}

// ReadFrame loads a frame written by WriteFrame.
func ReadFrame(path string) (*extract.Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open frame: %w", err)
	}
	defer f.Close()
	r := bufio.NewReader(f)

	magic := make([]byte, 4)
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, fmt.Errorf("read frame %s: %w", path, err)
	}
	if string(magic) != frameMagic {
		return nil, fmt.Errorf("frame %s: bad magic %q", path, magic)
	}
	var hlen uint32
	if err := binary.Read(r, binary.BigEndian, &hlen); err != nil {
		return nil, fmt.Errorf("read frame %s: %w", path, err)
	}
	hbytes := make([]byte, hlen)
	if _, err := io.ReadFull(r, hbytes); err != nil {
		return nil, fmt.Errorf("read frame %s: %w", path, err)
	}
	var hdr frameHeader
	if err := json.Unmarshal(hbytes, &hdr); err != nil {
		return nil, fmt.Errorf("decode frame header %s: %w", path, err)
	}
	if hdr.NSpec <= 0 || hdr.NWave <= 0 || hdr.NDiag < 0 || len(hdr.Wave) != hdr.NWave {
		return nil, fmt.Errorf("frame %s: inconsistent header", path)
	}

	fr := &extract.Frame{
		SpecMin: hdr.SpecMin,
		Wave:    hdr.Wave,
		NDiag:   hdr.NDiag,
		Flux:    make([][]float64, hdr.NSpec),
		Ivar:    make([][]float64, hdr.NSpec),
		Chi2:    make([][]float64, hdr.NSpec),
		Mask:    make([][]uint8, hdr.NSpec),
		Rdiags:  make([][][]float64, hdr.NSpec),
	}
	for _, block := range []*[][]float64{&fr.Flux, &fr.Ivar, &fr.Chi2} {
		for i := 0; i < hdr.NSpec; i++ {
			row := make([]float64, hdr.NWave)
			if err := readFloats(r, row); err != nil {
				return nil, fmt.Errorf("read frame %s: %w", path, err)
			}
			(*block)[i] = row
		}
	}
	for i := 0; i < hdr.NSpec; i++ {
		fr.Rdiags[i] = make([][]float64, 2*hdr.NDiag+1)
		for d := range fr.Rdiags[i] {
			diag := make([]float64, hdr.NWave)
			if err := readFloats(r, diag); err != nil {
				return nil, fmt.Errorf("read frame %s: %w", path, err)
			}
			fr.Rdiags[i][d] = diag
		}
	}
	for i := 0; i < hdr.NSpec; i++ {
		row := make([]uint8, hdr.NWave)
		if _, err := io.ReadFull(r, row); err != nil {
			return nil, fmt.Errorf("read frame %s: %w", path, err)
		}
		fr.Mask[i] = row
	}
	return fr, nil
}

func writeFloats(w io.Writer, vals []float64) error {
	buf := make([]byte, 8*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint64(buf[8*i:], math.Float64bits(v))
	}
	_, err := w.Write(buf)
	return err
}

func readFloats(r io.Reader, vals []float64) error {
	buf := make([]byte, 8*len(vals))
	if _, err := io.ReadFull(r, buf); err != nil {
		return err
	}
	for i := range vals {
		vals[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[8*i:]))
	}
	return nil
}
