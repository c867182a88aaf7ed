package dense

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// NPY v1.0 framing. The header dict is plain Python repr so numpy and
// external tooling can open the matrix directly.
var npyMagic = []byte{0x93, 'N', 'U', 'M', 'P', 'Y'}

var npyHeaderPattern = regexp.MustCompile(
	`^\{'descr':\s*'([^']+)',\s*'fortran_order':\s*(True|False),\s*'shape':\s*\((\d+),\s*(\d+)\s*\),?\s*\}\s*$`)

// writeNPY serializes an (n, dims) float32 matrix in NPY v1.0 format:
// magic, version, little-endian header length, space-padded header dict
// ending in newline (total header a multiple of 64), then row-major
// little-endian float32 data.
func writeNPY(w io.Writer, vectors [][]float32, dims int) error {
	header := fmt.Sprintf("{'descr': '<f4', 'fortran_order': False, 'shape': (%d, %d), }", len(vectors), dims)

	preamble := len(npyMagic) + 2 + 2 // magic + version + header length field
	total := preamble + len(header) + 1
	pad := (64 - total%64) % 64
	header += strings.Repeat(" ", pad) + "\n"
	if len(header) > math.MaxUint16 {
		return fmt.Errorf("npy header too large: %d bytes", len(header))
	}

	bw := bufio.NewWriter(w)
	if _, err := bw.Write(npyMagic); err != nil {
		return err
	}
	if _, err := bw.Write([]byte{0x01, 0x00}); err != nil {
		return err
	}
	var lenBuf [2]byte
	binary.LittleEndian.PutUint16(lenBuf[:], uint16(len(header)))
	if _, err := bw.Write(lenBuf[:]); err != nil {
		return err
	}
	if _, err := bw.WriteString(header); err != nil {
		return err
	}

	row := make([]byte, dims*4)
	for i, vec := range vectors {
		if len(vec) != dims {
			return fmt.Errorf("row %d has %d dimensions, want %d", i, len(vec), dims)
		}
		for j, v := range vec {
			binary.LittleEndian.PutUint32(row[j*4:], math.Float32bits(v))
		}
		if _, err := bw.Write(row); err != nil {
			return err
		}
	}

	return bw.Flush()
}

// readNPY parses an NPY v1.x float32 matrix. Only little-endian '<f4'
// C-order two-dimensional arrays are accepted.
func readNPY(r io.Reader) ([][]float32, int, error) {
	head := make([]byte, 8)
	if _, err := io.ReadFull(r, head); err != nil {
		return nil, 0, fmt.Errorf("read npy preamble: %w", err)
	}
	if string(head[:6]) != string(npyMagic) {
		return nil, 0, fmt.Errorf("not an npy file")
	}
	if head[6] != 1 {
		return nil, 0, fmt.Errorf("unsupported npy version %d.%d", head[6], head[7])
	}

	var lenBuf [2]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, 0, fmt.Errorf("read npy header length: %w", err)
	}
	headerLen := int(binary.LittleEndian.Uint16(lenBuf[:]))

	headerBytes := make([]byte, headerLen)
	if _, err := io.ReadFull(r, headerBytes); err != nil {
		return nil, 0, fmt.Errorf("read npy header: %w", err)
	}

	m := npyHeaderPattern.FindStringSubmatch(strings.TrimRight(string(headerBytes), " \n"))
	if m == nil {
		return nil, 0, fmt.Errorf("unsupported npy header: %q", strings.TrimSpace(string(headerBytes)))
	}
	if m[1] != "<f4" {
		return nil, 0, fmt.Errorf("unsupported npy dtype %s, want <f4", m[1])
	}
	if m[2] != "False" {
		return nil, 0, fmt.Errorf("fortran-order npy not supported")
	}

	n, err := strconv.Atoi(m[3])
	if err != nil {
		return nil, 0, fmt.Errorf("parse npy row count: %w", err)
	}
	dims, err := strconv.Atoi(m[4])
	if err != nil {
		return nil, 0, fmt.Errorf("parse npy dimensions: %w", err)
	}

	vectors := make([][]float32, n)
	row := make([]byte, dims*4)
	for i := 0; i < n; i++ {
		if _, err := io.ReadFull(r, row); err != nil {
			return nil, 0, fmt.Errorf("read npy row %d of %d: %w", i, n, err)
		}
		vec := make([]float32, dims)
		for j := range vec {
			vec[j] = math.Float32frombits(binary.LittleEndian.Uint32(row[j*4:]))
		}
		vectors[i] = vec
	}

	return vectors, dims, nil
}
