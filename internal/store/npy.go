package store

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// Templates are stored in the NumPy .npy format so that embeddings enrolled by
// earlier tooling stay readable. Only little-endian float32 and float64 arrays
// are supported; multi-dimensional shapes are flattened.

var npyMagic = []byte("\x93NUMPY")

// npyAlign is the header alignment used by current NumPy releases.
const npyAlign = 64

// Limits on what a template file may declare before anything is allocated.
const (
	npyMaxHeaderLen = 64 << 10
	npyMaxValues    = 1 << 20
)

var errMalformedNPY = errors.New("malformed npy data")

// writeNPY encodes the vector as a version 1.0 .npy array of '<f4'.
func writeNPY(w io.Writer, vec []float32) error {
	header := fmt.Sprintf("{'descr': '<f4', 'fortran_order': False, 'shape': (%d,), }", len(vec))
	// magic(6) + version(2) + header length(2) + header + '\n' must be aligned.
	pad := npyAlign - (len(npyMagic)+4+len(header)+1)%npyAlign
	if pad == npyAlign {
		pad = 0
	}
	header += strings.Repeat(" ", pad) + "\n"

	bw := bufio.NewWriter(w)
	bw.Write(npyMagic)
	bw.Write([]byte{1, 0})
	var hlen [2]byte
	binary.LittleEndian.PutUint16(hlen[:], uint16(len(header))) //nolint:gosec // header is bounded by the shape length
	bw.Write(hlen[:])
	bw.WriteString(header)

	var buf [4]byte
	for _, v := range vec {
		binary.LittleEndian.PutUint32(buf[:], math.Float32bits(v))
		bw.Write(buf[:])
	}
	return bw.Flush()
}

// readNPY decodes a .npy array of '<f4' or '<f8' into float32 values.
func readNPY(r io.Reader) ([]float32, error) {
	var prefix [8]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, fmt.Errorf("%w: reading preamble: %w", errMalformedNPY, err)
	}
	if !bytes.Equal(prefix[:6], npyMagic) {
		return nil, fmt.Errorf("%w: bad magic", errMalformedNPY)
	}

	var headerLen int
	switch major := prefix[6]; major {
	case 1:
		var b [2]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return nil, fmt.Errorf("%w: reading header length: %w", errMalformedNPY, err)
		}
		headerLen = int(binary.LittleEndian.Uint16(b[:]))
	case 2, 3:
		var b [4]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return nil, fmt.Errorf("%w: reading header length: %w", errMalformedNPY, err)
		}
		headerLen = int(binary.LittleEndian.Uint32(b[:]))
	default:
		return nil, fmt.Errorf("%w: unsupported version %d", errMalformedNPY, major)
	}

	if headerLen > npyMaxHeaderLen {
		return nil, fmt.Errorf("%w: header length %d exceeds %d", errMalformedNPY, headerLen, npyMaxHeaderLen)
	}
	header := make([]byte, headerLen)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("%w: reading header: %w", errMalformedNPY, err)
	}

	descr, count, err := parseNPYHeader(string(header))
	if err != nil {
		return nil, err
	}

	var width int
	switch descr {
	case "<f4":
		width = 4
	case "<f8":
		width = 8
	default:
		return nil, fmt.Errorf("%w: unsupported dtype %q", errMalformedNPY, descr)
	}

	data := make([]byte, count*width)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("%w: reading %d values: %w", errMalformedNPY, count, err)
	}

	vec := make([]float32, count)
	for i := range vec {
		if width == 4 {
			vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
		} else {
			vec[i] = float32(math.Float64frombits(binary.LittleEndian.Uint64(data[i*8:])))
		}
	}
	return vec, nil
}

// parseNPYHeader extracts the dtype descriptor and the total element count from
// the Python dict literal in a .npy header.
func parseNPYHeader(header string) (string, int, error) {
	descr, err := headerValue(header, "'descr':")
	if err != nil {
		return "", 0, err
	}
	descr = strings.Trim(descr, `'" `)

	shape, err := headerValue(header, "'shape':")
	if err != nil {
		return "", 0, err
	}
	shape = strings.TrimSpace(shape)
	if !strings.HasPrefix(shape, "(") || !strings.HasSuffix(shape, ")") {
		return "", 0, fmt.Errorf("%w: bad shape %q", errMalformedNPY, shape)
	}

	count := 1
	for dim := range strings.SplitSeq(shape[1:len(shape)-1], ",") {
		dim = strings.TrimSpace(dim)
		if dim == "" {
			continue
		}
		n, err := strconv.Atoi(dim)
		if err != nil || n < 0 {
			return "", 0, fmt.Errorf("%w: bad dimension %q", errMalformedNPY, dim)
		}
		if n > 0 && count > npyMaxValues/n {
			return "", 0, fmt.Errorf("%w: shape %s exceeds %d values", errMalformedNPY, shape, npyMaxValues)
		}
		count *= n
	}
	return descr, count, nil
}

// headerValue returns the raw literal following key, up to the next top-level comma.
func headerValue(header, key string) (string, error) {
	idx := strings.Index(header, key)
	if idx < 0 {
		return "", fmt.Errorf("%w: missing %s", errMalformedNPY, key)
	}
	rest := strings.TrimSpace(header[idx+len(key):])
	if strings.HasPrefix(rest, "(") {
		end := strings.IndexByte(rest, ')')
		if end < 0 {
			return "", fmt.Errorf("%w: unterminated tuple", errMalformedNPY)
		}
		return rest[:end+1], nil
	}
	end := strings.IndexAny(rest, ",}")
	if end < 0 {
		return "", fmt.Errorf("%w: unterminated value for %s", errMalformedNPY, key)
	}
	return rest[:end], nil
}
