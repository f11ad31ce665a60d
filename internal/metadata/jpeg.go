package metadata

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const (
	markerSOI   = 0xD8
	markerSOS   = 0xDA
	markerEOI   = 0xD9
	markerAPP0  = 0xE0
	markerAPP1  = 0xE1
	markerAPP13 = 0xED
	markerCOM   = 0xFE
)

type jpegSegment struct {
	marker byte
	data   []byte // payload without the 2-byte length
}

// writeJPEG rebuilds the JPEG with a fresh EXIF APP1 and IPTC APP13 placed
// right after any leading APP0, replacing previous copies of those blocks.
// Foreign EXIF entries of a previous APP1 (camera orientation, exposure,
// GPS) are merged into the new block. With ClearExisting set they are
// dropped instead, along with every other APPn and comment segment.
func writeJPEG(data []byte, opts Options) ([]byte, error) {
	segments, tail, err := parseJPEG(data)
	if err != nil {
		return nil, err
	}

	var prev *foreignExif
	if !opts.ClearExisting {
		for _, s := range segments {
			if s.marker == markerAPP1 && bytes.HasPrefix(s.data, exifHeader) {
				prev = parseExif(s.data)
				break
			}
		}
	}

	kept := segments[:0]
	for _, s := range segments {
		if staleSegment(s, opts.ClearExisting) {
			continue
		}
		kept = append(kept, s)
	}
	segments = kept

	inserted := []jpegSegment{
		{marker: markerAPP1, data: buildExif(opts, prev)},
		{marker: markerAPP13, data: buildIPTC(opts)},
	}

	var out bytes.Buffer
	out.Write([]byte{0xFF, markerSOI})

	rest := segments
	if len(rest) > 0 && rest[0].marker == markerAPP0 {
		writeSegment(&out, rest[0])
		rest = rest[1:]
	}
	for _, s := range inserted {
		writeSegment(&out, s)
	}
	for _, s := range rest {
		writeSegment(&out, s)
	}
	out.Write(tail)
	return out.Bytes(), nil
}

// staleSegment reports whether s is a metadata block superseded by this write.
func staleSegment(s jpegSegment, clearAll bool) bool {
	switch s.marker {
	case markerAPP1:
		if bytes.HasPrefix(s.data, exifHeader) {
			return true
		}
		return clearAll
	case markerAPP13:
		if bytes.HasPrefix(s.data, []byte("Photoshop 3.0\x00")) {
			return true
		}
		return clearAll
	case markerCOM:
		return clearAll
	default:
		if clearAll && s.marker >= markerAPP0+1 && s.marker <= 0xEF {
			return true
		}
		return false
	}
}

// parseJPEG splits the stream into its leading marker segments and the tail
// starting at SOS (entropy-coded data through EOI).
func parseJPEG(data []byte) ([]jpegSegment, []byte, error) {
	if len(data) < 2 || data[0] != 0xFF || data[1] != markerSOI {
		return nil, nil, fmt.Errorf("jpeg: bad SOI")
	}

	var segments []jpegSegment
	pos := 2
	for {
		if pos+4 > len(data) {
			return nil, nil, fmt.Errorf("jpeg: truncated at %d", pos)
		}
		if data[pos] != 0xFF {
			return nil, nil, fmt.Errorf("jpeg: expected marker at %d", pos)
		}
		marker := data[pos+1]
		if marker == markerSOS {
			// Everything from SOS onward is passed through untouched.
			return segments, data[pos:], nil
		}
		if marker == markerEOI {
			return segments, data[pos:], nil
		}
		length := int(binary.BigEndian.Uint16(data[pos+2 : pos+4]))
		if length < 2 || pos+2+length > len(data) {
			return nil, nil, fmt.Errorf("jpeg: bad segment length at %d", pos)
		}
		segments = append(segments, jpegSegment{
			marker: marker,
			data:   data[pos+4 : pos+2+length],
		})
		pos += 2 + length
	}
}

func writeSegment(buf *bytes.Buffer, s jpegSegment) {
	buf.Write([]byte{0xFF, s.marker})
	var length [2]byte
	binary.BigEndian.PutUint16(length[:], uint16(len(s.data)+2))
	buf.Write(length[:])
	buf.Write(s.data)
}
