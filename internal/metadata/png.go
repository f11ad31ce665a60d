package metadata

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

var pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

// Text-chunk keywords this writer owns.
var ownedKeywords = map[string]bool{
	"Title":       true,
	"Author":      true,
	"Keywords":    true,
	"Description": true,
}

const xmpKeyword = "XML:com.adobe.xmp"

type pngChunk struct {
	typ  string
	data []byte
}

// writePNG rebuilds the PNG with Title/Author/Keywords/Description text
// chunks and an XMP packet inserted directly after IHDR. Existing chunks
// with the same keywords (or all text chunks, when clearing) are dropped
// first so repeated writes are idempotent.
func writePNG(data []byte, opts Options) ([]byte, error) {
	chunks, err := parsePNG(data)
	if err != nil {
		return nil, err
	}

	kept := chunks[:0]
	for _, c := range chunks {
		if staleTextChunk(c, opts.ClearExisting) {
			continue
		}
		kept = append(kept, c)
	}
	chunks = kept

	if len(chunks) == 0 || chunks[0].typ != "IHDR" {
		return nil, fmt.Errorf("png: missing IHDR")
	}

	inserted := []pngChunk{
		textChunk("Title", opts.Title),
		textChunk("Author", opts.Authors),
		textChunk("Keywords", joinKeywords(opts.Tags)),
		textChunk("Description", opts.Title),
		xmpChunk(opts),
	}

	out := make([]pngChunk, 0, len(chunks)+len(inserted))
	out = append(out, chunks[0])
	out = append(out, inserted...)
	out = append(out, chunks[1:]...)

	return encodePNG(out), nil
}

// staleTextChunk reports whether c should be removed before inserting the
// new metadata set.
func staleTextChunk(c pngChunk, clearAll bool) bool {
	switch c.typ {
	case "tEXt", "zTXt":
		if clearAll {
			return true
		}
		if i := bytes.IndexByte(c.data, 0); i > 0 {
			return ownedKeywords[string(c.data[:i])]
		}
	case "iTXt":
		if clearAll {
			return true
		}
		if i := bytes.IndexByte(c.data, 0); i > 0 {
			kw := string(c.data[:i])
			return kw == xmpKeyword || ownedKeywords[kw]
		}
	}
	return false
}

func parsePNG(data []byte) ([]pngChunk, error) {
	if !bytes.HasPrefix(data, pngSignature) {
		return nil, fmt.Errorf("png: bad signature")
	}
	var chunks []pngChunk
	pos := len(pngSignature)
	for pos < len(data) {
		if pos+8 > len(data) {
			return nil, fmt.Errorf("png: truncated chunk header at %d", pos)
		}
		length := int(binary.BigEndian.Uint32(data[pos : pos+4]))
		typ := string(data[pos+4 : pos+8])
		end := pos + 8 + length + 4
		if end > len(data) {
			return nil, fmt.Errorf("png: truncated %s chunk at %d", typ, pos)
		}
		chunks = append(chunks, pngChunk{typ: typ, data: data[pos+8 : pos+8+length]})
		pos = end
	}
	return chunks, nil
}

func encodePNG(chunks []pngChunk) []byte {
	var buf bytes.Buffer
	buf.Write(pngSignature)
	var header [8]byte
	for _, c := range chunks {
		binary.BigEndian.PutUint32(header[:4], uint32(len(c.data)))
		copy(header[4:], c.typ)
		buf.Write(header[:])
		buf.Write(c.data)

		crc := crc32.NewIEEE()
		crc.Write([]byte(c.typ))
		crc.Write(c.data)
		var sum [4]byte
		binary.BigEndian.PutUint32(sum[:], crc.Sum32())
		buf.Write(sum[:])
	}
	return buf.Bytes()
}

func textChunk(keyword, text string) pngChunk {
	data := make([]byte, 0, len(keyword)+1+len(text))
	data = append(data, keyword...)
	data = append(data, 0)
	data = append(data, text...)
	return pngChunk{typ: "tEXt", data: data}
}

// xmpChunk packs the standardized title/description/creator/subject set as
// an XMP iTXt chunk (uncompressed).
func xmpChunk(opts Options) pngChunk {
	packet := xmpPacket(opts)
	data := make([]byte, 0, len(xmpKeyword)+5+len(packet))
	data = append(data, xmpKeyword...)
	data = append(data, 0, 0, 0) // NUL, compression flag 0, method 0
	data = append(data, 0, 0)    // empty language tag, empty translated keyword
	data = append(data, packet...)
	return pngChunk{typ: "iTXt", data: data}
}
