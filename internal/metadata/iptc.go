package metadata

import (
	"bytes"
	"encoding/binary"
)

// IPTC IIM record 2 dataset ids for the legacy caption block.
const (
	iptcObjectName = 0x05
	iptcKeywords   = 0x19
	iptcWriter     = 0x7A
)

// buildIPTC produces the APP13 payload: a Photoshop "8BIM" resource
// wrapping an IPTC IIM block with object-name = title, one keyword dataset
// per tag, and writer = authors. Kept for compatibility with older
// captioning tools.
func buildIPTC(opts Options) []byte {
	var iim bytes.Buffer
	writeDataset(&iim, iptcObjectName, []byte(opts.Title))
	for _, tag := range opts.Tags {
		writeDataset(&iim, iptcKeywords, []byte(tag))
	}
	if opts.Authors != "" {
		writeDataset(&iim, iptcWriter, []byte(opts.Authors))
	}

	var out bytes.Buffer
	out.WriteString("Photoshop 3.0\x00")
	out.WriteString("8BIM")
	binary.Write(&out, binary.BigEndian, uint16(0x0404)) // IPTC-NAA resource
	out.Write([]byte{0, 0})                              // empty Pascal name, padded
	binary.Write(&out, binary.BigEndian, uint32(iim.Len()))
	out.Write(iim.Bytes())
	if iim.Len()%2 == 1 {
		out.WriteByte(0)
	}
	return out.Bytes()
}

func writeDataset(buf *bytes.Buffer, dataset byte, data []byte) {
	buf.Write([]byte{0x1C, 0x02, dataset})
	binary.Write(buf, binary.BigEndian, uint16(len(data)))
	buf.Write(data)
}
