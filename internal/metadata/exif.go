package metadata

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"sort"
	"unicode/utf16"
)

// TIFF tag ids used by the writer.
const (
	tagImageDescription  = 0x010E
	tagArtist            = 0x013B
	tagExifIFDPointer    = 0x8769
	tagGPSIFDPointer     = 0x8825
	tagUserComment       = 0x9286
	tagXPTitle           = 0x9C9B
	tagXPAuthor          = 0x9C9D
	tagXPKeywords        = 0x9C9E
	tagInteropIFDPointer = 0xA005
)

// TIFF field types.
const (
	typeByte      = 1
	typeASCII     = 2
	typeLong      = 4
	typeUndefined = 7
)

type ifdEntry struct {
	tag   uint16
	typ   uint16
	value []byte // encoded value bytes; count is derived per type
}

// userComment is the full-fidelity JSON copy stored in the EXIF
// UserComment field for round-tripping.
type userComment struct {
	Title    string   `json:"title"`
	Keywords []string `json:"keywords"`
	Authors  string   `json:"authors"`
}

// Tags this writer owns outright. Previous copies are replaced on every
// write; any other tag in an existing block is preserved.
var (
	ownedIFD0Tags = map[uint16]bool{
		tagImageDescription: true,
		tagArtist:           true,
		tagXPTitle:          true,
		tagXPAuthor:         true,
		tagXPKeywords:       true,
	}
	ownedExifTags = map[uint16]bool{
		tagUserComment: true,
	}
)

// buildExif produces the complete APP1 payload ("Exif\0\0" + TIFF) for the
// given options. IFD0 carries the descriptor, author and keyword fields;
// the Exif sub-IFD carries the JSON user comment. Foreign entries from prev
// (camera orientation, exposure, GPS and so on) are carried over unchanged.
// Layout is little-endian and fully deterministic.
func buildExif(opts Options, prev *foreignExif) []byte {
	title := opts.Title
	keywords := joinKeywords(opts.Tags)

	ifd0 := []ifdEntry{
		{tag: tagImageDescription, typ: typeASCII, value: asciiValue(title)},
		{tag: tagXPTitle, typ: typeByte, value: utf16leValue(title)},
		{tag: tagXPKeywords, typ: typeByte, value: utf16leValue(keywords)},
	}
	if opts.Authors != "" {
		ifd0 = append(ifd0,
			ifdEntry{tag: tagArtist, typ: typeASCII, value: asciiValue(opts.Authors)},
			ifdEntry{tag: tagXPAuthor, typ: typeByte, value: utf16leValue(opts.Authors)},
		)
	}

	comment, _ := json.Marshal(userComment{
		Title:    opts.Title,
		Keywords: append([]string{}, opts.Tags...),
		Authors:  opts.Authors,
	})
	// Eight-byte character code header; all zero marks an undefined
	// encoding, and the payload is UTF-8 JSON.
	exifIFD := []ifdEntry{
		{tag: tagUserComment, typ: typeUndefined, value: append(make([]byte, 8), comment...)},
	}

	var gpsIFD []ifdEntry
	if prev != nil {
		ifd0 = mergeForeign(ifd0, prev.ifd0, ownedIFD0Tags)
		exifIFD = mergeForeign(exifIFD, prev.exif, ownedExifTags)
		gpsIFD = mergeForeign(nil, prev.gps, nil)
	}

	// Sub-IFD offsets depend on IFD0's serialized size including its
	// pointer entries, so they are computed before the pointers are added.
	const tiffHeaderSize = 8
	ifd0Count := len(ifd0) + 1
	if len(gpsIFD) > 0 {
		ifd0Count++
	}
	exifIFDOffset := tiffHeaderSize + ifdSize(ifd0Count) + valueAreaSize(ifd0)
	gpsIFDOffset := exifIFDOffset + ifdSize(len(exifIFD)) + valueAreaSize(exifIFD)

	pointer := make([]byte, 4)
	binary.LittleEndian.PutUint32(pointer, uint32(exifIFDOffset))
	ifd0 = append(ifd0, ifdEntry{tag: tagExifIFDPointer, typ: typeLong, value: pointer})
	if len(gpsIFD) > 0 {
		gps := make([]byte, 4)
		binary.LittleEndian.PutUint32(gps, uint32(gpsIFDOffset))
		ifd0 = append(ifd0, ifdEntry{tag: tagGPSIFDPointer, typ: typeLong, value: gps})
	}

	var tiff bytes.Buffer
	tiff.Write([]byte{'I', 'I', 0x2A, 0x00})
	offset := make([]byte, 4)
	binary.LittleEndian.PutUint32(offset, tiffHeaderSize)
	tiff.Write(offset)

	writeIFD(&tiff, ifd0, tiffHeaderSize)
	writeIFD(&tiff, exifIFD, exifIFDOffset)
	if len(gpsIFD) > 0 {
		writeIFD(&tiff, gpsIFD, gpsIFDOffset)
	}

	out := make([]byte, 0, len(exifHeader)+tiff.Len())
	out = append(out, exifHeader...)
	out = append(out, tiff.Bytes()...)
	return out
}

// mergeForeign appends prev entries that are neither owned by this writer
// nor structural pointers, which are rebuilt from scratch. The Interop IFD
// is not carried over, so its pointer is dropped with it.
func mergeForeign(base, prev []ifdEntry, owned map[uint16]bool) []ifdEntry {
	for _, e := range prev {
		switch e.tag {
		case tagExifIFDPointer, tagGPSIFDPointer, tagInteropIFDPointer:
			continue
		}
		if owned[e.tag] {
			continue
		}
		base = append(base, e)
	}
	return base
}

var exifHeader = []byte("Exif\x00\x00")

// foreignExif holds the entries of an existing EXIF block split by IFD,
// with all values normalized to little-endian.
type foreignExif struct {
	ifd0 []ifdEntry
	exif []ifdEntry
	gps  []ifdEntry
}

// parseExif reads an APP1 EXIF payload into its IFD0, Exif-IFD and GPS-IFD
// entries. A malformed block returns nil and the caller writes a fresh one.
func parseExif(payload []byte) *foreignExif {
	if !bytes.HasPrefix(payload, exifHeader) {
		return nil
	}
	tiff := payload[len(exifHeader):]
	if len(tiff) < 8 {
		return nil
	}
	var order binary.ByteOrder
	switch {
	case tiff[0] == 'I' && tiff[1] == 'I':
		order = binary.LittleEndian
	case tiff[0] == 'M' && tiff[1] == 'M':
		order = binary.BigEndian
	default:
		return nil
	}
	if order.Uint16(tiff[2:4]) != 0x2A {
		return nil
	}

	ifd0, ok := parseIFD(tiff, int(order.Uint32(tiff[4:8])), order)
	if !ok {
		return nil
	}

	out := &foreignExif{}
	for _, e := range ifd0 {
		switch e.tag {
		case tagExifIFDPointer:
			if sub, ok := parseIFD(tiff, pointerTarget(e), order); ok {
				out.exif = sub
			}
		case tagGPSIFDPointer:
			if sub, ok := parseIFD(tiff, pointerTarget(e), order); ok {
				out.gps = sub
			}
		default:
			out.ifd0 = append(out.ifd0, e)
		}
	}
	return out
}

// parseIFD decodes the entries of one IFD, resolving out-of-line values and
// normalizing multi-byte values to little-endian.
func parseIFD(tiff []byte, offset int, order binary.ByteOrder) ([]ifdEntry, bool) {
	if offset < 0 || offset+2 > len(tiff) {
		return nil, false
	}
	n := int(order.Uint16(tiff[offset : offset+2]))
	pos := offset + 2
	if pos+n*12+4 > len(tiff) {
		return nil, false
	}

	entries := make([]ifdEntry, 0, n)
	for i := 0; i < n; i++ {
		raw := tiff[pos+i*12 : pos+i*12+12]
		tag := order.Uint16(raw[0:2])
		typ := order.Uint16(raw[2:4])
		count := int(order.Uint32(raw[4:8]))
		size := count * typeSize(typ)
		if count < 0 || size < 0 || size > len(tiff) {
			return nil, false
		}
		var value []byte
		if size <= 4 {
			value = raw[8 : 8+size]
		} else {
			voff := int(order.Uint32(raw[8:12]))
			if voff < 0 || voff+size > len(tiff) {
				return nil, false
			}
			value = tiff[voff : voff+size]
		}
		entries = append(entries, ifdEntry{tag: tag, typ: typ, value: toLittleEndian(value, typ, order)})
	}
	return entries, true
}

// pointerTarget reads a sub-IFD pointer value, already little-endian.
func pointerTarget(e ifdEntry) int {
	if len(e.value) != 4 {
		return -1
	}
	return int(binary.LittleEndian.Uint32(e.value))
}

// toLittleEndian copies value, swapping each component when the source TIFF
// is big-endian. Rationals swap as two longs.
func toLittleEndian(value []byte, typ uint16, order binary.ByteOrder) []byte {
	out := append([]byte(nil), value...)
	if order == binary.ByteOrder(binary.LittleEndian) {
		return out
	}
	w := swapWidth(typ)
	if w == 1 {
		return out
	}
	for i := 0; i+w <= len(out); i += w {
		for a, b := i, i+w-1; a < b; a, b = a+1, b-1 {
			out[a], out[b] = out[b], out[a]
		}
	}
	return out
}

// ifdSize is the serialized size of an IFD with n entries (count word,
// entries, next-IFD pointer).
func ifdSize(n int) int { return 2 + n*12 + 4 }

// valueAreaSize sums the out-of-line space the entries need, 2-byte aligned.
func valueAreaSize(entries []ifdEntry) int {
	size := 0
	for _, e := range entries {
		if len(e.value) > 4 {
			size += align2(len(e.value))
		}
	}
	return size
}

// writeIFD serializes entries (sorted by tag, as TIFF requires) followed by
// their out-of-line values. ifdOffset is the IFD's own position within the
// TIFF body, used to compute value offsets.
func writeIFD(buf *bytes.Buffer, entries []ifdEntry, ifdOffset int) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].tag < entries[j].tag })

	count := make([]byte, 2)
	binary.LittleEndian.PutUint16(count, uint16(len(entries)))
	buf.Write(count)

	valueOffset := ifdOffset + ifdSize(len(entries))
	var values bytes.Buffer
	entry := make([]byte, 12)
	for _, e := range entries {
		binary.LittleEndian.PutUint16(entry[0:2], e.tag)
		binary.LittleEndian.PutUint16(entry[2:4], e.typ)
		binary.LittleEndian.PutUint32(entry[4:8], entryCount(e))
		for i := 8; i < 12; i++ {
			entry[i] = 0
		}
		if len(e.value) <= 4 {
			copy(entry[8:12], e.value)
		} else {
			binary.LittleEndian.PutUint32(entry[8:12], uint32(valueOffset))
			values.Write(e.value)
			if len(e.value)%2 == 1 {
				values.WriteByte(0)
			}
			valueOffset += align2(len(e.value))
		}
		buf.Write(entry)
	}

	buf.Write([]byte{0, 0, 0, 0}) // no next IFD
	buf.Write(values.Bytes())
}

// entryCount derives the TIFF count field from the value's byte length.
func entryCount(e ifdEntry) uint32 {
	return uint32(len(e.value) / typeSize(e.typ))
}

// typeSize is the component size in bytes for a TIFF field type.
func typeSize(typ uint16) int {
	switch typ {
	case 3, 8: // SHORT, SSHORT
		return 2
	case typeLong, 9, 11: // LONG, SLONG, FLOAT
		return 4
	case 5, 10, 12: // RATIONAL, SRATIONAL, DOUBLE
		return 8
	default: // BYTE, ASCII, SBYTE, UNDEFINED
		return 1
	}
}

// swapWidth is the byte-swap unit for a field type. It differs from
// typeSize only for rationals, which are pairs of longs.
func swapWidth(typ uint16) int {
	switch typ {
	case 3, 8:
		return 2
	case typeLong, 9, 11, 5, 10:
		return 4
	case 12:
		return 8
	default:
		return 1
	}
}

func align2(n int) int {
	if n%2 == 1 {
		return n + 1
	}
	return n
}

// asciiValue encodes s as a NUL-terminated field. UTF-8 bytes pass through
// unchanged, matching how the plain description field has always been
// written.
func asciiValue(s string) []byte {
	return append([]byte(s), 0)
}

// utf16leValue encodes s as UTF-16LE with a terminating NUL code unit, the
// layout the Windows XP* fields expect.
func utf16leValue(s string) []byte {
	units := utf16.Encode([]rune(s))
	out := make([]byte, 0, (len(units)+1)*2)
	var pair [2]byte
	for _, u := range units {
		binary.LittleEndian.PutUint16(pair[:], u)
		out = append(out, pair[0], pair[1])
	}
	return append(out, 0, 0)
}
