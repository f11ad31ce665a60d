package metadata

import (
	"bytes"
	"encoding/xml"
	"fmt"
)

// xmpPacket renders a minimal Dublin Core XMP packet: title, description,
// creator and per-tag subject entries. Output is fully deterministic.
func xmpPacket(opts Options) []byte {
	var buf bytes.Buffer
	buf.WriteString(`<?xpacket begin="` + "\uFEFF" + `" id="W5M0MpCehiHzreSzNTczkc9d"?>` + "\n")
	buf.WriteString(`<x:xmpmeta xmlns:x="adobe:ns:meta/">` + "\n")
	buf.WriteString(` <rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#">` + "\n")
	buf.WriteString(`  <rdf:Description rdf:about="" xmlns:dc="http://purl.org/dc/elements/1.1/">` + "\n")

	fmt.Fprintf(&buf, "   <dc:title><rdf:Alt><rdf:li xml:lang=\"x-default\">%s</rdf:li></rdf:Alt></dc:title>\n",
		xmlEscape(opts.Title))
	fmt.Fprintf(&buf, "   <dc:description><rdf:Alt><rdf:li xml:lang=\"x-default\">%s</rdf:li></rdf:Alt></dc:description>\n",
		xmlEscape(opts.Title))
	if opts.Authors != "" {
		fmt.Fprintf(&buf, "   <dc:creator><rdf:Seq><rdf:li>%s</rdf:li></rdf:Seq></dc:creator>\n",
			xmlEscape(opts.Authors))
	}
	if len(opts.Tags) > 0 {
		buf.WriteString("   <dc:subject><rdf:Bag>\n")
		for _, tag := range opts.Tags {
			fmt.Fprintf(&buf, "    <rdf:li>%s</rdf:li>\n", xmlEscape(tag))
		}
		buf.WriteString("   </rdf:Bag></dc:subject>\n")
	}

	buf.WriteString(`  </rdf:Description>` + "\n")
	buf.WriteString(` </rdf:RDF>` + "\n")
	buf.WriteString(`</x:xmpmeta>` + "\n")
	buf.WriteString(`<?xpacket end="w"?>`)
	return buf.Bytes()
}

func xmlEscape(s string) string {
	var buf bytes.Buffer
	_ = xml.EscapeText(&buf, []byte(s))
	return buf.String()
}
