// Package parse recovers structured tag data from imperfect model replies.
// Vision models wrap JSON in code fences, emit trailing commas, and get cut
// off at the token limit; the repair pipeline here salvages what it can
// instead of discarding the answer.
package parse

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/kiranshivaraju/imagetagger/pkg/models"
)

var (
	fenceRe         = regexp.MustCompile("(?s)^```[a-zA-Z0-9]*\\s*(.*?)\\s*```$")
	bracketRe       = regexp.MustCompile(`(?s)\{.*\}|\[.*\]`)
	trailingCommaRe = regexp.MustCompile(`,(\s*[\]\}])`)
)

// Repair extracts valid JSON from a raw model reply. It strips a wrapping
// code fence, tries a direct parse, then falls back to the largest
// bracket-delimited substring, progressively trimming it from the end (and
// dropping trailing commas before closing brackets) until a prefix parses.
// Returns nil, false when nothing recoverable remains.
func Repair(raw string) (json.RawMessage, bool) {
	s := strings.TrimSpace(raw)
	if m := fenceRe.FindStringSubmatch(s); m != nil {
		s = m[1]
	}
	if s == "" {
		return nil, false
	}

	if v, ok := tryParse(s); ok {
		return v, true
	}

	candidate := bracketRe.FindString(s)
	if candidate == "" {
		return nil, false
	}

	for n := len(candidate); n > 0; n-- {
		fixed := trailingCommaRe.ReplaceAllString(candidate[:n], "$1")
		if v, ok := tryParse(fixed); ok {
			return v, true
		}
	}
	return nil, false
}

// Decode repairs raw and unmarshals the result into a generic value.
func Decode(raw string) (any, bool) {
	data, ok := Repair(raw)
	if !ok {
		return nil, false
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, false
	}
	return v, true
}

// TagSets decodes a reply into per-image tag sets. A bare object is treated
// as a one-element batch; an array is taken in order. Entries that are not
// objects or are missing keys decode as zero TagSets — the caller decides
// how to report those. Returns nil, false when the reply is unrecoverable.
func TagSets(raw string) ([]models.TagSet, bool) {
	data, ok := Repair(raw)
	if !ok {
		return nil, false
	}

	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil, false
	}

	var entries []json.RawMessage
	if trimmed[0] == '[' {
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil, false
		}
	} else {
		entries = []json.RawMessage{data}
	}

	sets := make([]models.TagSet, len(entries))
	for i, entry := range entries {
		// Lenient per-entry decode: a malformed entry stays zero-valued
		// rather than poisoning the rest of the batch.
		_ = json.Unmarshal(entry, &sets[i])
	}
	return sets, true
}

// Valid reports whether ts carries the keys a usable reply must have.
func Valid(ts models.TagSet) bool {
	return ts.Title != "" && len(ts.Tags) > 0
}

func tryParse(s string) (json.RawMessage, bool) {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, false
	}
	return json.RawMessage(s), true
}
