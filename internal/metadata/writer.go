// Package metadata embeds tagging results into image files' standard
// metadata containers. PNG files get text chunks plus an XMP packet; JPEG
// files get an EXIF block, a JSON user comment, and a legacy IPTC caption
// block. All output is deterministic: writing the same values twice
// produces byte-identical metadata.
package metadata

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Options carries the values to embed.
type Options struct {
	Title   string
	Tags    []string
	Authors string
	// ClearExisting drops all pre-existing metadata blocks instead of
	// only replacing the ones this writer owns.
	ClearExisting bool
}

// Writer persists tagging results into image files. The zero value is usable.
type Writer struct{}

func New() *Writer { return &Writer{} }

// Write embeds opts into the file at path and returns the path actually
// written. On any failure the original file is left untouched and its path
// is returned alongside the error; callers record an error result for the
// image and continue with the batch.
func (w *Writer) Write(path string, opts Options) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return path, fmt.Errorf("read image: %w", err)
	}

	var out []byte
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		out, err = writePNG(data, opts)
	case ".jpg", ".jpeg":
		out, err = writeJPEG(data, opts)
	default:
		return path, fmt.Errorf("unsupported metadata format: %s", filepath.Ext(path))
	}
	if err != nil {
		return path, err
	}

	if err := atomicReplace(path, out); err != nil {
		return path, fmt.Errorf("write image: %w", err)
	}
	return path, nil
}

// joinKeywords renders tags the way every keyword field expects them.
func joinKeywords(tags []string) string {
	return strings.Join(tags, ", ")
}

// atomicReplace writes data to a temp file in the target's directory and
// renames it over the original, so a failed write never corrupts the image.
func atomicReplace(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tagger-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if info, err := os.Stat(path); err == nil {
		_ = os.Chmod(tmpName, info.Mode())
	}
	return os.Rename(tmpName, path)
}
