// Package tagger writes ID3v2 metadata into completed MP3 files once
// the segmented downloader has committed them to their final path,
// narrowed to the title/artist tags this engine actually has: no FLAC
// output is ever produced, so a FLAC tag stack has no target here
// (see DESIGN.md).
package tagger

import (
	"fmt"
	"strings"

	"github.com/oshokin/id3v2/v2"
)

// WriteTags sets the title and artist frames on an MP3 file at path.
// Non-MP3 paths are a silent no-op: opus/ogg containers carry their
// own tagging conventions this engine does not write.
func WriteTags(path, title, artist string) error {
	if !strings.HasSuffix(strings.ToLower(path), ".mp3") {
		return nil
	}

	tag, err := id3v2.Open(path, id3v2.Options{Parse: false})
	if err != nil {
		return fmt.Errorf("tagger: open %s: %w", path, err)
	}

	defer tag.Close() //nolint:errcheck // best effort.

	tag.SetDefaultEncoding(id3v2.EncodingUTF8)
	tag.SetTitle(title)
	tag.SetArtist(artist)

	if err = tag.Save(); err != nil {
		return fmt.Errorf("tagger: save %s: %w", path, err)
	}

	return nil
}
