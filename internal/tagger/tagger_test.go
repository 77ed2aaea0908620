package tagger_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/oshokin/id3v2/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/musicgrab/engine/internal/tagger"
)

func TestWriteTags_NonMP3IsNoOp(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "song.opus")
	require.NoError(t, os.WriteFile(path, []byte("opus bytes"), 0o644))

	require.NoError(t, tagger.WriteTags(path, "Title", "Artist"))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("opus bytes"), content, "non-MP3 files must not be touched")
}

func TestWriteTags_SetsTitleAndArtist(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "song.mp3")
	require.NoError(t, os.WriteFile(path, []byte("fake mp3 audio frames"), 0o644))

	require.NoError(t, tagger.WriteTags(path, "Midnight City", "M83"))

	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	require.NoError(t, err)

	defer tag.Close() //nolint:errcheck // test cleanup.

	assert.Equal(t, "Midnight City", tag.Title())
	assert.Equal(t, "M83", tag.Artist())
}
