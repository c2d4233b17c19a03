package provider

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/bogem/id3v2/v2"
)

// ID3Tagger writes artist/title/album frames into downloaded MP3 files.
// Non-MP3 files are skipped silently; tagging is best-effort end to end.
type ID3Tagger struct {
	logger *slog.Logger
}

// NewID3Tagger builds the default tagger.
func NewID3Tagger(logger *slog.Logger) *ID3Tagger {
	return &ID3Tagger{logger: logger}
}

// Tag writes the metadata frames in place.
func (t *ID3Tagger) Tag(path string, meta TrackMetadata) error {
	if !strings.HasSuffix(strings.ToLower(path), ".mp3") {
		t.logger.Debug("skipping tagging for non-mp3 file", "path", path)
		return nil
	}

	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return fmt.Errorf("failed to open file for tagging: %w", err)
	}
	defer tag.Close()

	tag.SetArtist(meta.Artist)
	tag.SetTitle(meta.Title)
	if meta.Album != "" {
		tag.SetAlbum(meta.Album)
	}

	if err := tag.Save(); err != nil {
		return fmt.Errorf("failed to save tags: %w", err)
	}
	return nil
}

var _ Tagger = (*ID3Tagger)(nil)
