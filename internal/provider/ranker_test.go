package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFirstAvailableRanker(t *testing.T) {
	r := FirstAvailableRanker{}

	assert.Nil(t, r.SelectBest(nil, RankContext{}))

	// A free slot beats a higher bitrate behind a queue.
	best := r.SelectBest([]Candidate{
		{Filename: "queued.mp3", BitrateKbps: 320, HasFreeSlot: false},
		{Filename: "free.mp3", BitrateKbps: 192, HasFreeSlot: true},
	}, RankContext{})
	require.NotNil(t, best)
	assert.Equal(t, "free.mp3", best.Filename)

	// Among free-slot peers the highest bitrate wins.
	best = r.SelectBest([]Candidate{
		{Filename: "low.mp3", BitrateKbps: 128, HasFreeSlot: true},
		{Filename: "high.mp3", BitrateKbps: 320, HasFreeSlot: true},
	}, RankContext{})
	require.NotNil(t, best)
	assert.Equal(t, "high.mp3", best.Filename)
}

func TestID3Tagger_SkipsNonMP3(t *testing.T) {
	tagger := NewID3Tagger(discardLogger())
	// The file does not even exist; non-mp3 paths are skipped outright.
	assert.NoError(t, tagger.Tag("/nonexistent/track.flac", TrackMetadata{Artist: "a"}))
}
