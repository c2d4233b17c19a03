// Package provider defines the external collaborator interfaces the
// orchestration core drives: peer search, candidate ranking, file transfer
// and post-download tagging. The core treats all of them as black boxes.
package provider

import "context"

// Candidate is one search result a peer offers for a track.
type Candidate struct {
	Filename    string `json:"filename"`
	BitrateKbps int    `json:"bitrate_kbps"`
	SizeBytes   int64  `json:"size_bytes"`
	Username    string `json:"username"`
	QueueLength int    `json:"queue_length"`
	HasFreeSlot bool   `json:"has_free_slot"`
	// DownloadURL carries the retrieval endpoint for HTTP-style sources.
	DownloadURL string `json:"download_url,omitempty"`
}

// SearchProvider finds download candidates for a query. Implementations must
// honor ctx cancellation; the caller applies the search timeout.
type SearchProvider interface {
	Search(ctx context.Context, query string) ([]Candidate, error)
}

// RankContext carries the metadata a ranker may consider.
type RankContext struct {
	Artist string
	Title  string
	Album  string
}

// Ranker selects the best candidate. The scoring formula is external to this
// core; a nil result means every candidate was rejected.
type Ranker interface {
	SelectBest(candidates []Candidate, rctx RankContext) *Candidate
}

// ProgressFunc receives transfer progress as a fraction in [0, 1].
type ProgressFunc func(fraction float64)

// TransferProvider downloads a candidate to destPath, reporting progress.
// Implementations must honor ctx cancellation at their next checkpoint.
type TransferProvider interface {
	Download(ctx context.Context, c Candidate, destPath string, onProgress ProgressFunc) error
}

// TrackMetadata is what the tagger writes into a downloaded file.
type TrackMetadata struct {
	Artist string
	Title  string
	Album  string
}

// Tagger writes metadata into a downloaded file. Tagging is best-effort:
// a tagging error is logged by the caller and never fails the task.
type Tagger interface {
	Tag(path string, meta TrackMetadata) error
}
