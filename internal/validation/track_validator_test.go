package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tunefetch/tunefetch/internal/domain"
)

func batch(tracks ...domain.EnqueueRequest) *domain.BatchEnqueueRequest {
	return &domain.BatchEnqueueRequest{Tracks: tracks}
}

func TestValidateEnqueue(t *testing.T) {
	tests := []struct {
		name    string
		req     *domain.BatchEnqueueRequest
		wantErr bool
	}{
		{
			name: "valid track",
			req:  batch(domain.EnqueueRequest{Artist: "Queen", Title: "Bohemian Rhapsody", Priority: domain.PriorityStandard}),
		},
		{
			name: "valid with album and express priority",
			req: batch(domain.EnqueueRequest{
				Artist: "Miles Davis", Title: "So What", Album: "Kind of Blue",
				Priority: domain.PriorityExpress,
			}),
		},
		{
			name: "intermediate priority maps to a lane",
			req:  batch(domain.EnqueueRequest{Artist: "a", Title: "b", Priority: 5}),
		},
		{
			name:    "empty batch",
			req:     batch(),
			wantErr: true,
		},
		{
			name:    "missing title",
			req:     batch(domain.EnqueueRequest{Artist: "Queen", Priority: 1}),
			wantErr: true,
		},
		{
			name:    "whitespace-only artist",
			req:     batch(domain.EnqueueRequest{Artist: "   ", Title: "x", Priority: 1}),
			wantErr: true,
		},
		{
			name:    "control characters in title",
			req:     batch(domain.EnqueueRequest{Artist: "a", Title: "bad\x00title", Priority: 1}),
			wantErr: true,
		},
		{
			name:    "negative priority",
			req:     batch(domain.EnqueueRequest{Artist: "a", Title: "b", Priority: -1}),
			wantErr: true,
		},
		{
			name: "one bad track fails the batch",
			req: batch(
				domain.EnqueueRequest{Artist: "a", Title: "b", Priority: 1},
				domain.EnqueueRequest{Artist: "", Title: "c", Priority: 1},
			),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEnqueue(tt.req)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
