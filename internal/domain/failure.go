package domain

// FailureReason is the enumerated cause attached to every Failed task. The
// presentation layer maps reasons to actionable messages; the core guarantees
// a Failed task always carries one of these values, never a bare error string.
type FailureReason string

const (
	// Search failures.
	ReasonNoSearchResults FailureReason = "no_search_results"
	ReasonSearchTimeout   FailureReason = "search_timeout"

	// Selection failures. Retrying with the same filters cannot help, so
	// these are never auto-retried.
	ReasonAllCandidatesRejected FailureReason = "all_candidates_rejected"

	// Transfer failures.
	ReasonNetworkError       FailureReason = "network_error"
	ReasonVerificationFailed FailureReason = "verification_failed"
	ReasonDiskFull           FailureReason = "disk_full"
	ReasonPermissionDenied   FailureReason = "permission_denied"
	ReasonTransferCancelled  FailureReason = "transfer_cancelled"

	// Retry budget exhausted.
	ReasonMaxRetriesExceeded FailureReason = "max_retries_exceeded"

	// Worker-boundary catch-all for panics and unexpected errors.
	ReasonInternal FailureReason = "internal"
)

// Retryable reports whether a transfer attempt that failed with this reason
// may be retried automatically. Only transient network errors qualify;
// retrying a full disk, a permission error or a rejected candidate set
// cannot change the outcome.
func (r FailureReason) Retryable() bool {
	return r == ReasonNetworkError
}
