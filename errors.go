package paperochi

import "errors"

var (
	// ErrDocumentUnreadable is returned when a PDF cannot be opened,
	// rasterized, or text-extracted (malformed, encrypted, or truncated).
	ErrDocumentUnreadable = errors.New("paperochi: document unreadable")

	// ErrPaperNotFound is returned when an identifier does not resolve
	// to a downloadable paper.
	ErrPaperNotFound = errors.New("paperochi: paper not found")

	// ErrDetectionUnavailable is returned when the layout-detection
	// service cannot load or serve the requested model.
	ErrDetectionUnavailable = errors.New("paperochi: detection model unavailable")

	// ErrAttachmentUpload is returned when a remote attachment fails to
	// upload or does not become ready before the poll deadline.
	ErrAttachmentUpload = errors.New("paperochi: attachment upload failed")

	// ErrSummaryFailed is returned when summary generation errors or
	// returns empty content. There is no automatic retry.
	ErrSummaryFailed = errors.New("paperochi: summary generation failed")

	// ErrExplanationFailed is returned when a per-region explanation
	// request errors or returns empty content.
	ErrExplanationFailed = errors.New("paperochi: explanation generation failed")

	// ErrInvalidMode is returned for an unrecognized processing mode or
	// body mode combination.
	ErrInvalidMode = errors.New("paperochi: invalid processing mode")

	// ErrStoreClosed is returned when operating on a closed run store.
	ErrStoreClosed = errors.New("paperochi: store is closed")
)
