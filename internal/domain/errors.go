package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrPaymentRequired  = errors.New("payment required")
	ErrPremiumExhausted = errors.New("premium generations exhausted")
	ErrBoardNotFound    = errors.New("design board not found")

	// Per-image generation failures surfaced at the artifact-generator
	// boundary. They are converted into row state, never propagated to
	// sibling images.
	ErrNoImageData          = errors.New("no image data returned")
	ErrGenerationTransport  = errors.New("generation transport failure")
	ErrInputNotFound        = errors.New("input image not found")
	ErrInvalidJobTransition = errors.New("invalid job status transition")
)
