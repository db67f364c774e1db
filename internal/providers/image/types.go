package image

import "context"

// GenerateRequest describes a normalized request passed to any portrait
// provider.
type GenerateRequest struct {
	Selfie     []byte
	SelfieMIME string
	Board      []byte
	BoardMIME  string
	Prompt     string
	RequestID  string
}

// Generator is the contract implemented by all portrait providers. Exactly
// one output image is returned on success.
type Generator interface {
	GeneratePortrait(ctx context.Context, req GenerateRequest) ([]byte, error)
}
