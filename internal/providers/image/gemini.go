package image

import (
	"context"
	"errors"
	"fmt"

	"server/internal/domain"
	"server/internal/providers/genai"
)

// GeminiGenerator adapts the genai client to the Generator contract and maps
// its failure modes onto the domain error taxonomy.
type GeminiGenerator struct {
	client *genai.Client
}

func NewGeminiGenerator(client *genai.Client) *GeminiGenerator {
	return &GeminiGenerator{client: client}
}

func (g *GeminiGenerator) GeneratePortrait(ctx context.Context, req GenerateRequest) ([]byte, error) {
	data, err := g.client.GeneratePortrait(ctx, genai.PortraitRequest{
		Selfie:     req.Selfie,
		SelfieMIME: req.SelfieMIME,
		Board:      req.Board,
		BoardMIME:  req.BoardMIME,
		Prompt:     req.Prompt,
		RequestID:  req.RequestID,
	})
	if err != nil {
		if errors.Is(err, genai.ErrNoImage) {
			return nil, fmt.Errorf("%w: %s", domain.ErrNoImageData, err)
		}
		// Timeouts land here too; the retry operation covers them.
		return nil, fmt.Errorf("%w: %s", domain.ErrGenerationTransport, err)
	}
	if len(data) == 0 {
		return nil, domain.ErrNoImageData
	}
	return data, nil
}

var _ Generator = (*GeminiGenerator)(nil)
