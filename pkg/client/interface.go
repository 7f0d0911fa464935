package client

import (
	"context"

	"github.com/safevision/safevision/pkg/types"
)

// VisionClient is a chat-style vision model server.
type VisionClient interface {
	SimpleQuery(ctx context.Context, model, prompt, imgB64 string) (string, error)
	DetectObjects(ctx context.Context, model, prompt, imgB64 string) ([]types.RawObject, error)
}
