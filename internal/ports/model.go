package ports

import (
	"context"

	"github.com/alejandrodnm/polyswarm/internal/domain"
)

// ModelService is an advisory or coordinator LLM.
// Callers expect a JSON object somewhere in the returned text.
type ModelService interface {
	Generate(ctx context.Context, req domain.ModelRequest) (string, error)
}
