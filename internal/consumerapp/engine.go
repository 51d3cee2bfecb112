package consumerapp

import (
	"context"
	"fmt"
	"sync"

	"github.com/you-humble/imagepipe/internal/domain"
	"github.com/you-humble/imagepipe/internal/infra/config"
	"github.com/you-humble/imagepipe/internal/processor"
	"github.com/you-humble/imagepipe/internal/processor/gemini"
)

// lazyTextEngine defers Gemini client construction until the first
// extract-text job arrives. A compress-only deployment never needs the API
// key, so a missing key must not keep the consumer from starting.
type lazyTextEngine struct {
	cfg config.Gemini

	mu     sync.Mutex
	engine processor.TextEngine
}

func newLazyTextEngine(cfg config.Gemini) *lazyTextEngine {
	return &lazyTextEngine{cfg: cfg}
}

func (l *lazyTextEngine) ExtractText(ctx context.Context, image []byte, mimeType string) (string, error) {
	engine, err := l.get(ctx)
	if err != nil {
		return "", err
	}
	return engine.ExtractText(ctx, image, mimeType)
}

func (l *lazyTextEngine) get(ctx context.Context) (processor.TextEngine, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.engine != nil {
		return l.engine, nil
	}

	if l.cfg.APIKey == "" {
		// a key cannot appear without a restart, so retrying is pointless
		return nil, domain.Permanentf("gemini api key is not configured")
	}

	engine, err := gemini.New(ctx, l.cfg.APIKey, l.cfg.Model)
	if err != nil {
		return nil, fmt.Errorf("init gemini engine: %w", err)
	}

	l.engine = engine
	return engine, nil
}
