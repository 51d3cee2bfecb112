package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/you-humble/imagepipe/internal/domain"

	"google.golang.org/genai"
)

const extractPrompt = "Extract all readable text from this image. " +
	"Return only the text itself, without commentary or formatting. " +
	"If the image contains no text, return an empty response."

// Engine recognizes text in images through the Gemini API.
type Engine struct {
	client *genai.Client
	model  string
}

func New(ctx context.Context, apiKey, model string) (*Engine, error) {
	if apiKey == "" {
		return nil, errors.New("empty Gemini API key")
	}
	if model == "" {
		return nil, errors.New("empty Gemini model name")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create Gemini client: %w", err)
	}

	return &Engine{client: client, model: model}, nil
}

func (e *Engine) ExtractText(ctx context.Context, image []byte, mimeType string) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(image, mimeType),
			genai.NewPartFromText(extractPrompt),
		}, genai.RoleUser),
	}

	resp, err := e.client.Models.GenerateContent(ctx, e.model, contents, nil)
	if err != nil {
		// API and transport failures are retryable
		return "", fmt.Errorf("gemini generate: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", domain.Permanentf("gemini: no content in response")
	}
	if resp.Candidates[0].FinishReason == genai.FinishReasonSafety {
		return "", domain.Permanentf("gemini: content blocked by safety filters")
	}

	text := strings.TrimSpace(resp.Text())
	slog.Debug("gemini extraction finished",
		slog.String("model", e.model),
		slog.Int("text_length", len(text)),
	)

	return text, nil
}
