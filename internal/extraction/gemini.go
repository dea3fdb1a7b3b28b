package extraction

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/angelmondragon/fueltax-backend/pkg/config"
)

const defaultModel = "gemini-2.5-flash"

// Gemini extracts receipts with a Google Gemini model.
type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

var _ Extractor = (*Gemini)(nil)

func NewGemini(ctx context.Context, cfg config.GeminiConfig) (*Gemini, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	name := strings.TrimSpace(cfg.Model)
	if name == "" {
		name = defaultModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	model := client.GenerativeModel(name)
	model.SetTemperature(0)
	model.ResponseMIMEType = "application/json"

	return &Gemini{client: client, model: model}, nil
}

// Extract sends the image with the receipt prompt. The deadline comes from ctx.
func (g *Gemini) Extract(ctx context.Context, data []byte, mime string) (*Result, error) {
	img, format, err := prepareImage(data, mime)
	if err != nil {
		return nil, err
	}

	resp, err := g.model.GenerateContent(ctx, genai.ImageData(format, img), genai.Text(receiptPrompt))
	if err != nil {
		return nil, fmt.Errorf("generating content: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, ErrNoContent
	}

	var out strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			out.WriteString(string(t))
		}
	}
	if strings.TrimSpace(out.String()) == "" {
		return nil, ErrNoContent
	}
	return ParseResponse(out.String())
}

func (g *Gemini) Close() error {
	if g == nil || g.client == nil {
		return nil
	}
	return g.client.Close()
}
