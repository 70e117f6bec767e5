package advisor

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

// Generator produces text for a prompt. A non-nil schema asks for JSON
// output matching it.
type Generator interface {
	Generate(ctx context.Context, prompt string, schema *genai.Schema) (string, error)
}

// GeminiGenerator calls the Gemini API
type GeminiGenerator struct {
	client *genai.Client
	model  string
}

// NewGeminiGenerator creates a Gemini-backed generator
func NewGeminiGenerator(ctx context.Context, apiKey, model string) (*GeminiGenerator, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiGenerator{client: client, model: model}, nil
}

func (g *GeminiGenerator) Generate(ctx context.Context, prompt string, schema *genai.Schema) (string, error) {
	var config *genai.GenerateContentConfig
	if schema != nil {
		config = &genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema:   schema,
		}
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), config)
	if err != nil {
		return "", err
	}

	text := resp.Text()
	if text == "" {
		return "", errors.New("empty response from model")
	}
	return text, nil
}

var insightsSchema = &genai.Schema{
	Type: genai.TypeArray,
	Items: &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"title":          {Type: genai.TypeString},
			"description":    {Type: genai.TypeString},
			"impact":         {Type: genai.TypeString, Enum: []string{"positive", "negative", "neutral"}},
			"recommendation": {Type: genai.TypeString},
		},
		Required: []string{"title", "description", "impact", "recommendation"},
	},
}

var predictionsSchema = &genai.Schema{
	Type: genai.TypeArray,
	Items: &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"productId":         {Type: genai.TypeString},
			"productName":       {Type: genai.TypeString},
			"currentStock":      {Type: genai.TypeInteger},
			"predictedDaysLeft": {Type: genai.TypeNumber},
			"status":            {Type: genai.TypeString, Enum: []string{"critical", "warning", "safe"}},
		},
		Required: []string{"productId", "productName", "currentStock", "predictedDaysLeft", "status"},
	},
}
