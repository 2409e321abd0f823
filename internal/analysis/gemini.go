package analysis

import (
	"context"

	"google.golang.org/genai"
)

// GeminiClient calls the Gemini API for diagram reviews.
type GeminiClient struct {
	client *genai.Client
	model  string
}

func NewGeminiClient(apiKey, model string) (*GeminiClient, error) {
	ctx := context.Background()

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, &ProviderError{
			Provider: "gemini",
			Message:  "Failed to create Gemini client",
			Err:      err,
		}
	}

	return &GeminiClient{client: client, model: model}, nil
}

func (c *GeminiClient) GenerateAnalysis(ctx context.Context, prompt string) (string, error) {
	result, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), nil)
	if err != nil {
		return "", &ProviderError{
			Provider: "gemini",
			Message:  "Failed to generate analysis",
			Err:      err,
		}
	}
	if result == nil {
		return "", &ProviderError{
			Provider: "gemini",
			Message:  "No response generated",
		}
	}

	text, err := result.Text()
	if err != nil {
		return "", &ProviderError{
			Provider: "gemini",
			Message:  "Failed to extract response text",
			Err:      err,
		}
	}
	if text == "" {
		return "", &ProviderError{
			Provider: "gemini",
			Message:  "Empty response generated",
		}
	}
	return text, nil
}

func (c *GeminiClient) Name() string { return "gemini" }
