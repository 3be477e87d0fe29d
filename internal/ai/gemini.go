package ai

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"github.com/xuxing3/JiZhang/internal/extract"
)

const geminiModel = "gemini-2.0-flash"

const geminiTextPrompt = "Extract the expense fields from the user's bookkeeping message.\n" +
	"Output STRICT JSON only (no comments, no extra text, no Markdown fences):\n" +
	`{ "amount": number, "category": "string", "payee": "string", "time": "string or empty", "note": "original text" }` + "\n" +
	"If the message only carries a time of day (e.g. 19:17) return just HH:MM; return \"\" when there is no time.\n" +
	"Message: "

const geminiVisionPrompt = "Extract the payment fields from this payment screenshot.\n" +
	"Output STRICT JSON only (no comments, no extra text, no Markdown fences):\n" +
	`{ "amount": "number or string", "payee": "merchant name", "category": "string", "time": "HH:MM, ignore any date" }`

// Gemini calls Google's Gemini API for structured extraction.
type Gemini struct {
	apiKey string
	log    zerolog.Logger
}

func NewGemini(apiKey string, log zerolog.Logger) *Gemini {
	return &Gemini{apiKey: apiKey, log: log}
}

// Name implements Provider.
func (p *Gemini) Name() string { return "gemini" }

// ExtractText implements Provider.
func (p *Gemini) ExtractText(ctx context.Context, text string) (*extract.Draft, error) {
	contents := []*genai.Content{{
		Role:  "user",
		Parts: []*genai.Part{{Text: geminiTextPrompt + text}},
	}}
	return p.generate(ctx, contents)
}

// ExtractImage implements Provider.
func (p *Gemini) ExtractImage(ctx context.Context, mimeType string, data []byte) (*extract.Draft, error) {
	contents := []*genai.Content{{
		Role: "user",
		Parts: []*genai.Part{
			{Text: geminiVisionPrompt},
			{InlineData: &genai.Blob{MIMEType: mimeType, Data: data}},
		},
	}}
	return p.generate(ctx, contents)
}

func (p *Gemini) generate(ctx context.Context, contents []*genai.Content) (*extract.Draft, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      p.apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}

	resp, err := client.Models.GenerateContent(ctx, geminiModel, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("gemini: generate content: %w", err)
	}

	rawText := resp.Text()
	if rawText == "" {
		return nil, fmt.Errorf("gemini: empty response from model")
	}

	obj, err := decodeObject(rawText)
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	return draftFromObject(obj), nil
}
