package llm

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"google.golang.org/genai"

	"github.com/PabloGalante/blue-shark/internal/domain"
)

// ErrMissingAPIKey is returned when no credential is available for a call.
var ErrMissingAPIKey = errors.New("API Key is missing")

// KeySource returns the credential to use for the next call.
type KeySource interface {
	APIKey() string
}

// KeySourceFunc adapts a function to KeySource.
type KeySourceFunc func() string

func (f KeySourceFunc) APIKey() string { return f() }

// GeminiClient implements domain.Generator on the Gemini API.
//
// A fresh genai client is built for every call so that a credential
// re-selected between attempts is picked up.
type GeminiClient struct {
	keys    KeySource
	backend genai.Backend
}

func NewGeminiClient(keys KeySource) *GeminiClient {
	return &GeminiClient{
		keys:    keys,
		backend: genai.BackendGeminiAPI,
	}
}

func (g *GeminiClient) client(ctx context.Context) (*genai.Client, error) {
	key := g.keys.APIKey()
	if key == "" {
		return nil, ErrMissingAPIKey
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  key,
		Backend: g.backend,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return client, nil
}

// Stream implements domain.Generator.
func (g *GeminiClient) Stream(ctx context.Context, req domain.StreamRequest) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		client, err := g.client(ctx)
		if err != nil {
			yield("", err)
			return
		}

		contents := BuildContents(req.History, req.Text, req.Image)
		cfg := &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(req.SystemInstruction, genai.RoleUser),
		}

		for res, err := range client.Models.GenerateContentStream(ctx, req.Model, contents, cfg) {
			if err != nil {
				yield("", fmt.Errorf("gemini stream: %w", err))
				return
			}
			text := res.Text()
			if text == "" {
				continue
			}
			if !yield(text, nil) {
				return
			}
		}
	}
}

// Generate implements domain.Generator.
func (g *GeminiClient) Generate(ctx context.Context, req domain.GenerateRequest) (string, error) {
	client, err := g.client(ctx)
	if err != nil {
		return "", err
	}

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(req.SystemInstruction, genai.RoleUser),
	}

	res, err := client.Models.GenerateContent(ctx, req.Model, genai.Text(req.Text), cfg)
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}

	return res.Text(), nil
}
