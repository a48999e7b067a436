// Package gemini wraps the Gemini API with API key rotation and model fallback.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// DefaultModels are tried in order when no models are configured.
var DefaultModels = []string{
	"gemini-2.5-pro",
	"gemini-2.5-flash",
	"gemini-2.0-flash",
}

var ErrNoKeys = errors.New("no Gemini API keys configured")

// Generator produces a text answer for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// callFunc performs one request with a given key and model.
type callFunc func(ctx context.Context, key, model, prompt string) (string, error)

// Client tries every model in order, and for each model every key starting
// from the last one that worked. Each (model, key) pair is attempted once.
type Client struct {
	keys   []string
	models []string
	call   callFunc

	mu  sync.Mutex
	cur int
}

var _ Generator = (*Client)(nil)

func NewClient(keys, models []string) *Client {
	if len(models) == 0 {
		models = DefaultModels
	}
	return &Client{keys: keys, models: models, call: generateContent}
}

func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	if len(c.keys) == 0 {
		return "", ErrNoKeys
	}

	var lastErr error
	for _, model := range c.models {
		start := c.keyIndex()
		for i := 0; i < len(c.keys); i++ {
			idx := (start + i) % len(c.keys)
			text, err := c.call(ctx, c.keys[idx], model, prompt)
			if err == nil {
				c.setKeyIndex(idx)
				return text, nil
			}
			lastErr = err
			slog.Warn("Gemini request failed", "model", model, "key_index", idx, "error", err)
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
		}
	}
	return "", fmt.Errorf("all models failed: %w", lastErr)
}

func (c *Client) keyIndex() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cur
}

func (c *Client) setKeyIndex(i int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i != c.cur {
		slog.Info("Rotated Gemini API key", "key_index", i)
	}
	c.cur = i
}

func generateContent(ctx context.Context, key, model, prompt string) (string, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(key))
	if err != nil {
		return "", fmt.Errorf("create client: %w", err)
	}
	defer client.Close()

	resp, err := client.GenerativeModel(model).GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", err
	}
	text := responseText(resp)
	if strings.TrimSpace(text) == "" {
		return "", errors.New("empty response")
	}
	return text, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if txt, ok := part.(genai.Text); ok {
				b.WriteString(string(txt))
			}
		}
	}
	return b.String()
}
