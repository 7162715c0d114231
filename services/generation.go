package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/phuslu/log"
	"google.golang.org/genai"

	"github.com/mattiatonolo-png/nutri-ai-assistant/models"
)

// ErrEmptyResponse is returned when the generation service answers with no text.
var ErrEmptyResponse = errors.New("generation service returned no text")

// ChatRequest is one turn of the clinical chat sent to the generation service.
type ChatRequest struct {
	SystemInstruction string
	History           []models.Message
}

// Generator is the text generation service. Generate answers a conversation
// with the configured temperature; GenerateStructured runs a single
// instruction over input at temperature 0 so repeated calls agree.
type Generator interface {
	Generate(ctx context.Context, req ChatRequest) (string, error)
	GenerateStructured(ctx context.Context, instruction, input string) (string, error)
}

// GeminiGenerator is a Generator backed by the Gemini API.
type GeminiGenerator struct {
	client      *genai.Client
	model       string
	temperature float32
	timeout     time.Duration
	schema      *genai.Schema
}

func NewGeminiGenerator(client *genai.Client, model string, temperature float32, timeout time.Duration) *GeminiGenerator {
	return &GeminiGenerator{client: client, model: model, temperature: temperature, timeout: timeout}
}

// WithResponseSchema makes structured calls answer JSON shaped by schema.
func (g *GeminiGenerator) WithResponseSchema(schema *genai.Schema) *GeminiGenerator {
	g.schema = schema
	return g
}

func (g *GeminiGenerator) Generate(ctx context.Context, req ChatRequest) (string, error) {
	contents := make([]*genai.Content, 0, len(req.History))
	for _, m := range req.History {
		role := genai.Role(genai.RoleUser)
		if m.Role == models.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}
	if len(contents) == 0 {
		return "", fmt.Errorf("chat request has no messages")
	}
	return g.call(ctx, contents, &genai.GenerateContentConfig{
		SystemInstruction: systemContent(req.SystemInstruction),
		Temperature:       genai.Ptr(g.temperature),
	})
}

func (g *GeminiGenerator) GenerateStructured(ctx context.Context, instruction, input string) (string, error) {
	contents := []*genai.Content{genai.NewContentFromText(input, genai.RoleUser)}
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: systemContent(instruction),
		Temperature:       genai.Ptr[float32](0),
	}
	if g.schema != nil {
		cfg.ResponseMIMEType = "application/json"
		cfg.ResponseSchema = g.schema
	}
	return g.call(ctx, contents, cfg)
}

func (g *GeminiGenerator) call(ctx context.Context, contents []*genai.Content, cfg *genai.GenerateContentConfig) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("gemini api call failed: %w", err)
	}
	log.Debug().Str("model", g.model).Dur("elapsed", time.Since(start)).Msg("generation completed")

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ErrEmptyResponse
	}
	var text strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p != nil && p.Text != "" {
			text.WriteString(p.Text)
		}
	}
	if text.Len() == 0 {
		return "", ErrEmptyResponse
	}
	return text.String(), nil
}
