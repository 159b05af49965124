package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"foodphotographer/internal/menu"
)

// ExtractDishes asks the text model for the dishes described in menuText.
// The caller must reject blank input; any remote or decoding problem fails the whole
// extraction with menu.ErrExtraction.
func (c *Client) ExtractDishes(ctx context.Context, menuText string) ([]menu.Entry, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := c.models.GenerateContent(ctx, c.textModel, genai.Text(buildExtractionPrompt(menuText)), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   extractionSchema(),
	})
	if err != nil {
		c.log.Error("menu extraction request failed", zap.String("model", c.textModel), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", menu.ErrExtraction, err)
	}

	entries, err := parseEntries(responseText(resp))
	if err != nil {
		c.log.Error("menu extraction response rejected", zap.String("model", c.textModel), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", menu.ErrExtraction, err)
	}
	c.log.Info("menu extracted", zap.Int("dishes", len(entries)))
	return entries, nil
}

// responseText joins the non-thought text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		sb.WriteString(part.Text)
	}
	return sb.String()
}

func parseEntries(raw string) ([]menu.Entry, error) {
	raw = stripCodeFence(strings.TrimSpace(raw))
	if raw == "" {
		return nil, errors.New("empty model response")
	}

	var entries []menu.Entry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, fmt.Errorf("decode dishes: %w", err)
	}
	for i := range entries {
		entries[i].Name = strings.TrimSpace(entries[i].Name)
		entries[i].Description = strings.TrimSpace(entries[i].Description)
		if entries[i].Name == "" || entries[i].Description == "" {
			return nil, fmt.Errorf("dish %d is missing name or description", i)
		}
	}
	return entries, nil
}

func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
