package gemini

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"foodphotographer/internal/lib/imagetype"
	"foodphotographer/internal/menu"
)

// EditImage sends img together with a free-text instruction to the multimodal model
// and returns the first image part of the answer.
func (c *Client) EditImage(ctx context.Context, img menu.Image, instruction string) (menu.Image, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	contents := []*genai.Content{{
		Role:  "user",
		Parts: []*genai.Part{
			{InlineData: &genai.Blob{Data: img.Data, MIMEType: img.MIMEType}},
			{Text: instruction},
		},
	}}
	resp, err := c.models.GenerateContent(ctx, c.editModel, contents, &genai.GenerateContentConfig{
		ResponseModalities: []string{"IMAGE"},
	})
	if err != nil {
		c.log.Error("image edit request failed", zap.String("model", c.editModel), zap.Error(err))
		return menu.Image{}, fmt.Errorf("%w: %v", menu.ErrEdit, err)
	}

	edited, err := firstImagePart(resp)
	if err != nil {
		c.log.Warn("image edit returned no image", zap.String("model", c.editModel), zap.Error(err))
		return menu.Image{}, fmt.Errorf("%w: %v", menu.ErrEdit, err)
	}
	return edited, nil
}

// firstImagePart scans every candidate and returns the first inline image. Parts come
// back in no guaranteed order, so text parts before it are skipped.
func firstImagePart(resp *genai.GenerateContentResponse) (menu.Image, error) {
	if resp == nil {
		return menu.Image{}, errors.New("empty response")
	}
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
				continue
			}
			mimeType, err := imagetype.Resolve(part.InlineData.Data, part.InlineData.MIMEType)
			if err != nil {
				continue
			}
			return menu.Image{Data: part.InlineData.Data, MIMEType: mimeType}, nil
		}
	}
	return menu.Image{}, errors.New("no edited image returned")
}
