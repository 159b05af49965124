package gemini

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"foodphotographer/internal/menu"
)

// GenerateImage requests one 4:3 JPEG photo of the dish in the given style.
// Failures are reported as *menu.GenerationError so they stay scoped to the dish.
func (c *Client) GenerateImage(ctx context.Context, name, description string, style menu.Style) (menu.Image, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	prompt := buildGenerationPrompt(name, description, style)
	resp, err := c.models.GenerateImages(ctx, c.imageModel, prompt, &genai.GenerateImagesConfig{
		NumberOfImages: 1,
		OutputMIMEType: outputMIMEType,
		AspectRatio:    aspectRatio,
	})
	if err != nil {
		c.log.Error("image generation request failed", zap.String("dish", name), zap.String("model", c.imageModel), zap.Error(err))
		return menu.Image{}, &menu.GenerationError{Dish: name, Err: err}
	}

	img, ok := firstGeneratedImage(resp)
	if !ok {
		c.log.Warn("image generation returned no image", zap.String("dish", name), zap.String("model", c.imageModel))
		return menu.Image{}, &menu.GenerationError{Dish: name, Err: errors.New("no image generated")}
	}
	c.log.Debug("image generated", zap.String("dish", name), zap.Int("bytes", len(img.Data)), zap.String("mime", img.MIMEType))
	return img, nil
}

func firstGeneratedImage(resp *genai.GenerateImagesResponse) (menu.Image, bool) {
	if resp == nil {
		return menu.Image{}, false
	}
	for _, generated := range resp.GeneratedImages {
		if generated == nil || generated.Image == nil || len(generated.Image.ImageBytes) == 0 {
			continue
		}
		mimeType := generated.Image.MIMEType
		if mimeType == "" {
			mimeType = outputMIMEType
		}
		return menu.Image{Data: generated.Image.ImageBytes, MIMEType: mimeType}, true
	}
	return menu.Image{}, false
}
