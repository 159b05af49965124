package gemini

import (
	"fmt"

	"google.golang.org/genai"

	"foodphotographer/internal/menu"
)

const (
	outputMIMEType = "image/jpeg"
	aspectRatio    = "4:3"
)

func buildExtractionPrompt(menuText string) string {
	return "Parse the following restaurant menu text and extract a list of dishes with their names and descriptions. " +
		"If a description isn't available, create a short, appetizing one. Menu: \n\n" + menuText
}

// extractionSchema constrains the model output to [{name, description}].
func extractionSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeArray,
		Items: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"name": {
					Type:        genai.TypeString,
					Description: "The name of the dish.",
				},
				"description": {
					Type:        genai.TypeString,
					Description: "A brief, appetizing description of the dish.",
				},
			},
			Required: []string{"name", "description"},
		},
	}
}

func buildGenerationPrompt(name, description string, style menu.Style) string {
	return fmt.Sprintf(
		"Generate a photorealistic, high-end food photograph of \"%s\". The dish is described as: \"%s\". %s The image should look incredibly appetizing and be of professional quality.",
		name,
		description,
		style.Descriptor(),
	)
}
