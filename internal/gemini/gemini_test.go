package gemini

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
	"google.golang.org/genai"

	"foodphotographer/internal/config"
	"foodphotographer/internal/menu"
)

var jpegBytes = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00, 0x01}

type fakeModels struct {
	contentResp *genai.GenerateContentResponse
	contentErr  error
	imagesResp  *genai.GenerateImagesResponse
	imagesErr   error

	gotModel    string
	gotContents []*genai.Content
	gotConfig   *genai.GenerateContentConfig
	gotPrompt   string
	gotImageCfg *genai.GenerateImagesConfig
	hadDeadline bool
}

func (f *fakeModels) GenerateContent(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.gotModel = model
	f.gotContents = contents
	f.gotConfig = cfg
	_, f.hadDeadline = ctx.Deadline()
	return f.contentResp, f.contentErr
}

func (f *fakeModels) GenerateImages(ctx context.Context, model string, prompt string, cfg *genai.GenerateImagesConfig) (*genai.GenerateImagesResponse, error) {
	f.gotModel = model
	f.gotPrompt = prompt
	f.gotImageCfg = cfg
	_, f.hadDeadline = ctx.Deadline()
	return f.imagesResp, f.imagesErr
}

func newTestClient(t *testing.T, models *fakeModels) *Client {
	t.Helper()
	c, err := newClient(models, config.GeminiConfig{
		TextModel:  "text-model",
		ImageModel: "image-model",
		EditModel:  "edit-model",
		Timeout:    5 * time.Second,
	}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("newClient: %v", err)
	}
	return c
}

func textResponse(parts ...*genai.Part) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Role: "model", Parts: parts}}},
	}
}

func TestExtractDishesMargherita(t *testing.T) {
	models := &fakeModels{
		contentResp: textResponse(&genai.Part{Text: `[{"name":"Margherita Pizza","description":"Classic pizza with tomato and basil."}]`}),
	}
	c := newTestClient(t, models)

	menuText := "Margherita Pizza\nClassic pizza with tomato and basil."
	entries, err := c.ExtractDishes(context.Background(), menuText)
	if err != nil {
		t.Fatalf("ExtractDishes: %v", err)
	}
	want := menu.Entry{Name: "Margherita Pizza", Description: "Classic pizza with tomato and basil."}
	if len(entries) != 1 || entries[0] != want {
		t.Fatalf("entries = %+v, want [%+v]", entries, want)
	}

	if models.gotModel != "text-model" {
		t.Errorf("model = %q, want text-model", models.gotModel)
	}
	if !models.hadDeadline {
		t.Error("extraction request should carry a deadline")
	}
	if models.gotConfig == nil || models.gotConfig.ResponseMIMEType != "application/json" {
		t.Fatalf("config = %+v, want JSON response", models.gotConfig)
	}
	schema := models.gotConfig.ResponseSchema
	if schema == nil || schema.Type != genai.TypeArray || schema.Items == nil {
		t.Fatalf("schema = %+v, want array", schema)
	}
	if got := strings.Join(schema.Items.Required, ","); got != "name,description" {
		t.Errorf("required = %q", got)
	}
	if len(models.gotContents) != 1 || len(models.gotContents[0].Parts) != 1 {
		t.Fatalf("contents = %+v", models.gotContents)
	}
	prompt := models.gotContents[0].Parts[0].Text
	if !strings.Contains(prompt, menuText) || !strings.Contains(prompt, "create a short, appetizing one") {
		t.Errorf("prompt = %q", prompt)
	}
}

func TestExtractDishesFailures(t *testing.T) {
	tests := []struct {
		name   string
		models *fakeModels
	}{
		{"transport error", &fakeModels{contentErr: errors.New("503 unavailable")}},
		{"empty response", &fakeModels{contentResp: &genai.GenerateContentResponse{}}},
		{"not json", &fakeModels{contentResp: textResponse(&genai.Part{Text: "Here are your dishes!"})}},
		{"object instead of array", &fakeModels{contentResp: textResponse(&genai.Part{Text: `{"name":"Soup"}`})}},
		{"missing description", &fakeModels{contentResp: textResponse(&genai.Part{Text: `[{"name":"Soup"},{"name":"Tea","description":"Hot"}]`})}},
		{"blank name", &fakeModels{contentResp: textResponse(&genai.Part{Text: `[{"name":"  ","description":"Hot"}]`})}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, tt.models)
			entries, err := c.ExtractDishes(context.Background(), "Soup")
			if !errors.Is(err, menu.ErrExtraction) {
				t.Fatalf("error = %v, want ErrExtraction", err)
			}
			if entries != nil {
				t.Errorf("entries = %+v, want none", entries)
			}
		})
	}
}

func TestParseEntriesToleratesFencesAndThoughts(t *testing.T) {
	resp := textResponse(
		&genai.Part{Text: "thinking about the menu", Thought: true},
		&genai.Part{Text: "```json\n[{\"name\":\"Tiramisu\",\"description\":\" Coffee dessert \"}]\n```"},
	)
	entries, err := parseEntries(responseText(resp))
	if err != nil {
		t.Fatalf("parseEntries: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "Tiramisu" || entries[0].Description != "Coffee dessert" {
		t.Fatalf("entries = %+v", entries)
	}
}

func TestParseEntriesKeepsOrder(t *testing.T) {
	entries, err := parseEntries(`[{"name":"A","description":"a"},{"name":"B","description":"b"},{"name":"C","description":"c"}]`)
	if err != nil {
		t.Fatalf("parseEntries: %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name)
	}
	if got := strings.Join(names, ""); got != "ABC" {
		t.Errorf("order = %q, want ABC", got)
	}
}

func TestGenerateImage(t *testing.T) {
	models := &fakeModels{
		imagesResp: &genai.GenerateImagesResponse{
			GeneratedImages: []*genai.GeneratedImage{{Image: &genai.Image{ImageBytes: jpegBytes}}},
		},
	}
	c := newTestClient(t, models)

	img, err := c.GenerateImage(context.Background(), "Margherita Pizza", "Classic pizza with tomato and basil.", menu.StyleRustic)
	if err != nil {
		t.Fatalf("GenerateImage: %v", err)
	}
	if !bytes.Equal(img.Data, jpegBytes) || img.MIMEType != "image/jpeg" {
		t.Errorf("image = %d bytes %q", len(img.Data), img.MIMEType)
	}

	for _, want := range []string{`"Margherita Pizza"`, `"Classic pizza with tomato and basil."`, menu.StyleRustic.Descriptor(), "photorealistic", "professional quality"} {
		if !strings.Contains(models.gotPrompt, want) {
			t.Errorf("prompt missing %q: %s", want, models.gotPrompt)
		}
	}
	cfg := models.gotImageCfg
	if cfg == nil || cfg.NumberOfImages != 1 || cfg.OutputMIMEType != "image/jpeg" || cfg.AspectRatio != "4:3" {
		t.Errorf("image config = %+v", cfg)
	}
	if models.gotModel != "image-model" {
		t.Errorf("model = %q", models.gotModel)
	}
}

func TestGenerateImageFailures(t *testing.T) {
	tests := []struct {
		name   string
		models *fakeModels
	}{
		{"transport error", &fakeModels{imagesErr: errors.New("quota exceeded")}},
		{"nil response", &fakeModels{}},
		{"no images", &fakeModels{imagesResp: &genai.GenerateImagesResponse{}}},
		{"filtered image without bytes", &fakeModels{imagesResp: &genai.GenerateImagesResponse{
			GeneratedImages: []*genai.GeneratedImage{{RAIFilteredReason: "blocked", Image: &genai.Image{}}},
		}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, tt.models)
			_, err := c.GenerateImage(context.Background(), "Carbonara", "Egg and pecorino.", menu.StyleModern)
			var genErr *menu.GenerationError
			if !errors.As(err, &genErr) {
				t.Fatalf("error = %v, want GenerationError", err)
			}
			if genErr.Dish != "Carbonara" {
				t.Errorf("Dish = %q", genErr.Dish)
			}
			if got := err.Error(); got != "Failed to generate an image for Carbonara." {
				t.Errorf("message = %q", got)
			}
		})
	}
}

func TestEditImageSelectsImageAfterText(t *testing.T) {
	edited := append([]byte{}, jpegBytes...)
	edited = append(edited, 0x42)
	models := &fakeModels{
		contentResp: textResponse(
			&genai.Part{Text: "Here is your edited dish."},
			&genai.Part{InlineData: &genai.Blob{Data: edited, MIMEType: "image/png"}},
		),
	}
	c := newTestClient(t, models)

	src := menu.Image{Data: jpegBytes, MIMEType: "image/jpeg"}
	img, err := c.EditImage(context.Background(), src, "Add a sprinkle of parsley")
	if err != nil {
		t.Fatalf("EditImage: %v", err)
	}
	if !bytes.Equal(img.Data, edited) {
		t.Error("edited bytes not returned")
	}
	if img.MIMEType != "image/jpeg" {
		t.Errorf("MIMEType = %q, want sniffed image/jpeg", img.MIMEType)
	}

	if models.gotModel != "edit-model" {
		t.Errorf("model = %q", models.gotModel)
	}
	if got := models.gotConfig.ResponseModalities; len(got) != 1 || got[0] != "IMAGE" {
		t.Errorf("modalities = %v", got)
	}
	parts := models.gotContents[0].Parts
	if len(parts) != 2 || parts[0].InlineData == nil || parts[1].Text != "Add a sprinkle of parsley" {
		t.Fatalf("request parts = %+v", parts)
	}
	if !bytes.Equal(parts[0].InlineData.Data, jpegBytes) || parts[0].InlineData.MIMEType != "image/jpeg" {
		t.Error("source image not sent as inline data")
	}
}

func TestEditImageSearchesLaterCandidates(t *testing.T) {
	models := &fakeModels{
		contentResp: &genai.GenerateContentResponse{Candidates: []*genai.Candidate{
			{Content: &genai.Content{Parts: []*genai.Part{{Text: "no image here"}}}},
			{Content: &genai.Content{Parts: []*genai.Part{{InlineData: &genai.Blob{Data: jpegBytes}}}}},
		}},
	}
	c := newTestClient(t, models)

	img, err := c.EditImage(context.Background(), menu.Image{Data: jpegBytes, MIMEType: "image/jpeg"}, "warmer light")
	if err != nil {
		t.Fatalf("EditImage: %v", err)
	}
	if img.MIMEType != "image/jpeg" {
		t.Errorf("MIMEType = %q", img.MIMEType)
	}
}

func TestEditImageFailures(t *testing.T) {
	tests := []struct {
		name   string
		models *fakeModels
	}{
		{"transport error", &fakeModels{contentErr: errors.New("connection reset")}},
		{"text only", &fakeModels{contentResp: textResponse(&genai.Part{Text: "I cannot do that."})}},
		{"no candidates", &fakeModels{contentResp: &genai.GenerateContentResponse{}}},
		{"nil response", &fakeModels{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, tt.models)
			_, err := c.EditImage(context.Background(), menu.Image{Data: jpegBytes, MIMEType: "image/jpeg"}, "more basil")
			if !errors.Is(err, menu.ErrEdit) {
				t.Fatalf("error = %v, want ErrEdit", err)
			}
		})
	}
}

func TestNewClientRequiresModels(t *testing.T) {
	if _, err := newClient(nil, config.GeminiConfig{}, nil); err == nil {
		t.Fatal("expected error for nil models api")
	}
	if _, err := New(context.Background(), config.GeminiConfig{}, nil); !errors.Is(err, config.ErrMissingAPIKey) {
		t.Fatalf("New() error = %v, want ErrMissingAPIKey", err)
	}
}
