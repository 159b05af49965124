package menu

// Status is the generation lifecycle of a single dish.
type Status string

const (
	StatusPending    Status = "pending"
	StatusGenerating Status = "generating"
	StatusReady      Status = "ready"
	StatusFailed     Status = "failed"
)

// Entry is one dish as returned by menu extraction.
type Entry struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Image is an encoded picture plus its MIME type.
type Image struct {
	Data     []byte
	MIMEType string
}

// Dish is a menu item tracked through generation and editing.
// Image is set if and only if Status is StatusReady.
type Dish struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	Status       Status `json:"status"`
	Error        string `json:"error,omitempty"`
	ImageVersion int    `json:"image_version"`
	Editing      bool   `json:"editing"`
	Image        *Image `json:"-"`
}

// HasImage reports whether the dish carries non-empty image bytes.
func (d Dish) HasImage() bool {
	return d.Image != nil && len(d.Image.Data) > 0
}

// WithImage returns a Ready copy of d holding img.
func (d Dish) WithImage(img Image) Dish {
	d.Status = StatusReady
	d.Error = ""
	d.Image = &img
	d.ImageVersion++
	return d
}

// WithFailure returns a Failed copy of d without image data.
func (d Dish) WithFailure(message string) Dish {
	d.Status = StatusFailed
	d.Error = message
	d.Image = nil
	return d
}
