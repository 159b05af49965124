package imagetype

import (
	"errors"
	"net/http"
	"strings"
)

// ErrNotImage is returned when neither the bytes nor the declared type look like a
// supported picture.
var ErrNotImage = errors.New("image type not allowed")

// Resolve picks the MIME type for data. Sniffed content wins over the declared
// value because model responses sometimes omit or misreport it.
func Resolve(data []byte, declared string) (string, error) {
	if len(data) == 0 {
		return "", errors.New("empty image")
	}
	detected := normalize(http.DetectContentType(data))
	if IsImage(detected) {
		return detected, nil
	}
	declared = normalize(declared)
	if IsImage(declared) {
		return declared, nil
	}
	return "", ErrNotImage
}

// IsImage reports whether contentType is one of the formats the service handles.
func IsImage(contentType string) bool {
	switch normalize(contentType) {
	case "image/jpeg", "image/png", "image/webp", "image/gif":
		return true
	default:
		return false
	}
}

// Ext returns the file extension for contentType, defaulting to .jpg.
func Ext(contentType string) string {
	switch normalize(contentType) {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".jpg"
	}
}

// PDFType returns the gofpdf image type name, or "" when the format cannot be
// embedded in a PDF.
func PDFType(contentType string) string {
	switch normalize(contentType) {
	case "image/jpeg":
		return "JPG"
	case "image/png":
		return "PNG"
	case "image/gif":
		return "GIF"
	default:
		return ""
	}
}

func normalize(contentType string) string {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if ct == "image/jpg" {
		return "image/jpeg"
	}
	return ct
}
