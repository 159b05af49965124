package api

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
	"go.uber.org/zap"

	"foodphotographer/internal/httpx"
	"foodphotographer/internal/lib/imagetype"
	"foodphotographer/internal/menu"
	"foodphotographer/internal/studio"
)

// A4 portrait, millimetres.
const (
	sheetMargin    = 15.0
	sheetPageH     = 297.0
	sheetThumbW    = 64.0
	sheetThumbH    = 48.0
	sheetRowGap    = 6.0
	sheetTextX     = sheetMargin + sheetThumbW + 6
	sheetTextW     = 210.0 - sheetTextX - sheetMargin
	sheetNameLineH = 6.0
	sheetDescLineH = 5.0
	sheetNameLines = 2
)

func (s *Server) handleContactSheet(w http.ResponseWriter, r *http.Request) {
	sess, _ := sessionFromContext(r.Context())
	st := sess.Snapshot()

	images := make(map[string]menu.Image, len(st.Dishes))
	for _, d := range st.Dishes {
		full, ok := sess.Dish(d.ID)
		if ok && full.Status == menu.StatusReady && full.HasImage() {
			images[d.ID] = *full.Image
		}
	}

	pdfBytes, err := renderContactSheet(st, images, time.Now())
	if err != nil {
		s.log.Error("contact sheet render failed", zap.String("session", st.ID), zap.Error(err))
		httpx.WriteError(w, http.StatusInternalServerError, "Could not build the contact sheet.")
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="contact-sheet.pdf"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(pdfBytes)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdfBytes)
}

// renderContactSheet lays out one row per dish: the photo on the left, name and
// description on the right. Dishes without a usable photo get a labelled frame.
func renderContactSheet(st studio.State, images map[string]menu.Image, now time.Time) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(sheetMargin, sheetMargin, sheetMargin)
	pdf.SetAutoPageBreak(false, sheetMargin)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont("Helvetica", "", 8)
		pdf.SetTextColor(150, 150, 150)
		pdf.CellFormat(0, 5, fmt.Sprintf("Page %d", pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 20)
	pdf.SetTextColor(0, 0, 0)
	pdf.Cell(0, 10, "Menu photo contact sheet")
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "", 10)
	pdf.SetTextColor(102, 102, 102)
	pdf.Cell(0, 5, tr(fmt.Sprintf("Style: %s  |  Dishes: %d  |  %s", st.Style.Label(), len(st.Dishes), now.UTC().Format("2006-01-02 15:04 UTC"))))
	pdf.Ln(8)

	pdf.SetDrawColor(200, 200, 200)
	pdf.Line(sheetMargin, pdf.GetY(), 210-sheetMargin, pdf.GetY())
	pdf.Ln(6)

	if len(st.Dishes) == 0 {
		pdf.SetFont("Helvetica", "I", 11)
		pdf.Cell(0, 6, "No dishes yet.")
	}

	for _, d := range st.Dishes {
		pdf.SetFont("Helvetica", "B", 13)
		name := clipLines(pdf, tr(d.Name), sheetTextW, sheetNameLines)
		pdf.SetFont("Helvetica", "", 10)
		descRoom := int((sheetThumbH - float64(len(name))*sheetNameLineH) / sheetDescLineH)
		desc := clipLines(pdf, tr(d.Description), sheetTextW, descRoom)

		textH := float64(len(name))*sheetNameLineH + float64(len(desc))*sheetDescLineH
		rowH := max(sheetThumbH, textH) + sheetRowGap
		if pdf.GetY()+rowH > sheetPageH-sheetMargin-8 {
			pdf.AddPage()
		}
		y := pdf.GetY()

		img, ok := images[d.ID]
		if !ok || !drawThumb(pdf, d, img, y) {
			drawPlaceholder(pdf, y, placeholderText(d))
		}

		pdf.SetXY(sheetTextX, y)
		pdf.SetFont("Helvetica", "B", 13)
		pdf.SetTextColor(0, 0, 0)
		for _, line := range name {
			pdf.SetX(sheetTextX)
			pdf.CellFormat(sheetTextW, sheetNameLineH, line, "", 2, "L", false, 0, "")
		}
		pdf.SetFont("Helvetica", "", 10)
		pdf.SetTextColor(51, 51, 51)
		for _, line := range desc {
			pdf.SetX(sheetTextX)
			pdf.CellFormat(sheetTextW, sheetDescLineH, line, "", 2, "L", false, 0, "")
		}

		pdf.SetY(y + rowH)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// clipLines wraps text to width w in the current font and keeps at most maxLines,
// ending the last kept line with an ellipsis when text was cut.
func clipLines(pdf *gofpdf.Fpdf, text string, w float64, maxLines int) []string {
	text = strings.TrimSpace(text)
	if text == "" || maxLines <= 0 {
		return nil
	}
	raw := pdf.SplitLines([]byte(text), w)
	lines := make([]string, 0, min(len(raw), maxLines))
	for i, b := range raw {
		if i == maxLines {
			break
		}
		lines = append(lines, string(b))
	}
	if len(raw) <= maxLines {
		return lines
	}
	last := strings.TrimRight(lines[maxLines-1], " ")
	for last != "" && pdf.GetStringWidth(last+"...") > w {
		last = strings.TrimRight(last[:len(last)-1], " ")
	}
	lines[maxLines-1] = last + "..."
	return lines
}

// drawThumb embeds img if gofpdf can read it.
func drawThumb(pdf *gofpdf.Fpdf, d menu.Dish, img menu.Image, y float64) bool {
	imgType := imagetype.PDFType(img.MIMEType)
	if imgType == "" {
		return false
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(img.Data)); err != nil {
		return false
	}
	name := fmt.Sprintf("%s-%d", d.ID, d.ImageVersion)
	opts := gofpdf.ImageOptions{ImageType: imgType}
	pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(img.Data))
	if pdf.Err() {
		pdf.ClearError()
		return false
	}
	pdf.ImageOptions(name, sheetMargin, y, sheetThumbW, sheetThumbH, false, opts, 0, "")
	return true
}

func drawPlaceholder(pdf *gofpdf.Fpdf, y float64, label string) {
	pdf.SetFillColor(245, 245, 245)
	pdf.SetDrawColor(200, 200, 200)
	pdf.Rect(sheetMargin, y, sheetThumbW, sheetThumbH, "FD")
	pdf.SetXY(sheetMargin, y+sheetThumbH/2-3)
	pdf.SetFont("Helvetica", "I", 9)
	pdf.SetTextColor(150, 150, 150)
	pdf.CellFormat(sheetThumbW, 6, label, "", 0, "C", false, 0, "")
}

func placeholderText(d menu.Dish) string {
	switch d.Status {
	case menu.StatusFailed:
		return "Image generation failed"
	case menu.StatusGenerating, menu.StatusPending:
		return "Image still generating"
	default:
		return "Image unavailable"
	}
}
