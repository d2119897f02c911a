package export

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/pr-poehali-dev/speech-parts-drawing/internal/domain"
)

const (
	pageMargin = 15.0
	tileWidth  = 85.0
	tileGap    = 10.0
	fontFamily = "go"
)

// Gallery is everything printed into the PDF
type Gallery struct {
	Title       string
	Parts       []domain.SpeechPart
	PartImages  map[string][]byte // generated avatar per part id, any decodable format
	Drawings    []domain.Drawing  // with PNG loaded
	Avatars     []domain.Avatar
	GeneratedAt time.Time
}

// GalleryPDF renders the session gallery as an A4 document.
func GalleryPDF(w io.Writer, g Gallery) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddUTF8FontFromBytes(fontFamily, "", goregular.TTF)
	pdf.AddUTF8FontFromBytes(fontFamily, "B", gobold.TTF)
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(true, pageMargin)

	title := g.Title
	if title == "" {
		title = "Части речи"
	}
	pdf.SetTitle(title, true)
	pdf.SetFooterFunc(func() {
		pdf.SetY(-10)
		pdf.SetFont(fontFamily, "", 8)
		pdf.SetTextColor(128, 128, 128)
		pdf.CellFormat(0, 5, fmt.Sprintf("%d", pdf.PageNo()), "", 0, "C", false, 0, "")
	})

	pdf.AddPage()
	pdf.SetFont(fontFamily, "B", 20)
	pdf.CellFormat(0, 10, title, "", 1, "L", false, 0, "")
	if !g.GeneratedAt.IsZero() {
		pdf.SetFont(fontFamily, "", 9)
		pdf.SetTextColor(110, 110, 110)
		pdf.CellFormat(0, 5, g.GeneratedAt.Format("02.01.2006 15:04"), "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	writeParts(pdf, g.Parts, g.PartImages)
	if err := writeDrawings(pdf, g.Drawings); err != nil {
		return err
	}
	writeAvatars(pdf, g.Avatars)

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

func heading(pdf *gofpdf.Fpdf, text string) {
	_, pageH := pdf.GetPageSize()
	if pdf.GetY()+20 > pageH-pageMargin {
		pdf.AddPage()
	}
	pdf.SetFont(fontFamily, "B", 14)
	pdf.SetTextColor(0, 0, 0)
	pdf.CellFormat(0, 8, text, "", 1, "L", false, 0, "")
	pdf.Ln(2)
}

func emptyNote(pdf *gofpdf.Fpdf, text string) {
	pdf.SetFont(fontFamily, "", 10)
	pdf.SetTextColor(128, 128, 128)
	pdf.CellFormat(0, 6, text, "", 1, "L", false, 0, "")
	pdf.Ln(4)
}

func setFill(pdf *gofpdf.Fpdf, hex string) {
	c, err := colorful.Hex(hex)
	if err != nil {
		pdf.SetFillColor(200, 200, 200)
		return
	}
	r, g, b := c.RGB255()
	pdf.SetFillColor(int(r), int(g), int(b))
}

// registerPNG normalises data to PNG and registers it under name. It returns
// the pixel size.
func registerPNG(pdf *gofpdf.Fpdf, name string, data []byte, maxSide int) (float64, float64, error) {
	thumb, err := Thumbnail(data, maxSide)
	if err != nil {
		return 0, 0, err
	}
	info := pdf.RegisterImageOptionsReader(name, gofpdf.ImageOptions{ImageType: "PNG"}, bytes.NewReader(thumb))
	if pdf.Err() {
		return 0, 0, fmt.Errorf("register image %s: %w", name, pdf.Error())
	}
	return info.Width(), info.Height(), nil
}

func writeParts(pdf *gofpdf.Fpdf, parts []domain.SpeechPart, images map[string][]byte) {
	if len(parts) == 0 {
		return
	}
	heading(pdf, "Части речи")
	pageW, pageH := pdf.GetPageSize()

	for _, p := range parts {
		if pdf.GetY()+26 > pageH-pageMargin {
			pdf.AddPage()
		}
		y := pdf.GetY()
		setFill(pdf, p.Color)
		pdf.Rect(pageMargin, y, 4, 22, "F")

		textX := pageMargin + 8
		if data, ok := images[p.ID]; ok && len(data) > 0 {
			// undecodable pictures are skipped, the card is still printed
			name := "part-" + p.ID
			if thumb, err := Thumbnail(data, 256); err == nil {
				pdf.RegisterImageOptionsReader(name, gofpdf.ImageOptions{ImageType: "PNG"}, bytes.NewReader(thumb))
				pdf.ImageOptions(name, textX, y, 22, 22, false, gofpdf.ImageOptions{ImageType: "PNG"}, 0, "")
				textX += 26
			}
		}
		textW := pageW - pageMargin - textX

		pdf.SetXY(textX, y)
		pdf.SetFont(fontFamily, "B", 12)
		pdf.SetTextColor(0, 0, 0)
		kind := "служебная"
		if p.Independent {
			kind = "самостоятельная"
		}
		pdf.CellFormat(textW, 6, p.Name+" ("+kind+")", "", 2, "L", false, 0, "")

		pdf.SetFont(fontFamily, "", 9)
		pdf.SetTextColor(60, 60, 60)
		pdf.MultiCell(textW, 4.5, p.Description, "", "L", false)
		if len(p.Examples) > 0 {
			pdf.SetX(textX)
			pdf.SetTextColor(110, 110, 110)
			pdf.MultiCell(textW, 4.5, "Примеры: "+strings.Join(p.Examples, ", "), "", "L", false)
		}
		pdf.SetY(max(pdf.GetY(), y+22) + 4)
	}
	pdf.Ln(2)
}

func writeDrawings(pdf *gofpdf.Fpdf, drawings []domain.Drawing) error {
	heading(pdf, "Рисунки")
	if len(drawings) == 0 {
		emptyNote(pdf, "Рисунков пока нет")
		return nil
	}
	_, pageH := pdf.GetPageSize()

	for i := 0; i < len(drawings); i += 2 {
		row := drawings[i:min(i+2, len(drawings))]

		type tile struct {
			name string
			h    float64
		}
		tiles := make([]tile, len(row))
		rowH := 0.0
		for j, d := range row {
			name := "drawing-" + d.ID
			w, h, err := registerPNG(pdf, name, d.PNG, 1200)
			if err != nil {
				return fmt.Errorf("drawing %s: %w", d.ID, err)
			}
			th := tileWidth * h / w
			tiles[j] = tile{name: name, h: th}
			rowH = max(rowH, th)
		}

		if pdf.GetY()+rowH+14 > pageH-pageMargin {
			pdf.AddPage()
		}
		y := pdf.GetY()
		for j, d := range row {
			x := pageMargin + float64(j)*(tileWidth+tileGap)
			pdf.SetDrawColor(210, 210, 210)
			pdf.Rect(x, y, tileWidth, tiles[j].h, "D")
			pdf.ImageOptions(tiles[j].name, x, y, tileWidth, tiles[j].h, false, gofpdf.ImageOptions{ImageType: "PNG"}, 0, "")

			pdf.SetXY(x, y+tiles[j].h+1)
			pdf.SetFont(fontFamily, "B", 10)
			pdf.SetTextColor(0, 0, 0)
			pdf.CellFormat(tileWidth, 5, d.Label, "", 2, "L", false, 0, "")
			pdf.SetFont(fontFamily, "", 8)
			pdf.SetTextColor(120, 120, 120)
			pdf.CellFormat(tileWidth, 4, d.CreatedAt.Local().Format("02.01.2006 15:04"), "", 0, "L", false, 0, "")
		}
		pdf.SetXY(pageMargin, y+rowH+14)
	}
	return nil
}

func writeAvatars(pdf *gofpdf.Fpdf, avatars []domain.Avatar) {
	heading(pdf, "Аватарки")
	if len(avatars) == 0 {
		emptyNote(pdf, "Аватарок пока нет")
		return
	}
	pageW, pageH := pdf.GetPageSize()
	textW := pageW - 2*pageMargin - 14

	for _, a := range avatars {
		if pdf.GetY()+14 > pageH-pageMargin {
			pdf.AddPage()
		}
		y := pdf.GetY()
		setFill(pdf, a.Color)
		pdf.Rect(pageMargin, y, 10, 10, "F")

		pdf.SetXY(pageMargin+14, y)
		pdf.SetFont(fontFamily, "B", 11)
		pdf.SetTextColor(0, 0, 0)
		pdf.CellFormat(textW, 5, a.Name, "", 2, "L", false, 0, "")
		pdf.SetFont(fontFamily, "", 9)
		pdf.SetTextColor(90, 90, 90)
		line := a.PartLabel
		if a.Description != "" {
			line += ". " + a.Description
		}
		pdf.MultiCell(textW, 4.5, line, "", "L", false)
		pdf.SetY(max(pdf.GetY(), y+10) + 3)
	}
}
