package credentials

import (
	"bytes"
	"fmt"
	"time"

	"github.com/go-pdf/fpdf"
)

// PassData is everything printed on a pass.
type PassData struct {
	OrgName     string
	EventName   string
	Venue       string
	EventDate   time.Time
	FullName    string
	Contact     string
	Email       string
	Address     string
	QR          []byte // PNG
	ReferenceID string
}

const instructions = "Present this pass at the registration desk. The QR code is scanned " +
	"on arrival to record your attendance. This pass is personal and non-transferable."

// RenderPass lays out a single A4 page.
func RenderPass(d PassData) ([]byte, error) {
	if len(d.QR) == 0 {
		return nil, fmt.Errorf("%w: missing QR image", ErrGeneration)
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Event pass - "+d.EventName, true)
	pdf.SetMargins(20, 20, 20)
	pdf.AddPage()

	// header band
	pdf.SetFillColor(22, 61, 122)
	pdf.Rect(0, 0, 210, 34, "F")
	pdf.SetTextColor(255, 255, 255)
	pdf.SetFont("Helvetica", "B", 20)
	pdf.SetXY(20, 10)
	pdf.CellFormat(170, 10, d.OrgName, "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	pdf.SetX(20)
	pdf.CellFormat(170, 6, "Official event pass", "", 1, "L", false, 0, "")

	pdf.SetTextColor(0, 0, 0)
	pdf.SetXY(20, 45)
	pdf.SetFont("Helvetica", "B", 16)
	pdf.MultiCell(170, 8, d.EventName, "", "L", false)
	pdf.SetFont("Helvetica", "", 12)
	pdf.SetX(20)
	pdf.CellFormat(170, 7, "Venue: "+d.Venue, "", 1, "L", false, 0, "")
	if !d.EventDate.IsZero() {
		pdf.SetX(20)
		pdf.CellFormat(170, 7, "Date: "+d.EventDate.Format("Monday, 02 January 2006 15:04"), "", 1, "L", false, 0, "")
	}

	pdf.Ln(6)
	pdf.SetFont("Helvetica", "B", 13)
	pdf.SetX(20)
	pdf.CellFormat(170, 8, "Participant", "B", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 12)
	for _, row := range [][2]string{
		{"Name", d.FullName},
		{"Contact", d.Contact},
		{"Email", d.Email},
		{"Address", d.Address},
	} {
		pdf.SetX(20)
		pdf.CellFormat(30, 7, row[0]+":", "", 0, "L", false, 0, "")
		pdf.MultiCell(140, 7, row[1], "", "L", false)
	}

	pdf.RegisterImageOptionsReader("qr", fpdf.ImageOptions{ImageType: "PNG"}, bytes.NewReader(d.QR))
	pdf.ImageOptions("qr", 65, pdf.GetY()+10, 80, 80, false, fpdf.ImageOptions{ImageType: "PNG"}, 0, "")
	pdf.SetY(pdf.GetY() + 95)
	pdf.SetFont("Helvetica", "", 9)
	pdf.SetX(20)
	pdf.CellFormat(170, 5, "Reference: "+d.ReferenceID, "", 1, "C", false, 0, "")

	pdf.Ln(4)
	pdf.SetFont("Helvetica", "I", 10)
	pdf.SetX(20)
	pdf.MultiCell(170, 5, instructions, "", "C", false)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	if buf.Len() == 0 {
		return nil, fmt.Errorf("%w: empty PDF", ErrGeneration)
	}
	return buf.Bytes(), nil
}
