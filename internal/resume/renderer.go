package resume

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/go-pdf/fpdf"

	"jobsift/pkg/models"
)

const (
	pageMargin    = 18.0
	bodyFontSize  = 10.0
	lineHeight    = 5.0
	sectionGap    = 4.0
	headingHeight = 7.0
)

// Renderer converts a resume document into a single-column A4 PDF. Sections
// with no content are omitted entirely rather than rendered as placeholders.
type Renderer struct{}

// NewRenderer creates a PDF renderer.
func NewRenderer() *Renderer {
	return &Renderer{}
}

// Render produces the PDF bytes for the document.
func (r *Renderer) Render(doc *models.ResumeDocument) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(true, pageMargin)
	pdf.AddPage()

	r.renderHeader(pdf, doc)

	if strings.TrimSpace(doc.Summary) != "" {
		r.renderSection(pdf, "Summary")
		pdf.SetFont("Helvetica", "", bodyFontSize)
		pdf.MultiCell(0, lineHeight, doc.Summary, "", "L", false)
	}

	if len(doc.Skills) > 0 {
		r.renderSection(pdf, "Skills")
		pdf.SetFont("Helvetica", "", bodyFontSize)
		pdf.MultiCell(0, lineHeight, strings.Join(doc.Skills, ", "), "", "L", false)
	}

	if len(doc.Experience) > 0 {
		r.renderSection(pdf, "Experience")
		for _, item := range doc.Experience {
			r.renderExperience(pdf, item)
		}
	}

	if len(doc.Education) > 0 {
		r.renderSection(pdf, "Education")
		pdf.SetFont("Helvetica", "", bodyFontSize)
		for _, item := range doc.Education {
			r.ensureSpace(pdf, lineHeight*2)
			line := item.Institution
			if item.Degree != "" {
				line += " - " + item.Degree
			}
			if item.Year != "" {
				line += " (" + item.Year + ")"
			}
			pdf.MultiCell(0, lineHeight, line, "", "L", false)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render resume PDF: %w", err)
	}
	return buf.Bytes(), nil
}

func (r *Renderer) renderHeader(pdf *fpdf.Fpdf, doc *models.ResumeDocument) {
	name := strings.TrimSpace(doc.Name)
	if name == "" {
		name = "Candidate"
	}
	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 9, name, "", 1, "L", false, 0, "")

	var contact []string
	for _, part := range []string{doc.Email, doc.Phone, doc.Location} {
		if strings.TrimSpace(part) != "" {
			contact = append(contact, part)
		}
	}
	if len(contact) > 0 {
		pdf.SetFont("Helvetica", "", bodyFontSize)
		pdf.SetTextColor(90, 90, 90)
		pdf.CellFormat(0, lineHeight, strings.Join(contact, "  |  "), "", 1, "L", false, 0, "")
		pdf.SetTextColor(0, 0, 0)
	}
}

func (r *Renderer) renderSection(pdf *fpdf.Fpdf, title string) {
	r.ensureSpace(pdf, headingHeight+lineHeight*2)
	pdf.Ln(sectionGap)
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(0, headingHeight, title, "B", 1, "L", false, 0, "")
	pdf.Ln(1.5)
}

func (r *Renderer) renderExperience(pdf *fpdf.Fpdf, item models.ExperienceItem) {
	// Keep the entry heading and at least one highlight line together.
	r.ensureSpace(pdf, lineHeight*3)

	heading := item.Title
	if item.Company != "" {
		heading += ", " + item.Company
	}
	pdf.SetFont("Helvetica", "B", bodyFontSize)
	pdf.CellFormat(0, lineHeight, heading, "", 1, "L", false, 0, "")

	if item.Period != "" {
		pdf.SetFont("Helvetica", "I", bodyFontSize-1)
		pdf.CellFormat(0, lineHeight-1, item.Period, "", 1, "L", false, 0, "")
	}

	pdf.SetFont("Helvetica", "", bodyFontSize)
	for _, highlight := range item.Highlights {
		if strings.TrimSpace(highlight) == "" {
			continue
		}
		r.ensureSpace(pdf, lineHeight)
		pdf.SetX(pageMargin + 3)
		pdf.MultiCell(0, lineHeight, "- "+highlight, "", "L", false)
	}
	pdf.Ln(1.5)
}

// ensureSpace starts a new page when less than needed vertical space remains,
// so section headings never orphan at the bottom of a page.
func (r *Renderer) ensureSpace(pdf *fpdf.Fpdf, needed float64) {
	_, pageHeight := pdf.GetPageSize()
	if pdf.GetY()+needed > pageHeight-pageMargin {
		pdf.AddPage()
	}
}
