package report

import (
	"bytes"
	"fmt"

	"github.com/google/uuid"
	"github.com/jung-kurt/gofpdf"

	"github.com/Ichinga-Samuel/MonieWatch/internal/aggregator"
)

// Artifact is a rendered report file ready for upload.
type Artifact struct {
	Name string
	Data []byte
}

// PDFRenderer renders a report draft into a PDF artifact.
type PDFRenderer struct{}

// NewPDFRenderer creates a PDF renderer.
func NewPDFRenderer() *PDFRenderer {
	return &PDFRenderer{}
}

// Render produces the PDF for a draft. The artifact name embeds the report
// date and a short random suffix so repeated runs never collide in storage.
func (r *PDFRenderer) Render(draft *aggregator.ReportDraft) (*Artifact, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "B", 14)
	pdf.AddPage()

	pdf.Cell(0, 8, draft.Title)
	pdf.Ln(10)

	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Period: %s to %s",
		draft.StartDate.Format("2006-01-02"), draft.EndDate.Format("2006-01-02")))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Agents: %d", len(draft.Agents)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Target: %s", draft.Target.StringFixed(2)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Total: %s", draft.Total().StringFixed(2)))
	pdf.Ln(8)

	agentNames := make(map[int64]string, len(draft.Agents))
	for _, a := range draft.Agents {
		agentNames[a.AgentID] = a.Name
	}

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(55, 6, "Reference", "1", 0, "C", false, 0, "")
	pdf.CellFormat(55, 6, "Agent", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 6, "Amount", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 6, "Time", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	for _, tx := range draft.Transactions {
		pdf.CellFormat(55, 6, tx.Reference, "1", 0, "L", false, 0, "")
		pdf.CellFormat(55, 6, agentNames[tx.AgentID], "1", 0, "L", false, 0, "")
		pdf.CellFormat(40, 6, tx.Amount.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.CellFormat(40, 6, tx.Timestamp.Format("01-02 15:04"), "1", 0, "C", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}

	name := fmt.Sprintf("report-%s-%s.pdf",
		draft.StartDate.Format("2006-01-02"), uuid.NewString()[:8])
	return &Artifact{Name: name, Data: buf.Bytes()}, nil
}
