package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"course-marketplace/models"

	"github.com/jung-kurt/gofpdf"
)

// PDFCertificateIssuer writes completion certificates as landscape A4 PDFs
// under dir, one file per enrollment.
type PDFCertificateIssuer struct {
	dir string
}

func NewPDFCertificateIssuer(dir string) *PDFCertificateIssuer {
	return &PDFCertificateIssuer{dir: dir}
}

func (c *PDFCertificateIssuer) Issue(ctx context.Context, e *models.Enrollment, course *models.Course, recipient string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating certificate directory: %w", err)
	}
	if recipient == "" {
		recipient = e.StudentID
	}

	issuedAt := e.UpdatedAt
	if e.CertificateIssuedAt != nil {
		issuedAt = *e.CertificateIssuedAt
	}

	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetTitle("Certificate of Completion", false)
	pdf.AddPage()

	pdf.SetLineWidth(1.5)
	pdf.Rect(10, 10, 277, 190, "D")

	pdf.SetFont("Arial", "B", 32)
	pdf.SetY(45)
	pdf.CellFormat(0, 15, "Certificate of Completion", "", 1, "C", false, 0, "")

	pdf.SetFont("Arial", "", 16)
	pdf.Ln(10)
	pdf.CellFormat(0, 10, "This certifies that", "", 1, "C", false, 0, "")

	pdf.SetFont("Arial", "B", 22)
	pdf.CellFormat(0, 14, recipient, "", 1, "C", false, 0, "")

	pdf.SetFont("Arial", "", 16)
	pdf.CellFormat(0, 10, "has successfully completed the course", "", 1, "C", false, 0, "")

	pdf.SetFont("Arial", "B", 20)
	pdf.CellFormat(0, 14, course.Title, "", 1, "C", false, 0, "")

	pdf.SetFont("Arial", "", 12)
	pdf.Ln(15)
	pdf.CellFormat(0, 8, "Issued on "+issuedAt.Format("02 January 2006"), "", 1, "C", false, 0, "")
	pdf.CellFormat(0, 8, "Certificate ID: "+e.ID, "", 1, "C", false, 0, "")

	fileName := filepath.Join(c.dir, fmt.Sprintf("certificate_%s.pdf", e.ID))
	if err := pdf.OutputFileAndClose(fileName); err != nil {
		return "", fmt.Errorf("error writing certificate: %w", err)
	}
	return fileName, nil
}
