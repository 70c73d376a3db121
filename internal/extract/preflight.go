package extract

import (
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PreflightPDF verifies a PDF opens and has at least one page before an
// upstream analyze call is spent on it. Non-PDF files pass through.
func PreflightPDF(path string) error {
	if !strings.HasSuffix(strings.ToLower(path), ".pdf") {
		return nil
	}
	f, reader, err := pdf.Open(path)
	if err != nil {
		return fmt.Errorf("unreadable pdf: %w", err)
	}
	defer f.Close()

	if reader.NumPage() < 1 {
		return fmt.Errorf("pdf has no pages")
	}
	return nil
}
