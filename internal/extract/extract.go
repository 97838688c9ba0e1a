// Package extract pulls plain text out of uploaded documents. PDFs go
// through poppler's pdftotext with an OCR fallback for scanned files;
// docx, xlsx, and plain text are handled natively.
package extract

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/joshuamatalon/Cognitive-Companion-Agent/internal/config"
	"github.com/joshuamatalon/Cognitive-Companion-Agent/internal/model"
)

// Result is the extracted text of a single document.
type Result struct {
	Text    string
	DocType string
	UsedOCR bool
}

// Extractor extracts document text using explicit binary paths for the
// external tools. Bare names fall back to PATH lookup at exec time.
type Extractor struct {
	pdftotext  string
	pdftoppm   string
	tesseract  string
	ocrDensity float64
	ocrDPI     int
}

// New creates an Extractor from config, filling in defaults for unset fields.
func New(cfg config.ExtractConfig) *Extractor {
	e := &Extractor{
		pdftotext:  cfg.PdfToTextPath,
		pdftoppm:   cfg.PdfToPpmPath,
		tesseract:  cfg.TesseractPath,
		ocrDensity: cfg.OCRDensity,
		ocrDPI:     cfg.OCRDPI,
	}
	if e.pdftotext == "" {
		e.pdftotext = "pdftotext"
	}
	if e.pdftoppm == "" {
		e.pdftoppm = "pdftoppm"
	}
	if e.tesseract == "" {
		e.tesseract = "tesseract"
	}
	if e.ocrDensity <= 0 {
		e.ocrDensity = 10.0
	}
	if e.ocrDPI <= 0 {
		e.ocrDPI = 200
	}
	return e
}

// File extracts text from path, dispatching on the file extension.
// Supported: .pdf, .txt, .md, .docx, .xlsx.
func (e *Extractor) File(ctx context.Context, path string) (*Result, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		text, usedOCR, err := e.PDF(ctx, path)
		if err != nil {
			return nil, err
		}
		return &Result{Text: text, DocType: model.TypePDF, UsedOCR: usedOCR}, nil
	case ".txt", ".md":
		text, err := PlainText(path)
		if err != nil {
			return nil, err
		}
		return &Result{Text: text, DocType: model.TypeText}, nil
	case ".docx":
		text, err := Docx(path)
		if err != nil {
			return nil, err
		}
		return &Result{Text: text, DocType: model.TypeDocx}, nil
	case ".xlsx":
		text, err := Spreadsheet(path)
		if err != nil {
			return nil, err
		}
		return &Result{Text: text, DocType: model.TypeSpreadsheet}, nil
	default:
		return nil, eris.Errorf("extract: unsupported file type %q", filepath.Ext(path))
	}
}

// PlainText reads a text file, dropping invalid UTF-8 sequences.
func PlainText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", eris.Wrapf(err, "extract: read %s", path)
	}
	return strings.ToValidUTF8(string(data), ""), nil
}
