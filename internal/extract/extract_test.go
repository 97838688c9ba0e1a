package extract

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/joshuamatalon/Cognitive-Companion-Agent/internal/config"
	"github.com/joshuamatalon/Cognitive-Companion-Agent/internal/model"
)

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	e := New(config.ExtractConfig{})
	assert.Equal(t, "pdftotext", e.pdftotext)
	assert.Equal(t, "pdftoppm", e.pdftoppm)
	assert.Equal(t, "tesseract", e.tesseract)
	assert.Equal(t, 10.0, e.ocrDensity)
	assert.Equal(t, 200, e.ocrDPI)
}

func TestPDF_TextLayer(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	pdftotext := writeScript(t, dir, "pdftotext",
		`echo 'The monthly payment is due on the first of each month without exception.'`)

	e := New(config.ExtractConfig{PdfToTextPath: pdftotext})
	text, usedOCR, err := e.PDF(context.Background(), "/tmp/doc.pdf")
	require.NoError(t, err)
	assert.False(t, usedOCR)
	assert.Contains(t, text, "monthly payment")
}

func TestPDF_OCRFallback(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	// Nearly empty text layer forces the OCR path.
	pdftotext := writeScript(t, dir, "pdftotext", `echo 'x'`)
	pdftoppm := writeScript(t, dir, "pdftoppm",
		`prefix="$5"
echo img > "$prefix-1.png"
echo img > "$prefix-2.png"`)
	tesseract := writeScript(t, dir, "tesseract", `echo "scanned page text"`)

	e := New(config.ExtractConfig{
		PdfToTextPath: pdftotext,
		PdfToPpmPath:  pdftoppm,
		TesseractPath: tesseract,
	})
	text, usedOCR, err := e.PDF(context.Background(), "/tmp/scan.pdf")
	require.NoError(t, err)
	assert.True(t, usedOCR)
	assert.Contains(t, text, "scanned page text\nscanned page text")
}

func TestPDF_OCRSkipsFailedPages(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	pdftotext := writeScript(t, dir, "pdftotext", `echo 'x'`)
	pdftoppm := writeScript(t, dir, "pdftoppm",
		`prefix="$5"
echo img > "$prefix-1.png"
echo img > "$prefix-2.png"`)
	// Fails on the first page, succeeds on the second.
	tesseract := writeScript(t, dir, "tesseract",
		`case "$1" in *-1.png) exit 1 ;; esac
echo "page two"`)

	e := New(config.ExtractConfig{
		PdfToTextPath: pdftotext,
		PdfToPpmPath:  pdftoppm,
		TesseractPath: tesseract,
	})
	text, usedOCR, err := e.PDF(context.Background(), "/tmp/scan.pdf")
	require.NoError(t, err)
	assert.True(t, usedOCR)
	assert.Contains(t, text, "page two")
}

func TestPDF_BinaryNotFound(t *testing.T) {
	t.Parallel()

	e := New(config.ExtractConfig{PdfToTextPath: "/nonexistent/pdftotext"})
	_, _, err := e.PDF(context.Background(), "/tmp/doc.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pdftotext failed")
}

func TestTextDensity(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 5.0, textDensity("hello", 1))
	assert.Equal(t, 2.5, textDensity("hello", 2))
	assert.Equal(t, 0.0, textDensity("   \n\f ", 2))
}

func TestPlainText(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "note.txt")
	require.NoError(t, os.WriteFile(path, []byte("plain note\xff content"), 0o644))

	text, err := PlainText(path)
	require.NoError(t, err)
	assert.Equal(t, "plain note content", text)
}

func TestDocx(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "doc.docx")

	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(`<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>First paragraph.</w:t></w:r></w:p>
    <w:p><w:r><w:t>Second </w:t></w:r><w:r><w:t>paragraph.</w:t></w:r></w:p>
  </w:body>
</w:document>`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	text, err := Docx(path)
	require.NoError(t, err)
	assert.Equal(t, "First paragraph.\nSecond paragraph.", text)
}

func TestDocx_MissingDocumentXML(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "bad.docx")

	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	_, err = zw.Create("other.xml")
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	_, err = Docx(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no word/document.xml")
}

func TestSpreadsheet(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "budget.xlsx")

	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Budget")
	require.NoError(t, err)
	row := sheet.AddRow()
	row.AddCell().SetString("rent")
	row.AddCell().SetString("1800")
	row = sheet.AddRow()
	row.AddCell().SetString("loans")
	row.AddCell().SetString("2100")
	require.NoError(t, f.Save(path))

	text, err := Spreadsheet(path)
	require.NoError(t, err)
	assert.Contains(t, text, "Budget")
	assert.Contains(t, text, "rent\t1800")
	assert.Contains(t, text, "loans\t2100")
}

func TestFile_Dispatch(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	txtPath := filepath.Join(dir, "note.txt")
	require.NoError(t, os.WriteFile(txtPath, []byte("a note"), 0o644))

	e := New(config.ExtractConfig{})
	res, err := e.File(context.Background(), txtPath)
	require.NoError(t, err)
	assert.Equal(t, model.TypeText, res.DocType)
	assert.Equal(t, "a note", res.Text)
}

func TestFile_UnsupportedType(t *testing.T) {
	t.Parallel()

	e := New(config.ExtractConfig{})
	_, err := e.File(context.Background(), "/tmp/image.png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported file type")
}
