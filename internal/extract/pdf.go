package extract

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// PDF extracts text via pdftotext. When the extracted text density falls
// below the configured characters-per-page threshold the file is treated as
// scanned and re-processed page by page with pdftoppm + tesseract. The
// second return value reports whether OCR was used.
func (e *Extractor) PDF(ctx context.Context, path string) (string, bool, error) {
	text, err := e.pdfToTextLayout(ctx, path)
	if err != nil {
		return "", false, err
	}

	// pdftotext emits a form feed per page.
	pages := strings.Count(text, "\f") + 1
	if textDensity(text, pages) >= e.ocrDensity {
		return text, false, nil
	}

	zap.L().Info("pdf text density below threshold, falling back to OCR",
		zap.String("file", filepath.Base(path)),
		zap.Int("pages", pages),
	)

	ocrText, err := e.ocrPDF(ctx, path)
	if err != nil {
		return "", false, err
	}
	return ocrText, true, nil
}

func (e *Extractor) pdfToTextLayout(ctx context.Context, path string) (string, error) {
	cmd := exec.CommandContext(ctx, e.pdftotext, "-layout", path, "-")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", eris.Wrapf(err, "extract: pdftotext failed for %s: %s", path, stderr.String())
	}
	return stdout.String(), nil
}

// ocrPDF rasterizes each page with pdftoppm and runs tesseract over the
// images. Pages that fail OCR are skipped rather than failing the document.
func (e *Extractor) ocrPDF(ctx context.Context, path string) (string, error) {
	dir, err := os.MkdirTemp("", "cca-ocr-*")
	if err != nil {
		return "", eris.Wrap(err, "extract: create temp dir")
	}
	defer os.RemoveAll(dir)

	prefix := filepath.Join(dir, "page")
	cmd := exec.CommandContext(ctx, e.pdftoppm, "-r", strconv.Itoa(e.ocrDPI), "-png", path, prefix)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", eris.Wrapf(err, "extract: pdftoppm failed for %s: %s", path, stderr.String())
	}

	images, err := filepath.Glob(prefix + "-*.png")
	if err != nil {
		return "", eris.Wrap(err, "extract: list page images")
	}
	if len(images) == 0 {
		return "", eris.Errorf("extract: pdftoppm produced no pages for %s", path)
	}
	// pdftoppm zero-pads page numbers, so lexicographic order is page order.
	sort.Strings(images)

	var pages []string
	for i, img := range images {
		pageText, err := e.ocrImage(ctx, img)
		if err != nil {
			zap.L().Warn("ocr failed for page",
				zap.String("file", filepath.Base(path)),
				zap.Int("page", i+1),
				zap.Error(err),
			)
			continue
		}
		pages = append(pages, pageText)
	}

	return strings.Join(pages, "\n"), nil
}

func (e *Extractor) ocrImage(ctx context.Context, imagePath string) (string, error) {
	cmd := exec.CommandContext(ctx, e.tesseract, imagePath, "stdout", "-l", "eng")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", eris.Wrapf(err, "extract: tesseract failed: %s", stderr.String())
	}
	return stdout.String(), nil
}

// textDensity returns the number of non-whitespace characters per page.
func textDensity(text string, pages int) float64 {
	if pages <= 0 {
		pages = 1
	}
	chars := 0
	for _, r := range text {
		if !unicode.IsSpace(r) {
			chars++
		}
	}
	return float64(chars) / float64(pages)
}
