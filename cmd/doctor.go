package main

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/joshuamatalon/Cognitive-Companion-Agent/internal/config"
)

// binaryCheck verifies one external tool by running its version flag and
// checking the exit code. A binary that exists but cannot report a version
// counts as broken.
type binaryCheck struct {
	Name        string
	Path        string
	VersionFlag string
	Remedy      string
	// Exit codes accepted as "responds to its version flag". Poppler tools
	// exit 99 after printing their version.
	OKCodes []int
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check external binaries and API credentials",
	Long:  "Verifies the OCR toolchain (pdftotext, pdftoppm, tesseract) responds to its version flag and that API keys are configured. Exits 1 when any check fails.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		failed := 0

		fmt.Println("Binaries:")
		for _, c := range []binaryCheck{
			{"pdftotext", cfg.Extract.PdfToTextPath, "-v", "install poppler-utils (apt install poppler-utils / brew install poppler)", []int{0, 99}},
			{"pdftoppm", cfg.Extract.PdfToPpmPath, "-v", "install poppler-utils (apt install poppler-utils / brew install poppler)", []int{0, 99}},
			{"tesseract", cfg.Extract.TesseractPath, "--version", "install tesseract-ocr (apt install tesseract-ocr / brew install tesseract)", []int{0}},
		} {
			if err := checkBinary(ctx, c); err != nil {
				fmt.Printf("  [FAIL] %-10s %v\n         fix: %s\n", c.Name, err, c.Remedy)
				failed++
			} else {
				fmt.Printf("  [ OK ] %-10s %s\n", c.Name, c.Path)
			}
		}

		fmt.Println("\nCredentials:")
		if errs := cfg.Validate(); len(errs) > 0 {
			for _, e := range errs {
				fmt.Printf("  [FAIL] %s\n", e)
			}
			fmt.Println("         fix: copy .env.example to .env and add your keys")
			failed += len(errs)
		} else {
			fmt.Printf("  [ OK ] OPENAI_API_KEY    %s\n", config.MaskKey(cfg.OpenAI.Key))
			fmt.Printf("  [ OK ] PINECONE_API_KEY  %s\n", config.MaskKey(cfg.Pinecone.Key))
		}

		if failed > 0 {
			return eris.Errorf("%d checks failed", failed)
		}
		fmt.Println("\nAll checks passed.")
		return nil
	},
}

// checkBinary runs the tool's version flag and requires an accepted exit
// code. Output content is not parsed; only the exit status matters.
func checkBinary(ctx context.Context, c binaryCheck) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, c.Path, c.VersionFlag).CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			for _, code := range c.OKCodes {
				if exitErr.ExitCode() == code {
					return nil
				}
			}
			if len(out) > 0 {
				return eris.Errorf("version check failed: %s", strings.TrimSpace(firstLine(string(out))))
			}
			return eris.Errorf("version check exited %d", exitErr.ExitCode())
		}
		return eris.Wrap(err, "not runnable")
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}
