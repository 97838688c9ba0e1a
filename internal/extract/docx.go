package extract

import (
	"archive/zip"
	"encoding/xml"
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

// Docx extracts paragraph text from a .docx file by reading
// word/document.xml out of the zip container. One line per paragraph,
// matching how word processors render the document.
func Docx(path string) (string, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return "", eris.Wrapf(err, "extract: open docx %s", path)
	}
	defer r.Close()

	for _, f := range r.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", eris.Wrap(err, "extract: open document.xml")
		}
		defer rc.Close()
		return docxText(rc)
	}

	return "", eris.Errorf("extract: %s has no word/document.xml", path)
}

func docxText(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)

	var b strings.Builder
	inText := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", eris.Wrap(err, "extract: parse document.xml")
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inText = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				b.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}

	return strings.TrimSpace(b.String()), nil
}
