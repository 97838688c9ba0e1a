// Package sanitize cleans user-supplied text, queries, filenames, and
// metadata before they reach storage, the vector index, or prompts.
package sanitize

import (
	"fmt"
	"html"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

const (
	// MaxTextLength caps stored memory text.
	MaxTextLength = 10000
	// MaxQueryLength caps search queries.
	MaxQueryLength = 500
	// MaxMetadataKeyLength caps metadata key length.
	MaxMetadataKeyLength = 100
	// MaxMetadataValueLength caps metadata string values.
	MaxMetadataValueLength = 1000
	// MaxPDFBytes caps uploaded PDF size at 50MB.
	MaxPDFBytes = 50 * 1024 * 1024
)

var sqlPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(SELECT|INSERT|UPDATE|DELETE|DROP|CREATE|ALTER|EXEC|EXECUTE)\b`),
	regexp.MustCompile(`--|#|/\*|\*/`),
	regexp.MustCompile(`(?i)\bUNION\b.*\bSELECT\b`),
}

var scriptPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`),
	regexp.MustCompile(`(?i)javascript:`),
	regexp.MustCompile(`(?i)on\w+\s*=`),
	regexp.MustCompile(`(?is)<iframe[^>]*>.*?</iframe>`),
	regexp.MustCompile(`(?i)eval\s*\(`),
}

var traversalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\.\./`),
	regexp.MustCompile(`\.\.`),
	regexp.MustCompile(`(?i)%2e%2e`),
	regexp.MustCompile(`(?i)%252e%252e`),
}

var (
	queryMetaChars = regexp.MustCompile(`[\\^$*+?()\[\]{}|]`)
	unsafeFileChar = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)
	unsafeKeyChar  = regexp.MustCompile(`[^\w\-.]`)
)

// Text sanitizes free-form text for storage: truncates, strips control
// characters, HTML-escapes, and removes injection and traversal patterns.
// Newlines survive; runs of other whitespace collapse to single spaces.
func Text(text string, maxLength int) string {
	if text == "" {
		return ""
	}
	if maxLength <= 0 {
		maxLength = MaxTextLength
	}

	runes := []rune(norm.NFC.String(text))
	if len(runes) > maxLength {
		runes = runes[:maxLength]
	}

	var b strings.Builder
	b.Grow(len(runes))
	for _, r := range runes {
		if r == 0 {
			continue
		}
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			continue
		}
		b.WriteRune(r)
	}
	text = html.EscapeString(b.String())

	for _, p := range sqlPatterns {
		text = p.ReplaceAllString(text, "[REMOVED]")
	}
	for _, p := range scriptPatterns {
		text = p.ReplaceAllString(text, "[REMOVED]")
	}
	for _, p := range traversalPatterns {
		text = p.ReplaceAllString(text, "")
	}

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.Fields(line), " ")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// Query sanitizes a search query: truncates, strips regex metacharacters,
// SQL keywords, quotes, and collapses whitespace.
func Query(query string) string {
	if query == "" {
		return ""
	}

	runes := []rune(query)
	if len(runes) > MaxQueryLength {
		runes = runes[:MaxQueryLength]
	}
	query = queryMetaChars.ReplaceAllString(string(runes), " ")

	for _, p := range sqlPatterns {
		query = p.ReplaceAllString(query, "")
	}

	query = strings.Join(strings.Fields(query), " ")
	query = strings.ReplaceAll(query, `"`, "")
	query = strings.ReplaceAll(query, "'", "")
	return strings.TrimSpace(query)
}

// Filename reduces a filename to a safe base name, replacing dangerous
// characters and stripping traversal sequences. Empty results become
// "unnamed".
func Filename(name string) string {
	if name == "" {
		return "unnamed"
	}

	name = filepath.Base(name)
	name = unsafeFileChar.ReplaceAllString(name, "_")
	for _, p := range traversalPatterns {
		name = p.ReplaceAllString(name, "")
	}

	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	if len(base) > 100 {
		base = base[:100]
	}
	if len(ext) > 10 {
		ext = ext[:10]
	}
	name = base + ext

	if name == "" || name == "." {
		return "unnamed"
	}
	return name
}

// Metadata sanitizes a metadata map: keys restricted to word characters,
// string values cleaned and truncated, numeric values clamped, lists capped
// at 20 entries. At most 50 fields survive.
func Metadata(meta map[string]any) map[string]any {
	if len(meta) == 0 {
		return map[string]any{}
	}

	clean := make(map[string]any, len(meta))
	count := 0
	for key, value := range meta {
		if count >= 50 {
			break
		}
		count++

		cleanKey := Text(key, MaxMetadataKeyLength)
		cleanKey = unsafeKeyChar.ReplaceAllString(cleanKey, "_")
		if cleanKey == "" {
			continue
		}

		clean[cleanKey] = sanitizeValue(value)
	}
	return clean
}

func sanitizeValue(value any) any {
	switch v := value.(type) {
	case string:
		return Text(v, MaxMetadataValueLength)
	case bool:
		return v
	case int:
		return clampInt(int64(v))
	case int64:
		return clampInt(v)
	case float64:
		if v > 1e10 {
			return 1e10
		}
		if v < -1e10 {
			return -1e10
		}
		return v
	case []string:
		out := make([]string, 0, len(v))
		for i, item := range v {
			if i >= 20 {
				break
			}
			out = append(out, Text(item, 200))
		}
		return out
	case []any:
		out := make([]string, 0, len(v))
		for i, item := range v {
			if i >= 20 {
				break
			}
			out = append(out, Text(fmt.Sprint(item), 200))
		}
		return out
	case map[string]any:
		return Metadata(v)
	default:
		return Text(fmt.Sprint(v), 200)
	}
}

func clampInt(v int64) int64 {
	const maxI32, minI32 = int64(1<<31 - 1), int64(-1 << 31)
	if v > maxI32 {
		return maxI32
	}
	if v < minI32 {
		return minI32
	}
	return v
}

// ValidatePDF checks an uploaded PDF payload: size cap, %PDF magic, and a
// .pdf filename. It returns the sanitized filename.
func ValidatePDF(data []byte, filename string) (string, error) {
	if len(data) > MaxPDFBytes {
		return "", fmt.Errorf("file too large (max 50MB)")
	}
	if len(data) < 4 || string(data[:4]) != "%PDF" {
		return "", fmt.Errorf("not a valid PDF file")
	}

	clean := Filename(filename)
	if !strings.HasSuffix(strings.ToLower(clean), ".pdf") {
		return "", fmt.Errorf("invalid filename")
	}
	return clean, nil
}
