package sanitize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestText_Basic(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", Text("", 0))
	assert.Equal(t, "hello world", Text("hello   world", 0))
	assert.Equal(t, "line one\nline two", Text("line  one\nline   two", 0))
}

func TestText_StripsControlCharacters(t *testing.T) {
	t.Parallel()

	got := Text("hel\x00lo\x07 world", 0)
	assert.Equal(t, "hello world", got)
}

func TestText_TruncatesToMaxLength(t *testing.T) {
	t.Parallel()

	got := Text(strings.Repeat("a", 200), 50)
	assert.Len(t, got, 50)
}

func TestText_EscapesHTML(t *testing.T) {
	t.Parallel()

	got := Text("a < b && c > d", 0)
	assert.NotContains(t, got, "<")
	assert.Contains(t, got, "&lt;")
}

func TestText_RemovesSQLKeywords(t *testing.T) {
	t.Parallel()

	got := Text("please DROP TABLE users", 0)
	assert.NotContains(t, got, "DROP")
	assert.Contains(t, got, "[REMOVED]")
}

func TestText_RemovesScriptTags(t *testing.T) {
	t.Parallel()

	got := Text("hi javascript:alert(1) there", 0)
	assert.NotContains(t, strings.ToLower(got), "javascript:")
}

func TestText_RemovesPathTraversal(t *testing.T) {
	t.Parallel()

	got := Text("open ../../etc/passwd now", 0)
	assert.NotContains(t, got, "..")
}

func TestQuery_Basic(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", Query(""))
	assert.Equal(t, "student loan payment", Query("  student   loan payment  "))
}

func TestQuery_StripsRegexMetaAndQuotes(t *testing.T) {
	t.Parallel()

	got := Query(`what is "Phase 1" (really)?`)
	assert.NotContains(t, got, `"`)
	assert.NotContains(t, got, "(")
	assert.NotContains(t, got, "?")
	assert.Contains(t, got, "Phase 1")
}

func TestQuery_TruncatesLongInput(t *testing.T) {
	t.Parallel()

	got := Query(strings.Repeat("q", 600))
	assert.LessOrEqual(t, len(got), MaxQueryLength)
}

func TestQuery_StripsSQL(t *testing.T) {
	t.Parallel()

	got := Query("SELECT secrets; -- sneaky")
	assert.NotContains(t, got, "SELECT")
	assert.NotContains(t, got, "--")
}

func TestFilename(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", "unnamed"},
		{"plain", "report.pdf", "report.pdf"},
		{"path stripped", "/tmp/uploads/report.pdf", "report.pdf"},
		{"dangerous chars", `bad:"name".pdf`, "bad__name_.pdf"},
		{"dot only", ".", "unnamed"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Filename(tt.in))
		})
	}
}

func TestFilename_TraversalRemoved(t *testing.T) {
	t.Parallel()

	got := Filename("..%2e%2e.pdf")
	assert.NotContains(t, got, "..")
	assert.NotContains(t, strings.ToLower(got), "%2e")
}

func TestMetadata(t *testing.T) {
	t.Parallel()

	got := Metadata(map[string]any{
		"source":      "plan.pdf",
		"weird key!":  "value",
		"count":       int64(1) << 40,
		"ratio":       2e12,
		"flag":        true,
		"tags":        []string{"a", "b"},
		"description": "<script>alert(1)</script>",
	})

	assert.Equal(t, "plan.pdf", got["source"])
	_, hasWeird := got["weird_key_"]
	assert.True(t, hasWeird)
	assert.Equal(t, int64(1<<31-1), got["count"])
	assert.Equal(t, 1e10, got["ratio"])
	assert.Equal(t, true, got["flag"])
	assert.Equal(t, []string{"a", "b"}, got["tags"])
	assert.NotContains(t, got["description"], "<script>")
}

func TestMetadata_Empty(t *testing.T) {
	t.Parallel()

	assert.Empty(t, Metadata(nil))
}

func TestMetadata_CapsFieldCount(t *testing.T) {
	t.Parallel()

	meta := make(map[string]any, 80)
	for i := 0; i < 80; i++ {
		meta[strings.Repeat("k", i+1)] = i
	}
	got := Metadata(meta)
	assert.LessOrEqual(t, len(got), 50)
}

func TestValidatePDF(t *testing.T) {
	t.Parallel()

	clean, err := ValidatePDF([]byte("%PDF-1.7 content"), "notes.pdf")
	require.NoError(t, err)
	assert.Equal(t, "notes.pdf", clean)
}

func TestValidatePDF_Rejections(t *testing.T) {
	t.Parallel()

	_, err := ValidatePDF([]byte("not a pdf"), "notes.pdf")
	require.Error(t, err)

	_, err = ValidatePDF([]byte("%PDF-1.7"), "notes.txt")
	require.Error(t, err)

	big := make([]byte, MaxPDFBytes+1)
	copy(big, "%PDF")
	_, err = ValidatePDF(big, "big.pdf")
	require.Error(t, err)
}
