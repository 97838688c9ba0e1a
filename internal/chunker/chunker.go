// Package chunker splits document text into overlapping chunks sized for
// embedding, breaking at sentence boundaries when possible so facts are not
// cut mid-sentence.
package chunker

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/joshuamatalon/Cognitive-Companion-Agent/internal/model"
)

const (
	// DefaultChunkSize is the target chunk length in characters.
	DefaultChunkSize = 1200
	// DefaultOverlap is the number of characters repeated between adjacent
	// chunks to preserve context across boundaries.
	DefaultOverlap = 200
)

var (
	numberPattern     = regexp.MustCompile(`\$?[\d,]+(\.\d{2})?`)
	percentPattern    = regexp.MustCompile(`\d+(\.\d+)?%`)
	timePeriodPattern = regexp.MustCompile(`\d+[-–]\d+\s*(month|year|week|day)s?`)
)

// SmartChunks splits text into overlapping chunks of roughly size characters.
// It prefers sentence boundaries, falls back to word boundaries, and hard-cuts
// only when a chunk contains neither. Empty or whitespace-only input yields
// no chunks.
func SmartChunks(text string, size, overlap int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = DefaultOverlap
	}

	text = strings.ReplaceAll(text, "\x00", "")
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	runes := []rune(text)
	if len(runes) <= size {
		return []string{text}
	}

	var chunks []string
	pos := 0
	for pos < len(runes) {
		end := pos + size
		if end > len(runes) {
			end = len(runes)
		}

		if end < len(runes) {
			if se := lastSentenceEnd(runes, pos, end); se > pos {
				end = se
			} else if sp := lastSpace(runes, pos, end); sp > pos {
				end = sp
			}
		}

		chunk := strings.TrimSpace(string(runes[pos:end]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}

		if end >= len(runes) {
			break
		}

		next := end - overlap
		if next <= pos {
			next = end
		}
		pos = next
	}

	return chunks
}

// lastSentenceEnd returns the index just past the last ".", "!" or "?"
// followed by whitespace in runes[start:end), or -1 if none.
func lastSentenceEnd(runes []rune, start, end int) int {
	for i := end - 2; i >= start; i-- {
		r := runes[i]
		if (r == '.' || r == '!' || r == '?') && unicode.IsSpace(runes[i+1]) {
			return i + 2
		}
	}
	return -1
}

// lastSpace returns the index of the last space in runes[start:end), or -1.
func lastSpace(runes []rune, start, end int) int {
	for i := end - 1; i >= start; i-- {
		if runes[i] == ' ' {
			return i
		}
	}
	return -1
}

// ChunkWithMetadata chunks text and annotates each chunk with positional
// metadata plus extracted signals (dollar amounts, percentages, time periods)
// that improve keyword recall on financial and planning documents.
func ChunkWithMetadata(text string, size, overlap int, source string) []model.Chunk {
	raw := SmartChunks(text, size, overlap)
	if len(raw) == 0 {
		return nil
	}

	chunks := make([]model.Chunk, 0, len(raw))
	for i, c := range raw {
		md := map[string]any{
			"chunk_index":  i,
			"chunk_size":   len(c),
			"total_chunks": len(raw),
		}
		if source != "" {
			md["source"] = source
		}

		if numbers := numberPattern.FindAllString(c, 5); len(numbers) > 0 {
			md["contains_numbers"] = true
			md["numbers"] = numbers
		}
		if percents := percentPattern.FindAllString(c, 3); len(percents) > 0 {
			md["contains_percentages"] = true
			md["percentages"] = percents
		}
		if periods := timePeriodPattern.FindAllString(c, 3); len(periods) > 0 {
			md["contains_time_periods"] = true
			md["time_periods"] = periods
		}

		chunks = append(chunks, model.Chunk{Text: c, Metadata: md})
	}

	return chunks
}
