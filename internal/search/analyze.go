package search

import "regexp"

// QueryType selects the retrieval strategy for a query.
type QueryType string

const (
	// QueryExact favors keyword search: quoted phrases or ID-like tokens.
	QueryExact QueryType = "exact"
	// QueryHybrid balances both: dates or concrete numbers present.
	QueryHybrid QueryType = "hybrid"
	// QuerySemantic favors vector search: everything conceptual.
	QuerySemantic QueryType = "semantic"
)

// QueryCharacteristics describes signals detected in a query.
type QueryCharacteristics struct {
	HasQuotes    bool
	HasDates     bool
	HasIDs       bool
	HasNumbers   bool
	ExactPhrases []string
	Type         QueryType
}

var (
	quotedPhrase = regexp.MustCompile(`"([^"]*)"`)

	datePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b\d{4}[-/]\d{1,2}[-/]\d{1,2}\b`),
		regexp.MustCompile(`\b\d{1,2}[-/]\d{1,2}[-/]\d{4}\b`),
		regexp.MustCompile(`(?i)\b(Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]* \d{1,2},? \d{4}\b`),
		regexp.MustCompile(`(?i)\b\d{1,2} (Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]* \d{4}\b`),
		regexp.MustCompile(`(?i)\b(today|yesterday|tomorrow|last week|this week|next week)\b`),
	}

	idPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b[a-f0-9]{8}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{12}\b`),
		regexp.MustCompile(`(?i)\bID[-:\s]?\w+\b`),
		regexp.MustCompile(`#\w+`),
	}

	// Uppercase alphanumeric codes count as IDs only when they mix letters
	// and digits; an all-digit run is a number, not an ID.
	upperCode = regexp.MustCompile(`\b[A-Z0-9]{6,}\b`)
	allDigits = regexp.MustCompile(`^\d+$`)

	numberPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\$[\d,]+(\.\d{2})?`),
		regexp.MustCompile(`\b\d+%`),
		regexp.MustCompile(`(?i)\b\d+(\.\d+)?\s*(gb|mb|kb|tb)\b`),
		regexp.MustCompile(`\b\d{3,}\b`),
	}
)

// AnalyzeQuery inspects a query for quoted phrases, dates, IDs, and numbers
// and classifies it into a retrieval strategy.
func AnalyzeQuery(query string) QueryCharacteristics {
	chars := QueryCharacteristics{Type: QuerySemantic}

	for _, m := range quotedPhrase.FindAllStringSubmatch(query, -1) {
		if m[1] != "" {
			chars.ExactPhrases = append(chars.ExactPhrases, m[1])
		}
	}
	chars.HasQuotes = len(chars.ExactPhrases) > 0

	chars.HasDates = anyMatch(datePatterns, query)
	chars.HasIDs = anyMatch(idPatterns, query) || hasUpperCode(query)
	chars.HasNumbers = anyMatch(numberPatterns, query)

	switch {
	case chars.HasQuotes || chars.HasIDs:
		chars.Type = QueryExact
	case chars.HasDates || chars.HasNumbers:
		chars.Type = QueryHybrid
	}
	return chars
}

// Weights returns the (vector, keyword) weights for the query type.
// The pair always sums to 1.
func (c QueryCharacteristics) Weights() (float64, float64) {
	switch c.Type {
	case QueryExact:
		return 0.2, 0.8
	case QueryHybrid:
		return 0.5, 0.5
	default:
		return 0.8, 0.2
	}
}

func hasUpperCode(s string) bool {
	for _, m := range upperCode.FindAllString(s, -1) {
		if !allDigits.MatchString(m) {
			return true
		}
	}
	return false
}

func anyMatch(patterns []*regexp.Regexp, s string) bool {
	for _, p := range patterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}
