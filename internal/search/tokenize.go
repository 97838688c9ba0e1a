// Package search provides BM25 keyword search over the local chunk mirror
// and a hybrid searcher that fuses keyword and vector results with
// query-dependent weighting.
package search

import (
	"regexp"
	"strings"
)

// stopWords are dropped during tokenization unless the token carries a
// number or special character worth matching exactly.
var stopWords = map[string]struct{}{
	"the": {}, "is": {}, "at": {}, "which": {}, "on": {}, "a": {}, "an": {},
	"as": {}, "are": {}, "was": {}, "were": {}, "been": {}, "be": {},
	"have": {}, "has": {}, "had": {}, "do": {}, "does": {}, "did": {},
	"will": {}, "would": {}, "could": {}, "should": {}, "may": {},
	"might": {}, "must": {}, "shall": {}, "can": {}, "need": {},
}

var (
	dollarToken  = regexp.MustCompile(`\$[\d,]+(\.\d{2})?`)
	percentToken = regexp.MustCompile(`\d+(\.\d+)?%`)
	idToken      = regexp.MustCompile(`(?i)\b[A-Z]+-\d+\b`)
	rangeToken   = regexp.MustCompile(`(?i)\d+[-–]\d+\s*(month|year|week|day)s?`)
	digitsOnly   = regexp.MustCompile(`^[\d.,]+$`)
)

// Tokenize lowercases and splits text for BM25, preserving dollar amounts,
// percentages, ID codes, and numeric ranges as whole tokens so exact-value
// queries can match.
func Tokenize(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var special []string
	special = append(special, dollarToken.FindAllString(text, -1)...)
	special = append(special, percentToken.FindAllString(text, -1)...)
	special = append(special, idToken.FindAllString(text, -1)...)
	special = append(special, rangeToken.FindAllString(text, -1)...)

	var tokens []string
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		if _, stop := stopWords[tok]; stop && !keepAnyway(tok) {
			continue
		}
		tokens = append(tokens, tok)
	}

	for _, s := range special {
		tokens = append(tokens, strings.ToLower(s))
	}
	return tokens
}

func keepAnyway(tok string) bool {
	return digitsOnly.MatchString(tok) ||
		strings.ContainsAny(tok, "$%-")
}
