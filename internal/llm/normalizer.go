// Package llm provides the SEO query normalization client used to turn raw
// user requests into deduplicatable YouTube search strings.
package llm

import (
	"context"
	"regexp"
	"strings"
)

// normalizationSystemPrompt instructs the model to emit a bare keyword string.
// The wording is a contract with the cleanup below; changing it changes which
// queries deduplicate to the same topic.
const normalizationSystemPrompt = "You are a YouTube Search SEO expert. " +
	"Convert the user's request into a single search string of 5 to 6 keywords. " +
	"Rules: Return ONLY keywords, no quotes, no backticks, no lists."

// maxNormalizedTokens caps the keyword string length after cleanup.
const maxNormalizedTokens = 6

// Normalizer converts a raw user query into a normalized keyword string.
// Implementations must be safe for concurrent use.
type Normalizer interface {
	Normalize(ctx context.Context, rawQuery string) (string, error)
}

var (
	quoteChars  = regexp.MustCompile("[\"'`]")
	nonKeyword  = regexp.MustCompile(`[^a-zA-Z0-9\s]`)
	multiSpaces = regexp.MustCompile(`\s+`)
)

// CleanQuery sanitizes a model response into the canonical keyword form:
// keep the first line only, drop quote characters, drop everything that is
// not alphanumeric or whitespace, collapse runs of whitespace, trim, and
// truncate to the first six tokens. Models occasionally ignore the prompt
// and return markdown or multi-line answers; this makes the output canonical
// regardless.
func CleanQuery(response string) string {
	firstLine := response
	if idx := strings.IndexByte(response, '\n'); idx >= 0 {
		firstLine = response[:idx]
	}

	cleaned := quoteChars.ReplaceAllString(firstLine, "")
	cleaned = nonKeyword.ReplaceAllString(cleaned, "")
	cleaned = multiSpaces.ReplaceAllString(cleaned, " ")
	cleaned = strings.TrimSpace(cleaned)

	words := strings.Split(cleaned, " ")
	if len(words) > maxNormalizedTokens {
		return strings.Join(words[:maxNormalizedTokens], " ")
	}
	return cleaned
}
