package processing

import (
	"cmp"
	"html"
	"maps"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/DeafMist/competitor-newsletter/internal/models"
)

// Display fallbacks for absent fields.
const (
	NoTopic   = "No topic"
	NoDate    = "No date"
	NoSource  = "No source"
	NoContent = "No content available"
)

var urlRegex = regexp.MustCompile(`https?://[^\s]+`)

var (
	whitespace    = regexp.MustCompile(`\s+`)
	inlineSpace   = regexp.MustCompile(`[ \t\f\v\x{00a0}]+`)
	punctuation   = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)
	nonSlugRunes  = regexp.MustCompile(`[^a-z0-9]+`)
	edgeDashes    = regexp.MustCompile(`^-+|-+$`)
	trailingSpace = regexp.MustCompile(`[ \t]+\n`)
)

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "to": {}, "in": {}, "for": {},
	"and": {}, "of": {}, "on": {}, "with": {}, "by": {}, "at": {},
	"from": {}, "this": {}, "that": {}, "its": {}, "has": {}, "have": {},
	"was": {}, "were": {}, "will": {}, "are": {}, "been": {}, "into": {},
}

// Slug turns a category label into its id prefix: "Latest News" -> "latest-news".
func Slug(c models.Category) string {
	s := nonSlugRunes.ReplaceAllString(strings.ToLower(string(c)), "-")
	return edgeDashes.ReplaceAllString(s, "")
}

// EntryID derives the deterministic entry id "<category-slug>-<competitor>".
func EntryID(c models.Category, competitor string) string {
	return Slug(c) + "-" + competitor
}

// Fallback returns value unless it is blank.
func Fallback(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

// ExtractURLs returns the distinct http(s) links in input, in order of first appearance.
func ExtractURLs(input string) []string {
	var urls []string
	for _, u := range urlRegex.FindAllString(input, -1) {
		if !slices.Contains(urls, u) {
			urls = append(urls, u)
		}
	}
	return urls
}

// RemoveURLs removes all URLs from the input text.
func RemoveURLs(input string) string {
	return urlRegex.ReplaceAllString(input, " ")
}

// CleanText strips HTML entities, punctuation, URLs and squeezes whitespace.
func CleanText(input string) string {
	if input == "" {
		return ""
	}
	decoded := html.UnescapeString(input)
	decoded = RemoveURLs(decoded)
	decoded = punctuation.ReplaceAllString(decoded, " ")
	decoded = whitespace.ReplaceAllString(decoded, " ")
	return strings.TrimSpace(decoded)
}

// NormalizeBody prepares item content for layout. Line breaks are kept as paragraph
// boundaries; runs of spaces and tabs collapse to one space.
func NormalizeBody(input string) string {
	if input == "" {
		return ""
	}
	out := html.UnescapeString(input)
	out = strings.ReplaceAll(out, "\r\n", "\n")
	out = strings.ReplaceAll(out, "\r", "\n")
	out = inlineSpace.ReplaceAllString(out, " ")
	out = trailingSpace.ReplaceAllString(out, "\n")
	return strings.TrimSpace(out)
}

// ExtractKeywords ranks the words of text by frequency, ties broken alphabetically.
// Words shorter than minLen runes and stop-words are ignored; limit <= 0 keeps all.
func ExtractKeywords(text string, limit, minLen int) []string {
	counts := make(map[string]int)
	for _, word := range strings.Fields(strings.ToLower(CleanText(text))) {
		if utf8.RuneCountInString(word) < minLen {
			continue
		}
		if _, stop := stopwords[word]; stop {
			continue
		}
		counts[word]++
	}
	if len(counts) == 0 {
		return nil
	}

	words := slices.Collect(maps.Keys(counts))
	slices.SortFunc(words, func(a, b string) int {
		if c := cmp.Compare(counts[b], counts[a]); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})
	if limit > 0 && limit < len(words) {
		words = words[:limit]
	}
	return words
}

// GenerateTitleFromText takes the first sentence of text with links removed, cut to
// maxWords words (0 means no cap) with a trailing ellipsis when shortened.
func GenerateTitleFromText(text string, maxWords int) string {
	sentence := RemoveURLs(text)
	if end := strings.IndexAny(sentence, ".!?"); end > 0 {
		sentence = sentence[:end]
	}

	words := strings.Fields(sentence)
	if maxWords <= 0 || len(words) <= maxWords {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:maxWords], " ") + "..."
}
