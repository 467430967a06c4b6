package models

import (
	"bytes"
	"encoding/json"
	"time"
)

// Category is one of the four fixed content classifications of a competitor record.
type Category string

const (
	CategoryLatestNews        Category = "Latest News"
	CategoryWebsiteContent    Category = "Website Content"
	CategoryAdditionalSources Category = "Additional Sources"
	CategoryRegulatory        Category = "Regulatory"
)

// Categories lists every category in display order.
var Categories = []Category{
	CategoryLatestNews,
	CategoryWebsiteContent,
	CategoryAdditionalSources,
	CategoryRegulatory,
}

// Article is a single news piece as served by the remote service. Every field may be absent.
type Article struct {
	Topic   *string `json:"topic,omitempty"`
	Date    *string `json:"date,omitempty"`
	Source  *string `json:"source,omitempty"`
	Content *string `json:"content,omitempty"`
}

// UnmarshalJSON decodes leniently: fields holding anything but a string are left absent.
func (a *Article) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		*a = Article{}
		return nil
	}
	*a = Article{
		Topic:   optionalString(raw["topic"]),
		Date:    optionalString(raw["date"]),
		Source:  optionalString(raw["source"]),
		Content: optionalString(raw["content"]),
	}
	return nil
}

// NewsRecord is the per-competitor payload of GET /api/daily_newsletters.
type NewsRecord struct {
	Competitor        string    `json:"competitor"`
	LatestNews        *Article  `json:"latest_news,omitempty"`
	WebsiteContent    *Article  `json:"website_content,omitempty"`
	AdditionalSources []Article `json:"additional_sources,omitempty"`
	Regulatory        []Article `json:"regulatory,omitempty"`
}

// UnmarshalJSON tolerates missing or mistyped categories instead of failing the whole feed.
// Only a payload that is not a JSON object is an error.
func (r *NewsRecord) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = NewsRecord{}
	if s := optionalString(raw["competitor"]); s != nil {
		r.Competitor = *s
	}
	r.LatestNews = optionalArticle(raw["latest_news"])
	r.WebsiteContent = optionalArticle(raw["website_content"])
	r.AdditionalSources = articleList(raw["additional_sources"])
	r.Regulatory = articleList(raw["regulatory"])
	return nil
}

// CategorizedEntry is the projection of one category of one competitor record.
// An entry with an empty ID carries no data.
type CategorizedEntry struct {
	ID      string  `json:"id,omitempty"`
	Topic   *string `json:"topic,omitempty"`
	Date    *string `json:"date,omitempty"`
	Source  *string `json:"source,omitempty"`
	Content *string `json:"content,omitempty"`
}

// Empty reports whether the entry holds no data for its category.
func (e CategorizedEntry) Empty() bool {
	return e.ID == ""
}

// CurationItem is a news entry the user put into the newsletter collection.
type CurationItem struct {
	ID       string `json:"id"`
	Company  string `json:"company"`
	Title    string `json:"title,omitempty"`
	Date     string `json:"date,omitempty"`
	Source   string `json:"source,omitempty"`
	Content  string `json:"content,omitempty"`
	Category string `json:"category"`
}

// ArchivedItem is the structure stored in the Elasticsearch archive.
type ArchivedItem struct {
	CurationItem
	ArchivedAt time.Time `json:"archived_at"`
	Keywords   []string  `json:"keywords"`
	URLs       []string  `json:"urls"`
}

// Text dereferences an optional field, falling back when it is absent or blank.
func Text(v *string, fallback string) string {
	if v == nil || *v == "" {
		return fallback
	}
	return *v
}

func optionalString(raw json.RawMessage) *string {
	if len(raw) == 0 {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	return &s
}

func optionalArticle(raw json.RawMessage) *Article {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil
	}
	var a Article
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil
	}
	return &a
}

func articleList(raw json.RawMessage) []Article {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '[' {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	out := make([]Article, 0, len(items))
	for _, item := range items {
		// Keep the position of malformed elements; only the first one is ever projected.
		if a := optionalArticle(item); a != nil {
			out = append(out, *a)
		} else {
			out = append(out, Article{})
		}
	}
	return out
}
