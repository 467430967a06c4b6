package newsfeed

import (
	"strings"

	"github.com/DeafMist/competitor-newsletter/internal/models"
	"github.com/DeafMist/competitor-newsletter/internal/processing"
)

// CompanyView maps each category to its entry for one competitor.
type CompanyView map[models.Category]models.CategorizedEntry

// View maps competitor names to their categorized entries.
type View map[string]CompanyView

// Normalize projects raw records onto the per-company, per-category browsing structure.
// Records for competitors outside interest are dropped. Every included competitor carries
// all four categories; Additional Sources and Regulatory only project their first element.
// A later record for the same competitor replaces an earlier one.
func Normalize(records []models.NewsRecord, interest []string) View {
	wanted := make(map[string]struct{}, len(interest))
	for _, name := range interest {
		wanted[name] = struct{}{}
	}

	view := make(View)
	for _, rec := range records {
		if _, ok := wanted[rec.Competitor]; !ok {
			continue
		}
		company := emptyCompany()
		if rec.LatestNews != nil {
			company[models.CategoryLatestNews] = entry(models.CategoryLatestNews, rec.Competitor, *rec.LatestNews)
		}
		if rec.WebsiteContent != nil {
			company[models.CategoryWebsiteContent] = entry(models.CategoryWebsiteContent, rec.Competitor, *rec.WebsiteContent)
		}
		if len(rec.AdditionalSources) > 0 {
			company[models.CategoryAdditionalSources] = entry(models.CategoryAdditionalSources, rec.Competitor, rec.AdditionalSources[0])
		}
		if len(rec.Regulatory) > 0 {
			company[models.CategoryRegulatory] = entry(models.CategoryRegulatory, rec.Competitor, rec.Regulatory[0])
		}
		view[rec.Competitor] = company
	}
	return view
}

// Lookup returns the company's entries, or all-empty entries when no record matched it.
func (v View) Lookup(competitor string) CompanyView {
	if company, ok := v[competitor]; ok {
		return company
	}
	return emptyCompany()
}

// Competitors lists distinct non-blank competitor names in first-seen order.
func Competitors(records []models.NewsRecord) []string {
	seen := make(map[string]struct{}, len(records))
	out := make([]string, 0, len(records))
	for _, rec := range records {
		if strings.TrimSpace(rec.Competitor) == "" {
			continue
		}
		if _, ok := seen[rec.Competitor]; ok {
			continue
		}
		seen[rec.Competitor] = struct{}{}
		out = append(out, rec.Competitor)
	}
	return out
}

// ToItem converts a non-empty entry into the item persisted in the newsletter.
func ToItem(company string, category models.Category, e models.CategorizedEntry) models.CurationItem {
	return models.CurationItem{
		ID:       e.ID,
		Company:  company,
		Title:    models.Text(e.Topic, ""),
		Date:     models.Text(e.Date, ""),
		Source:   models.Text(e.Source, ""),
		Content:  models.Text(e.Content, ""),
		Category: string(category),
	}
}

// Display returns the entry fields with fallbacks applied, in topic, date, source, content order.
func Display(e models.CategorizedEntry) (topic, date, source, content string) {
	return models.Text(e.Topic, processing.NoTopic),
		models.Text(e.Date, processing.NoDate),
		models.Text(e.Source, processing.NoSource),
		models.Text(e.Content, processing.NoContent)
}

func emptyCompany() CompanyView {
	company := make(CompanyView, len(models.Categories))
	for _, c := range models.Categories {
		company[c] = models.CategorizedEntry{}
	}
	return company
}

func entry(c models.Category, competitor string, a models.Article) models.CategorizedEntry {
	return models.CategorizedEntry{
		ID:      processing.EntryID(c, competitor),
		Topic:   a.Topic,
		Date:    a.Date,
		Source:  a.Source,
		Content: a.Content,
	}
}
