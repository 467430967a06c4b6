// Package compose lays curated items out onto A4 pages and renders them as a PDF.
//
// All layout coordinates are millimetres measured from the top-left corner of the page; text
// y positions are baselines.
package compose

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/color"

	"github.com/DeafMist/competitor-newsletter/internal/models"
	"github.com/DeafMist/competitor-newsletter/internal/processing"
)

// Heading is printed under the header image on the first page.
const Heading = "Newsletter Items"

const ellipsis = "..."

// Geometry holds the page layout constants.
type Geometry struct {
	PageWidth, PageHeight float64

	HeaderX, HeaderY          float64
	HeaderWidth, HeaderHeight float64

	HeadingY    float64
	HeadingSize float64

	// FirstTop is the cursor after the heading; PageTop is the cursor on continuation pages.
	FirstTop float64
	PageTop  float64
	MaxY     float64

	Left      float64
	WrapWidth float64

	TitleSize    float64
	TitleColor   color.SimpleColor
	TitleAdvance float64
	MetaSize     float64
	MetaAdvance  float64
	MetaGap      float64
	BodySize     float64
	LineHeight   float64
	BottomPad    float64
	ItemSpacing  float64
}

// DefaultGeometry returns the A4 newsletter layout.
func DefaultGeometry() Geometry {
	return Geometry{
		PageWidth:    210,
		PageHeight:   297,
		HeaderX:      10,
		HeaderY:      10,
		HeaderWidth:  190,
		HeaderHeight: 50,
		HeadingY:     70,
		HeadingSize:  18,
		FirstTop:     85,
		PageTop:      20,
		MaxY:         280,
		Left:         14,
		WrapWidth:    180,
		TitleSize:    14,
		TitleColor:   color.NewSimpleColor(0x8B4513),
		TitleAdvance: 10,
		MetaSize:     10,
		MetaAdvance:  6,
		MetaGap:      8,
		BodySize:     12,
		LineHeight:   7,
		BottomPad:    10,
		ItemSpacing:  15,
	}
}

// Extent is the vertical space an item with the given number of body lines must fit in.
func (g Geometry) Extent(lines int) float64 {
	return g.head() + float64(lines)*g.LineHeight + g.BottomPad
}

// Advance is how far the cursor moves after placing an item.
func (g Geometry) Advance(lines int) float64 {
	return g.head() + float64(lines)*g.LineHeight + g.ItemSpacing
}

func (g Geometry) head() float64 {
	return g.TitleAdvance + g.MetaAdvance + g.MetaGap
}

// linesThatFit is the number of body lines an item starting at top can carry, at least one.
func (g Geometry) linesThatFit(top float64) int {
	n := int(math.Floor((g.MaxY - top - g.head() - g.BottomPad) / g.LineHeight))
	if n < 1 {
		return 1
	}
	return n
}

// Measurer reports the rendered width of text in millimetres at a font size in points.
type Measurer interface {
	Width(text string, size float64) float64
}

// FixedMeasurer gives every rune the same width in millimetres regardless of font size.
type FixedMeasurer float64

func (m FixedMeasurer) Width(text string, _ float64) float64 {
	return float64(utf8.RuneCountInString(text)) * float64(m)
}

// Run is one line of text at a fixed position.
type Run struct {
	X, Y  float64
	Size  float64
	Color color.SimpleColor
	Text  string
}

// Block is one placed item.
type Block struct {
	ItemID    string
	Top       float64
	Bottom    float64
	Runs      []Run
	Truncated bool
}

// Page is one laid-out page. Only the first page carries the header image and heading.
type Page struct {
	Number int
	Header bool
	Runs   []Run
	Blocks []Block
}

// Layout places items in order onto pages. Items are never split across pages; an item that
// cannot fit on an empty page is cut to the lines that do fit and marked Truncated.
func Layout(items []models.CurationItem, g Geometry, m Measurer) []Page {
	pages := []Page{{
		Number: 1,
		Header: true,
		Runs:   []Run{{X: g.Left, Y: g.HeadingY, Size: g.HeadingSize, Color: color.Black, Text: Heading}},
	}}
	y := g.FirstTop
	// fresh is set while the current continuation page is still empty.
	fresh := false

	for _, item := range items {
		body := Wrap(bodyText(item), g.WrapWidth, g.BodySize, m)
		if y+g.Extent(len(body)) > g.MaxY && !fresh {
			pages = append(pages, Page{Number: len(pages) + 1})
			y = g.PageTop
			fresh = true
		}

		truncated := false
		if y+g.Extent(len(body)) > g.MaxY {
			n := g.linesThatFit(y)
			body = append([]string(nil), body[:n]...)
			body[n-1] = Ellipsize(body[n-1], g.WrapWidth, g.BodySize, m)
			truncated = true
		}

		page := &pages[len(pages)-1]
		page.Blocks = append(page.Blocks, place(item, body, y, g, m, truncated))
		y += g.Advance(len(body))
		fresh = false
	}
	return pages
}

func place(item models.CurationItem, body []string, top float64, g Geometry, m Measurer, truncated bool) Block {
	y := top
	runs := make([]Run, 0, 3+len(body))

	runs = append(runs, Run{X: g.Left, Y: y, Size: g.TitleSize, Color: g.TitleColor,
		Text: Fit(titleText(item), g.WrapWidth, g.TitleSize, m)})
	y += g.TitleAdvance

	meta := []string{
		fmt.Sprintf("Company: %s | Date: %s", item.Company, processing.Fallback(item.Date, processing.NoDate)),
		fmt.Sprintf("Source: %s | Category: %s", processing.Fallback(item.Source, processing.NoSource), item.Category),
	}
	runs = append(runs, Run{X: g.Left, Y: y, Size: g.MetaSize, Color: color.Black, Text: Fit(meta[0], g.WrapWidth, g.MetaSize, m)})
	y += g.MetaAdvance
	runs = append(runs, Run{X: g.Left, Y: y, Size: g.MetaSize, Color: color.Black, Text: Fit(meta[1], g.WrapWidth, g.MetaSize, m)})
	y += g.MetaGap

	for i, line := range body {
		runs = append(runs, Run{X: g.Left, Y: y + float64(i)*g.LineHeight, Size: g.BodySize, Color: color.Black, Text: line})
	}

	return Block{
		ItemID:    item.ID,
		Top:       top,
		Bottom:    top + g.Extent(len(body)),
		Runs:      runs,
		Truncated: truncated,
	}
}

func titleText(item models.CurationItem) string {
	if strings.TrimSpace(item.Title) != "" {
		return item.Title
	}
	if t := processing.GenerateTitleFromText(item.Content, 12); t != "" {
		return t
	}
	return processing.NoTopic
}

func bodyText(item models.CurationItem) string {
	return processing.Fallback(processing.NormalizeBody(item.Content), processing.NoContent)
}

// Wrap splits text into lines no wider than width. Newlines start a new line, words are
// packed greedily and a word wider than a whole line is broken between runes.
func Wrap(text string, width, size float64, m Measurer) []string {
	if text == "" {
		return nil
	}
	var lines []string
	for _, para := range strings.Split(text, "\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			lines = append(lines, "")
			continue
		}
		line := ""
		for _, word := range words {
			candidate := word
			if line != "" {
				candidate = line + " " + word
			}
			if m.Width(candidate, size) <= width {
				line = candidate
				continue
			}
			if line != "" {
				lines = append(lines, line)
				line = ""
			}
			for m.Width(word, size) > width {
				head, tail := splitAt(word, width, size, m)
				lines = append(lines, head)
				word = tail
			}
			line = word
		}
		lines = append(lines, line)
	}
	return lines
}

// splitAt returns the longest prefix of word that fits width, at least one rune.
func splitAt(word string, width, size float64, m Measurer) (string, string) {
	cut := 0
	for i, r := range word {
		next := i + utf8.RuneLen(r)
		if cut > 0 && m.Width(word[:next], size) > width {
			break
		}
		cut = next
	}
	return word[:cut], word[cut:]
}

// Ellipsize appends "..." to line, dropping trailing runes until the result fits width.
func Ellipsize(line string, width, size float64, m Measurer) string {
	line = strings.TrimRight(line, " ")
	for line != "" && m.Width(line+ellipsis, size) > width {
		_, n := utf8.DecodeLastRuneInString(line)
		line = strings.TrimRight(line[:len(line)-n], " ")
	}
	return line + ellipsis
}

// Fit returns line unchanged when it fits width, and ellipsized otherwise.
func Fit(line string, width, size float64, m Measurer) string {
	if m.Width(line, size) <= width {
		return line
	}
	return Ellipsize(line, width, size, m)
}
