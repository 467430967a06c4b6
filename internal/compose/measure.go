package compose

import (
	"unicode/utf8"

	"github.com/pdfcpu/pdfcpu/pkg/font"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"golang.org/x/text/unicode/norm"
)

const (
	fontName   = "Helvetica"
	mmPerPoint = 25.4 / 72
	// averageEm approximates Helvetica glyph width when metrics are unavailable.
	averageEm = 0.5
)

// HelveticaMeasurer measures text with the standard Helvetica metrics bundled with pdfcpu.
type HelveticaMeasurer struct{}

func (HelveticaMeasurer) Width(text string, size float64) float64 {
	if text == "" {
		return 0
	}
	w := font.TextWidth(winAnsi(text), fontName, int(size+0.5))
	if w <= 0 {
		w = float64(utf8.RuneCountInString(text)) * size * averageEm
	}
	return w * mmPerPoint
}

// winAnsi mirrors the encoding applied when the text is written, so widths match the glyphs
// that end up on the page.
func winAnsi(s string) string {
	return model.DecodeUTF8ToByte(pdfText(s))
}

// pdfText composes combining sequences so accented letters map onto single WinAnsi glyphs.
func pdfText(s string) string {
	return norm.NFC.String(s)
}
