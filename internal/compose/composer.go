package compose

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/create"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/draw"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/DeafMist/competitor-newsletter/internal/models"
)

const (
	pointsPerMM = 72 / 25.4
	dataURIHead = "data:application/pdf;filename=generated.pdf;base64,"
	headerImage = "Im0"
)

// Document is a composed newsletter.
type Document struct {
	Pages []Page
	PDF   []byte
}

// DataURI encodes the PDF the way the remote send endpoint expects it.
func (d *Document) DataURI() string {
	return dataURIHead + base64.StdEncoding.EncodeToString(d.PDF)
}

// Truncated lists the ids of items whose body was cut to fit a page.
func (d *Document) Truncated() []string {
	var ids []string
	for _, p := range d.Pages {
		for _, b := range p.Blocks {
			if b.Truncated {
				ids = append(ids, b.ItemID)
			}
		}
	}
	return ids
}

// Composer turns the curated collection into a Document.
type Composer struct {
	header   HeaderSource
	geometry Geometry
	measurer Measurer
	log      *slog.Logger
}

// Option configures a Composer.
type Option func(*Composer)

func WithGeometry(g Geometry) Option { return func(c *Composer) { c.geometry = g } }

func WithMeasurer(m Measurer) Option { return func(c *Composer) { c.measurer = m } }

func WithLogger(l *slog.Logger) Option { return func(c *Composer) { c.log = l } }

// NewComposer uses the default geometry and Helvetica metrics unless overridden.
func NewComposer(header HeaderSource, opts ...Option) *Composer {
	c := &Composer{
		header:   header,
		geometry: DefaultGeometry(),
		measurer: HelveticaMeasurer{},
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.header == nil {
		c.header = DefaultBanner
	}
	return c
}

// Compose loads the header image, lays out items and renders the PDF. The header is resolved
// before any layout so a missing image fails the whole composition.
func (c *Composer) Compose(ctx context.Context, items []models.CurationItem) (*Document, error) {
	start := time.Now()

	header, err := c.header.Load(ctx)
	if err != nil {
		if !errors.Is(err, ErrHeaderImage) {
			err = fmt.Errorf("%w: %w", ErrHeaderImage, err)
		}
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("compose: %w", err)
	}

	pages := Layout(items, c.geometry, c.measurer)
	pdf, err := c.render(pages, header)
	if err != nil {
		return nil, fmt.Errorf("render newsletter: %w", err)
	}
	doc := &Document{Pages: pages, PDF: pdf}

	if cut := doc.Truncated(); len(cut) > 0 {
		c.log.Warn("newsletter items truncated to fit a page", slog.Any("ids", cut))
	}
	c.log.Debug("newsletter composed",
		slog.Int("items", len(items)),
		slog.Int("pages", len(pages)),
		slog.Int("bytes", len(doc.PDF)),
		slog.Duration("took", time.Since(start)))
	return doc, nil
}

func (c *Composer) render(pages []Page, header image.Image) ([]byte, error) {
	g := c.geometry
	w, h := g.PageWidth*pointsPerMM, g.PageHeight*pointsPerMM

	ctx, err := pdfcpu.CreateContextWithXRefTable(nil, &types.Dim{Width: w, Height: h})
	if err != nil {
		return nil, fmt.Errorf("create pdf context: %w", err)
	}

	var img bytes.Buffer
	if err := png.Encode(&img, header); err != nil {
		return nil, fmt.Errorf("encode header image: %w", err)
	}
	headerRef, iw, ih, err := model.CreateImageResource(ctx.XRefTable, &img)
	if err != nil {
		return nil, fmt.Errorf("embed header image: %w", err)
	}

	fonts := model.FontMap{fontName: model.FontResource{}}
	out := make([]*model.Page, 0, len(pages))
	for _, p := range pages {
		mb := types.RectForDim(w, h)
		page := model.NewPage(mb, mb)
		key := page.Fm.EnsureKey(fontName)

		if p.Header {
			page.Im[headerImage] = model.ImageResource{
				Res:    model.Resource{ID: headerImage, IndRef: headerRef},
				Width:  iw,
				Height: ih,
			}
			fmt.Fprintf(page.Buf, "q %.2f 0 0 %.2f %.2f %.2f cm /%s Do Q ",
				g.HeaderWidth*pointsPerMM,
				g.HeaderHeight*pointsPerMM,
				g.HeaderX*pointsPerMM,
				(g.PageHeight-g.HeaderY-g.HeaderHeight)*pointsPerMM,
				headerImage)
		}
		for _, r := range p.Runs {
			c.text(ctx.XRefTable, &page, key, r)
		}
		for _, b := range p.Blocks {
			for _, r := range b.Runs {
				c.text(ctx.XRefTable, &page, key, r)
			}
		}
		out = append(out, &page)
	}

	if _, _, err := create.UpdatePageTree(ctx, out, fonts); err != nil {
		return nil, fmt.Errorf("build page tree: %w", err)
	}
	var buf bytes.Buffer
	if err := api.WriteContext(ctx, &buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// text writes r as a single left-aligned line whose baseline sits at r.Y.
func (c *Composer) text(xrt *model.XRefTable, p *model.Page, fontKey string, r Run) {
	if r.Text == "" {
		return
	}
	model.WriteColumn(xrt, p.Buf, p.MediaBox, nil, model.TextDescriptor{
		Text:      pdfText(r.Text),
		FontName:  fontName,
		FontKey:   fontKey,
		FontSize:  int(r.Size + 0.5),
		X:         r.X * pointsPerMM,
		Y:         (c.geometry.PageHeight - r.Y) * pointsPerMM,
		Scale:     1,
		ScaleAbs:  true,
		HAlign:    types.AlignLeft,
		VAlign:    types.AlignBaseline,
		RMode:     draw.RMFill,
		StrokeCol: r.Color,
		FillCol:   r.Color,
	}, 0)
}
