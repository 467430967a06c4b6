package compose

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"strings"

	"golang.org/x/image/draw"
)

// ErrHeaderImage is returned when the header image cannot be loaded or decoded.
var ErrHeaderImage = errors.New("load header image")

// maxHeaderWidth caps the embedded header resolution (about 200 dpi across 190mm).
const maxHeaderWidth = 1500

// HeaderSource supplies the first-page header image.
type HeaderSource interface {
	Load(ctx context.Context) (image.Image, error)
}

// FileHeader reads a PNG or JPEG from disk.
type FileHeader struct {
	Path string
}

func (h FileHeader) Load(_ context.Context) (image.Image, error) {
	f, err := os.Open(h.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHeaderImage, err)
	}
	defer f.Close()
	return decode(f)
}

// URLHeader downloads a PNG or JPEG.
type URLHeader struct {
	URL    string
	Client *http.Client
}

func (h URLHeader) Load(ctx context.Context) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHeaderImage, err)
	}
	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHeaderImage, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: unexpected status %d", ErrHeaderImage, resp.StatusCode)
	}
	return decode(resp.Body)
}

// BannerHeader draws a plain two-tone banner, used when no header image is configured.
type BannerHeader struct {
	Top, Bottom color.RGBA
}

// DefaultBanner matches the title color of the layout.
var DefaultBanner = BannerHeader{
	Top:    color.RGBA{R: 139, G: 69, B: 19, A: 255},
	Bottom: color.RGBA{R: 217, G: 119, B: 6, A: 255},
}

func (h BannerHeader) Load(_ context.Context) (image.Image, error) {
	const w, hgt = 380, 100
	img := image.NewRGBA(image.Rect(0, 0, w, hgt))
	for y := 0; y < hgt; y++ {
		c := mix(h.Top, h.Bottom, float64(y)/float64(hgt-1))
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img, nil
}

func mix(a, b color.RGBA, t float64) color.RGBA {
	lerp := func(x, y uint8) uint8 { return uint8(float64(x) + (float64(y)-float64(x))*t + 0.5) }
	return color.RGBA{R: lerp(a.R, b.R), G: lerp(a.G, b.G), B: lerp(a.B, b.B), A: 255}
}

// HeaderFromLocation picks a source for a configured location: an http(s) URL, a file path,
// or the generated banner when empty.
func HeaderFromLocation(location string, client *http.Client) HeaderSource {
	switch {
	case location == "":
		return DefaultBanner
	case strings.HasPrefix(location, "http://"), strings.HasPrefix(location, "https://"):
		return URLHeader{URL: location, Client: client}
	default:
		return FileHeader{Path: location}
	}
}

func decode(r io.Reader) (image.Image, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("%w: decode: %w", ErrHeaderImage, err)
	}
	return downscale(img), nil
}

func downscale(img image.Image) image.Image {
	b := img.Bounds()
	if b.Dx() <= maxHeaderWidth {
		return img
	}
	h := b.Dy() * maxHeaderWidth / b.Dx()
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, maxHeaderWidth, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}
