// Package watermark produces viewer-identifying overlays composited onto
// rendered copies of sensitive images, plus a secondary fragile marking
// (PNG metadata + low-order-bit encoding). The fragile channel is destroyed
// by routine re-encoding or cropping and exists for forensics only; the
// disclosure gateway's authorization and logging is the control of record.
package watermark

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Descriptor identifies one render. It is never persisted: the same inputs
// regenerate the same marking.
type Descriptor struct {
	TransactionID string
	ViewerID      string
	SessionID     string
	Timestamp     time.Time
}

// Label is the human-readable overlay text. The session token is truncated
// so the overlay never leaks a usable credential.
func (d Descriptor) Label() string {
	session := d.SessionID
	if len(session) > 8 {
		session = session[:8]
	}
	return fmt.Sprintf("txn %s · viewer %s · %s · %s",
		d.TransactionID, d.ViewerID, session, d.Timestamp.UTC().Format("2006-01-02 15:04 UTC"))
}

// tag is the machine-readable payload embedded through the fragile channel.
func (d Descriptor) tag() string {
	return fmt.Sprintf("%s|%s|%s", d.TransactionID, d.ViewerID, d.Timestamp.UTC().Format(time.RFC3339))
}

const (
	overlayHeight = 24
	textMargin    = 6
)

// GenerateOverlay renders the descriptor into a translucent banner sized to
// the given width.
func GenerateOverlay(d Descriptor, width int) *image.RGBA {
	if width < 1 {
		width = 1
	}
	overlay := image.NewRGBA(image.Rect(0, 0, width, overlayHeight))

	// Dark translucent band.
	draw.Draw(overlay, overlay.Bounds(), &image.Uniform{color.RGBA{0, 0, 0, 160}}, image.Point{}, draw.Src)

	drawer := &font.Drawer{
		Dst:  overlay,
		Src:  image.NewUniform(color.RGBA{255, 255, 255, 230}),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(textMargin, overlayHeight-textMargin-2),
	}
	drawer.DrawString(d.Label())

	return overlay
}

// ApplyOverlay composites the overlay onto a copy of the original, anchored
// to the bottom edge. The original is never mutated.
func ApplyOverlay(original image.Image, overlay *image.RGBA) *image.RGBA {
	bounds := original.Bounds()
	rendered := image.NewRGBA(bounds)
	draw.Draw(rendered, bounds, original, bounds.Min, draw.Src)

	target := image.Rect(bounds.Min.X, bounds.Max.Y-overlay.Bounds().Dy(), bounds.Max.X, bounds.Max.Y)
	draw.Draw(rendered, target, overlay, image.Point{}, draw.Over)

	return rendered
}

// Render decodes a PNG, composites the viewer overlay, embeds the fragile
// markings and re-encodes. Returns common failure as a plain error; callers
// decide whether a failed watermark blocks disclosure.
func Render(pngBytes []byte, d Descriptor) ([]byte, error) {
	img, err := png.Decode(bytes.NewReader(pngBytes))
	if err != nil {
		return nil, fmt.Errorf("decode png: %w", err)
	}

	rendered := ApplyOverlay(img, GenerateOverlay(d, img.Bounds().Dx()))

	// Fragile channel #1: low-order bits in the pixel data.
	if err := embedBits(rendered, d.tag()); err != nil {
		return nil, err
	}

	buf := &bytes.Buffer{}
	if err := png.Encode(buf, rendered); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}

	// Fragile channel #2: a tEXt metadata chunk. Survives nothing beyond a
	// byte-identical copy, which is the point of comparing the two.
	return insertTextChunk(buf.Bytes(), textChunkKeyword, d.tag())
}
