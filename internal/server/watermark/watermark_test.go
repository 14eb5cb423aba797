package watermark

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDescriptor() Descriptor {
	return Descriptor{
		TransactionID: "txn-42",
		ViewerID:      "buyer-7",
		SessionID:     "abcdef1234567890",
		Timestamp:     time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC),
	}
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x % 256), uint8(y % 256), 128, 255})
		}
	}
	buf := &bytes.Buffer{}
	require.NoError(t, png.Encode(buf, img))
	return buf.Bytes()
}

func TestLabelTruncatesSession(t *testing.T) {
	d := testDescriptor()
	label := d.Label()
	assert.Contains(t, label, "txn-42")
	assert.Contains(t, label, "buyer-7")
	assert.Contains(t, label, "abcdef12")
	assert.NotContains(t, label, d.SessionID)
}

func TestGenerateOverlayDimensions(t *testing.T) {
	overlay := GenerateOverlay(testDescriptor(), 400)
	assert.Equal(t, 400, overlay.Bounds().Dx())
	assert.Equal(t, overlayHeight, overlay.Bounds().Dy())
}

func TestApplyOverlayDoesNotMutateOriginal(t *testing.T) {
	original := image.NewRGBA(image.Rect(0, 0, 200, 100))
	for i := range original.Pix {
		original.Pix[i] = 200
	}
	before := make([]byte, len(original.Pix))
	copy(before, original.Pix)

	rendered := ApplyOverlay(original, GenerateOverlay(testDescriptor(), 200))

	assert.Equal(t, before, original.Pix)
	assert.Equal(t, original.Bounds(), rendered.Bounds())
	// Bottom band darkened the copy.
	assert.NotEqual(t, before, rendered.Pix)
}

func TestRenderExtractRoundtrip(t *testing.T) {
	d := testDescriptor()
	rendered, err := Render(testPNG(t, 300, 200), d)
	require.NoError(t, err)

	tag, ok := Extract(rendered)
	require.True(t, ok)
	assert.Equal(t, "txn-42|buyer-7|2025-06-01T12:30:00Z", tag)
}

func TestExtractSurvivesMetadataStrip(t *testing.T) {
	d := testDescriptor()
	rendered, err := Render(testPNG(t, 300, 200), d)
	require.NoError(t, err)

	// Re-encode the pixels: tEXt chunk is gone, bit channel remains.
	img, err := png.Decode(bytes.NewReader(rendered))
	require.NoError(t, err)
	buf := &bytes.Buffer{}
	require.NoError(t, png.Encode(buf, img))

	_, ok := readTextChunk(buf.Bytes(), textChunkKeyword)
	assert.False(t, ok)

	tag, ok := Extract(buf.Bytes())
	require.True(t, ok)
	assert.Equal(t, d.tag(), tag)
}

func TestExtractFailsOnUnmarkedImage(t *testing.T) {
	_, ok := Extract(testPNG(t, 100, 100))
	assert.False(t, ok)
}

func TestRenderRejectsNonPNG(t *testing.T) {
	_, err := Render([]byte("definitely not a png"), testDescriptor())
	assert.Error(t, err)
}

func TestEmbedBitsCapacity(t *testing.T) {
	tiny := image.NewRGBA(image.Rect(0, 0, 4, 4))
	err := embedBits(tiny, "a payload far longer than sixteen pixels can hold")
	assert.Error(t, err)
}

func TestTextChunkRoundtrip(t *testing.T) {
	src := testPNG(t, 50, 50)
	out, err := insertTextChunk(src, textChunkKeyword, "hello|world")
	require.NoError(t, err)

	value, ok := readTextChunk(out, textChunkKeyword)
	require.True(t, ok)
	assert.Equal(t, "hello|world", value)

	// Chunk placement keeps the file decodable.
	_, err = png.Decode(bytes.NewReader(out))
	assert.NoError(t, err)
}
