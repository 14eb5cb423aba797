package watermark

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"image"
	"image/png"
)

const textChunkKeyword = "vault-mark"

// embedBits writes the payload into the red-channel low-order bits, row
// major from the top-left: a 16-bit big-endian length prefix followed by the
// payload bytes, one bit per pixel.
func embedBits(img *image.RGBA, payload string) error {
	data := []byte(payload)
	if len(data) > 0xffff {
		return fmt.Errorf("payload too long: %d bytes", len(data))
	}

	bits := make([]byte, 0, (2+len(data))*8)
	header := make([]byte, 2)
	binary.BigEndian.PutUint16(header, uint16(len(data)))
	for _, b := range append(header, data...) {
		for i := 7; i >= 0; i-- {
			bits = append(bits, (b>>uint(i))&1)
		}
	}

	bounds := img.Bounds()
	capacity := bounds.Dx() * bounds.Dy()
	if len(bits) > capacity {
		return fmt.Errorf("image too small for payload: need %d pixels, have %d", len(bits), capacity)
	}

	for i, bit := range bits {
		x := bounds.Min.X + i%bounds.Dx()
		y := bounds.Min.Y + i/bounds.Dx()
		offset := img.PixOffset(x, y)
		img.Pix[offset] = img.Pix[offset]&0xfe | bit
	}
	return nil
}

// extractBits reads a payload previously written by embedBits. Returns false
// when no plausible payload is present.
func extractBits(img image.Image) (string, bool) {
	bounds := img.Bounds()
	capacity := bounds.Dx() * bounds.Dy()
	if capacity < 16 {
		return "", false
	}

	readBit := func(i int) byte {
		x := bounds.Min.X + i%bounds.Dx()
		y := bounds.Min.Y + i/bounds.Dx()
		r, _, _, _ := img.At(x, y).RGBA()
		return byte(r>>8) & 1
	}
	readByte := func(start int) byte {
		var b byte
		for i := 0; i < 8; i++ {
			b = b<<1 | readBit(start+i)
		}
		return b
	}

	length := int(readByte(0))<<8 | int(readByte(8))
	if length == 0 || (2+length)*8 > capacity {
		return "", false
	}

	data := make([]byte, length)
	for i := range data {
		data[i] = readByte(16 + i*8)
	}
	for _, b := range data {
		// Payloads are printable ASCII; anything else is noise.
		if b < 0x20 || b > 0x7e {
			return "", false
		}
	}
	return string(data), true
}

const pngSignatureLen = 8

// insertTextChunk adds a tEXt chunk directly after IHDR.
func insertTextChunk(pngBytes []byte, keyword, value string) ([]byte, error) {
	if len(pngBytes) < pngSignatureLen+8 {
		return nil, fmt.Errorf("not a png")
	}

	// IHDR is always the first chunk: 4 length + 4 type + 13 data + 4 crc.
	ihdrLen := binary.BigEndian.Uint32(pngBytes[pngSignatureLen:])
	ihdrEnd := pngSignatureLen + 8 + int(ihdrLen) + 4
	if ihdrEnd > len(pngBytes) {
		return nil, fmt.Errorf("truncated png")
	}

	data := append(append([]byte(keyword), 0), []byte(value)...)
	chunk := make([]byte, 0, 12+len(data))
	chunk = binary.BigEndian.AppendUint32(chunk, uint32(len(data)))
	chunk = append(chunk, []byte("tEXt")...)
	chunk = append(chunk, data...)
	chunk = binary.BigEndian.AppendUint32(chunk, crc32.ChecksumIEEE(chunk[4:]))

	out := make([]byte, 0, len(pngBytes)+len(chunk))
	out = append(out, pngBytes[:ihdrEnd]...)
	out = append(out, chunk...)
	out = append(out, pngBytes[ihdrEnd:]...)
	return out, nil
}

// readTextChunk scans the chunk stream for a tEXt chunk with the keyword.
func readTextChunk(pngBytes []byte, keyword string) (string, bool) {
	if len(pngBytes) < pngSignatureLen {
		return "", false
	}
	pos := pngSignatureLen
	for pos+8 <= len(pngBytes) {
		length := int(binary.BigEndian.Uint32(pngBytes[pos:]))
		chunkType := string(pngBytes[pos+4 : pos+8])
		dataStart := pos + 8
		dataEnd := dataStart + length
		if dataEnd+4 > len(pngBytes) {
			return "", false
		}
		if chunkType == "tEXt" {
			data := pngBytes[dataStart:dataEnd]
			if i := bytes.IndexByte(data, 0); i >= 0 && string(data[:i]) == keyword {
				return string(data[i+1:]), true
			}
		}
		pos = dataEnd + 4
	}
	return "", false
}

// Extract recovers an embedded marking for forensic comparison: metadata
// first, then the bit-level channel. Returns false when neither survives.
func Extract(pngBytes []byte) (string, bool) {
	if value, ok := readTextChunk(pngBytes, textChunkKeyword); ok {
		return value, true
	}

	img, err := png.Decode(bytes.NewReader(pngBytes))
	if err != nil {
		return "", false
	}
	return extractBits(img)
}
