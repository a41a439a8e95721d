package extract

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
)

// Downscale re-encodes a raster image so its width does not exceed
// maxWidth, preserving aspect ratio. Images already narrow enough are
// returned unchanged.
func (e *Extractor) Downscale(data []byte, maxWidth int) ([]byte, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	bounds := img.Bounds()
	if maxWidth <= 0 || bounds.Dx() <= maxWidth {
		return data, "image/" + format, nil
	}

	height := bounds.Dy() * maxWidth / bounds.Dx()
	if height < 1 {
		height = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Src, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 85}); err != nil {
		return nil, "", fmt.Errorf("encode image: %w", err)
	}
	return buf.Bytes(), "image/jpeg", nil
}
