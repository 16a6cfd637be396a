package commands

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"

	_ "image/gif"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const defaultJpegQuality = 90

// hasJpegSignature checks whether the data starts with a JPEG SOI marker followed by a segment marker
func hasJpegSignature(data []byte) bool {
	return len(data) >= 3 && data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF
}

// decodeRaster decodes any registered raster format
func decodeRaster(data []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}
	return img, format, nil
}

// encodeJpeg flattens transparency onto white and encodes the image as JPEG
func encodeJpeg(img image.Image, quality int) ([]byte, error) {
	bounds := img.Bounds()
	flat := createTargetCanvas(bounds.Dx(), bounds.Dy(), color.White)
	draw.Draw(flat, flat.Bounds(), img, bounds.Min, draw.Over)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, flat, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode image to JPEG: %w", err)
	}
	return buf.Bytes(), nil
}

// createTargetCanvas creates an RGBA canvas filled with the background color
func createTargetCanvas(w, h int, bg color.Color) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: bg}, image.Point{}, draw.Src)
	return dst
}

func clampQuality(q int) int {
	if q < 1 {
		return 1
	}
	if q > 100 {
		return 100
	}
	return q
}
