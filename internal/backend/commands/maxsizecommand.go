package commands

import (
	"fmt"
	"image"
	"log/slog"

	xdraw "golang.org/x/image/draw"

	"github.com/jo-hoe/eggcount/internal/backend/commandstructure"
)

// MaxSizeCommand downscales images larger than the configured bounds, preserving aspect ratio.
// Images already within bounds are returned unchanged; scaled output is JPEG.
// Input that cannot be decoded is returned unchanged unless the command is strict.
type MaxSizeCommand struct {
	name      string
	maxWidth  int
	maxHeight int
	quality   int
	strict    bool
}

// NewMaxSizeCommand creates a new max size command; at least one of maxWidth or maxHeight is required
func NewMaxSizeCommand(params map[string]any) (commandstructure.Command, error) {
	_, hasWidth := params["maxWidth"]
	_, hasHeight := params["maxHeight"]
	if !hasWidth && !hasHeight {
		return nil, fmt.Errorf("at least one of 'maxWidth' or 'maxHeight' must be specified")
	}

	maxWidth := commandstructure.GetIntParam(params, "maxWidth", 0)
	maxHeight := commandstructure.GetIntParam(params, "maxHeight", 0)
	if (hasWidth && maxWidth <= 0) || (hasHeight && maxHeight <= 0) {
		return nil, fmt.Errorf("maxWidth and maxHeight must be positive, got %dx%d", maxWidth, maxHeight)
	}

	return &MaxSizeCommand{
		name:      "MaxSizeCommand",
		maxWidth:  maxWidth,
		maxHeight: maxHeight,
		quality:   clampQuality(commandstructure.GetIntParam(params, "quality", defaultJpegQuality)),
		strict:    commandstructure.GetBoolParam(params, "strict", false),
	}, nil
}

// Name returns the command name
func (c *MaxSizeCommand) Name() string {
	return c.name
}

func (c *MaxSizeCommand) Execute(imageData []byte) ([]byte, error) {
	img, _, err := decodeRaster(imageData)
	if err != nil {
		if c.strict {
			return nil, err
		}
		slog.Warn("MaxSizeCommand: storing input unscaled",
			"input_size_bytes", len(imageData), "error", err)
		return imageData, nil
	}

	bounds := img.Bounds()
	targetW, targetH, scaled := c.targetSize(bounds.Dx(), bounds.Dy())
	if !scaled {
		return imageData, nil
	}

	dst := image.NewRGBA(image.Rect(0, 0, targetW, targetH))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, xdraw.Over, nil)

	slog.Debug("MaxSizeCommand: downscaled image",
		"original_width", bounds.Dx(),
		"original_height", bounds.Dy(),
		"target_width", targetW,
		"target_height", targetH)
	return encodeJpeg(dst, c.quality)
}

// targetSize computes the largest size within bounds that keeps the aspect ratio
func (c *MaxSizeCommand) targetSize(w, h int) (int, int, bool) {
	if w <= 0 || h <= 0 {
		return w, h, false
	}
	scale := 1.0
	if c.maxWidth > 0 && w > c.maxWidth {
		scale = min(scale, float64(c.maxWidth)/float64(w))
	}
	if c.maxHeight > 0 && h > c.maxHeight {
		scale = min(scale, float64(c.maxHeight)/float64(h))
	}
	if scale >= 1.0 {
		return w, h, false
	}
	return max(1, int(float64(w)*scale)), max(1, int(float64(h)*scale)), true
}

func init() {
	if err := commandstructure.DefaultRegistry.Register("MaxSizeCommand", NewMaxSizeCommand); err != nil {
		panic(fmt.Sprintf("failed to register MaxSizeCommand: %v", err))
	}
}
