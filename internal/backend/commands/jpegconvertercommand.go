package commands

import (
	"fmt"
	"log/slog"

	"github.com/jo-hoe/eggcount/internal/backend/commandstructure"
)

// JpegConverterCommand normalises archived images to JPEG so the stored ".jpg" files hold
// what their name says. JPEG input is passed through untouched, and so is input that cannot
// be decoded unless the command is strict.
type JpegConverterCommand struct {
	name              string
	quality           int
	strict            bool
	svgFallbackWidth  int
	svgFallbackHeight int
}

// NewJpegConverterCommand creates a new JPEG converter command
func NewJpegConverterCommand(params map[string]any) (commandstructure.Command, error) {
	quality := commandstructure.GetIntParam(params, "quality", defaultJpegQuality)
	if quality < 1 || quality > 100 {
		return nil, fmt.Errorf("quality must be between 1 and 100, got %d", quality)
	}

	// Optional SVG fallback dimensions, used only when the SVG lacks an explicit size
	w := commandstructure.GetIntParam(params, "svgFallbackWidth", 0)
	h := commandstructure.GetIntParam(params, "svgFallbackHeight", 0)

	return &JpegConverterCommand{
		name:              "JpegConverterCommand",
		quality:           quality,
		strict:            commandstructure.GetBoolParam(params, "strict", false),
		svgFallbackWidth:  w,
		svgFallbackHeight: h,
	}, nil
}

// Name returns the command name
func (c *JpegConverterCommand) Name() string {
	return c.name
}

func (c *JpegConverterCommand) Execute(imageData []byte) ([]byte, error) {
	if hasJpegSignature(imageData) {
		return imageData, nil
	}

	out, err := c.convert(imageData)
	if err != nil {
		if c.strict {
			return nil, err
		}
		slog.Warn("JpegConverterCommand: storing input unconverted",
			"input_size_bytes", len(imageData), "error", err)
		return imageData, nil
	}
	return out, nil
}

func (c *JpegConverterCommand) convert(imageData []byte) ([]byte, error) {
	if isSVGData(imageData) {
		return c.convertSVG(imageData)
	}

	img, currentFormat, err := decodeRaster(imageData)
	if err != nil {
		return nil, err
	}

	out, err := encodeJpeg(img, c.quality)
	if err != nil {
		return nil, err
	}
	slog.Debug("JpegConverterCommand: converted raster image",
		"current_format", currentFormat,
		"width", img.Bounds().Dx(),
		"height", img.Bounds().Dy(),
		"output_size_bytes", len(out))
	return out, nil
}

func (c *JpegConverterCommand) convertSVG(imageData []byte) ([]byte, error) {
	w, h, ok := parseSvgExplicitSize(imageData)
	if !ok {
		w, h = c.svgFallbackWidth, c.svgFallbackHeight
		if w <= 0 || h <= 0 {
			return nil, fmt.Errorf("SVG fallback size not set; cannot render SVG without explicit size")
		}
	}

	img, err := renderSVG(imageData, w, h)
	if err != nil {
		return nil, err
	}
	return encodeJpeg(img, c.quality)
}

func init() {
	if err := commandstructure.DefaultRegistry.Register("JpegConverterCommand", NewJpegConverterCommand); err != nil {
		panic(fmt.Sprintf("failed to register JpegConverterCommand: %v", err))
	}
}
