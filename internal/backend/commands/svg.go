package commands

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"strings"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

// isSVGData performs a lightweight detection of SVG content from raw bytes.
// It checks for "<svg" tag or SVG namespace in the initial portion of the data.
func isSVGData(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	n := min(len(data), 4096)
	header := bytes.ToLower(bytes.TrimSpace(data[:n]))
	return bytes.Contains(header, []byte("<svg")) ||
		bytes.Contains(header, []byte("xmlns=\"http://www.w3.org/2000/svg\"")) ||
		bytes.Contains(header, []byte("xmlns='http://www.w3.org/2000/svg'"))
}

// parseSvgExplicitSize attempts to extract width and height attributes from the SVG start tag.
// viewBox is deliberately not treated as a pixel size.
func parseSvgExplicitSize(data []byte) (int, int, bool) {
	n := min(len(data), 8192)
	s := strings.ToLower(string(data[:n]))
	i := strings.Index(s, "<svg")
	if i < 0 {
		return 0, 0, false
	}
	j := strings.Index(s[i:], ">")
	if j < 0 {
		j = len(s)
	} else {
		j = i + j
	}
	tag := s[i:j]

	w, wOk := parseNumericAttr(tag, "width")
	h, hOk := parseNumericAttr(tag, "height")
	if wOk && hOk {
		return w, h, true
	}
	return 0, 0, false
}

// parseNumericAttr extracts the leading integer of a quoted attribute value (e.g. width="123px").
func parseNumericAttr(tag, attr string) (int, bool) {
	// Require a separator before the name so "stroke-width" does not match "width"
	pos := -1
	for _, prefix := range []string{" " + attr + "=", "\t" + attr + "=", "\n" + attr + "="} {
		if p := strings.Index(tag, prefix); p >= 0 {
			pos = p + len(prefix)
			break
		}
	}
	if pos < 0 || pos >= len(tag) {
		return 0, false
	}
	quote := tag[pos]
	if quote != '"' && quote != '\'' {
		return 0, false
	}
	val := tag[pos+1:]
	if end := strings.IndexByte(val, quote); end >= 0 {
		val = val[:end]
	}

	num, found := 0, false
	for k := 0; k < len(val); k++ {
		ch := val[k]
		if ch < '0' || ch > '9' {
			break
		}
		found = true
		num = num*10 + int(ch-'0')
	}
	if !found || num <= 0 {
		return 0, false
	}
	return num, true
}

// renderSVG rasterizes an SVG onto a white canvas of the given size.
func renderSVG(svgData []byte, targetW, targetH int) (image.Image, error) {
	if targetW <= 0 || targetH <= 0 {
		return nil, fmt.Errorf("invalid target dimensions for SVG rendering: %dx%d", targetW, targetH)
	}
	icon, err := oksvg.ReadIconStream(bytes.NewReader(svgData))
	if err != nil {
		return nil, fmt.Errorf("failed to parse SVG: %w", err)
	}
	icon.SetTarget(0, 0, float64(targetW), float64(targetH))

	dst := createTargetCanvas(targetW, targetH, color.White)
	scanner := rasterx.NewScannerGV(targetW, targetH, dst, dst.Bounds())
	dasher := rasterx.NewDasher(targetW, targetH, scanner)
	icon.Draw(dasher, 1.0)
	return dst, nil
}
