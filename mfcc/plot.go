package mfcc

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
)

// Plot sizing for RenderPNG.
const (
	cellWidth  = 4
	cellHeight = 16
)

// viridis anchor colours, evenly spaced over [0, 1].
var viridis = []color.RGBA{
	{68, 1, 84, 255},
	{72, 40, 120, 255},
	{62, 74, 137, 255},
	{49, 104, 142, 255},
	{38, 130, 142, 255},
	{31, 158, 137, 255},
	{53, 183, 121, 255},
	{109, 205, 89, 255},
	{180, 222, 44, 255},
	{253, 231, 37, 255},
}

func colormap(v float64) color.RGBA {
	if math.IsNaN(v) || v <= 0 {
		return viridis[0]
	}
	if v >= 1 {
		return viridis[len(viridis)-1]
	}
	pos := v * float64(len(viridis)-1)
	i := int(pos)
	frac := pos - float64(i)
	a, b := viridis[i], viridis[i+1]
	lerp := func(x, y uint8) uint8 {
		return uint8(math.Round(float64(x) + frac*(float64(y)-float64(x))))
	}
	return color.RGBA{lerp(a.R, b.R), lerp(a.G, b.G), lerp(a.B, b.B), 255}
}

// RenderPNG draws the matrix as a heatmap with time on the x axis and
// coefficient 0 on the bottom row. Only the first frames columns are used
// for colour scaling so zero padding does not wash out the range; pass
// m.Cols to scale over everything.
func RenderPNG(m *Matrix, frames int) ([]byte, error) {
	if m == nil || m.Rows == 0 || m.Cols == 0 {
		return nil, fmt.Errorf("mfcc: nothing to render")
	}
	if frames <= 0 || frames > m.Cols {
		frames = m.Cols
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for r := 0; r < m.Rows; r++ {
		for c := 0; c < frames; c++ {
			v := float64(m.At(r, c))
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	span := hi - lo
	if span == 0 {
		span = 1
	}

	img := image.NewRGBA(image.Rect(0, 0, m.Cols*cellWidth, m.Rows*cellHeight))
	for r := 0; r < m.Rows; r++ {
		y0 := (m.Rows - 1 - r) * cellHeight
		for c := 0; c < m.Cols; c++ {
			col := colormap((float64(m.At(r, c)) - lo) / span)
			x0 := c * cellWidth
			for y := y0; y < y0+cellHeight; y++ {
				for x := x0; x < x0+cellWidth; x++ {
					img.SetRGBA(x, y, col)
				}
			}
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("mfcc: encode png: %w", err)
	}
	return buf.Bytes(), nil
}
