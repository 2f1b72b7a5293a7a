package ocr

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
)

var errBadParameter = errors.New("bad adjustment parameter")

// Adjustment is one image filter with its parameters. The set is closed:
// only the types in this file implement it.
type Adjustment interface {
	Name() string
	apply(img image.Image) (*image.NRGBA, error)
}

// Exposure scales linear intensity by 2^EV.
type Exposure struct{ EV float64 }

// UnsharpMask adds back Intensity times the difference between the image
// and a gaussian blur of the given Radius.
type UnsharpMask struct{ Radius, Intensity float64 }

// ColorControls applies contrast and saturation multipliers (1 = unchanged)
// and an additive brightness offset in [-1,1].
type ColorControls struct{ Contrast, Brightness, Saturation float64 }

// Gamma applies a gamma curve; values below 1 darken midtones.
type Gamma struct{ Power float64 }

// Monochrome converts to luminance-weighted grayscale.
type Monochrome struct{}

// LuminanceSharpen sharpens with a strength in [0,1].
type LuminanceSharpen struct{ Sharpness float64 }

// Threshold binarises against the local mean in a Window sized box,
// offset by Bias grey levels.
type Threshold struct {
	Window int
	Bias   int
}

// PerspectiveCorrection locates the receipt outline and warps it to a
// rectangle. It fails with errNoOutline when no outline is found.
type PerspectiveCorrection struct{}

func (Exposure) Name() string              { return "exposure" }
func (UnsharpMask) Name() string           { return "unsharp_mask" }
func (ColorControls) Name() string         { return "color_controls" }
func (Gamma) Name() string                 { return "gamma" }
func (Monochrome) Name() string            { return "monochrome" }
func (LuminanceSharpen) Name() string      { return "luminance_sharpen" }
func (Threshold) Name() string             { return "threshold" }
func (PerspectiveCorrection) Name() string { return "perspective_correction" }

func (a Exposure) apply(img image.Image) (*image.NRGBA, error) {
	if !finite(a.EV) || math.Abs(a.EV) > 10 {
		return nil, fmt.Errorf("%w: ev %v", errBadParameter, a.EV)
	}
	k := math.Pow(2, a.EV)
	var lut [256]uint8
	for i := range lut {
		lut[i] = clampByte(float64(i) * k)
	}
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		return color.NRGBA{R: lut[c.R], G: lut[c.G], B: lut[c.B], A: c.A}
	}), nil
}

func (a UnsharpMask) apply(img image.Image) (*image.NRGBA, error) {
	if !finite(a.Radius) || a.Radius <= 0 || !finite(a.Intensity) || a.Intensity < 0 {
		return nil, fmt.Errorf("%w: radius %v intensity %v", errBadParameter, a.Radius, a.Intensity)
	}
	src := imaging.Clone(img)
	blur := imaging.Blur(src, a.Radius)
	out := image.NewNRGBA(src.Bounds())
	for i := 0; i < len(src.Pix); i += 4 {
		for c := 0; c < 3; c++ {
			o := float64(src.Pix[i+c])
			out.Pix[i+c] = clampByte(o + a.Intensity*(o-float64(blur.Pix[i+c])))
		}
		out.Pix[i+3] = src.Pix[i+3]
	}
	return out, nil
}

func (a ColorControls) apply(img image.Image) (*image.NRGBA, error) {
	if !finite(a.Contrast) || a.Contrast < 0 || !finite(a.Saturation) || a.Saturation < 0 ||
		!finite(a.Brightness) || math.Abs(a.Brightness) > 1 {
		return nil, fmt.Errorf("%w: %+v", errBadParameter, a)
	}
	out := imaging.AdjustContrast(img, clampPercent((a.Contrast-1)*100))
	if a.Brightness != 0 {
		out = imaging.AdjustBrightness(out, a.Brightness*100)
	}
	return imaging.AdjustSaturation(out, clampPercent((a.Saturation-1)*100)), nil
}

func (a Gamma) apply(img image.Image) (*image.NRGBA, error) {
	if !finite(a.Power) || a.Power <= 0 {
		return nil, fmt.Errorf("%w: gamma %v", errBadParameter, a.Power)
	}
	return imaging.AdjustGamma(img, a.Power), nil
}

func (Monochrome) apply(img image.Image) (*image.NRGBA, error) {
	return imaging.Grayscale(img), nil
}

func (a LuminanceSharpen) apply(img image.Image) (*image.NRGBA, error) {
	if !finite(a.Sharpness) || a.Sharpness < 0 || a.Sharpness > 1 {
		return nil, fmt.Errorf("%w: sharpness %v", errBadParameter, a.Sharpness)
	}
	return imaging.Sharpen(img, 2*a.Sharpness), nil
}

func (a Threshold) apply(img image.Image) (*image.NRGBA, error) {
	if a.Window < 3 {
		return nil, fmt.Errorf("%w: window %d", errBadParameter, a.Window)
	}
	return adaptiveThreshold(imaging.Grayscale(img), a.Window, a.Bias), nil
}

func (PerspectiveCorrection) apply(img image.Image) (*image.NRGBA, error) {
	if out, ok := correctPerspective(img); ok {
		return out, nil
	}
	return nil, errNoOutline
}

// adaptiveThreshold marks a pixel black when it is darker than the mean of
// its window minus bias. gray must already be grayscale.
func adaptiveThreshold(gray *image.NRGBA, window, bias int) *image.NRGBA {
	if window%2 == 0 {
		window++
	}
	w, h := gray.Bounds().Dx(), gray.Bounds().Dy()
	out := imaging.New(w, h, color.NRGBA{255, 255, 255, 255})
	half := window / 2

	// summed area table, one row and column of padding
	ints := make([]int, (w+1)*(h+1))
	for y := 0; y < h; y++ {
		rowSum := 0
		for x := 0; x < w; x++ {
			rowSum += int(gray.Pix[y*gray.Stride+x*4])
			ints[(y+1)*(w+1)+x+1] = ints[y*(w+1)+x+1] + rowSum
		}
	}
	for y := 0; y < h; y++ {
		y0, y1 := max(y-half, 0), min(y+half, h-1)
		for x := 0; x < w; x++ {
			x0, x1 := max(x-half, 0), min(x+half, w-1)
			sum := ints[(y1+1)*(w+1)+x1+1] - ints[y0*(w+1)+x1+1] - ints[(y1+1)*(w+1)+x0] + ints[y0*(w+1)+x0]
			mean := sum / ((x1 - x0 + 1) * (y1 - y0 + 1))
			if int(gray.Pix[y*gray.Stride+x*4]) < max(mean-bias, 0) {
				i := y*out.Stride + x*4
				out.Pix[i], out.Pix[i+1], out.Pix[i+2] = 0, 0, 0
			}
		}
	}
	return out
}

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }

func clampByte(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	}
	return uint8(v + 0.5)
}

func clampPercent(p float64) float64 {
	return math.Max(-100, math.Min(100, p))
}
