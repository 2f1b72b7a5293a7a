package ocr

import (
	"image"

	"github.com/disintegration/imaging"
)

const (
	goodEstimate     = 0.7
	degradedEstimate = 0.4
)

// neutralQuality is reported when an image cannot be sampled.
var neutralQuality = QualityMetrics{Brightness: 0.5, Contrast: 0.5, Sharpness: 0.5}

// AnalyzeQuality samples the central half of the image and derives coarse
// brightness, contrast and sharpness figures. Contrast and sharpness are
// banded off brightness: they only steer filter strength, so a cheap
// estimate is enough.
func AnalyzeQuality(img image.Image) QualityMetrics {
	if isEmpty(img) {
		return neutralQuality
	}
	b := img.Bounds()
	w, h := b.Dx()/2, b.Dy()/2
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	center := imaging.CropCenter(img, w, h)
	if center.Bounds().Empty() {
		return neutralQuality
	}

	brightness := meanLuminance(center)
	m := QualityMetrics{
		Brightness:      brightness,
		Contrast:        degradedEstimate,
		Sharpness:       degradedEstimate,
		HasGoodLighting: brightness >= 0.3 && brightness <= 0.8,
	}
	if brightness >= 0.2 && brightness <= 0.8 {
		m.Contrast = goodEstimate
		m.Sharpness = goodEstimate
	}
	return m
}

// meanLuminance returns the Rec. 601 luma of img averaged over all pixels, in [0,1].
func meanLuminance(img *image.NRGBA) float64 {
	b := img.Bounds()
	var sum float64
	n := 0
	for y := 0; y < b.Dy(); y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+b.Dx()*4]
		for x := 0; x < len(row); x += 4 {
			sum += 0.299*float64(row[x]) + 0.587*float64(row[x+1]) + 0.114*float64(row[x+2])
			n++
		}
	}
	if n == 0 {
		return neutralQuality.Brightness
	}
	return clamp01(sum / float64(n) / 255)
}
