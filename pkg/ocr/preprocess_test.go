package ocr

import (
	"image"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solid(w, h int, v uint8) *image.NRGBA {
	return imaging.New(w, h, color.NRGBA{v, v, v, 255})
}

func TestAnalyzeQualityNeutralOnEmpty(t *testing.T) {
	assert.Equal(t, neutralQuality, AnalyzeQuality(nil))
	assert.Equal(t, neutralQuality, AnalyzeQuality(image.NewNRGBA(image.Rect(0, 0, 0, 0))))
	assert.False(t, neutralQuality.HasGoodLighting)
}

func TestAnalyzeQualityBands(t *testing.T) {
	mid := AnalyzeQuality(solid(100, 80, 128))
	assert.InDelta(t, 128.0/255, mid.Brightness, 0.01)
	assert.Equal(t, goodEstimate, mid.Contrast)
	assert.Equal(t, goodEstimate, mid.Sharpness)
	assert.True(t, mid.HasGoodLighting)

	dark := AnalyzeQuality(solid(100, 80, 20))
	assert.Less(t, dark.Brightness, 0.2)
	assert.Equal(t, degradedEstimate, dark.Contrast)
	assert.False(t, dark.HasGoodLighting)

	dim := AnalyzeQuality(solid(100, 80, 64))
	assert.Equal(t, goodEstimate, dim.Contrast)
	assert.False(t, dim.HasGoodLighting)
}

func TestAnalyzeQualitySamplesCenter(t *testing.T) {
	img := solid(100, 100, 0)
	center := solid(50, 50, 255)
	img = imaging.Paste(img, center, image.Pt(25, 25))
	q := AnalyzeQuality(img)
	assert.InDelta(t, 1.0, q.Brightness, 0.01)
}

func TestPlanFollowsMetrics(t *testing.T) {
	dark := Plan(QualityMetrics{Brightness: 0.3, Contrast: 0.4, Sharpness: 0.4})
	require.Len(t, dark, 6)
	assert.Equal(t, Exposure{EV: 1.0}, dark[0])
	assert.Equal(t, UnsharpMask{Radius: 2.5, Intensity: 0.8}, dark[1])
	assert.Equal(t, ColorControls{Contrast: 1.5, Brightness: 0.05, Saturation: 0}, dark[2])
	assert.Equal(t, Gamma{Power: 0.8}, dark[3])
	assert.Equal(t, Monochrome{}, dark[4])
	assert.Equal(t, LuminanceSharpen{Sharpness: 0.8}, dark[5])

	bright := Plan(QualityMetrics{Brightness: 0.8, Contrast: 0.7, Sharpness: 0.7})
	assert.Equal(t, Exposure{EV: -0.5}, bright[0])
	assert.Equal(t, UnsharpMask{Radius: 1.5, Intensity: 0.5}, bright[1])
	assert.Equal(t, ColorControls{Contrast: 1.2, Saturation: 0}, bright[2])
	assert.Equal(t, Gamma{Power: 1.2}, bright[3])
	assert.Equal(t, LuminanceSharpen{Sharpness: 0.4}, bright[5])

	normal := Plan(QualityMetrics{Brightness: 0.55, Contrast: 0.7, Sharpness: 0.7})
	assert.Equal(t, Exposure{EV: 0.3}, normal[0])
}

func TestRunKeepsInputWhenStageFails(t *testing.T) {
	p := NewPreprocessor(nil)
	src := solid(40, 30, 200)
	out, stages, err := p.Run(src, []Adjustment{Gamma{Power: -1}, Monochrome{}})
	require.NoError(t, err)
	require.Len(t, stages, 2)

	assert.False(t, stages[0].Applied)
	assert.Error(t, stages[0].Err)
	assert.Same(t, src, stages[0].Image)

	assert.True(t, stages[1].Applied)
	assert.Equal(t, src.Bounds().Size(), out.Bounds().Size())
}

func TestRunRejectsEmptyImage(t *testing.T) {
	_, _, err := NewPreprocessor(nil).Run(nil, Plan(neutralQuality))
	assert.ErrorIs(t, err, ErrPreprocessingFailed)
}

func TestPreprocessProducesGrayscale(t *testing.T) {
	src := imaging.New(60, 40, color.NRGBA{200, 40, 40, 255})
	out, err := NewPreprocessor(nil).Preprocess(src)
	require.NoError(t, err)
	c := color.NRGBAModel.Convert(out.At(10, 10)).(color.NRGBA)
	assert.Equal(t, c.R, c.G)
	assert.Equal(t, c.G, c.B)
}

func TestAdjustmentParameterChecks(t *testing.T) {
	src := solid(10, 10, 100)
	bad := []Adjustment{
		Exposure{EV: 50},
		UnsharpMask{Radius: 0, Intensity: 1},
		ColorControls{Contrast: -1},
		Gamma{Power: 0},
		LuminanceSharpen{Sharpness: 2},
		Threshold{Window: 1},
	}
	for _, a := range bad {
		r := applyStage(src, a)
		assert.False(t, r.Applied, a.Name())
		assert.Error(t, r.Err, a.Name())
	}
}

func TestExposureBrightens(t *testing.T) {
	out, err := Exposure{EV: 1}.apply(solid(4, 4, 60))
	require.NoError(t, err)
	assert.Equal(t, uint8(120), out.Pix[0])
}

func TestThresholdBinarises(t *testing.T) {
	img := solid(30, 30, 230)
	img = imaging.Paste(img, solid(4, 4, 20), image.Pt(13, 13))
	out, err := Threshold{Window: 15, Bias: 10}.apply(img)
	require.NoError(t, err)
	assert.Equal(t, uint8(0), out.NRGBAAt(15, 15).R)
	assert.Equal(t, uint8(255), out.NRGBAAt(2, 2).R)
}

func TestHighContrastChainIsBinary(t *testing.T) {
	img := imaging.Paste(solid(80, 60, 210), solid(20, 8, 40), image.Pt(30, 26))
	out, stages, err := NewPreprocessor(nil).Run(img, highContrastChain)
	require.NoError(t, err)
	require.Len(t, stages, len(highContrastChain))
	for _, s := range stages {
		assert.True(t, s.Applied, s.Adjustment)
	}
	nrgba := imaging.Clone(out)
	for i := 0; i < len(nrgba.Pix); i += 4 {
		v := nrgba.Pix[i]
		require.True(t, v == 0 || v == 255, "pixel %d is %d", i/4, v)
	}
}

func TestPerspectiveCorrectionStage(t *testing.T) {
	p := NewPreprocessor(nil)

	_, stages, err := p.Run(solid(200, 150, 128), []Adjustment{PerspectiveCorrection{}})
	require.NoError(t, err)
	assert.False(t, stages[0].Applied)
	assert.ErrorIs(t, stages[0].Err, errNoOutline)

	paper := imaging.Paste(solid(400, 300, 30), solid(300, 200, 240), image.Pt(50, 50))
	out, stages, err := p.Run(paper, []Adjustment{PerspectiveCorrection{}})
	require.NoError(t, err)
	assert.True(t, stages[0].Applied)
	assert.Less(t, out.Bounds().Dx(), 400)
}
