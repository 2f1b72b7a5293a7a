package ocr

import (
	"fmt"
	"image"

	"go.uber.org/zap"
)

// StageResult is the outcome of one pipeline stage. When Applied is false
// Image is the stage's input, unchanged, and Err says why.
type StageResult struct {
	Adjustment string
	Image      image.Image
	Applied    bool
	Err        error
}

// Preprocessor runs the quality-adaptive adjustment chain.
type Preprocessor struct {
	log *zap.Logger
}

// NewPreprocessor returns a Preprocessor logging to log (nil means no logging).
func NewPreprocessor(log *zap.Logger) *Preprocessor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Preprocessor{log: log}
}

// Plan returns the adjustment chain for an image with the given metrics.
// The order is fixed; only parameters depend on q.
func Plan(q QualityMetrics) []Adjustment {
	exposure := Exposure{EV: 0.3}
	switch {
	case q.Brightness < 0.4:
		exposure.EV = 1.0
	case q.Brightness > 0.7:
		exposure.EV = -0.5
	}

	unsharp := UnsharpMask{Radius: 1.5, Intensity: 0.5}
	if q.Sharpness < 0.6 {
		unsharp = UnsharpMask{Radius: 2.5, Intensity: 0.8}
	}

	controls := ColorControls{Contrast: 1.2, Saturation: 0}
	if q.Contrast < 0.5 {
		controls.Contrast = 1.5
	}
	if q.Brightness < 0.4 {
		controls.Brightness = 0.05
	}

	gamma := Gamma{Power: 1.2}
	if q.Brightness < 0.5 {
		gamma.Power = 0.8
	}

	sharpen := LuminanceSharpen{Sharpness: 0.4}
	if q.Sharpness < 0.6 {
		sharpen.Sharpness = 0.8
	}

	return []Adjustment{exposure, unsharp, controls, gamma, Monochrome{}, sharpen}
}

// Preprocess analyses img and runs the planned chain over it.
func (p *Preprocessor) Preprocess(img image.Image) (image.Image, error) {
	out, _, err := p.Run(img, Plan(AnalyzeQuality(img)))
	return out, err
}

// Run applies each adjustment in turn. A stage that fails hands its input
// to the next stage; only an empty final image is an error.
func (p *Preprocessor) Run(img image.Image, chain []Adjustment) (image.Image, []StageResult, error) {
	if isEmpty(img) {
		return nil, nil, fmt.Errorf("%w: %w", ErrPreprocessingFailed, ErrInvalidImage)
	}
	results := make([]StageResult, 0, len(chain))
	cur := img
	for _, adj := range chain {
		r := applyStage(cur, adj)
		if r.Err != nil {
			p.log.Debug("preprocess stage skipped", zap.String("stage", r.Adjustment), zap.Error(r.Err))
		}
		results = append(results, r)
		cur = r.Image
	}
	if isEmpty(cur) {
		return nil, results, ErrPreprocessingFailed
	}
	return cur, results, nil
}

func applyStage(in image.Image, adj Adjustment) (res StageResult) {
	res = StageResult{Adjustment: adj.Name(), Image: in}
	defer func() {
		if r := recover(); r != nil {
			res = StageResult{Adjustment: adj.Name(), Image: in, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	out, err := adj.apply(in)
	if err != nil {
		res.Err = err
		return res
	}
	if out == nil || out.Bounds().Empty() {
		res.Err = fmt.Errorf("%s produced an empty image", adj.Name())
		return res
	}
	res.Image, res.Applied = out, true
	return res
}
