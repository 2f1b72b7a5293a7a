package ocr

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Pass variants.
const (
	passPreprocessed = "preprocessed"
	passContrast     = "high_contrast"
	passPerspective  = "perspective"
)

// highContrastChain is the fixed chain of the second pass.
var highContrastChain = []Adjustment{
	ColorControls{Contrast: 2.0, Saturation: 0},
	Monochrome{},
	LuminanceSharpen{Sharpness: 0.8},
	Threshold{Window: 25, Bias: 12},
}

// ExtractMultiPass runs up to three passes concurrently (the adaptive chain
// on the original, a high contrast binarised variant and, when the receipt
// outline is found, a perspective corrected variant) and fuses whatever
// succeeded. It never fails: with no successful pass it returns an empty,
// zero confidence result.
func (e *Engine) ExtractMultiPass(ctx context.Context, img image.Image) Result {
	if isEmpty(img) {
		e.metrics.pass(passPreprocessed, "invalid_image")
		return emptyResult()
	}
	variants := []string{passPreprocessed, passContrast, passPerspective}
	results := make([]*Result, len(variants))

	var g errgroup.Group
	for i, v := range variants {
		g.Go(func() error {
			r, err := e.runPass(ctx, v, img)
			if err != nil {
				e.log.Debug("pass failed", zap.String("variant", v), zap.Error(err))
				return nil
			}
			results[i] = &r
			return nil
		})
	}
	_ = g.Wait()

	var ok []Result
	for _, r := range results {
		if r != nil {
			ok = append(ok, *r)
		}
	}
	fused := e.Fuse(ok)
	e.metrics.result(fused, len(ok))
	e.log.Debug("multi-pass done", zap.Int("passes", len(ok)), zap.Float64("confidence", fused.Confidence))
	return fused
}

// runPass prepares one variant of img, recognizes it and interprets the
// lines. Panics are turned into ErrProcessingFailed.
func (e *Engine) runPass(ctx context.Context, variant string, img image.Image) (r Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			e.log.Warn("pass panicked", zap.String("variant", variant), zap.Any("recover", p))
			r, err = emptyResult(), fmt.Errorf("%w: %v", ErrProcessingFailed, p)
		}
		outcome := "ok"
		if err != nil {
			outcome = outcomeLabel(err)
		}
		e.metrics.pass(variant, outcome)
	}()

	if isEmpty(img) {
		return emptyResult(), ErrInvalidImage
	}
	prepared, err := e.prepare(variant, img)
	if err != nil {
		return emptyResult(), err
	}
	lines, err := e.recognize(ctx, prepared)
	if err != nil {
		return emptyResult(), err
	}
	return e.Interpret(lines), nil
}

// prepare builds the image a pass recognizes. Each pass owns the images it
// creates; nothing outlives the pass.
func (e *Engine) prepare(variant string, img image.Image) (image.Image, error) {
	switch variant {
	case passPreprocessed:
		out, err := e.preprocessor.Preprocess(img)
		if err != nil {
			e.log.Debug("preprocess failed, using original", zap.Error(err))
			return img, nil
		}
		return out, nil
	case passContrast:
		out, _, err := e.preprocessor.Run(img, highContrastChain)
		if err != nil {
			return nil, err
		}
		return out, nil
	case passPerspective:
		out, stages, err := e.preprocessor.Run(img, []Adjustment{PerspectiveCorrection{}})
		if err != nil {
			return nil, err
		}
		if !stages[0].Applied {
			return nil, stages[0].Err
		}
		if pre, err := e.preprocessor.Preprocess(out); err == nil {
			return pre, nil
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: unknown pass %q", ErrProcessingFailed, variant)
}

var errNoOutline = errors.New("receipt outline not found")

func outcomeLabel(err error) string {
	switch {
	case errors.Is(err, errNoOutline):
		return "skipped"
	case errors.Is(err, ErrInvalidImage):
		return "invalid_image"
	case errors.Is(err, ErrNoTextFound):
		return "no_text"
	case errors.Is(err, ErrPreprocessingFailed):
		return "preprocess_failed"
	}
	return "failed"
}

// Fuse combines per-pass results. No results give an empty result and one
// result is returned as is. Otherwise each field comes from the most
// confident pass that has it, raw text from all passes is joined, the
// confidence is the mean and the fused result is validated again.
func (e *Engine) Fuse(results []Result) Result {
	switch len(results) {
	case 0:
		return emptyResult()
	case 1:
		return results[0]
	}

	var (
		fused Result
		texts []string
		sum   float64
	)
	amountConf, catConf, merchConf, dateConf := -1.0, -1.0, -1.0, -1.0
	for _, r := range results {
		sum += r.Confidence
		if t := strings.TrimSpace(r.RawText); t != "" {
			texts = append(texts, t)
		}
		if r.Amount != nil && r.Confidence > amountConf {
			fused.Amount, amountConf = r.Amount, r.Confidence
		}
		if r.SuggestedCategory != nil && r.Confidence > catConf {
			fused.SuggestedCategory, catConf = r.SuggestedCategory, r.Confidence
		}
		if r.Merchant != nil && r.Confidence > merchConf {
			fused.Merchant, merchConf = r.Merchant, r.Confidence
		}
		if r.TransactionDate != nil && r.Confidence > dateConf {
			fused.TransactionDate, dateConf = r.TransactionDate, r.Confidence
		}
	}
	fused.RawText = strings.Join(texts, "\n")
	fused.Confidence = sum / float64(len(results))
	if fused.Amount != nil && !inRange(*fused.Amount) {
		fused.Amount = nil
	}
	return e.validator.Validate(fused)
}
