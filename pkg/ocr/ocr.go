package ocr

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"go.uber.org/zap"
)

// alternates are a second opinion; their candidates count for less
const alternateDiscount = 0.8

// Engine interprets receipt images. It holds no per-call state and is safe
// for concurrent use as long as its Recognizer is.
type Engine struct {
	log          *zap.Logger
	recognizer   Recognizer
	options      RecognizeOptions
	preprocessor *Preprocessor
	amounts      *AmountExtractor
	categories   CategoryClassifier
	merchants    MerchantExtractor
	dates        DateExtractor
	validator    Validator
	metrics      *Metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithDetector replaces the phone/date detector used by amount extraction.
func WithDetector(d Detector) Option {
	return func(e *Engine) { e.amounts = NewAmountExtractor(d) }
}

// WithMetrics enables prometheus metrics.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithClock sets the reference time used to accept transaction dates.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.dates = DateExtractor{Now: now} }
}

// WithRecognizeOptions overrides DefaultRecognizeOptions.
func WithRecognizeOptions(o RecognizeOptions) Option {
	return func(e *Engine) { e.options = o }
}

// NewEngine returns an Engine that reads text with r.
func NewEngine(r Recognizer, opts ...Option) *Engine {
	e := &Engine{
		log:        zap.NewNop(),
		recognizer: r,
		options:    DefaultRecognizeOptions(),
		amounts:    NewAmountExtractor(RegexDetector{}),
	}
	for _, o := range opts {
		o(e)
	}
	e.preprocessor = NewPreprocessor(e.log)
	return e
}

// AnalyzeQuality reports coarse quality metrics for img.
func (e *Engine) AnalyzeQuality(img image.Image) QualityMetrics {
	return AnalyzeQuality(img)
}

// Preprocess runs the quality-adaptive chain. On error callers should use
// the original image.
func (e *Engine) Preprocess(img image.Image) (image.Image, error) {
	return e.preprocessor.Preprocess(img)
}

// ExtractSingle preprocesses, recognizes and interprets img once. It fails
// with ErrInvalidImage, ErrNoTextFound or ErrProcessingFailed.
func (e *Engine) ExtractSingle(ctx context.Context, img image.Image) (Result, error) {
	r, err := e.runPass(ctx, passPreprocessed, img)
	if err != nil {
		return emptyResult(), err
	}
	e.metrics.result(r, -1)
	return r, nil
}

// Interpret runs the field extractors and the validator over recognized lines.
func (e *Engine) Interpret(lines []RecognizedLine) Result {
	text := joinLines(lines)
	if text == "" {
		return emptyResult()
	}
	lines = withRepairedAlternates(lines)
	base := meanConfidence(lines)

	cands := e.amounts.Extract(text, base)
	for _, l := range lines {
		for _, alt := range l.Alternates {
			cands = append(cands, e.amounts.Extract(alt, clamp01(l.Confidence)*alternateDiscount)...)
		}
	}

	r := Result{RawText: text, Confidence: base * 0.5}
	if best, ok := BestCandidate(cands); ok {
		v := best.Value
		r.Amount = &v
		r.Confidence = (base + best.Confidence) / 2
	}
	r.SuggestedCategory, _ = e.categories.Classify(text)
	r.Merchant = e.merchants.Extract(text)
	r.TransactionDate = e.dates.Extract(text)
	return e.validator.Validate(r)
}

// ExtractFromFile opens the image at path and runs multi-pass extraction.
// It returns ErrNoAmount alongside the result when no total was found.
func (e *Engine) ExtractFromFile(ctx context.Context, path string) (Result, error) {
	img, err := OpenImage(path)
	if err != nil {
		return emptyResult(), err
	}
	r := e.ExtractMultiPass(ctx, img)
	if r.Amount == nil {
		e.log.Debug("no amount", zap.String("path", path), zap.String("text", snippet(r.RawText, 140)))
		return r, ErrNoAmount
	}
	return r, nil
}

// recognize wraps recognizer failures in the package's error taxonomy.
func (e *Engine) recognize(ctx context.Context, img image.Image) ([]RecognizedLine, error) {
	if e.recognizer == nil {
		return nil, fmt.Errorf("%w: no recognizer configured", ErrProcessingFailed)
	}
	lines, err := e.recognizer.Recognize(ctx, img, e.options)
	switch {
	case err == nil:
	case errors.Is(err, ErrInvalidImage), errors.Is(err, ErrNoTextFound):
		return nil, err
	case ctx.Err() != nil:
		return nil, fmt.Errorf("%w: %w", ErrProcessingFailed, ctx.Err())
	default:
		return nil, fmt.Errorf("%w: recognize: %v", ErrProcessingFailed, err)
	}
	if joinLines(lines) == "" {
		return nil, ErrNoTextFound
	}
	return lines, nil
}
