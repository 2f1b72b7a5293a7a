package ocr

import (
	"context"
	"errors"
	"image"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRecognizer returns canned lines and counts calls. Safe for concurrent passes.
type fakeRecognizer struct {
	lines   []RecognizedLine
	err     error
	explode bool
	calls   atomic.Int32
}

func (f *fakeRecognizer) Recognize(_ context.Context, img image.Image, _ RecognizeOptions) ([]RecognizedLine, error) {
	f.calls.Add(1)
	if f.explode {
		panic("recognizer exploded")
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.lines, nil
}

func receiptLines(conf float64) []RecognizedLine {
	texts := []string{
		"KEELLS SUPER",
		"No 12 Galle Road Colombo",
		"Tel: 0112345678",
		"Date: 25/09/2026",
		"Rice 5kg 1,200.00",
		"Milk 350.00",
		"SUBTOTAL 1,550.00",
		"TOTAL Rs. 1,550.00",
		"CASH 2,000.00",
		"CHANGE 450.00",
		"Thank you",
	}
	out := make([]RecognizedLine, len(texts))
	for i, t := range texts {
		out[i] = RecognizedLine{Text: t, Confidence: conf}
	}
	return out
}

func newTestEngine(r Recognizer, opts ...Option) *Engine {
	return NewEngine(r, append([]Option{WithClock(fixedClock)}, opts...)...)
}

func TestInterpretGoodReceipt(t *testing.T) {
	e := newTestEngine(nil)
	r := e.Interpret(receiptLines(0.9))

	require.NotNil(t, r.Amount)
	assert.Equal(t, "1550", r.Amount.String())
	require.NotNil(t, r.Merchant)
	assert.Equal(t, "KEELLS SUPER", *r.Merchant)
	require.NotNil(t, r.SuggestedCategory)
	assert.Equal(t, CategoryGroceries, *r.SuggestedCategory)
	require.NotNil(t, r.TransactionDate)
	assert.True(t, day(2026, time.September, 25).Equal(*r.TransactionDate))
	assert.Contains(t, r.RawText, "TOTAL Rs. 1,550.00")
	assert.Greater(t, r.Confidence, 0.7)
	assert.LessOrEqual(t, r.Confidence, 1.0)
}

func TestInterpretNoLines(t *testing.T) {
	e := newTestEngine(nil)
	for _, lines := range [][]RecognizedLine{nil, {{Text: "  ", Confidence: 0.9}}} {
		r := e.Interpret(lines)
		assert.Nil(t, r.Amount)
		assert.Zero(t, r.Confidence)
		assert.Empty(t, r.RawText)
	}
}

func TestInterpretUsesAlternates(t *testing.T) {
	e := newTestEngine(nil)
	r := e.Interpret([]RecognizedLine{
		{Text: "Cafe Nero", Confidence: 0.8},
		{Text: "T0TAL ###", Confidence: 0.5, Alternates: []string{"TOTAL 420.00"}},
	})
	require.NotNil(t, r.Amount)
	assert.Equal(t, "420", r.Amount.String())
}

func TestInterpretKeepsAmountBeforeDebitMarker(t *testing.T) {
	e := newTestEngine(nil)
	r := e.Interpret([]RecognizedLine{
		{Text: "KEELLS SUPER", Confidence: 0.95},
		{Text: "TOTAL Rs. 500.00 Dr", Confidence: 0.95},
	})
	require.NotNil(t, r.Amount)
	assert.Equal(t, "500", r.Amount.String())
}

type detectFunc func(string) []Span

func (f detectFunc) Detect(text string) []Span { return f(text) }

func TestInterpretWithDetector(t *testing.T) {
	lines := []RecognizedLine{
		{Text: "Cafe Nero", Confidence: 0.8},
		{Text: "TOTAL 420.00", Confidence: 0.8},
	}
	r := newTestEngine(nil).Interpret(lines)
	require.NotNil(t, r.Amount)
	assert.Equal(t, "420", r.Amount.String())

	// a detector that reads "420.00" as a date code keeps the line out
	codes := detectFunc(func(text string) []Span {
		if i := strings.Index(text, "420.00"); i >= 0 {
			return []Span{{Kind: SpanDate, Start: i, End: i + 6}}
		}
		return nil
	})
	r = newTestEngine(nil, WithDetector(codes)).Interpret(lines)
	assert.Nil(t, r.Amount)
}

func TestInterpretNeverReportsOutOfRangeAmount(t *testing.T) {
	e := newTestEngine(nil)
	for _, text := range []string{"TOTAL 1,000,001.00", "Amount due 1000001", "GRAND TOTAL Rs. 1.000.001,00"} {
		r := e.Interpret([]RecognizedLine{{Text: text, Confidence: 0.95}})
		if r.Amount != nil {
			assert.NotEqual(t, "1000001", r.Amount.String(), text)
			assert.True(t, r.Amount.LessThanOrEqual(MaxAmount), text)
		}
	}
}

func TestExtractSingle(t *testing.T) {
	rec := &fakeRecognizer{lines: receiptLines(0.9)}
	e := newTestEngine(rec)
	r, err := e.ExtractSingle(context.Background(), solid(120, 200, 200))
	require.NoError(t, err)
	require.NotNil(t, r.Amount)
	assert.Equal(t, "1550", r.Amount.String())
	assert.Equal(t, int32(1), rec.calls.Load())
}

func TestExtractSingleErrors(t *testing.T) {
	ctx := context.Background()

	_, err := newTestEngine(&fakeRecognizer{}).ExtractSingle(ctx, nil)
	assert.ErrorIs(t, err, ErrInvalidImage)

	_, err = newTestEngine(&fakeRecognizer{}).ExtractSingle(ctx, solid(10, 10, 255))
	assert.ErrorIs(t, err, ErrNoTextFound)

	_, err = newTestEngine(&fakeRecognizer{err: errors.New("tesseract gone")}).ExtractSingle(ctx, solid(10, 10, 255))
	assert.ErrorIs(t, err, ErrProcessingFailed)

	r, err := newTestEngine(&fakeRecognizer{explode: true}).ExtractSingle(ctx, solid(10, 10, 255))
	assert.ErrorIs(t, err, ErrProcessingFailed)
	assert.Nil(t, r.Amount)
}

func TestFuseZeroAndOne(t *testing.T) {
	e := newTestEngine(nil)
	empty := e.Fuse(nil)
	assert.Nil(t, empty.Amount)
	assert.Zero(t, empty.Confidence)
	assert.Empty(t, empty.RawText)

	single := e.Interpret(receiptLines(0.8))
	assert.Equal(t, single, e.Fuse([]Result{single}))
}

func TestFusePicksFieldsPerPass(t *testing.T) {
	e := newTestEngine(nil)
	a := Result{RawText: "pass a", Amount: amountPtr("120"), Merchant: strPtr("Low Merchant"), Confidence: 0.4}
	b := Result{RawText: "pass b", Amount: amountPtr("125"), SuggestedCategory: strPtr(CategoryFood), Confidence: 0.8}
	c := Result{RawText: "pass c", Merchant: strPtr("High Merchant"), Confidence: 0.6}

	got := e.Fuse([]Result{a, b, c})
	require.NotNil(t, got.Amount)
	assert.Equal(t, "125", got.Amount.String())
	assert.Equal(t, CategoryFood, *got.SuggestedCategory)
	assert.Equal(t, "High Merchant", *got.Merchant)
	assert.Nil(t, got.TransactionDate)
	assert.Equal(t, "pass a\npass b\npass c", got.RawText)

	want := e.validator.Validate(Result{RawText: got.RawText, Amount: b.Amount, Confidence: (0.4 + 0.8 + 0.6) / 3})
	assert.InDelta(t, want.Confidence, got.Confidence, 1e-9)
}

func TestMultiPassGoodReceiptKeepsConfidence(t *testing.T) {
	rec := &fakeRecognizer{lines: receiptLines(0.85)}
	e := newTestEngine(rec)
	single, err := e.ExtractSingle(context.Background(), solid(120, 200, 200))
	require.NoError(t, err)

	multi := e.ExtractMultiPass(context.Background(), solid(120, 200, 200))
	require.NotNil(t, multi.Amount)
	assert.True(t, single.Amount.Equal(*multi.Amount))
	assert.Equal(t, *single.Merchant, *multi.Merchant)
	assert.Equal(t, *single.SuggestedCategory, *multi.SuggestedCategory)
	assert.GreaterOrEqual(t, multi.Confidence, single.Confidence)
	// uniform image has no outline, so the perspective pass is skipped
	assert.Equal(t, int32(3), rec.calls.Load())
}

func TestMultiPassRunsPerspectivePass(t *testing.T) {
	rec := &fakeRecognizer{lines: receiptLines(0.85)}
	e := newTestEngine(rec)
	img := imaging.Paste(solid(400, 300, 30), solid(300, 200, 240), image.Pt(50, 50))
	r := e.ExtractMultiPass(context.Background(), img)
	require.NotNil(t, r.Amount)
	assert.Equal(t, int32(3), rec.calls.Load())
}

func TestMultiPassNeverFails(t *testing.T) {
	for _, rec := range []*fakeRecognizer{{err: ErrNoTextFound}, {explode: true}, {err: errors.New("boom")}} {
		r := newTestEngine(rec).ExtractMultiPass(context.Background(), solid(50, 50, 200))
		assert.Nil(t, r.Amount)
		assert.Zero(t, r.Confidence)
		assert.Empty(t, r.RawText)
	}
	r := newTestEngine(&fakeRecognizer{}).ExtractMultiPass(context.Background(), nil)
	assert.Zero(t, r.Confidence)
}

func TestMultiPassMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	rec := &fakeRecognizer{lines: receiptLines(0.9)}
	newTestEngine(rec, WithMetrics(m)).ExtractMultiPass(context.Background(), solid(60, 60, 200))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.passes.WithLabelValues(passPreprocessed, "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.passes.WithLabelValues(passContrast, "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.passes.WithLabelValues(passPerspective, "skipped")))
}

func TestExtractFromFileNoAmount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blank.png")
	require.NoError(t, imaging.Save(solid(400, 200, 255), path))

	e := newTestEngine(&fakeRecognizer{err: ErrNoTextFound})
	_, err := e.ExtractFromFile(context.Background(), path)
	assert.ErrorIs(t, err, ErrNoAmount)
}
