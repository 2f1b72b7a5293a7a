package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"
)

// RecognitionQuality trades speed for accuracy.
type RecognitionQuality int

const (
	QualityAccurate RecognitionQuality = iota
	QualityFast
)

// RecognizeOptions tune one recognition call.
type RecognizeOptions struct {
	Quality            RecognitionQuality
	LanguageCorrection bool
	// CustomWords are domain terms the recognizer should favour.
	CustomWords []string
}

// DefaultCustomWords is the finance vocabulary passed to the recognizer.
var DefaultCustomWords = []string{
	"total", "subtotal", "receipt", "invoice", "amount", "balance", "due",
	"cash", "card", "change", "tax", "vat", "Rs", "LKR", "qty", "price",
}

// DefaultRecognizeOptions are used when an Engine is not given any.
func DefaultRecognizeOptions() RecognizeOptions {
	return RecognizeOptions{
		Quality:            QualityAccurate,
		LanguageCorrection: true,
		CustomWords:        append([]string(nil), DefaultCustomWords...),
	}
}

// Recognizer turns an image into text lines.
type Recognizer interface {
	Recognize(ctx context.Context, img image.Image, opts RecognizeOptions) ([]RecognizedLine, error)
}

const digitWhitelist = "0123456789.,:/- "

// TesseractRecognizer recognizes text with a local Tesseract install.
// A client is created per call so one recognizer can serve concurrent passes.
type TesseractRecognizer struct {
	Languages []string
}

// NewTesseractRecognizer returns a recognizer for the given tesseract
// language codes ("eng" when none are given).
func NewTesseractRecognizer(langs ...string) *TesseractRecognizer {
	if len(langs) == 0 {
		langs = []string{"eng"}
	}
	return &TesseractRecognizer{Languages: langs}
}

// Recognize returns one line per tesseract text line. A second pass
// restricted to digits supplies alternate readings for lines it overlaps.
func (t *TesseractRecognizer) Recognize(ctx context.Context, img image.Image, opts RecognizeOptions) ([]RecognizedLine, error) {
	if isEmpty(img) {
		return nil, ErrInvalidImage
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("%w: encode: %v", ErrInvalidImage, err)
	}
	data := buf.Bytes()

	wordsFile, cleanup, err := writeUserWords(opts.CustomWords)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	primary, err := t.lines(data, opts, "", wordsFile)
	if err != nil {
		return nil, err
	}
	if len(primary) == 0 {
		return nil, ErrNoTextFound
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	digits, err := t.lines(data, opts, digitWhitelist, "")
	if err != nil {
		// alternates are optional
		digits = nil
	}
	out := make([]RecognizedLine, 0, len(primary))
	for _, p := range primary {
		line := RecognizedLine{Text: p.text, Confidence: p.confidence}
		for _, d := range digits {
			if d.text != "" && d.text != p.text && overlap(p.box, d.box) > 0.5 {
				line.Alternates = append(line.Alternates, d.text)
			}
		}
		out = append(out, line)
	}
	return out, nil
}

type tessLine struct {
	text       string
	confidence float64
	box        image.Rectangle
}

func (t *TesseractRecognizer) lines(data []byte, opts RecognizeOptions, whitelist, wordsFile string) ([]tessLine, error) {
	client := gosseract.NewClient()
	defer client.Close()
	if err := client.SetLanguage(t.Languages...); err != nil {
		return nil, fmt.Errorf("set language: %w", err)
	}
	mode := gosseract.PSM_AUTO
	if opts.Quality == QualityFast {
		mode = gosseract.PSM_SINGLE_BLOCK
	}
	if err := client.SetPageSegMode(mode); err != nil {
		return nil, fmt.Errorf("set page seg mode: %w", err)
	}
	if whitelist != "" {
		if err := client.SetWhitelist(whitelist); err != nil {
			return nil, fmt.Errorf("set whitelist: %w", err)
		}
	}
	correction := "0"
	if opts.LanguageCorrection {
		correction = "1"
	}
	_ = client.SetVariable("tessedit_enable_dict_correction", correction)
	if wordsFile != "" {
		_ = client.SetVariable("user_words_file", wordsFile)
	}
	if err := client.SetImageFromBytes(data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	boxes, err := client.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return nil, fmt.Errorf("ocr error: %w", err)
	}
	out := make([]tessLine, 0, len(boxes))
	for _, b := range boxes {
		text := normalizeOCRText(b.Word)
		if text == "" {
			continue
		}
		out = append(out, tessLine{text: text, confidence: clamp01(b.Confidence / 100), box: b.Box})
	}
	return out, nil
}

// writeUserWords stores words in a temp file for tesseract's user_words_file.
func writeUserWords(words []string) (string, func(), error) {
	if len(words) == 0 {
		return "", func() {}, nil
	}
	f, err := os.CreateTemp("", "ocr-words-*.txt")
	if err != nil {
		return "", nil, fmt.Errorf("user words: %w", err)
	}
	_, werr := f.WriteString(strings.Join(words, "\n") + "\n")
	cerr := f.Close()
	if werr != nil || cerr != nil {
		_ = os.Remove(f.Name())
		return "", nil, fmt.Errorf("user words: write %s failed", f.Name())
	}
	return f.Name(), func() { _ = os.Remove(f.Name()) }, nil
}

// overlap is the intersection area of a and b over the smaller area.
func overlap(a, b image.Rectangle) float64 {
	in := a.Intersect(b)
	if in.Empty() {
		return 0
	}
	small := min(a.Dx()*a.Dy(), b.Dx()*b.Dy())
	if small == 0 {
		return 0
	}
	return float64(in.Dx()*in.Dy()) / float64(small)
}
