// scan runs the extraction pipeline on one image and prints the single
// and multi pass results as JSON. Useful when tuning preprocessing.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"fintrack/pkg/config"
	"fintrack/pkg/ocr"

	"go.uber.org/zap"
)

type output struct {
	File      string             `json:"file"`
	Quality   ocr.QualityMetrics `json:"quality"`
	Single    *ocr.Result        `json:"single,omitempty"`
	SingleErr string             `json:"single_error,omitempty"`
	Multi     ocr.Result         `json:"multi"`
	Elapsed   string             `json:"elapsed"`
}

func main() {
	lang := flag.String("lang", "", "tesseract languages, e.g. eng+sin (default OCR_LANGUAGE)")
	verbose := flag.Bool("v", false, "log every pass")
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: scan [-lang eng] [-v] <image>")
		os.Exit(2)
	}
	path := flag.Arg(0)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *lang != "" {
		cfg.OCRLanguage = *lang
	}
	logger := zap.NewNop()
	if *verbose {
		logger, _ = zap.NewDevelopment()
	}

	img, err := ocr.OpenImage(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open %s: %v\n", path, err)
		os.Exit(1)
	}
	engine := ocr.NewEngine(ocr.NewTesseractRecognizer(cfg.Languages()...), ocr.WithLogger(logger))

	ctx := context.Background()
	start := time.Now()
	out := output{File: path, Quality: engine.AnalyzeQuality(img)}
	if single, err := engine.ExtractSingle(ctx, img); err != nil {
		out.SingleErr = err.Error()
	} else {
		out.Single = &single
	}
	out.Multi = engine.ExtractMultiPass(ctx, img)
	out.Elapsed = time.Since(start).Round(time.Millisecond).String()

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
