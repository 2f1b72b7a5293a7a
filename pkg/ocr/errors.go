package ocr

import "errors"

var (
	// ErrInvalidImage is returned when the input cannot be decoded into a processable image.
	ErrInvalidImage = errors.New("invalid image")
	// ErrNoTextFound is returned when the recognizer produced no usable lines.
	ErrNoTextFound = errors.New("no text found")
	// ErrProcessingFailed wraps unexpected failures during extraction.
	ErrProcessingFailed = errors.New("processing failed")
	// ErrPreprocessingFailed is returned when the pipeline could not produce an image at all.
	ErrPreprocessingFailed = errors.New("preprocessing failed")
	// ErrNoAmount is returned when no plausible monetary amount can be extracted.
	ErrNoAmount = errors.New("no amount detected")
)
