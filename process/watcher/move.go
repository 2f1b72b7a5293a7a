package watcher

import (
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
)

// moveToProcessed moves src to dst. Images over maxBytes are downscaled on
// the way (file size roughly follows pixel area); anything that cannot be
// decoded or re-encoded is moved as is.
func moveToProcessed(src, dst string, maxBytes int64) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	fi, err := os.Stat(src)
	if err != nil {
		return err
	}
	if fi.Size() <= maxBytes {
		return rename(src, dst)
	}
	img, err := imaging.Open(src, imaging.AutoOrientation(true))
	if err != nil {
		return rename(src, dst)
	}
	scale := math.Sqrt(float64(maxBytes) / float64(fi.Size()))
	scale = math.Max(0.1, math.Min(scale, 0.95))
	w := int(math.Max(1, math.Round(float64(img.Bounds().Dx())*scale)))
	img = imaging.Resize(img, w, 0, imaging.Lanczos)
	if err := imaging.Save(img, dst); err != nil {
		return rename(src, dst)
	}
	if err := os.Remove(src); err != nil {
		return err
	}
	// one more 80% pass when compression did not follow the area estimate
	if fi2, err := os.Stat(dst); err == nil && fi2.Size() > maxBytes {
		if again, err := imaging.Open(dst); err == nil {
			again = imaging.Resize(again, int(math.Max(1, float64(again.Bounds().Dx())*0.8)), 0, imaging.Lanczos)
			_ = imaging.Save(again, dst)
		}
	}
	return nil
}

// rename falls back to copy and remove across filesystems.
func rename(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	return copyRemove(src, dst)
}

func copyRemove(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
