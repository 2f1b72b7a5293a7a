package ocr

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
)

const (
	// detection runs on a copy no wider than this
	perspectiveSampleWidth = 256
	// the quad must cover at least this share of the frame to be trusted
	minQuadArea = 0.25
	// corners closer than this (as a share of the frame) count as the frame itself
	cornerSlack = 0.03
)

type quad struct {
	tl, tr, br, bl image.Point
}

// correctPerspective warps the brightest large region, normally the paper of
// the receipt, onto an upright rectangle. ok is false when no such region is
// found or it already fills the frame.
func correctPerspective(img image.Image) (*image.NRGBA, bool) {
	if isEmpty(img) {
		return nil, false
	}
	q, ok := findPaperQuad(img)
	if !ok {
		return nil, false
	}
	return warpQuad(imaging.Clone(img), q), true
}

func findPaperQuad(img image.Image) (quad, bool) {
	b := img.Bounds()
	sample := imaging.Grayscale(img)
	if b.Dx() > perspectiveSampleWidth {
		sample = imaging.Resize(sample, perspectiveSampleWidth, 0, imaging.Box)
	}
	sw, sh := sample.Bounds().Dx(), sample.Bounds().Dy()
	if sw < 8 || sh < 8 {
		return quad{}, false
	}

	var sum float64
	for i := 0; i < len(sample.Pix); i += 4 {
		sum += float64(sample.Pix[i])
	}
	mean := sum / float64(sw*sh)
	threshold := mean + (255-mean)*0.25

	found := false
	var tl, tr, br, bl image.Point
	minSum, maxSum := math.MaxInt, math.MinInt
	minDiff, maxDiff := math.MaxInt, math.MinInt
	for y := 0; y < sh; y++ {
		for x := 0; x < sw; x++ {
			if float64(sample.Pix[y*sample.Stride+x*4]) < threshold {
				continue
			}
			found = true
			p := image.Pt(x, y)
			s, d := x+y, x-y
			if s < minSum {
				minSum, tl = s, p
			}
			if s > maxSum {
				maxSum, br = s, p
			}
			if d > maxDiff {
				maxDiff, tr = d, p
			}
			if d < minDiff {
				minDiff, bl = d, p
			}
		}
	}
	if !found {
		return quad{}, false
	}

	q := quad{tl: tl, tr: tr, br: br, bl: bl}
	if quadArea(q) < minQuadArea*float64(sw*sh) {
		return quad{}, false
	}
	frame := quad{tl: image.Pt(0, 0), tr: image.Pt(sw-1, 0), br: image.Pt(sw-1, sh-1), bl: image.Pt(0, sh-1)}
	if nearFrame(q, frame, cornerSlack*float64(max(sw, sh))) {
		return quad{}, false
	}

	sx := float64(b.Dx()) / float64(sw)
	sy := float64(b.Dy()) / float64(sh)
	scale := func(p image.Point) image.Point {
		return image.Pt(b.Min.X+int(float64(p.X)*sx), b.Min.Y+int(float64(p.Y)*sy))
	}
	return quad{tl: scale(q.tl), tr: scale(q.tr), br: scale(q.br), bl: scale(q.bl)}, true
}

// warpQuad maps the quad onto a rectangle with bilinear corner interpolation
// and nearest neighbour sampling.
func warpQuad(src *image.NRGBA, q quad) *image.NRGBA {
	w := int(math.Round((dist(q.tl, q.tr) + dist(q.bl, q.br)) / 2))
	h := int(math.Round((dist(q.tl, q.bl) + dist(q.tr, q.br)) / 2))
	w, h = max(w, 1), max(h, 1)
	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	sb := src.Bounds()
	for y := 0; y < h; y++ {
		v := float64(y) / float64(max(h-1, 1))
		for x := 0; x < w; x++ {
			u := float64(x) / float64(max(w-1, 1))
			fx := (1-u)*(1-v)*float64(q.tl.X) + u*(1-v)*float64(q.tr.X) + u*v*float64(q.br.X) + (1-u)*v*float64(q.bl.X)
			fy := (1-u)*(1-v)*float64(q.tl.Y) + u*(1-v)*float64(q.tr.Y) + u*v*float64(q.br.Y) + (1-u)*v*float64(q.bl.Y)
			sx := min(max(int(math.Round(fx)), sb.Min.X), sb.Max.X-1)
			sy := min(max(int(math.Round(fy)), sb.Min.Y), sb.Max.Y-1)
			si := (sy-sb.Min.Y)*src.Stride + (sx-sb.Min.X)*4
			copy(out.Pix[y*out.Stride+x*4:y*out.Stride+x*4+4], src.Pix[si:si+4])
		}
	}
	return out
}

// quadArea uses the shoelace formula.
func quadArea(q quad) float64 {
	pts := []image.Point{q.tl, q.tr, q.br, q.bl}
	a := 0
	for i := range pts {
		j := (i + 1) % len(pts)
		a += pts[i].X*pts[j].Y - pts[j].X*pts[i].Y
	}
	return math.Abs(float64(a)) / 2
}

func nearFrame(q, frame quad, slack float64) bool {
	return dist(q.tl, frame.tl) <= slack && dist(q.tr, frame.tr) <= slack &&
		dist(q.br, frame.br) <= slack && dist(q.bl, frame.bl) <= slack
}

func dist(a, b image.Point) float64 {
	return math.Hypot(float64(a.X-b.X), float64(a.Y-b.Y))
}
