package loader

import (
	"net/url"
	"regexp"
	"strconv"

	"imgload/internal/handle"
)

const (
	bytesPerPixel       = 4
	defaultEstimateSize = 4 << 20
	maxDimension        = 1 << 15
)

// Estimator reports the memory an image occupies once displayed at full
// resolution. Zero means "unknown", letting a chain fall through.
type Estimator interface {
	Estimate(info TaskInfo, h handle.Handle) int64
}

// EstimatorFunc adapts a function to Estimator.
type EstimatorFunc func(info TaskInfo, h handle.Handle) int64

func (f EstimatorFunc) Estimate(info TaskInfo, h handle.Handle) int64 { return f(info, h) }

// Chain returns the first non-zero estimate of its members.
type Chain []Estimator

func (c Chain) Estimate(info TaskInfo, h handle.Handle) int64 {
	for _, e := range c {
		if n := e.Estimate(info, h); n > 0 {
			return n
		}
	}
	return 0
}

// SizeHint trusts the caller-supplied size.
var SizeHint = EstimatorFunc(func(info TaskInfo, _ handle.Handle) int64 { return info.SizeHint })

// Fixed always returns n.
func Fixed(n int64) Estimator {
	return EstimatorFunc(func(TaskInfo, handle.Handle) int64 { return n })
}

// DefaultEstimator prefers a size hint, then dimensions parsed from the URL,
// then a fixed 4 MiB.
func DefaultEstimator() Estimator {
	return Chain{SizeHint, URLDimensions, Fixed(defaultEstimateSize)}
}

var dimPattern = regexp.MustCompile(`(?i)(?:^|[^0-9])([0-9]{2,5})x([0-9]{2,5})(?:[^0-9]|$)`)

// URLDimensions decodes width and height from the primary URL, either as
// query parameters (w/h, width/height) or a "1920x1080" path segment, and
// assumes 4 bytes per pixel.
var URLDimensions = EstimatorFunc(func(info TaskInfo, _ handle.Handle) int64 {
	w, h := dimensionsFromURL(info.PrimaryURL)
	if w <= 0 || h <= 0 {
		return 0
	}
	return int64(w) * int64(h) * bytesPerPixel
})

func dimensionsFromURL(raw string) (int, int) {
	if u, err := url.Parse(raw); err == nil {
		q := u.Query()
		for _, pair := range [][2]string{{"w", "h"}, {"width", "height"}} {
			w, werr := strconv.Atoi(q.Get(pair[0]))
			h, herr := strconv.Atoi(q.Get(pair[1]))
			if werr == nil && herr == nil && validDim(w) && validDim(h) {
				return w, h
			}
		}
		raw = u.Path
	}
	m := dimPattern.FindStringSubmatch(raw)
	if m == nil {
		return 0, 0
	}
	w, _ := strconv.Atoi(m[1])
	h, _ := strconv.Atoi(m[2])
	if !validDim(w) || !validDim(h) {
		return 0, 0
	}
	return w, h
}

func validDim(n int) bool { return n > 0 && n <= maxDimension }
