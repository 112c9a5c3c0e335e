package tools

import "github.com/moolen/causeway/internal/collectors"

// MaxSeriesPoints is the per-series ceiling after downsampling.
const MaxSeriesPoints = 150

// DownsampleLTTB reduces a series to at most threshold points using
// largest-triangle-three-buckets. The first and last points are always
// preserved; series at or below the threshold pass through unchanged.
func DownsampleLTTB(points []collectors.SeriesPoint, threshold int) []collectors.SeriesPoint {
	if threshold < 3 || len(points) <= threshold {
		return points
	}

	sampled := make([]collectors.SeriesPoint, 0, threshold)
	sampled = append(sampled, points[0])

	// Interior points are distributed across threshold-2 buckets.
	bucketSize := float64(len(points)-2) / float64(threshold-2)

	prevIdx := 0
	for i := 0; i < threshold-2; i++ {
		bucketStart := int(float64(i)*bucketSize) + 1
		bucketEnd := int(float64(i+1)*bucketSize) + 1
		if bucketEnd >= len(points)-1 {
			bucketEnd = len(points) - 1
		}

		// Average of the next bucket anchors the triangle.
		nextStart := bucketEnd
		nextEnd := int(float64(i+2)*bucketSize) + 1
		if nextEnd >= len(points) {
			nextEnd = len(points)
		}
		var avgX, avgY float64
		n := nextEnd - nextStart
		if n < 1 {
			n = 1
			nextEnd = nextStart + 1
			if nextEnd > len(points) {
				nextStart = len(points) - 1
				nextEnd = len(points)
			}
		}
		for j := nextStart; j < nextEnd; j++ {
			avgX += points[j].Timestamp
			avgY += points[j].Value
		}
		avgX /= float64(n)
		avgY /= float64(n)

		// Pick the bucket point forming the largest triangle with the
		// previously selected point and the next bucket's average.
		prev := points[prevIdx]
		maxArea := -1.0
		maxIdx := bucketStart
		for j := bucketStart; j < bucketEnd; j++ {
			area := abs((prev.Timestamp-avgX)*(points[j].Value-prev.Value) -
				(prev.Timestamp-points[j].Timestamp)*(avgY-prev.Value))
			if area > maxArea {
				maxArea = area
				maxIdx = j
			}
		}

		sampled = append(sampled, points[maxIdx])
		prevIdx = maxIdx
	}

	sampled = append(sampled, points[len(points)-1])
	return sampled
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
