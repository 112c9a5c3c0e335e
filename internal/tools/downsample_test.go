package tools

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moolen/causeway/internal/collectors"
)

func makeSeries(n int) []collectors.SeriesPoint {
	points := make([]collectors.SeriesPoint, n)
	for i := range points {
		points[i] = collectors.SeriesPoint{
			Timestamp: float64(1700000000 + i*60),
			Value:     math.Sin(float64(i) / 10),
		}
	}
	return points
}

func TestDownsampleLTTBReducesToThreshold(t *testing.T) {
	points := makeSeries(10000)
	out := DownsampleLTTB(points, MaxSeriesPoints)
	require.Len(t, out, MaxSeriesPoints)
	assert.Equal(t, points[0], out[0])
	assert.Equal(t, points[len(points)-1], out[len(out)-1])

	// Timestamps stay strictly increasing.
	for i := 1; i < len(out); i++ {
		assert.Greater(t, out[i].Timestamp, out[i-1].Timestamp)
	}
}

func TestDownsampleLTTBSmallSeriesUntouched(t *testing.T) {
	points := makeSeries(150)
	out := DownsampleLTTB(points, MaxSeriesPoints)
	assert.Equal(t, points, out)

	points = makeSeries(3)
	assert.Equal(t, points, DownsampleLTTB(points, MaxSeriesPoints))
}

func TestDownsampleLTTBJustOverThreshold(t *testing.T) {
	points := makeSeries(151)
	out := DownsampleLTTB(points, MaxSeriesPoints)
	require.Len(t, out, MaxSeriesPoints)
	assert.Equal(t, points[0], out[0])
	assert.Equal(t, points[150], out[len(out)-1])
}

func TestDownsampleLTTBPreservesSpike(t *testing.T) {
	points := makeSeries(1000)
	points[500].Value = 100 // outlier the algorithm must keep

	out := DownsampleLTTB(points, MaxSeriesPoints)
	found := false
	for _, p := range out {
		if p.Value == 100 {
			found = true
			break
		}
	}
	assert.True(t, found, "spike point should survive downsampling")
}
