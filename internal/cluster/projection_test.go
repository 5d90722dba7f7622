package cluster

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProject2D(t *testing.T) {
	assert.Empty(t, Project2D(nil))

	// Points spread along x much more than along y; z is constant.
	vectors := [][]float64{
		{-10, 1, 5},
		{-5, -1, 5},
		{0, 0.5, 5},
		{5, -0.5, 5},
		{10, 0, 5},
	}
	pts := Project2D(vectors)
	assert.Len(t, pts, 5)
	for i := 1; i < len(pts); i++ {
		assert.Greater(t, pts[i][0], pts[i-1][0], "first axis follows x")
	}
	var spread0, spread1 float64
	for _, p := range pts {
		spread0 += p[0] * p[0]
		spread1 += p[1] * p[1]
	}
	assert.Greater(t, spread0, spread1)
	assert.InDelta(t, 0, pts[2][0], 0.1)

	again := Project2D(vectors)
	assert.Equal(t, pts, again)
}

func TestProject2D_SinglePoint(t *testing.T) {
	pts := Project2D([][]float64{{1, 2, 3}})
	assert.Len(t, pts, 1)
	assert.False(t, math.IsNaN(pts[0][0]) || math.IsNaN(pts[0][1]))
}
