package cluster

import (
	"math"

	"github.com/hyperjump/bunrui/pkg/utils"
)

const powerIterations = 200

// Project2D maps vectors onto their first two principal components (PCA via power
// iteration with deflation). Output is deterministic: each axis is oriented so its
// largest-magnitude loading is positive.
func Project2D(vectors [][]float64) [][2]float64 {
	n := len(vectors)
	out := make([][2]float64, n)
	if n == 0 || len(vectors[0]) == 0 {
		return out
	}
	dims := len(vectors[0])

	mean := make([]float64, dims)
	for _, v := range vectors {
		for d := 0; d < dims && d < len(v); d++ {
			mean[d] += v[d]
		}
	}
	for d := range mean {
		mean[d] /= float64(n)
	}
	centered := make([][]float64, n)
	for i, v := range vectors {
		centered[i] = make([]float64, dims)
		for d := 0; d < dims && d < len(v); d++ {
			centered[i][d] = v[d] - mean[d]
		}
	}

	first := principalAxis(centered, nil)
	second := principalAxis(centered, first)
	for i, row := range centered {
		out[i] = [2]float64{dot(row, first), dot(row, second)}
	}
	return out
}

// principalAxis returns the dominant eigenvector of XᵀX, orthogonal to exclude when given.
func principalAxis(x [][]float64, exclude []float64) []float64 {
	dims := len(x[0])
	v := make([]float64, dims)
	for d := range v {
		v[d] = 1 / math.Sqrt(float64(d+1))
	}
	orthogonalize(v, exclude)
	if utils.NormF64(v) == 0 {
		v[dims-1] = 1
		orthogonalize(v, exclude)
	}
	utils.NormalizeL2F64(v)

	for it := 0; it < powerIterations; it++ {
		next := make([]float64, dims)
		for _, row := range x {
			s := dot(row, v)
			for d, r := range row {
				next[d] += s * r
			}
		}
		orthogonalize(next, exclude)
		if utils.NormF64(next) == 0 {
			return make([]float64, dims)
		}
		utils.NormalizeL2F64(next)
		if utils.SquaredDistance(next, v) < 1e-18 {
			v = next
			break
		}
		v = next
	}

	maxIdx := 0
	for d := range v {
		if math.Abs(v[d]) > math.Abs(v[maxIdx]) {
			maxIdx = d
		}
	}
	if v[maxIdx] < 0 {
		for d := range v {
			v[d] = -v[d]
		}
	}
	return v
}

func orthogonalize(v, against []float64) {
	if against == nil {
		return
	}
	p := dot(v, against)
	for d := range v {
		v[d] -= p * against[d]
	}
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}
