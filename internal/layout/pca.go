package layout

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// pca projects vectors onto their first dims principal components. Missing components (from
// rank-deficient or low-dimensional input) are zero. Each component's sign is fixed so its
// largest loading is positive.
func pca(vectors [][]float64, dims int) [][]float64 {
	n := len(vectors)
	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, dims)
	}
	if n < 2 || len(vectors[0]) == 0 {
		return out
	}
	d := len(vectors[0])

	data := mat.NewDense(n, d, nil)
	for i, v := range vectors {
		data.SetRow(i, v)
	}

	var pc stat.PC
	if !pc.PrincipalComponents(data, nil) {
		return out
	}
	var loadings mat.Dense
	pc.VectorsTo(&loadings)
	_, available := loadings.Dims()
	k := min(dims, available)
	if k == 0 {
		return out
	}

	means := make([]float64, d)
	for j := 0; j < d; j++ {
		means[j] = stat.Mean(mat.Col(nil, j, data), nil)
	}
	centered := mat.NewDense(n, d, nil)
	centered.Apply(func(_, j int, v float64) float64 { return v - means[j] }, data)

	basis := mat.DenseCopyOf(loadings.Slice(0, d, 0, k))
	for c := 0; c < k; c++ {
		if sign := dominantSign(mat.Col(nil, c, basis)); sign < 0 {
			for r := 0; r < d; r++ {
				basis.Set(r, c, -basis.At(r, c))
			}
		}
	}

	var proj mat.Dense
	proj.Mul(centered, basis)
	for i := 0; i < n; i++ {
		for c := 0; c < k; c++ {
			out[i][c] = proj.At(i, c)
		}
	}
	return out
}

func dominantSign(col []float64) float64 {
	best, idx := 0.0, -1
	for i, v := range col {
		if a := math.Abs(v); a > best {
			best, idx = a, i
		}
	}
	if idx >= 0 && col[idx] < 0 {
		return -1
	}
	return 1
}
