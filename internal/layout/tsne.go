package layout

import (
	"math"
	"math/rand/v2"
)

const (
	exaggeration      = 12.0
	exaggerationIters = 250
	initialMomentum   = 0.5
	finalMomentum     = 0.8
	minGain           = 0.01
	perplexityTol     = 1e-5
	perplexitySteps   = 50
)

type tsneParams struct {
	perplexity   float64
	iterations   int
	learningRate float64
	seed         uint64
}

// tsne is exact t-SNE into two dimensions.
func tsne(x [][]float64, p tsneParams) [][]float64 {
	n := len(x)
	probs := jointProbabilities(x, p.perplexity)

	rng := rand.New(rand.NewPCG(p.seed, p.seed^0xda942042e4dd58b5))
	y := make([][]float64, n)
	update := make([][]float64, n)
	gains := make([][]float64, n)
	for i := range y {
		y[i] = []float64{rng.NormFloat64() * 1e-4, rng.NormFloat64() * 1e-4}
		update[i] = make([]float64, 2)
		gains[i] = []float64{1, 1}
	}

	num := make([][]float64, n)
	for i := range num {
		num[i] = make([]float64, n)
	}
	grad := make([]float64, 2)

	for iter := 0; iter < p.iterations; iter++ {
		exag, momentum := 1.0, finalMomentum
		if iter < exaggerationIters {
			exag, momentum = exaggeration, initialMomentum
		}

		sum := 0.0
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				dx, dy := y[i][0]-y[j][0], y[i][1]-y[j][1]
				q := 1 / (1 + dx*dx + dy*dy)
				num[i][j], num[j][i] = q, q
				sum += 2 * q
			}
		}
		sum = math.Max(sum, 1e-12)

		for i := 0; i < n; i++ {
			grad[0], grad[1] = 0, 0
			for j := 0; j < n; j++ {
				if i == j {
					continue
				}
				q := math.Max(num[i][j]/sum, 1e-12)
				mult := 4 * (exag*probs[i][j] - q) * num[i][j]
				grad[0] += mult * (y[i][0] - y[j][0])
				grad[1] += mult * (y[i][1] - y[j][1])
			}
			for k := 0; k < 2; k++ {
				if (grad[k] > 0) != (update[i][k] > 0) {
					gains[i][k] += 0.2
				} else {
					gains[i][k] *= 0.8
				}
				gains[i][k] = math.Max(gains[i][k], minGain)
				update[i][k] = momentum*update[i][k] - p.learningRate*gains[i][k]*grad[k]
			}
		}
		for i := range y {
			y[i][0] += update[i][0]
			y[i][1] += update[i][1]
		}
		recenter(y)
	}
	return y
}

// jointProbabilities returns the symmetrised affinities P, with each row's Gaussian bandwidth
// tuned by bisection to match the target perplexity.
func jointProbabilities(x [][]float64, perplexity float64) [][]float64 {
	n := len(x)
	dist := make([][]float64, n)
	for i := range dist {
		dist[i] = make([]float64, n)
		for j := range dist[i] {
			var s float64
			for k := range x[i] {
				d := x[i][k] - x[j][k]
				s += d * d
			}
			dist[i][j] = s
		}
	}

	target := math.Log(perplexity)
	cond := make([][]float64, n)
	for i := 0; i < n; i++ {
		cond[i] = make([]float64, n)
		beta, lo, hi := 1.0, math.Inf(-1), math.Inf(1)
		for step := 0; step < perplexitySteps; step++ {
			h := rowAffinities(dist[i], i, beta, cond[i])
			diff := h - target
			if math.Abs(diff) < perplexityTol {
				break
			}
			if diff > 0 {
				lo = beta
				if math.IsInf(hi, 1) {
					beta *= 2
				} else {
					beta = (beta + hi) / 2
				}
			} else {
				hi = beta
				if math.IsInf(lo, -1) {
					beta /= 2
				} else {
					beta = (beta + lo) / 2
				}
			}
		}
	}

	probs := make([][]float64, n)
	for i := range probs {
		probs[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			probs[i][j] = math.Max((cond[i][j]+cond[j][i])/(2*float64(n)), 1e-12)
		}
	}
	return probs
}

// rowAffinities fills row with normalised Gaussian affinities of point i and returns their entropy.
func rowAffinities(dist []float64, i int, beta float64, row []float64) float64 {
	sum := 0.0
	for j, d := range dist {
		if j == i {
			row[j] = 0
			continue
		}
		row[j] = math.Exp(-d * beta)
		sum += row[j]
	}
	if sum == 0 {
		// Every neighbour underflowed; spread mass uniformly.
		for j := range row {
			if j != i {
				row[j] = 1 / float64(len(row)-1)
			}
		}
		return math.Log(float64(len(row) - 1))
	}

	h := 0.0
	for j := range row {
		if j == i {
			continue
		}
		row[j] /= sum
		if row[j] > 0 {
			h -= row[j] * math.Log(row[j])
		}
	}
	return h
}

func recenter(y [][]float64) {
	var mx, my float64
	for _, p := range y {
		mx += p[0]
		my += p[1]
	}
	mx /= float64(len(y))
	my /= float64(len(y))
	for _, p := range y {
		p[0] -= mx
		p[1] -= my
	}
}
