package services

import (
	"errors"
	"math"
)

// linearModel is a ridge-regularized linear regression over standardized features.
// Prediction at the training feature means equals Intercept, so Intercept doubles
// as the additive-attribution baseline.
type linearModel struct {
	Weights   []float64 `json:"weights"`
	Intercept float64   `json:"intercept"`
	Means     []float64 `json:"means"`
	Scales    []float64 `json:"scales"`
}

// Predict returns the model output for one raw (unstandardized) feature vector.
func (m *linearModel) Predict(x []float64) float64 {
	pred := m.Intercept
	for i, w := range m.Weights {
		pred += w * (x[i] - m.Means[i]) / m.Scales[i]
	}
	return pred
}

// Contributions returns the per-feature additive terms of a prediction.
// They sum exactly to Predict(x) - Intercept.
func (m *linearModel) Contributions(x []float64) []float64 {
	out := make([]float64, len(m.Weights))
	for i, w := range m.Weights {
		out[i] = w * (x[i] - m.Means[i]) / m.Scales[i]
	}
	return out
}

// fitRidge fits y ~ X with L2 penalty lambda on the standardized design.
// Rows of X are observations. The system is solved by Cholesky on the
// (k x k) normal equations, so k stays small while n can be large.
func fitRidge(X [][]float64, y []float64, lambda float64) (*linearModel, error) {
	n := len(X)
	if n == 0 || n != len(y) {
		return nil, errors.New("ridge: empty or mismatched design")
	}
	k := len(X[0])
	means, scales := columnStats(X)

	// Standardize into Z and center y.
	yMean := meanOf(y)
	zt := make([][]float64, k) // column-major standardized design
	for j := 0; j < k; j++ {
		col := make([]float64, n)
		for i := 0; i < n; i++ {
			col[i] = (X[i][j] - means[j]) / scales[j]
		}
		zt[j] = col
	}

	// Normal equations: (Z'Z + lambda*I) w = Z'(y - yMean)
	a := make([][]float64, k)
	for j := range a {
		a[j] = make([]float64, k)
	}
	b := make([]float64, k)
	for j := 0; j < k; j++ {
		for l := j; l < k; l++ {
			var s float64
			for i := 0; i < n; i++ {
				s += zt[j][i] * zt[l][i]
			}
			a[j][l] = s
			a[l][j] = s
		}
		a[j][j] += lambda
		var s float64
		for i := 0; i < n; i++ {
			s += zt[j][i] * (y[i] - yMean)
		}
		b[j] = s
	}

	w, err := solveCholesky(a, b)
	if err != nil {
		return nil, err
	}
	return &linearModel{Weights: w, Intercept: yMean, Means: means, Scales: scales}, nil
}

// poissonModel is a Poisson GLM with log link over standardized features,
// fitted by iteratively reweighted least squares. Used for count targets.
type poissonModel struct {
	Weights   []float64 `json:"weights"`
	Intercept float64   `json:"intercept"`
	Means     []float64 `json:"means"`
	Scales    []float64 `json:"scales"`
}

// Predict returns the expected count exp(eta) for one raw feature vector.
func (m *poissonModel) Predict(x []float64) float64 {
	eta := m.Intercept
	for i, w := range m.Weights {
		eta += w * (x[i] - m.Means[i]) / m.Scales[i]
	}
	// Guard against overflow on extrapolated inputs.
	if eta > 30 {
		eta = 30
	}
	return math.Exp(eta)
}

// fitPoisson fits a Poisson regression by IRLS with a fixed iteration budget.
// Deterministic: no sampling, fixed start (intercept = log of mean count).
func fitPoisson(X [][]float64, y []float64) (*poissonModel, error) {
	n := len(X)
	if n == 0 || n != len(y) {
		return nil, errors.New("poisson: empty or mismatched design")
	}
	k := len(X[0])
	means, scales := columnStats(X)

	z := make([][]float64, n)
	for i := 0; i < n; i++ {
		row := make([]float64, k)
		for j := 0; j < k; j++ {
			row[j] = (X[i][j] - means[j]) / scales[j]
		}
		z[i] = row
	}

	w := make([]float64, k)
	intercept := math.Log(meanOf(y) + 1e-9)

	const maxIter = 25
	const ridgeEps = 1e-6
	for iter := 0; iter < maxIter; iter++ {
		// Working response and weights for the current linearization.
		eta := make([]float64, n)
		mu := make([]float64, n)
		for i := 0; i < n; i++ {
			e := intercept
			for j := 0; j < k; j++ {
				e += w[j] * z[i][j]
			}
			if e > 30 {
				e = 30
			} else if e < -30 {
				e = -30
			}
			eta[i] = e
			mu[i] = math.Exp(e)
		}

		// Weighted normal equations over the design augmented with an
		// intercept column: (X'WX + eps*I) beta = X'W zWork
		dim := k + 1
		a := make([][]float64, dim)
		for j := range a {
			a[j] = make([]float64, dim)
		}
		b := make([]float64, dim)
		for i := 0; i < n; i++ {
			wi := mu[i]
			if wi < 1e-9 {
				wi = 1e-9
			}
			zi := eta[i] + (y[i]-mu[i])/mu[i]
			row := make([]float64, dim)
			row[0] = 1
			copy(row[1:], z[i])
			for p := 0; p < dim; p++ {
				for q := p; q < dim; q++ {
					a[p][q] += wi * row[p] * row[q]
				}
				b[p] += wi * row[p] * zi
			}
		}
		for p := 0; p < dim; p++ {
			for q := 0; q < p; q++ {
				a[p][q] = a[q][p]
			}
			a[p][p] += ridgeEps
		}

		beta, err := solveCholesky(a, b)
		if err != nil {
			return nil, err
		}

		var delta float64
		delta += math.Abs(beta[0] - intercept)
		intercept = beta[0]
		for j := 0; j < k; j++ {
			delta += math.Abs(beta[j+1] - w[j])
			w[j] = beta[j+1]
		}
		if delta < 1e-8 {
			break
		}
	}

	return &poissonModel{Weights: w, Intercept: intercept, Means: means, Scales: scales}, nil
}

// solveCholesky solves A x = b for symmetric positive definite A.
func solveCholesky(a [][]float64, b []float64) ([]float64, error) {
	n := len(a)
	l := make([][]float64, n)
	for i := range l {
		l[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := 0; j <= i; j++ {
			s := a[i][j]
			for p := 0; p < j; p++ {
				s -= l[i][p] * l[j][p]
			}
			if i == j {
				if s <= 0 {
					return nil, errors.New("cholesky: matrix not positive definite")
				}
				l[i][i] = math.Sqrt(s)
			} else {
				l[i][j] = s / l[j][j]
			}
		}
	}
	// Forward then backward substitution.
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		s := b[i]
		for p := 0; p < i; p++ {
			s -= l[i][p] * y[p]
		}
		y[i] = s / l[i][i]
	}
	x := make([]float64, n)
	for i := n - 1; i >= 0; i-- {
		s := y[i]
		for p := i + 1; p < n; p++ {
			s -= l[p][i] * x[p]
		}
		x[i] = s / l[i][i]
	}
	return x, nil
}

// columnStats returns the per-column mean and standard deviation of X.
// Zero-variance columns get scale 1 so standardization stays defined.
func columnStats(X [][]float64) (means, scales []float64) {
	n := len(X)
	k := len(X[0])
	means = make([]float64, k)
	scales = make([]float64, k)
	for j := 0; j < k; j++ {
		var sum float64
		for i := 0; i < n; i++ {
			sum += X[i][j]
		}
		means[j] = sum / float64(n)
		var ss float64
		for i := 0; i < n; i++ {
			d := X[i][j] - means[j]
			ss += d * d
		}
		sd := math.Sqrt(ss / float64(n))
		if sd < 1e-12 {
			sd = 1
		}
		scales[j] = sd
	}
	return means, scales
}

func meanOf(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	var s float64
	for _, x := range v {
		s += x
	}
	return s / float64(len(v))
}

// 評価指標（28日ホールドアウトで使用）

func calculateRMSE(yTrue, yPred []float64) float64 {
	if len(yTrue) == 0 {
		return 0
	}
	var ss float64
	for i := range yTrue {
		d := yTrue[i] - yPred[i]
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(yTrue)))
}

func calculateMAE(yTrue, yPred []float64) float64 {
	if len(yTrue) == 0 {
		return 0
	}
	var s float64
	for i := range yTrue {
		s += math.Abs(yTrue[i] - yPred[i])
	}
	return s / float64(len(yTrue))
}

// calculateWMAPE 加重MAPE。真値の絶対和がゼロなら0を返す。
func calculateWMAPE(yTrue, yPred []float64) float64 {
	var diff, base float64
	for i := range yTrue {
		diff += math.Abs(yTrue[i] - yPred[i])
		base += math.Abs(yTrue[i])
	}
	if base == 0 {
		return 0
	}
	return diff / base
}

// calculateMAPE ゼロ真値をマスクしたMAPE（ゼロ除算を避ける）
func calculateMAPE(yTrue, yPred []float64) float64 {
	var s float64
	var n int
	for i := range yTrue {
		if yTrue[i] == 0 {
			continue
		}
		s += math.Abs((yTrue[i] - yPred[i]) / yTrue[i])
		n++
	}
	if n == 0 {
		return 0
	}
	return s / float64(n)
}
