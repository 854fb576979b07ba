package services

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFitRidgeRecoversLinearRelation(t *testing.T) {
	// y = 2*x1 + 3 の完全な線形関係。正則化込みでも係数はほぼ復元される。
	var X [][]float64
	var y []float64
	for i := 0; i < 200; i++ {
		x1 := float64(i % 20)
		x2 := float64((i * 7) % 13)
		X = append(X, []float64{x1, x2})
		y = append(y, 2*x1+3)
	}

	model, err := fitRidge(X, y, 0.01)
	require.NoError(t, err)

	for i, row := range X[:10] {
		assert.InDelta(t, y[i], model.Predict(row), 0.1)
	}
	// 無関係な列の寄与はほぼゼロ
	contribs := model.Contributions([]float64{10, 6})
	assert.InDelta(t, 0.0, contribs[1], 0.1)
}

func TestFitRidgeSmallMultiFeatureDesign(t *testing.T) {
	// 2列の最小ケースでも対称行列の下三角への書き込みで落ちない
	X := [][]float64{{1, 2}, {2, 3}, {3, 5}, {4, 4}}
	y := []float64{3, 5, 8, 8}

	model, err := fitRidge(X, y, 1.0)
	require.NoError(t, err)
	require.Len(t, model.Weights, 2)
	for _, w := range model.Weights {
		assert.False(t, math.IsNaN(w))
	}
	assert.False(t, math.IsNaN(model.Predict([]float64{2, 4})))
}

func TestContributionsSumToPredictionMinusIntercept(t *testing.T) {
	model := &linearModel{
		Weights:   []float64{1.5, -2.0, 0.5},
		Intercept: 4.0,
		Means:     []float64{1, 2, 3},
		Scales:    []float64{1, 2, 0.5},
	}
	x := []float64{3, -1, 2.5}

	contribs := model.Contributions(x)
	sum := model.Intercept
	for _, c := range contribs {
		sum += c
	}
	assert.InDelta(t, model.Predict(x), sum, 1e-12)
}

func TestFitPoissonConstantCounts(t *testing.T) {
	// 定数カウントの系列ではIRLSは切片のみのモデルに収束する
	var X [][]float64
	var y []float64
	for i := 0; i < 100; i++ {
		X = append(X, []float64{float64(i % 7), float64(i % 3)})
		y = append(y, 10)
	}

	model, err := fitPoisson(X, y)
	require.NoError(t, err)
	assert.InDelta(t, math.Log(10), model.Intercept, 1e-3)
	assert.InDelta(t, 10.0, model.Predict([]float64{4, 1}), 0.05)
}

func TestSolveCholesky(t *testing.T) {
	a := [][]float64{
		{4, 2},
		{2, 3},
	}
	b := []float64{10, 8}

	x, err := solveCholesky(a, b)
	require.NoError(t, err)
	// 4x+2y=10, 2x+3y=8 → x=1.75, y=1.5
	assert.InDelta(t, 1.75, x[0], 1e-12)
	assert.InDelta(t, 1.5, x[1], 1e-12)
}

func TestSolveCholeskyRejectsIndefinite(t *testing.T) {
	a := [][]float64{
		{1, 2},
		{2, 1},
	}
	_, err := solveCholesky(a, []float64{1, 1})
	assert.Error(t, err)
}

func TestColumnStatsZeroVariance(t *testing.T) {
	X := [][]float64{{5, 1}, {5, 2}, {5, 3}}
	means, scales := columnStats(X)
	assert.InDelta(t, 5.0, means[0], 1e-12)
	// 分散ゼロの列はスケール1で標準化を定義し続ける
	assert.InDelta(t, 1.0, scales[0], 1e-12)
	assert.InDelta(t, 2.0, means[1], 1e-12)
}

func TestEvaluationMetrics(t *testing.T) {
	yTrue := []float64{10, 0, 20}
	yPred := []float64{12, 1, 18}

	assert.InDelta(t, math.Sqrt(9.0/3.0), calculateRMSE(yTrue, yPred), 1e-12)
	assert.InDelta(t, 5.0/3.0, calculateMAE(yTrue, yPred), 1e-12)
	assert.InDelta(t, 5.0/30.0, calculateWMAPE(yTrue, yPred), 1e-12)
	// MAPEは真値ゼロの行をマスクする
	assert.InDelta(t, (2.0/10.0+2.0/20.0)/2.0, calculateMAPE(yTrue, yPred), 1e-12)
}
