package services

import (
	"testing"
	"time"

	"demand-forecast-api/pkg/models"

	"github.com/stretchr/testify/assert"
)

func TestBuildDemandFeaturesLagValues(t *testing.T) {
	fb := NewFeatureBuilder()

	// 需要が1,2,...,40と増えていく系列
	history := make([]DemandPoint, 40)
	for i := range history {
		history[i] = DemandPoint{
			Date:   testStart.AddDate(0, 0, i),
			Demand: float64(i + 1),
		}
	}
	anchor := testStart.AddDate(0, 0, 40)

	x, err := fb.BuildDemandFeatures(anchor, "STORE0001", "SKU0001", history, Covariates{ListPrice: 120, Temperature: 20})
	assert.NoError(t, err)
	assert.Len(t, x, len(demandFeatureNames))

	// ラグは系列末尾からの位置で決まる
	assert.Equal(t, 40.0, x[0]) // lag_1
	assert.Equal(t, 34.0, x[1]) // lag_7
	assert.Equal(t, 27.0, x[2]) // lag_14
	assert.Equal(t, 13.0, x[3]) // lag_28

	// rolling_mean_7 = mean(34..40) = 37
	assert.InDelta(t, 37.0, x[4], 1e-9)
	// rolling_mean_30 = mean(11..40) = 25.5
	assert.InDelta(t, 25.5, x[5], 1e-9)
}

func TestBuildDemandFeaturesInsufficientHistory(t *testing.T) {
	fb := NewFeatureBuilder()

	history := make([]DemandPoint, 29)
	for i := range history {
		history[i] = DemandPoint{Date: testStart.AddDate(0, 0, i), Demand: 10}
	}

	_, err := fb.BuildDemandFeatures(testStart.AddDate(0, 0, 29), "STORE0001", "SKU0001", history, Covariates{})
	assert.Error(t, err)

	var insufficient *models.InsufficientHistoryError
	assert.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 29, insufficient.Days)
}

func TestBuildDemandFeaturesCalendar(t *testing.T) {
	fb := NewFeatureBuilder()

	history := make([]DemandPoint, 30)
	for i := range history {
		history[i] = DemandPoint{Date: testStart.AddDate(0, 0, i), Demand: 10}
	}

	// 2024-02-03は土曜日
	saturday := time.Date(2024, 2, 3, 0, 0, 0, 0, time.UTC)
	x, err := fb.BuildDemandFeatures(saturday, "STORE0001", "SKU0001", history, Covariates{IsHoliday: true})
	assert.NoError(t, err)

	assert.Equal(t, float64(time.Saturday), x[6]) // weekday
	assert.Equal(t, 2.0, x[7])                    // month
	assert.Equal(t, 1.0, x[8])                    // is_weekend
	assert.Equal(t, 1.0, x[9])                    // is_holiday
}

func TestSchemaFingerprintStable(t *testing.T) {
	// 指紋はスキーマが変わらない限り不変
	fp1 := SchemaFingerprint(DemandFeatureSchema())
	fp2 := SchemaFingerprint(DemandFeatureSchema())
	assert.Equal(t, fp1, fp2)
	assert.Len(t, fp1, 64)

	// 需要とリードタイムのスキーマは異なる指紋を持つ
	assert.NotEqual(t, fp1, SchemaFingerprint(LeadTimeFeatureSchema()))
}
