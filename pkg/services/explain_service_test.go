package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"demand-forecast-api/pkg/models"
)

// variedHistory 曜日とプロモで需要が変動する履歴を生成する
func variedHistory(days int) []models.HistoricalRecord {
	records := flatHistory("STORE0001", "SKU0001", days, 10)
	for i := range records {
		if weekday := records[i].Date.Weekday(); weekday == 0 || weekday == 6 {
			records[i].UnitsSold += 5
		}
		if i%10 == 0 {
			records[i].PromoFlag = true
			records[i].UnitsSold += 3
		}
		records[i].StockOnHand = records[i].UnitsSold + 20
		records[i].LeadTimeDays = float64(2 + i%4)
	}
	return records
}

func TestExplainDemandLocalAccuracy(t *testing.T) {
	forecast := NewForecastService(NewFeatureBuilder())
	explain := NewExplainService()

	records := variedHistory(90)
	artifact, err := forecast.Fit(records, flatImputed(records))
	require.NoError(t, err)

	days, err := forecast.PredictChain(artifact, "STORE0001", "SKU0001", demandPoints(records), Covariates{Temperature: 20, ListPrice: 120}, testStart.AddDate(0, 0, 90))
	require.NoError(t, err)

	for _, day := range days {
		contribs, baseline := explain.ExplainDemand(artifact, day.Features)
		assert.Len(t, contribs, len(DemandFeatureSchema()))
		assert.InDelta(t, artifact.Model.Intercept, baseline, 1e-12)

		// 局所精度: 基準値 + 全帰属の合計 == モデル出力（log1p空間）
		sum := baseline
		for _, c := range contribs {
			sum += c
		}
		assert.InDelta(t, day.LogValue, sum, 1e-9)
	}
}

func TestExplainLeadTimeLocalAccuracy(t *testing.T) {
	leadtime := NewLeadTimeService(NewFeatureBuilder())
	explain := NewExplainService()

	records := variedHistory(90)
	artifact, err := leadtime.Fit(records)
	require.NoError(t, err)

	date := testStart.AddDate(0, 0, 90)
	pred, x := leadtime.Predict(artifact, date, Covariates{Temperature: 20}, "STORE0001", "SKU0001", "Beverages", "BrandA")

	contribs, baseline := explain.ExplainLeadTime(artifact, x)
	assert.Len(t, contribs, len(LeadTimeFeatureSchema()))

	sum := baseline
	for _, c := range contribs {
		sum += c
	}
	// リードタイム側は出力空間がそのまま日数なので予測値に一致する
	assert.InDelta(t, pred, sum, 1e-9)
}
