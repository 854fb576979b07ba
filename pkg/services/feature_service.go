package services

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"demand-forecast-api/pkg/models"
)

// 需要モデルの特徴量スキーマ。順序は学習・推論・帰属で共有され、
// 指紋（sha256）でアーティファクトの整合性を検証する。
var demandFeatureNames = []string{
	"lag_1", "lag_7", "lag_14", "lag_28",
	"rolling_mean_7", "rolling_mean_30",
	"weekday", "month", "is_weekend", "is_holiday",
	"list_price", "discount_pct", "promo_flag", "temperature",
}

// リードタイムモデルの特徴量スキーマ
var leadTimeFeatureNames = []string{
	"weekday", "month", "day", "is_weekend", "is_holiday",
	"temperature", "rain_mm",
	"store_code", "sku_code", "category_code", "brand_code",
}

// minHistoryDays lag_28とrolling_mean_30の計算に必要な最小履歴日数
const minHistoryDays = 30

// DemandFeatureSchema 需要モデルのスキーマを順序付きで返す
func DemandFeatureSchema() []models.FeatureField {
	fields := make([]models.FeatureField, len(demandFeatureNames))
	for i, name := range demandFeatureNames {
		fields[i] = models.FeatureField{Name: name, Type: "float64"}
	}
	return fields
}

// LeadTimeFeatureSchema リードタイムモデルのスキーマを順序付きで返す
func LeadTimeFeatureSchema() []models.FeatureField {
	fields := make([]models.FeatureField, len(leadTimeFeatureNames))
	for i, name := range leadTimeFeatureNames {
		fields[i] = models.FeatureField{Name: name, Type: "float64"}
	}
	return fields
}

// SchemaFingerprint スキーマの指紋。name:typeを;連結してsha256。
func SchemaFingerprint(fields []models.FeatureField) string {
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = f.Name + ":" + f.Type
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, ";")))
	return hex.EncodeToString(sum[:])
}

// DemandPoint 需要系列の1点（補正済み需要）
type DemandPoint struct {
	Date   time.Time `json:"date"`
	Demand float64   `json:"demand"`
}

// Covariates 特徴量構築に使う行属性
type Covariates struct {
	ListPrice   float64 `json:"list_price"`
	DiscountPct float64 `json:"discount_pct"`
	PromoFlag   bool    `json:"promo_flag"`
	Temperature float64 `json:"temperature"`
	RainMM      float64 `json:"rain_mm"`
	IsHoliday   bool    `json:"is_holiday"`
}

// FeatureBuilder 履歴系列から特徴量ベクトルを構築する。副作用なしの純関数のみ。
type FeatureBuilder struct{}

// NewFeatureBuilder 新しいFeatureBuilderを作成
func NewFeatureBuilder() *FeatureBuilder {
	return &FeatureBuilder{}
}

// BuildDemandFeatures 対象日（anchor）の需要特徴量を構築する。
// historyはanchorより前の需要系列（昇順）。末尾が直近＝lag_1。
// 再帰予測中はこのリクエスト自身の予測値がhistoryの末尾に積まれて渡される。
// 30日未満の履歴ではInsufficientHistoryErrorを返す。
func (fb *FeatureBuilder) BuildDemandFeatures(anchor time.Time, storeID, skuID string, history []DemandPoint, cov Covariates) ([]float64, error) {
	if len(history) < minHistoryDays {
		return nil, &models.InsufficientHistoryError{StoreID: storeID, SKUID: skuID, Days: len(history)}
	}

	n := len(history)
	lag := func(k int) float64 { return history[n-k].Demand }
	rollingMean := func(window int) float64 {
		var s float64
		for i := n - window; i < n; i++ {
			s += history[i].Demand
		}
		return s / float64(window)
	}

	x := make([]float64, 0, len(demandFeatureNames))
	x = append(x, lag(1), lag(7), lag(14), lag(28))
	x = append(x, rollingMean(7), rollingMean(30))
	x = append(x, float64(anchor.Weekday()), float64(anchor.Month()))
	x = append(x, boolFeature(isWeekend(anchor)), boolFeature(cov.IsHoliday))
	x = append(x, cov.ListPrice, cov.DiscountPct, boolFeature(cov.PromoFlag), cov.Temperature)
	return x, nil
}

// BuildCalendarFeatures リードタイムモデル向けのカレンダー・気象特徴量（先頭7項目）
func (fb *FeatureBuilder) BuildCalendarFeatures(date time.Time, cov Covariates) []float64 {
	return []float64{
		float64(date.Weekday()),
		float64(date.Month()),
		float64(date.Day()),
		boolFeature(isWeekend(date)),
		boolFeature(cov.IsHoliday),
		cov.Temperature,
		cov.RainMM,
	}
}

func isWeekend(date time.Time) bool {
	wd := date.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

func boolFeature(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
