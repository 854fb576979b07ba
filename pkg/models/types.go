package models

import (
	"encoding/json"
	"time"
)

// HistoricalRecord 販売実績の1行（date × store × SKU）
// 一度取り込んだら不変。学習コーパスは追記のみ。
type HistoricalRecord struct {
	Date         time.Time `json:"date"`
	StoreID      string    `json:"store_id"`
	SKUID        string    `json:"sku_id"`
	Category     string    `json:"category"`
	Brand        string    `json:"brand"`
	UnitsSold    float64   `json:"units_sold"`
	StockOnHand  float64   `json:"stock_on_hand"`
	ListPrice    float64   `json:"list_price"`
	DiscountPct  float64   `json:"discount_pct"`
	PromoFlag    bool      `json:"promo_flag"`
	Temperature  float64   `json:"temperature"`
	RainMM       float64   `json:"rain_mm"`
	IsHoliday    bool      `json:"is_holiday"`
	Channel      string    `json:"channel"`
	LeadTimeDays float64   `json:"lead_time_days"` // 0以下は「実績なし」扱い
	StockOut     bool      `json:"stock_out_flag"` // 在庫切れ＝販売数が打ち切られた日
}

// ImputedDemandRecord 在庫切れ補正後の需要推定値。
// 不変条件: Demand >= 元のUnitsSold（補正で需要が減ることはない）
type ImputedDemandRecord struct {
	Date     time.Time `json:"date"`
	StoreID  string    `json:"store_id"`
	SKUID    string    `json:"sku_id"`
	Observed float64   `json:"observed_units"`
	Demand   float64   `json:"adjusted_demand"`
	Imputed  bool      `json:"imputed"` // trueなら補正モデルの推定値を採用
}

// PredictionRequest 7日間予測のリクエスト。
// 5項目の組がそのままキャッシュのフィンガープリントになる。
type PredictionRequest struct {
	StartDate string `json:"start_date" binding:"required"`
	StoreID   string `json:"store_id" binding:"required"`
	SKUID     string `json:"sku_id" binding:"required"`
	Category  string `json:"category" binding:"required"`
	Brand     string `json:"brand" binding:"required"`
}

// Fingerprint キャッシュキー。完全一致のみ（正規化なし）。
// 区切り文字を含む値でも別のタプルと衝突しないようJSONで符号化する。
func (r PredictionRequest) Fingerprint() string {
	b, _ := json.Marshal(r)
	return string(b)
}

// DailyForecast 予測1日分
type DailyForecast struct {
	Date              string             `json:"date"`
	UnitsSold         float64            `json:"units_sold"`
	LeadTimeDays      float64            `json:"lead_time_days"`
	DemandShap        map[string]float64 `json:"shap_explanation"`
	LeadTimeShap      map[string]float64 `json:"lead_time_shap_explanation"`
	DemandBaseline    float64            `json:"demand_baseline"`    // 帰属の基準値（モデル出力空間）
	LeadTimeBaseline  float64            `json:"lead_time_baseline"` // 同上
}

// PredictionResult 7日分の予測。生成後は不変、値でキャッシュされる。
// タイムスタンプ類は持たない（同一リクエスト×同一世代でビット単位に
// 同一な出力を保証するため。応答時刻はHTTP封筒側が持つ）。
type PredictionResult struct {
	Request         PredictionRequest `json:"request"`
	Days            []DailyForecast   `json:"daily_forecasts"`
	Status          string            `json:"status"`
	ModelGeneration string            `json:"model_generation"` // 使用した世代の学習時刻
}

// StageMetrics 評価指標（28日ホールドアウト）
type StageMetrics struct {
	RMSE  float64 `json:"rmse"`
	MAE   float64 `json:"mae"`
	WMAPE float64 `json:"wmape,omitempty"`
	MAPE  float64 `json:"mape,omitempty"`
}

// TrainingReport 学習パイプラインの実行結果
type TrainingReport struct {
	ID                 string                  `json:"id"`
	RowsUsed           int                     `json:"rows_used"`
	StagesCompleted    []string                `json:"stages_completed"`
	DurationMS         int64                   `json:"duration_ms"`
	ImputedRows        int                     `json:"imputed_rows"`
	ImputationFallback bool                    `json:"imputation_fallback"`
	Metrics            map[string]StageMetrics `json:"metrics,omitempty"`
	TrainedAt          string                  `json:"trained_at"`
}

// CacheStats 予測キャッシュの統計
type CacheStats struct {
	Hits     int64 `json:"hits"`
	Misses   int64 `json:"misses"`
	Size     int   `json:"size"`
	Capacity int   `json:"capacity"`
}

// FeatureField 特徴量スキーマの1項目（順序が意味を持つ）
type FeatureField struct {
	Name string `json:"name"`
	Type string `json:"type"`
}
