package services

import (
	"errors"
	"log"
	"time"

	"demand-forecast-api/pkg/models"
)

// LeadTimeArtifact 学習済みのリードタイムモデル。
// カテゴリ変数は学習時平均によるターゲットエンコーディングで数値化する。
type LeadTimeArtifact struct {
	Model             *linearModel       `json:"model"`
	StoreEnc          map[string]float64 `json:"store_enc"`
	SKUEnc            map[string]float64 `json:"sku_enc"`
	CategoryEnc       map[string]float64 `json:"category_enc"`
	BrandEnc          map[string]float64 `json:"brand_enc"`
	GlobalMean        float64            `json:"global_mean"`
	TrainRows         int                `json:"train_rows"`
	SchemaFingerprint string             `json:"schema_fingerprint"`
}

// LeadTimeService 発注から入荷までの日数を予測する独立モデル。
// 需要予測のチェーンには依存せず、日ごとのカレンダー特徴量で再計算する。
type LeadTimeService struct {
	features *FeatureBuilder
}

// NewLeadTimeService 新しいLeadTimeServiceを作成
func NewLeadTimeService(features *FeatureBuilder) *LeadTimeService {
	return &LeadTimeService{features: features}
}

// Fit リードタイム実績（lead_time_days > 0の行）で回帰を学習する
func (s *LeadTimeService) Fit(records []models.HistoricalRecord) (*LeadTimeArtifact, error) {
	log.Printf("STAGE3|LEAD_TIME_PREDICTION|FIT|ROWS=%d", len(records))

	// ターゲットエンコーディング: 値ごとの平均リードタイム
	storeEnc := newMeanEncoder()
	skuEnc := newMeanEncoder()
	categoryEnc := newMeanEncoder()
	brandEnc := newMeanEncoder()
	var globalSum float64
	var globalN int
	for _, rec := range records {
		if rec.LeadTimeDays <= 0 {
			continue
		}
		storeEnc.add(rec.StoreID, rec.LeadTimeDays)
		skuEnc.add(rec.SKUID, rec.LeadTimeDays)
		categoryEnc.add(rec.Category, rec.LeadTimeDays)
		brandEnc.add(rec.Brand, rec.LeadTimeDays)
		globalSum += rec.LeadTimeDays
		globalN++
	}
	if globalN == 0 {
		return nil, errors.New("lead time: no rows with recorded lead_time_days")
	}
	globalMean := globalSum / float64(globalN)

	artifact := &LeadTimeArtifact{
		StoreEnc:          storeEnc.means(),
		SKUEnc:            skuEnc.means(),
		CategoryEnc:       categoryEnc.means(),
		BrandEnc:          brandEnc.means(),
		GlobalMean:        globalMean,
		SchemaFingerprint: SchemaFingerprint(LeadTimeFeatureSchema()),
	}

	var X [][]float64
	var y []float64
	for _, rec := range records {
		if rec.LeadTimeDays <= 0 {
			continue
		}
		X = append(X, s.buildVector(artifact, rec.Date, recordCovariates(rec), rec.StoreID, rec.SKUID, rec.Category, rec.Brand))
		y = append(y, rec.LeadTimeDays)
	}

	model, err := fitRidge(X, y, ridgeLambda)
	if err != nil {
		return nil, err
	}
	artifact.Model = model
	artifact.TrainRows = len(X)
	log.Printf("STAGE3|LEAD_TIME_MODEL|TRAINED|ROWS=%d", len(X))
	return artifact, nil
}

// Predict 指定日のリードタイムを予測する。負値は0にクランプ。
// 特徴量ベクトルも返す（帰属計算で再利用される）。
func (s *LeadTimeService) Predict(artifact *LeadTimeArtifact, date time.Time, cov Covariates, storeID, skuID, category, brand string) (float64, []float64) {
	x := s.buildVector(artifact, date, cov, storeID, skuID, category, brand)
	pred := artifact.Model.Predict(x)
	if pred < 0 {
		pred = 0
	}
	return pred, x
}

// EvaluateHoldout ホールドアウト行でリードタイム予測を評価する
func (s *LeadTimeService) EvaluateHoldout(artifact *LeadTimeArtifact, records []models.HistoricalRecord, cutoff time.Time) models.StageMetrics {
	var yTrue, yPred []float64
	for _, rec := range records {
		if rec.LeadTimeDays <= 0 || rec.Date.Before(cutoff) {
			continue
		}
		pred, _ := s.Predict(artifact, rec.Date, recordCovariates(rec), rec.StoreID, rec.SKUID, rec.Category, rec.Brand)
		yTrue = append(yTrue, rec.LeadTimeDays)
		yPred = append(yPred, pred)
	}
	return models.StageMetrics{
		RMSE: calculateRMSE(yTrue, yPred),
		MAE:  calculateMAE(yTrue, yPred),
	}
}

func (s *LeadTimeService) buildVector(artifact *LeadTimeArtifact, date time.Time, cov Covariates, storeID, skuID, category, brand string) []float64 {
	x := s.features.BuildCalendarFeatures(date, cov)
	x = append(x,
		encodeValue(artifact.StoreEnc, storeID, artifact.GlobalMean),
		encodeValue(artifact.SKUEnc, skuID, artifact.GlobalMean),
		encodeValue(artifact.CategoryEnc, category, artifact.GlobalMean),
		encodeValue(artifact.BrandEnc, brand, artifact.GlobalMean),
	)
	return x
}

// encodeValue 学習時に見た値はその平均、未知の値は全体平均にフォールバック
func encodeValue(enc map[string]float64, value string, globalMean float64) float64 {
	if v, ok := enc[value]; ok {
		return v
	}
	return globalMean
}

// meanEncoder 値ごとの平均を集計する小さなヘルパー
type meanEncoder struct {
	sums   map[string]float64
	counts map[string]int
}

func newMeanEncoder() *meanEncoder {
	return &meanEncoder{sums: make(map[string]float64), counts: make(map[string]int)}
}

func (e *meanEncoder) add(key string, value float64) {
	e.sums[key] += value
	e.counts[key]++
}

func (e *meanEncoder) means() map[string]float64 {
	out := make(map[string]float64, len(e.sums))
	for key, sum := range e.sums {
		out[key] = sum / float64(e.counts[key])
	}
	return out
}
