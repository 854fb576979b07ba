package services

import (
	"errors"
	"log"

	"demand-forecast-api/pkg/models"
)

// minImputerRows 補正モデルの学習に必要な最小の非在庫切れ行数。
// これを下回るセグメントは観測値をそのまま使う（フォールバック）。
const minImputerRows = 30

// ImputerArtifact 学習済みの需要補正モデル
type ImputerArtifact struct {
	Model             *poissonModel `json:"model,omitempty"`
	Fallback          bool          `json:"fallback"`
	TrainRows         int           `json:"train_rows"`
	SchemaFingerprint string        `json:"schema_fingerprint"`
}

// ImputationService 在庫切れで打ち切られた販売実績から真の需要を復元する。
// 非在庫切れ日でPoisson回帰を学習し、在庫切れ日の期待需要を推定する。
type ImputationService struct {
	features *FeatureBuilder
}

// NewImputationService 新しいImputationServiceを作成
func NewImputationService(features *FeatureBuilder) *ImputationService {
	return &ImputationService{features: features}
}

// Fit 非在庫切れ行でPoisson回帰を学習する。
// 学習可能な行が足りない場合はフォールバック（補正なし）のアーティファクトを返す。
func (s *ImputationService) Fit(records []models.HistoricalRecord) (*ImputerArtifact, error) {
	log.Printf("STAGE1|DEMAND_IMPUTATION|FIT|ROWS=%d", len(records))

	var X [][]float64
	var y []float64
	grouped := GroupBySeries(records)
	for _, key := range SortedSeriesKeys(grouped) {
		series := grouped[key]
		history := make([]DemandPoint, 0, len(series))
		for _, rec := range series {
			if !rec.StockOut {
				x, err := s.features.BuildDemandFeatures(rec.Date, rec.StoreID, rec.SKUID, history, recordCovariates(rec))
				if err == nil {
					X = append(X, x)
					y = append(y, rec.UnitsSold)
				}
				var insufficient *models.InsufficientHistoryError
				if err != nil && !errors.As(err, &insufficient) {
					return nil, err
				}
			}
			history = append(history, DemandPoint{Date: rec.Date, Demand: rec.UnitsSold})
		}
	}

	fingerprint := SchemaFingerprint(DemandFeatureSchema())
	if len(X) < minImputerRows {
		log.Printf("STAGE1|IMPUTER_MODEL|FALLBACK|USABLE_ROWS=%d", len(X))
		return &ImputerArtifact{Fallback: true, TrainRows: len(X), SchemaFingerprint: fingerprint}, nil
	}

	model, err := fitPoisson(X, y)
	if err != nil {
		return nil, err
	}
	log.Printf("STAGE1|IMPUTER_MODEL|TRAINED|ROWS=%d", len(X))
	return &ImputerArtifact{Model: model, TrainRows: len(X), SchemaFingerprint: fingerprint}, nil
}

// Impute 全履歴行に対して補正済み需要を生成する。
// 在庫切れ日のみモデル推定値を使い、推定が観測値を下回る場合は観測値を保持する
// （補正後需要 >= 観測販売数の不変条件）。
func (s *ImputationService) Impute(artifact *ImputerArtifact, records []models.HistoricalRecord) []models.ImputedDemandRecord {
	out := make([]models.ImputedDemandRecord, 0, len(records))
	imputedCount := 0

	grouped := GroupBySeries(records)
	for _, key := range SortedSeriesKeys(grouped) {
		series := grouped[key]
		history := make([]DemandPoint, 0, len(series))
		for _, rec := range series {
			demand := rec.UnitsSold
			imputed := false
			if rec.StockOut && !artifact.Fallback && artifact.Model != nil {
				// 直前までの補正済み系列からラグを構築して期待需要を推定
				if x, err := s.features.BuildDemandFeatures(rec.Date, rec.StoreID, rec.SKUID, history, recordCovariates(rec)); err == nil {
					expected := artifact.Model.Predict(x)
					if expected > demand {
						demand = expected
						imputed = true
						imputedCount++
					}
				}
			}
			out = append(out, models.ImputedDemandRecord{
				Date:     rec.Date,
				StoreID:  rec.StoreID,
				SKUID:    rec.SKUID,
				Observed: rec.UnitsSold,
				Demand:   demand,
				Imputed:  imputed,
			})
			history = append(history, DemandPoint{Date: rec.Date, Demand: demand})
		}
	}

	if imputedCount > 0 {
		log.Printf("STAGE1|CENSORED_ROWS|IMPUTED|%d", imputedCount)
	}
	return out
}

// recordCovariates 履歴行から特徴量用の属性を取り出す
func recordCovariates(rec models.HistoricalRecord) Covariates {
	return Covariates{
		ListPrice:   rec.ListPrice,
		DiscountPct: rec.DiscountPct,
		PromoFlag:   rec.PromoFlag,
		Temperature: rec.Temperature,
		RainMM:      rec.RainMM,
		IsHoliday:   rec.IsHoliday,
	}
}
