package services

import (
	"errors"
	"log"
	"math"
	"time"

	"demand-forecast-api/pkg/models"
)

// forecastHorizonDays 予測日数。1日先モデルを再帰適用して常にちょうど7日返す。
const forecastHorizonDays = 7

// ridgeLambda 需要・リードタイム共通のL2正則化係数
const ridgeLambda = 1.0

// ForecasterArtifact 学習済みの1日先需要モデル。
// モデルはlog1p(補正済み需要)を予測する。帰属もこの出力空間で計算される。
type ForecasterArtifact struct {
	Model             *linearModel `json:"model"`
	TrainRows         int          `json:"train_rows"`
	SchemaFingerprint string       `json:"schema_fingerprint"`
}

// DayPrediction 再帰予測の1日分（需要のみ。リードタイムは独立に付与される）
type DayPrediction struct {
	Date     time.Time
	Units    float64
	Features []float64 // この日の予測に使った特徴量（帰属計算用）
	LogValue float64   // モデル出力空間の予測値
}

// ForecastService 1日先リッジ回帰を7回再帰適用して7日予測を生成する。
// 各ステップのラグはこのリクエスト自身の予測チェーンから再計算する。
type ForecastService struct {
	features *FeatureBuilder
}

// NewForecastService 新しいForecastServiceを作成
func NewForecastService(features *FeatureBuilder) *ForecastService {
	return &ForecastService{features: features}
}

// Fit 補正済み需要を教師信号として1日先モデルを学習する。
// 学習するモデルはこの1つだけ（ホライズン別のモデルは持たない）。
func (s *ForecastService) Fit(records []models.HistoricalRecord, imputed []models.ImputedDemandRecord) (*ForecasterArtifact, error) {
	log.Printf("STAGE2|FORECASTING|FIT|ROWS=%d", len(records))

	demandByRow := make(map[string]float64, len(imputed))
	for _, rec := range imputed {
		demandByRow[imputedRowKey(rec.StoreID, rec.SKUID, rec.Date)] = rec.Demand
	}

	var X [][]float64
	var y []float64
	grouped := GroupBySeries(records)
	for _, key := range SortedSeriesKeys(grouped) {
		series := grouped[key]
		history := make([]DemandPoint, 0, len(series))
		for _, rec := range series {
			demand, ok := demandByRow[imputedRowKey(rec.StoreID, rec.SKUID, rec.Date)]
			if !ok {
				demand = rec.UnitsSold
			}
			x, err := s.features.BuildDemandFeatures(rec.Date, rec.StoreID, rec.SKUID, history, recordCovariates(rec))
			if err == nil {
				X = append(X, x)
				// 分散の大きい販売数を扱うためlog1p空間で学習する
				y = append(y, math.Log1p(demand))
			}
			var insufficient *models.InsufficientHistoryError
			if err != nil && !errors.As(err, &insufficient) {
				return nil, err
			}
			history = append(history, DemandPoint{Date: rec.Date, Demand: demand})
		}
	}

	if len(X) == 0 {
		return nil, errors.New("forecaster: no trainable rows (every series shorter than 30 days)")
	}

	model, err := fitRidge(X, y, ridgeLambda)
	if err != nil {
		return nil, err
	}
	log.Printf("STAGE2|FORECAST_MODEL|TRAINED|ROWS=%d", len(X))
	return &ForecasterArtifact{
		Model:             model,
		TrainRows:         len(X),
		SchemaFingerprint: SchemaFingerprint(DemandFeatureSchema()),
	}, nil
}

// PredictChain startDateから7日分を再帰予測する。
// historyは実績（補正済み需要）の昇順系列。予測した値はリクエスト内の
// チェーンに積まれ、以降の日のラグ計算でのみ参照される。
// 出力は必ず7件、日付昇順、非負。
func (s *ForecastService) PredictChain(artifact *ForecasterArtifact, storeID, skuID string, history []DemandPoint, lastCov Covariates, startDate time.Time) ([]DayPrediction, error) {
	chain := make([]DemandPoint, len(history), len(history)+forecastHorizonDays)
	copy(chain, history)

	// 将来日の属性は最終観測日の値を引き継ぐ。祝日は不明なのでfalse扱い。
	futureCov := lastCov
	futureCov.IsHoliday = false

	out := make([]DayPrediction, 0, forecastHorizonDays)
	for d := 0; d < forecastHorizonDays; d++ {
		date := startDate.AddDate(0, 0, d)
		x, err := s.features.BuildDemandFeatures(date, storeID, skuID, chain, futureCov)
		if err != nil {
			return nil, err
		}
		logPred := artifact.Model.Predict(x)
		units := math.Expm1(logPred)
		if units < 0 {
			units = 0
		}
		out = append(out, DayPrediction{Date: date, Units: units, Features: x, LogValue: logPred})
		chain = append(chain, DemandPoint{Date: date, Demand: units})
	}
	return out, nil
}

// EvaluateHoldout ホールドアウト行で1日先予測を評価する（実スケール）。
func (s *ForecastService) EvaluateHoldout(artifact *ForecasterArtifact, records []models.HistoricalRecord, imputed []models.ImputedDemandRecord, cutoff time.Time) models.StageMetrics {
	demandByRow := make(map[string]float64, len(imputed))
	for _, rec := range imputed {
		demandByRow[imputedRowKey(rec.StoreID, rec.SKUID, rec.Date)] = rec.Demand
	}

	var yTrue, yPred []float64
	grouped := GroupBySeries(records)
	for _, key := range SortedSeriesKeys(grouped) {
		series := grouped[key]
		history := make([]DemandPoint, 0, len(series))
		for _, rec := range series {
			demand, ok := demandByRow[imputedRowKey(rec.StoreID, rec.SKUID, rec.Date)]
			if !ok {
				demand = rec.UnitsSold
			}
			if !rec.Date.Before(cutoff) {
				if x, err := s.features.BuildDemandFeatures(rec.Date, rec.StoreID, rec.SKUID, history, recordCovariates(rec)); err == nil {
					pred := math.Expm1(artifact.Model.Predict(x))
					if pred < 0 {
						pred = 0
					}
					yTrue = append(yTrue, demand)
					yPred = append(yPred, pred)
				}
			}
			history = append(history, DemandPoint{Date: rec.Date, Demand: demand})
		}
	}

	return models.StageMetrics{
		RMSE:  calculateRMSE(yTrue, yPred),
		MAE:   calculateMAE(yTrue, yPred),
		WMAPE: calculateWMAPE(yTrue, yPred),
		MAPE:  calculateMAPE(yTrue, yPred),
	}
}

func imputedRowKey(storeID, skuID string, date time.Time) string {
	return storeID + "|" + skuID + "|" + date.Format("2006-01-02")
}
