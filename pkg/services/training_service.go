package services

import (
	"log"
	"time"

	"demand-forecast-api/pkg/models"

	"github.com/google/uuid"
)

// holdoutDays 学習時評価に使うホールドアウト期間
const holdoutDays = 28

// TrainingOrchestrator 学習パイプライン全体を実行する。
// Imputer → Forecaster → Lead Time Predictorの順に学習し、
// 3つ全て成功した場合のみアーティファクトを永続化する（all-or-nothing）。
// どの段階で失敗しても既存世代は置き換えられない。
type TrainingOrchestrator struct {
	dataset    *DatasetService
	imputation *ImputationService
	forecast   *ForecastService
	leadTime   *LeadTimeService
	store      *ArtifactStore
}

// NewTrainingOrchestrator 新しいTrainingOrchestratorを作成
func NewTrainingOrchestrator(dataset *DatasetService, imputation *ImputationService, forecast *ForecastService, leadTime *LeadTimeService, store *ArtifactStore) *TrainingOrchestrator {
	return &TrainingOrchestrator{
		dataset:    dataset,
		imputation: imputation,
		forecast:   forecast,
		leadTime:   leadTime,
		store:      store,
	}
}

// Train 履歴ソースから全段階を実行し、新しい世代とレポートを返す。
// 失敗時はTrainingError{stage, cause}を返し、ディスク上の世代は変更されない。
func (o *TrainingOrchestrator) Train(historyPath string) (*Generation, *models.TrainingReport, error) {
	start := time.Now()
	log.Printf("PIPELINE|START|PATH=%s", historyPath)

	report := &models.TrainingReport{
		ID:      uuid.NewString(),
		Metrics: make(map[string]models.StageMetrics),
	}

	o.dataset.InvalidateCache(historyPath)
	records, err := o.dataset.LoadHistory(historyPath)
	if err != nil {
		return nil, nil, &models.TrainingError{Stage: "load_history", Cause: err}
	}
	report.RowsUsed = len(records)

	// STAGE 1: 需要補正
	imputerArtifact, err := o.imputation.Fit(records)
	if err != nil {
		return nil, nil, &models.TrainingError{Stage: "imputation", Cause: err}
	}
	imputed := o.imputation.Impute(imputerArtifact, records)
	report.StagesCompleted = append(report.StagesCompleted, "imputation")
	report.ImputationFallback = imputerArtifact.Fallback
	for _, rec := range imputed {
		if rec.Imputed {
			report.ImputedRows++
		}
	}

	// STAGE 2: 1日先需要モデル（補正済み需要を教師信号にする）
	forecasterArtifact, err := o.forecast.Fit(records, imputed)
	if err != nil {
		return nil, nil, &models.TrainingError{Stage: "forecasting", Cause: err}
	}
	report.StagesCompleted = append(report.StagesCompleted, "forecasting")

	// STAGE 3: リードタイムモデル
	leadTimeArtifact, err := o.leadTime.Fit(records)
	if err != nil {
		return nil, nil, &models.TrainingError{Stage: "lead_time", Cause: err}
	}
	report.StagesCompleted = append(report.StagesCompleted, "lead_time")

	// 28日ホールドアウト評価（ベストエフォート。学習の成否には影響しない）
	o.evaluate(records, imputed, report)

	generation := &Generation{
		Imputer:    imputerArtifact,
		Forecaster: forecasterArtifact,
		LeadTime:   leadTimeArtifact,
		History:    BuildHistorySnapshot(records, imputed),
		Meta: ArtifactMetadata{
			DemandSchemaFingerprint:   SchemaFingerprint(DemandFeatureSchema()),
			LeadTimeSchemaFingerprint: SchemaFingerprint(LeadTimeFeatureSchema()),
			TrainedAt:                 time.Now().UTC(),
			RowCount:                  len(records),
			ImputationFallback:        imputerArtifact.Fallback,
		},
	}

	if err := o.store.SaveGeneration(generation); err != nil {
		return nil, nil, &models.TrainingError{Stage: "persistence", Cause: err}
	}
	report.StagesCompleted = append(report.StagesCompleted, "persistence")

	report.DurationMS = time.Since(start).Milliseconds()
	report.TrainedAt = generation.Meta.TrainedAt.Format(time.RFC3339)
	log.Printf("PIPELINE|COMPLETE|ROWS=%d|DURATION_MS=%d", report.RowsUsed, report.DurationMS)
	return generation, report, nil
}

// evaluate 直近28日をホールドアウトに回して1日先モデルとリードタイムモデルを検証する
func (o *TrainingOrchestrator) evaluate(records []models.HistoricalRecord, imputed []models.ImputedDemandRecord, report *models.TrainingReport) {
	if len(records) == 0 {
		return
	}
	maxDate := records[0].Date
	for _, rec := range records {
		if rec.Date.After(maxDate) {
			maxDate = rec.Date
		}
	}
	cutoff := maxDate.AddDate(0, 0, -holdoutDays)

	var trainRecords []models.HistoricalRecord
	var trainImputed []models.ImputedDemandRecord
	for _, rec := range records {
		if rec.Date.Before(cutoff) {
			trainRecords = append(trainRecords, rec)
		}
	}
	for _, rec := range imputed {
		if rec.Date.Before(cutoff) {
			trainImputed = append(trainImputed, rec)
		}
	}
	if len(trainRecords) == 0 {
		return
	}

	if evalForecaster, err := o.forecast.Fit(trainRecords, trainImputed); err == nil {
		metrics := o.forecast.EvaluateHoldout(evalForecaster, records, imputed, cutoff)
		report.Metrics["forecast_h1"] = metrics
		log.Printf("EVALUATION|FORECAST_H1|RMSE=%.2f|MAE=%.2f|WMAPE=%.2f%%", metrics.RMSE, metrics.MAE, metrics.WMAPE*100)
	} else {
		log.Printf("EVALUATION|FORECAST_H1|SKIPPED|%v", err)
	}

	if evalLeadTime, err := o.leadTime.Fit(trainRecords); err == nil {
		metrics := o.leadTime.EvaluateHoldout(evalLeadTime, records, cutoff)
		report.Metrics["lead_time"] = metrics
		log.Printf("EVALUATION|LEAD_TIME|RMSE=%.2f|MAE=%.2f", metrics.RMSE, metrics.MAE)
	} else {
		log.Printf("EVALUATION|LEAD_TIME|SKIPPED|%v", err)
	}
}
