package services

import (
	"context"
	"log"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"demand-forecast-api/pkg/models"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
)

// PipelineService 予測・学習の提供窓口。
// 有効なモデル世代はatomic.Pointerで保持し、学習成功時に参照ごと差し替える。
// 共有オブジェクトのフィールドを書き換えることはない。
// 配信中のリクエストは差し替え前の世代をそのまま使い切る。
type PipelineService struct {
	orchestrator *TrainingOrchestrator
	forecast     *ForecastService
	leadTime     *LeadTimeService
	explain      *ExplainService
	store        *ArtifactStore
	cache        *PredictionCache

	active  atomic.Pointer[Generation]
	flight  singleflight.Group
	workers *semaphore.Weighted
	trainMu sync.Mutex // 学習は同時に1つだけ
}

// NewPipelineService 新しいPipelineServiceを作成
func NewPipelineService(orchestrator *TrainingOrchestrator, forecast *ForecastService, leadTime *LeadTimeService, explain *ExplainService, store *ArtifactStore, cache *PredictionCache, workers int) *PipelineService {
	if workers <= 0 {
		workers = 1
	}
	return &PipelineService{
		orchestrator: orchestrator,
		forecast:     forecast,
		leadTime:     leadTime,
		explain:      explain,
		store:        store,
		cache:        cache,
		workers:      semaphore.NewWeighted(int64(workers)),
	}
}

// LoadFromDisk 起動時に保存済み世代を読み込む。
// 壊れた・スキーマ不一致のアーティファクトは有効化せず未学習のままにする。
func (p *PipelineService) LoadFromDisk() error {
	gen, err := p.store.LoadGeneration()
	if err != nil {
		return err
	}
	p.active.Store(gen)
	log.Printf("LOAD|MODELS|COMPLETE|TRAINED_AT=%s|ROWS=%d", gen.Meta.TrainedAt.Format(time.RFC3339), gen.Meta.RowCount)
	return nil
}

// Ready 有効な世代があるか
func (p *PipelineService) Ready() bool {
	return p.active.Load() != nil
}

// Cache キャッシュへの参照（ハンドラーの統計用）
func (p *PipelineService) Cache() *PredictionCache {
	return p.cache
}

// ActiveMeta 有効な世代のメタデータ（未学習ならnil）
func (p *PipelineService) ActiveMeta() *ArtifactMetadata {
	gen := p.active.Load()
	if gen == nil {
		return nil
	}
	meta := gen.Meta
	return &meta
}

// Train 学習を実行し、成功時のみ世代を差し替えてキャッシュを破棄する。
// 実行中もPredictは旧世代で応答し続ける。
func (p *PipelineService) Train(historyPath string) (*models.TrainingReport, error) {
	p.trainMu.Lock()
	defer p.trainMu.Unlock()

	generation, report, err := p.orchestrator.Train(historyPath)
	if err != nil {
		return nil, err
	}

	// 差し替えてからキャッシュ破棄。破棄された世代の結果が返ることはない。
	p.active.Store(generation)
	p.cache.Clear()
	log.Printf("TRAIN|SWAP|COMPLETE|CACHE_CLEARED")
	return report, nil
}

// Predict 7日予測を返す。キャッシュヒットなら即応答。
// ミス時は同一フィンガープリントの計算をsingleflightで1つに束ね、
// CPUバウンドの推論はセマフォで並列度を制限して実行する。
func (p *PipelineService) Predict(ctx context.Context, req models.PredictionRequest, startDate time.Time) (models.PredictionResult, error) {
	fingerprint := req.Fingerprint()
	if cached, ok := p.cache.Get(fingerprint); ok {
		log.Printf("PREDICT|CACHE_HIT|%s", fingerprint)
		return cached, nil
	}

	value, err, _ := p.flight.Do(fingerprint, func() (any, error) {
		if err := p.workers.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer p.workers.Release(1)

		gen := p.active.Load()
		if gen == nil {
			return nil, models.ErrModelNotTrained
		}
		result, err := p.compute(gen, req, startDate)
		if err != nil {
			return nil, err
		}
		p.cacheResult(gen, fingerprint, result)
		return result, nil
	})
	if err != nil {
		return models.PredictionResult{}, err
	}
	return value.(models.PredictionResult), nil
}

// cacheResult 計算に使った世代がまだ有効な場合のみ結果を保存する。
// 計算中に再学習が世代を差し替えていたら、破棄済み世代の結果は
// キャッシュに残さない（Clear後に紛れ込むとヒットとして配信されてしまう）。
func (p *PipelineService) cacheResult(gen *Generation, fingerprint string, result models.PredictionResult) {
	if p.active.Load() != gen {
		log.Printf("PREDICT|CACHE_SKIP|STALE_GENERATION|%s", fingerprint)
		return
	}
	p.cache.Put(fingerprint, result)
	// PutとClearの交錯対策。TrainはStore→Clearの順で進むため、
	// ここで世代が替わって見えたら自分のPutはClear後に入った可能性がある。
	if p.active.Load() != gen {
		p.cache.Remove(fingerprint)
		log.Printf("PREDICT|CACHE_EVICT|STALE_GENERATION|%s", fingerprint)
	}
}

// compute キャッシュミス時の本体。呼び出し元が取った世代スナップショットで
// 7日分の需要・リードタイム・帰属をすべて計算する。
func (p *PipelineService) compute(gen *Generation, req models.PredictionRequest, startDate time.Time) (models.PredictionResult, error) {
	series, ok := gen.History.Series[SeriesKey(req.StoreID, req.SKUID)]
	if !ok {
		return models.PredictionResult{}, &models.UnknownEntityError{StoreID: req.StoreID, SKUID: req.SKUID}
	}

	log.Printf("PREDICT|REQUEST|START_DATE=%s|STORE=%s|SKU=%s", req.StartDate, req.StoreID, req.SKUID)
	predictions, err := p.forecast.PredictChain(gen.Forecaster, req.StoreID, req.SKUID, series.Demands, series.LastCovariates, startDate)
	if err != nil {
		return models.PredictionResult{}, err
	}

	futureCov := series.LastCovariates
	futureCov.IsHoliday = false

	days := make([]models.DailyForecast, 0, len(predictions))
	for _, pred := range predictions {
		leadTime, leadTimeVector := p.leadTime.Predict(gen.LeadTime, pred.Date, futureCov, req.StoreID, req.SKUID, req.Category, req.Brand)
		demandShap, demandBase := p.explain.ExplainDemand(gen.Forecaster, pred.Features)
		leadTimeShap, leadTimeBase := p.explain.ExplainLeadTime(gen.LeadTime, leadTimeVector)

		days = append(days, models.DailyForecast{
			Date:             pred.Date.Format("2006-01-02"),
			UnitsSold:        round2(pred.Units),
			LeadTimeDays:     round2(leadTime),
			DemandShap:       demandShap,
			LeadTimeShap:     leadTimeShap,
			DemandBaseline:   demandBase,
			LeadTimeBaseline: leadTimeBase,
		})
	}

	return models.PredictionResult{
		Request:         req,
		Days:            days,
		Status:          "success",
		ModelGeneration: gen.Meta.TrainedAt.Format(time.RFC3339),
	}, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
