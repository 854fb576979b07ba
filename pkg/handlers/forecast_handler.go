package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"demand-forecast-api/pkg/models"
	"demand-forecast-api/pkg/services"

	"github.com/gin-gonic/gin"
)

// ForecastHandler 需要予測API（学習・予測・ステータス）のハンドラー
type ForecastHandler struct {
	pipeline        *services.PipelineService
	defaultDataPath string
}

// NewForecastHandler 新しいForecastHandlerを作成
func NewForecastHandler(pipeline *services.PipelineService, defaultDataPath string) *ForecastHandler {
	return &ForecastHandler{
		pipeline:        pipeline,
		defaultDataPath: defaultDataPath,
	}
}

// GetPipelineService ハンドラーが持つパイプラインへの参照を返す
func (h *ForecastHandler) GetPipelineService() *services.PipelineService {
	return h.pipeline
}

// TrainRequest 学習リクエスト。pathを省略すると設定のデフォルトを使う。
type TrainRequest struct {
	Path string `json:"path"`
}

// Train 学習パイプラインを実行する。
// Predictの処理中でも安全に呼べる（完了まで旧世代が配信され続ける）。
func (h *ForecastHandler) Train(c *gin.Context) {
	var req TrainRequest
	// ボディなしも許容（デフォルトパスで学習）
	_ = c.ShouldBindJSON(&req)
	path := req.Path
	if path == "" {
		path = h.defaultDataPath
	}

	if _, err := os.Stat(path); err != nil {
		c.JSON(http.StatusNotFound, errorEnvelope("training", "data_not_found",
			fmt.Sprintf("履歴データが見つかりません: %s", path)))
		return
	}

	report, err := h.pipeline.Train(path)
	if err != nil {
		var trainingErr *models.TrainingError
		if errors.As(err, &trainingErr) {
			c.JSON(http.StatusInternalServerError, errorEnvelope("training", "training_failed",
				fmt.Sprintf("stage=%s: %v", trainingErr.Stage, trainingErr.Cause)))
			return
		}
		c.JSON(http.StatusInternalServerError, errorEnvelope("training", "training_failed", err.Error()))
		return
	}

	c.JSON(http.StatusOK, successEnvelope("training", gin.H{
		"report": report,
	}, "Training completed and models saved successfully"))
}

// PredictSevenDays 7日間の需要・リードタイム予測を返す
func (h *ForecastHandler) PredictSevenDays(c *gin.Context) {
	var req models.PredictionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorEnvelope("forecast", "invalid_request",
			"リクエストの解析に失敗しました: "+err.Error()))
		return
	}

	startDate, err := parseStartDate(req.StartDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorEnvelope("forecast", "invalid_start_date",
			"start_dateの形式が不正です（YYYY-MM-DD）: "+req.StartDate))
		return
	}

	result, err := h.pipeline.Predict(c.Request.Context(), req, startDate)
	if err != nil {
		h.respondPredictError(c, err)
		return
	}

	dailyForecasts := make([]gin.H, 0, len(result.Days))
	for i, day := range result.Days {
		dailyForecasts = append(dailyForecasts, gin.H{
			"day":  i + 1,
			"date": day.Date,
			"demand": gin.H{
				"units_sold":  day.UnitsSold,
				"explanation": day.DemandShap,
				"baseline":    day.DemandBaseline,
			},
			"supply": gin.H{
				"lead_time_days": day.LeadTimeDays,
				"explanation":    day.LeadTimeShap,
				"baseline":       day.LeadTimeBaseline,
			},
		})
	}

	c.JSON(http.StatusOK, successEnvelope("forecast", gin.H{
		"request": gin.H{
			"start_date":    req.StartDate,
			"store_id":      req.StoreID,
			"sku_id":        req.SKUID,
			"category":      req.Category,
			"brand":         req.Brand,
			"forecast_days": len(result.Days),
		},
		"forecast_period": gin.H{
			"start_date": result.Days[0].Date,
			"end_date":   result.Days[len(result.Days)-1].Date,
			"total_days": len(result.Days),
		},
		"daily_forecasts":  dailyForecasts,
		"model_generation": result.ModelGeneration,
	}, "7-day forecast completed successfully"))
}

// Status サービス状態とキャッシュ統計を返す
func (h *ForecastHandler) Status(c *gin.Context) {
	stats := h.pipeline.Cache().Stats()

	status := "untrained"
	modelsInfo := gin.H{
		"forecaster_trained": false,
		"lead_time_trained":  false,
		"imputer_trained":    false,
	}
	if meta := h.pipeline.ActiveMeta(); meta != nil {
		status = "ready"
		modelsInfo = gin.H{
			"forecaster_trained":  true,
			"lead_time_trained":   true,
			"imputer_trained":     !meta.ImputationFallback,
			"imputation_fallback": meta.ImputationFallback,
			"trained_at":          meta.TrainedAt.Format(time.RFC3339),
			"training_rows":       meta.RowCount,
		}
	}

	hitRate := 0.0
	if total := stats.Hits + stats.Misses; total > 0 {
		hitRate = float64(stats.Hits) / float64(total) * 100
	}

	c.JSON(http.StatusOK, successEnvelope("status", gin.H{
		"service": gin.H{
			"status":      status,
			"description": "Demand forecasting service",
		},
		"cache": gin.H{
			"hits":         stats.Hits,
			"misses":       stats.Misses,
			"current_size": stats.Size,
			"max_size":     stats.Capacity,
			"hit_rate":     fmt.Sprintf("%.2f%%", hitRate),
		},
		"models": modelsInfo,
	}, "Status retrieved successfully"))
}

// respondPredictError 予測エラーをHTTPステータスと機械可読コードへ対応付ける
func (h *ForecastHandler) respondPredictError(c *gin.Context, err error) {
	var unknownEntity *models.UnknownEntityError
	var insufficientHistory *models.InsufficientHistoryError

	switch {
	case errors.Is(err, models.ErrModelNotTrained):
		c.JSON(http.StatusServiceUnavailable, errorEnvelope("forecast", "model_not_trained",
			"モデルが未学習です。先に/ai/trainを実行してください。"))
	case errors.As(err, &unknownEntity):
		c.JSON(http.StatusNotFound, errorEnvelope("forecast", "unknown_entity", err.Error()))
	case errors.As(err, &insufficientHistory):
		c.JSON(http.StatusUnprocessableEntity, errorEnvelope("forecast", "insufficient_history", err.Error()))
	default:
		c.JSON(http.StatusInternalServerError, errorEnvelope("forecast", "internal_error", err.Error()))
	}
}

// parseStartDate start_dateを解析する（YYYY-MM-DD優先、スラッシュ区切りも許容）
func parseStartDate(v string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02", "2006/01/02"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported date format: %q", v)
}
