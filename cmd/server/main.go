package main

import (
	"errors"
	"log"
	"net/http"
	"os"

	config "demand-forecast-api/configs"
	"demand-forecast-api/pkg/handlers"
	"demand-forecast-api/pkg/models"
	"demand-forecast-api/pkg/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// .envファイルを読み込み
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found or could not be loaded: %v", err)
	}

	// 設定の読み込み
	cfg := config.LoadConfig()

	// Ginルーターの初期化
	r := gin.Default()

	// サービスの初期化
	monitoringService := services.NewMonitoringService()
	featureBuilder := services.NewFeatureBuilder()
	datasetService := services.NewDatasetService()
	imputationService := services.NewImputationService(featureBuilder)
	forecastService := services.NewForecastService(featureBuilder)
	leadTimeService := services.NewLeadTimeService(featureBuilder)
	explainService := services.NewExplainService()
	artifactStore := services.NewArtifactStore(cfg.ModelDir)
	predictionCache := services.NewPredictionCache(cfg.CacheCapacity)
	orchestrator := services.NewTrainingOrchestrator(datasetService, imputationService, forecastService, leadTimeService, artifactStore)
	pipeline := services.NewPipelineService(orchestrator, forecastService, leadTimeService, explainService, artifactStore, predictionCache, cfg.InferenceWorkers)

	// 起動時: 保存済みモデルの読み込み、なければ（設定に応じて）初回学習
	bootstrapPipeline(pipeline, cfg)

	// ハンドラーの初期化
	forecastHandler := handlers.NewForecastHandler(pipeline, cfg.HistoryDataPath)
	monitoringHandler := handlers.NewMonitoringHandler(monitoringService)

	// ミドルウェアの登録
	r.Use(monitoringService.LoggingMiddleware())
	r.Use(cors.Default())

	// ヘルスチェック
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "Demand Forecast API",
		})
	})

	// APIルート
	v1 := r.Group("/api/v1")
	{
		ai := v1.Group("/ai")
		{
			ai.POST("/train", forecastHandler.Train)
			ai.POST("/predict_7days", forecastHandler.PredictSevenDays)
			ai.GET("/status", forecastHandler.Status)
		}
		v1.GET("/monitoring/summary", monitoringHandler.GetSummary)
	}

	log.Printf("STARTUP|SERVER|PORT=%s|ENV=%s", cfg.Port, cfg.Environment)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatalf("サーバーの起動に失敗しました: %v", err)
	}
}

// bootstrapPipeline 起動時のモデル準備。
// 1. 保存済み世代があれば読み込む（壊れていれば未学習のまま）
// 2. なければAUTO_TRAIN=trueかつ履歴ファイルが存在する場合のみ初回学習
// Predictが自動で学習を始めることはない。
func bootstrapPipeline(pipeline *services.PipelineService, cfg *config.Config) {
	log.Printf("STARTUP|BEGIN")

	err := pipeline.LoadFromDisk()
	if err == nil {
		log.Printf("STARTUP|COMPLETE|PRE_TRAINED_MODELS_LOADED")
		return
	}
	var corrupted *models.ArtifactCorruptionError
	if errors.As(err, &corrupted) {
		log.Printf("STARTUP|LOAD_MODELS|CORRUPTED|%v", err)
	} else if !errors.Is(err, models.ErrArtifactNotFound) {
		log.Printf("STARTUP|LOAD_MODELS|FAILED|%v", err)
	}

	if !cfg.AutoTrain {
		log.Printf("STARTUP|COMPLETE|UNTRAINED")
		return
	}
	if _, statErr := os.Stat(cfg.HistoryDataPath); statErr != nil {
		log.Printf("STARTUP|TRAIN|SKIPPED|DATA_NOT_FOUND|%s", cfg.HistoryDataPath)
		return
	}

	log.Printf("STARTUP|TRAIN|DATA_PATH=%s|START", cfg.HistoryDataPath)
	if _, trainErr := pipeline.Train(cfg.HistoryDataPath); trainErr != nil {
		log.Printf("STARTUP|TRAIN|FAILED|%v", trainErr)
		return
	}
	log.Printf("STARTUP|COMPLETE|TRAINING_FINISHED")
}
