package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"demand-forecast-api/pkg/models"
)

// アーティファクト種別。種別ごとに1ファイル。
const (
	KindImputer    = "imputer"
	KindForecaster = "forecaster"
	KindLeadTime   = "lead_time_predictor"
	KindHistory    = "history"
	KindMetadata   = "metadata"
)

// historySnapshotTail 学習カットオフ直後の日付でもラグ計算ができるよう保持する日数
const historySnapshotTail = 90

// ArtifactMetadata 世代のメタデータ。最後に書き込まれ、コミットマーカーを兼ねる。
type ArtifactMetadata struct {
	DemandSchemaFingerprint   string    `json:"demand_schema_fingerprint"`
	LeadTimeSchemaFingerprint string    `json:"lead_time_schema_fingerprint"`
	TrainedAt                 time.Time `json:"trained_at"`
	RowCount                  int       `json:"row_count"`
	ImputationFallback        bool      `json:"imputation_fallback"`
}

// SeriesSnapshot 店舗×SKU系列の保持分（補正済み需要の末尾と最終観測日の属性）
type SeriesSnapshot struct {
	Demands        []DemandPoint `json:"demands"`
	LastCovariates Covariates    `json:"last_covariates"`
	Category       string        `json:"category"`
	Brand          string        `json:"brand"`
}

// HistorySnapshot 予測時のラグ計算に必要な履歴スナップショット
type HistorySnapshot struct {
	Series map[string]SeriesSnapshot `json:"series"`
}

// Generation 学習1回分の一貫したアーティファクト一式。
// 丸ごと作成・丸ごと置換され、フィールドの差し替えは行わない。
type Generation struct {
	Imputer    *ImputerArtifact    `json:"-"`
	Forecaster *ForecasterArtifact `json:"-"`
	LeadTime   *LeadTimeArtifact   `json:"-"`
	History    *HistorySnapshot    `json:"-"`
	Meta       ArtifactMetadata    `json:"-"`
}

// ArtifactStore 学習済みモデルのディスク永続化。
// 各ファイルは*.tmpに書いてからrenameし、metadata.jsonを最後に書くことで
// 途中失敗が壊れた世代として見えないようにする。
type ArtifactStore struct {
	dir string
}

// NewArtifactStore 新しいArtifactStoreを作成
func NewArtifactStore(dir string) *ArtifactStore {
	return &ArtifactStore{dir: dir}
}

// Save 1種別のアーティファクトを原子的に書き込む
func (s *ArtifactStore) Save(kind string, artifact any) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("アーティファクトディレクトリの作成に失敗しました: %w", err)
	}
	data, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return fmt.Errorf("アーティファクト%sのシリアライズに失敗しました: %w", kind, err)
	}
	final := filepath.Join(s.dir, kind+".json")
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("アーティファクト%sの書き込みに失敗しました: %w", kind, err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("アーティファクト%sの置換に失敗しました: %w", kind, err)
	}
	return nil
}

// Load 1種別のアーティファクトを読み込む。未保存ならErrArtifactNotFound。
func (s *ArtifactStore) Load(kind string, out any) error {
	data, err := os.ReadFile(filepath.Join(s.dir, kind+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return models.ErrArtifactNotFound
		}
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &models.ArtifactCorruptionError{Kind: kind, Reason: err.Error()}
	}
	return nil
}

// SaveGeneration 世代一式を保存する。metadataが最後＝コミット。
func (s *ArtifactStore) SaveGeneration(gen *Generation) error {
	log.Printf("SAVE|MODELS|DIR=%s|START", s.dir)
	if err := s.Save(KindImputer, gen.Imputer); err != nil {
		return err
	}
	if err := s.Save(KindForecaster, gen.Forecaster); err != nil {
		return err
	}
	if err := s.Save(KindLeadTime, gen.LeadTime); err != nil {
		return err
	}
	if err := s.Save(KindHistory, gen.History); err != nil {
		return err
	}
	if err := s.Save(KindMetadata, gen.Meta); err != nil {
		return err
	}
	log.Printf("SAVE|MODELS|DIR=%s|COMPLETE", s.dir)
	return nil
}

// LoadGeneration 保存済み世代を読み込んで検証する。
// スキーマ指紋が現行のFeature Builderと一致しない場合はArtifactCorruptionError。
// デシリアライズは信頼できない入力として扱い、検証を通るまで有効化しない。
func (s *ArtifactStore) LoadGeneration() (*Generation, error) {
	var meta ArtifactMetadata
	if err := s.Load(KindMetadata, &meta); err != nil {
		return nil, err
	}

	if fp := SchemaFingerprint(DemandFeatureSchema()); meta.DemandSchemaFingerprint != fp {
		return nil, &models.ArtifactCorruptionError{Kind: KindMetadata, Reason: "demand schema fingerprint mismatch"}
	}
	if fp := SchemaFingerprint(LeadTimeFeatureSchema()); meta.LeadTimeSchemaFingerprint != fp {
		return nil, &models.ArtifactCorruptionError{Kind: KindMetadata, Reason: "lead time schema fingerprint mismatch"}
	}

	gen := &Generation{Meta: meta}
	gen.Imputer = &ImputerArtifact{}
	if err := s.Load(KindImputer, gen.Imputer); err != nil {
		return nil, asCorruption(KindImputer, err)
	}
	gen.Forecaster = &ForecasterArtifact{}
	if err := s.Load(KindForecaster, gen.Forecaster); err != nil {
		return nil, asCorruption(KindForecaster, err)
	}
	gen.LeadTime = &LeadTimeArtifact{}
	if err := s.Load(KindLeadTime, gen.LeadTime); err != nil {
		return nil, asCorruption(KindLeadTime, err)
	}
	gen.History = &HistorySnapshot{}
	if err := s.Load(KindHistory, gen.History); err != nil {
		return nil, asCorruption(KindHistory, err)
	}

	// 各アーティファクトの指紋もメタデータと突き合わせる
	if gen.Imputer.SchemaFingerprint != meta.DemandSchemaFingerprint {
		return nil, &models.ArtifactCorruptionError{Kind: KindImputer, Reason: "schema fingerprint mismatch"}
	}
	if gen.Forecaster.SchemaFingerprint != meta.DemandSchemaFingerprint {
		return nil, &models.ArtifactCorruptionError{Kind: KindForecaster, Reason: "schema fingerprint mismatch"}
	}
	if gen.LeadTime.SchemaFingerprint != meta.LeadTimeSchemaFingerprint {
		return nil, &models.ArtifactCorruptionError{Kind: KindLeadTime, Reason: "schema fingerprint mismatch"}
	}
	if gen.Forecaster.Model == nil || gen.LeadTime.Model == nil {
		return nil, &models.ArtifactCorruptionError{Kind: KindForecaster, Reason: "missing model parameters"}
	}
	return gen, nil
}

// asCorruption メタデータがコミットされているのに本体が欠けている/壊れている状態
func asCorruption(kind string, err error) error {
	var corrupted *models.ArtifactCorruptionError
	if errors.As(err, &corrupted) {
		return err
	}
	return &models.ArtifactCorruptionError{Kind: kind, Reason: err.Error()}
}

// BuildHistorySnapshot 補正済み系列から予測用スナップショットを構築する
func BuildHistorySnapshot(records []models.HistoricalRecord, imputed []models.ImputedDemandRecord) *HistorySnapshot {
	demandByRow := make(map[string]float64, len(imputed))
	for _, rec := range imputed {
		demandByRow[imputedRowKey(rec.StoreID, rec.SKUID, rec.Date)] = rec.Demand
	}

	snapshot := &HistorySnapshot{Series: make(map[string]SeriesSnapshot)}
	grouped := GroupBySeries(records)
	for _, key := range SortedSeriesKeys(grouped) {
		series := grouped[key]
		demands := make([]DemandPoint, 0, len(series))
		for _, rec := range series {
			demand, ok := demandByRow[imputedRowKey(rec.StoreID, rec.SKUID, rec.Date)]
			if !ok {
				demand = rec.UnitsSold
			}
			demands = append(demands, DemandPoint{Date: rec.Date, Demand: demand})
		}
		if len(demands) > historySnapshotTail {
			demands = demands[len(demands)-historySnapshotTail:]
		}
		last := series[len(series)-1]
		snapshot.Series[key] = SeriesSnapshot{
			Demands:        demands,
			LastCovariates: recordCovariates(last),
			Category:       last.Category,
			Brand:          last.Brand,
		}
	}
	return snapshot
}
