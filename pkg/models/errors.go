package models

import (
	"errors"
	"fmt"
)

// 予測・学習で呼び出し元に返す構造化エラー。
// いずれもHTTP境界でコード付きのレスポンスに変換される。

// InsufficientHistoryError 対象店舗×SKUの履歴が30日に満たない
type InsufficientHistoryError struct {
	StoreID string
	SKUID   string
	Days    int
}

func (e *InsufficientHistoryError) Error() string {
	return fmt.Sprintf("insufficient history for store=%s sku=%s: %d days (requires 30)", e.StoreID, e.SKUID, e.Days)
}

// UnknownEntityError 学習履歴に存在しない店舗またはSKU
type UnknownEntityError struct {
	StoreID string
	SKUID   string
}

func (e *UnknownEntityError) Error() string {
	return fmt.Sprintf("unknown entity: store=%s sku=%s not present in training history", e.StoreID, e.SKUID)
}

// ErrModelNotTrained 学習前のPredict呼び出し。自動学習はしない（起動時のAUTO_TRAINのみ）。
var ErrModelNotTrained = errors.New("model not trained: no active model generation")

// ErrArtifactNotFound アーティファクト未保存
var ErrArtifactNotFound = errors.New("artifact not found")

// TrainingError 学習パイプラインの段階失敗。どの段階も失敗したら置換は行われない。
type TrainingError struct {
	Stage string
	Cause error
}

func (e *TrainingError) Error() string {
	return fmt.Sprintf("training failed at stage %s: %v", e.Stage, e.Cause)
}

func (e *TrainingError) Unwrap() error { return e.Cause }

// ArtifactCorruptionError 読み込み時の整合性・スキーマ指紋の不一致
type ArtifactCorruptionError struct {
	Kind   string
	Reason string
}

func (e *ArtifactCorruptionError) Error() string {
	return fmt.Sprintf("artifact %s corrupted: %s", e.Kind, e.Reason)
}
