package models

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrainingErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := &TrainingError{Stage: "imputation", Cause: cause}

	assert.Contains(t, err.Error(), "imputation")
	// ラップされた原因はerrors.Isで辿れる
	assert.ErrorIs(t, err, cause)
}

func TestStructuredErrorMessages(t *testing.T) {
	insufficient := &InsufficientHistoryError{StoreID: "STORE0001", SKUID: "SKU0001", Days: 12}
	assert.Contains(t, insufficient.Error(), "12 days")

	unknown := &UnknownEntityError{StoreID: "STORE0001", SKUID: "SKU0002"}
	assert.Contains(t, unknown.Error(), "SKU0002")

	corrupted := &ArtifactCorruptionError{Kind: "forecaster", Reason: "schema fingerprint mismatch"}
	assert.Contains(t, corrupted.Error(), "forecaster")
}

func TestFingerprintExactTupleEquality(t *testing.T) {
	req := PredictionRequest{
		StartDate: "2024-04-01",
		StoreID:   "STORE0001",
		SKUID:     "SKU0001",
		Category:  "Beverages",
		Brand:     "BrandA",
	}

	// 同一タプルは同一キー
	same := req
	assert.Equal(t, req.Fingerprint(), same.Fingerprint())

	// 1項目でも違えば別キー
	other := req
	other.Brand = "BrandB"
	assert.NotEqual(t, req.Fingerprint(), other.Fingerprint())
}

func TestFingerprintDelimiterValuesDoNotCollide(t *testing.T) {
	// 値に区切り文字が入っても、フィールド境界が別のタプルと重ならない
	a := PredictionRequest{StartDate: "2024-04-01", StoreID: "S1|X", SKUID: "K1", Category: "C", Brand: "B"}
	b := PredictionRequest{StartDate: "2024-04-01", StoreID: "S1", SKUID: "X|K1", Category: "C", Brand: "B"}
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
}
