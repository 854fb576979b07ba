package services

// ExplainService 予測1件ごとの特徴量帰属を計算する。
// 線形モデルでは各特徴量の寄与 w_i*(x_i-μ_i)/σ_i が
// 「予測値 − 基準値（学習時平均での予測）」に厳密に加法分解される。
// 需要側の帰属はモデル出力空間（log1p）での値。
type ExplainService struct{}

// NewExplainService 新しいExplainServiceを作成
func NewExplainService() *ExplainService {
	return &ExplainService{}
}

// ExplainDemand 需要予測1日分の帰属と基準値を返す
func (s *ExplainService) ExplainDemand(artifact *ForecasterArtifact, x []float64) (map[string]float64, float64) {
	return attribute(demandFeatureNames, artifact.Model, x)
}

// ExplainLeadTime リードタイム予測1日分の帰属と基準値を返す
func (s *ExplainService) ExplainLeadTime(artifact *LeadTimeArtifact, x []float64) (map[string]float64, float64) {
	return attribute(leadTimeFeatureNames, artifact.Model, x)
}

func attribute(names []string, model *linearModel, x []float64) (map[string]float64, float64) {
	contribs := model.Contributions(x)
	out := make(map[string]float64, len(names))
	for i, name := range names {
		out[name] = contribs[i]
	}
	return out, model.Intercept
}
