package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
)

// APIバージョン（レスポンス封筒のmetadataに入る）
const apiVersion = "1.0"

// envelope 全エンドポイント共通のレスポンス封筒を構築する
func envelope(responseType string, data gin.H, code, message string) gin.H {
	return gin.H{
		"metadata": gin.H{
			"api_version":   apiVersion,
			"timestamp":     time.Now().UTC().Format(time.RFC3339),
			"response_type": responseType,
		},
		"data": data,
		"status": gin.H{
			"code":    code,
			"message": message,
		},
	}
}

// successEnvelope 成功レスポンス
func successEnvelope(responseType string, data gin.H, message string) gin.H {
	return envelope(responseType, data, "success", message)
}

// errorEnvelope エラーレスポンス。codeは機械可読なエラーコード。
func errorEnvelope(responseType, code, message string) gin.H {
	return gin.H{
		"metadata": gin.H{
			"api_version":   apiVersion,
			"timestamp":     time.Now().UTC().Format(time.RFC3339),
			"response_type": responseType,
		},
		"status": gin.H{
			"code":    code,
			"message": message,
		},
	}
}
