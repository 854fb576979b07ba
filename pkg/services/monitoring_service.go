package services

import (
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// LogEntry は単一のリクエストログを表します。
type LogEntry struct {
	Timestamp    time.Time     `json:"timestamp"`
	Path         string        `json:"path"`
	Method       string        `json:"method"`
	StatusCode   int           `json:"status_code"`
	ResponseTime time.Duration `json:"response_time"`
}

// MonitoringService はAPIのモニタリング機能を提供します。
type MonitoringService struct {
	logs []LogEntry
	mu   sync.RWMutex
}

// NewMonitoringService は新しいMonitoringServiceを生成します。
func NewMonitoringService() *MonitoringService {
	return &MonitoringService{
		logs: make([]LogEntry, 0),
	}
}

// LogRequest はリクエストを記録します。
func (s *MonitoringService) LogRequest(entry LogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, entry)
}

// LoggingMiddleware はリクエスト情報を記録するGinミドルウェアです。
func (s *MonitoringService) LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		// モニタリング自身へのアクセスは記録しない
		path := c.Request.URL.Path
		if strings.HasPrefix(path, "/api/v1/monitoring") {
			return
		}

		entry := LogEntry{
			Timestamp:    start,
			Path:         path,
			Method:       c.Request.Method,
			StatusCode:   c.Writer.Status(),
			ResponseTime: time.Since(start),
		}
		s.LogRequest(entry)
	}
}

// RequestSummary は集計済みのリクエスト統計です。
type RequestSummary struct {
	TotalRequests int              `json:"total_requests"`
	Endpoints     map[string]int   `json:"endpoints"`
	StatusClasses map[string]int   `json:"status_classes"`
	AvgLatencyMS  map[string]int64 `json:"avg_latency_ms"`
	RecentErrors  []LogEntry       `json:"recent_errors"`
}

// GetSummary は指定された期間のログを集計して統計を返します。
func (s *MonitoringService) GetSummary(periodHours int) RequestSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	since := time.Now().Add(-time.Duration(periodHours) * time.Hour)

	filtered := make([]LogEntry, 0)
	for _, entry := range s.logs {
		if entry.Timestamp.After(since) {
			filtered = append(filtered, entry)
		}
	}

	endpoints := make(map[string]int)
	statusClasses := map[string]int{
		"2xx": 0,
		"4xx": 0,
		"5xx": 0,
	}
	latencySum := make(map[string]time.Duration)
	for _, entry := range filtered {
		endpoints[entry.Path]++
		switch {
		case entry.StatusCode >= 200 && entry.StatusCode < 300:
			statusClasses["2xx"]++
		case entry.StatusCode >= 400 && entry.StatusCode < 500:
			statusClasses["4xx"]++
		case entry.StatusCode >= 500:
			statusClasses["5xx"]++
		}
		latencySum[entry.Path] += entry.ResponseTime
	}

	avgLatency := make(map[string]int64)
	for path, total := range latencySum {
		avgLatency[path] = total.Milliseconds() / int64(endpoints[path])
	}

	recentErrors := make([]LogEntry, 0)
	for i := len(filtered) - 1; i >= 0; i-- {
		if filtered[i].StatusCode >= 500 {
			recentErrors = append(recentErrors, filtered[i])
			if len(recentErrors) >= 10 {
				break
			}
		}
	}

	return RequestSummary{
		TotalRequests: len(filtered),
		Endpoints:     endpoints,
		StatusClasses: statusClasses,
		AvgLatencyMS:  avgLatency,
		RecentErrors:  recentErrors,
	}
}
