package services

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"demand-forecast-api/pkg/models"
)

// テスト用の履歴データ生成ヘルパー

var testStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// flatHistory 需要一定の履歴を生成する（在庫切れなし、リードタイム3日）
func flatHistory(storeID, skuID string, days int, demand float64) []models.HistoricalRecord {
	records := make([]models.HistoricalRecord, 0, days)
	for d := 0; d < days; d++ {
		date := testStart.AddDate(0, 0, d)
		records = append(records, models.HistoricalRecord{
			Date:         date,
			StoreID:      storeID,
			SKUID:        skuID,
			Category:     "Beverages",
			Brand:        "BrandA",
			UnitsSold:    demand,
			StockOnHand:  demand + 20,
			ListPrice:    120,
			Temperature:  20,
			Channel:      "retail",
			LeadTimeDays: 3,
		})
	}
	return records
}

// withStockout 指定日を在庫切れ（販売0、在庫0）に書き換える
func withStockout(records []models.HistoricalRecord, dayIndex int) []models.HistoricalRecord {
	out := make([]models.HistoricalRecord, len(records))
	copy(out, records)
	out[dayIndex].UnitsSold = 0
	out[dayIndex].StockOnHand = 0
	out[dayIndex].StockOut = true
	return out
}

// writeHistoryCSV 履歴レコードをCSVファイルとして書き出し、パスを返す
func writeHistoryCSV(t *testing.T, dir, name string, records []models.HistoricalRecord) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("date,store_id,sku_id,category,brand,units_sold,stock_on_hand,list_price,discount_pct,promo_flag,temperature,rain_mm,is_holiday,channel,lead_time_days,stock_out_flag\n")
	for _, rec := range records {
		fmt.Fprintf(&b, "%s,%s,%s,%s,%s,%.2f,%.2f,%.2f,%.2f,%s,%.1f,%.1f,%s,%s,%.1f,%s\n",
			rec.Date.Format("2006-01-02"), rec.StoreID, rec.SKUID, rec.Category, rec.Brand,
			rec.UnitsSold, rec.StockOnHand, rec.ListPrice, rec.DiscountPct, boolFlag(rec.PromoFlag),
			rec.Temperature, rec.RainMM, boolFlag(rec.IsHoliday), rec.Channel, rec.LeadTimeDays, boolFlag(rec.StockOut))
	}
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func boolFlag(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

// demandPoints 履歴から需要系列を取り出す
func demandPoints(records []models.HistoricalRecord) []DemandPoint {
	out := make([]DemandPoint, 0, len(records))
	for _, rec := range records {
		out = append(out, DemandPoint{Date: rec.Date, Demand: rec.UnitsSold})
	}
	return out
}
