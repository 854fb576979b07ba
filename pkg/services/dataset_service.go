package services

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"demand-forecast-api/pkg/models"

	"github.com/xuri/excelize/v2"
)

// DatasetService 販売実績ファイル（CSV / XLSX）を読み込み、店舗×SKU系列に整列する。
// ヘッダー名は大文字小文字を区別せず、別名（unit_sold等）も受け付ける。
// パースした結果はパス単位でキャッシュする。
type DatasetService struct {
	mu          sync.RWMutex
	cache       map[string][]models.HistoricalRecord
	dateLayouts []string
}

// NewDatasetService 新しいDatasetServiceを作成
func NewDatasetService() *DatasetService {
	return &DatasetService{
		cache: make(map[string][]models.HistoricalRecord),
		dateLayouts: []string{
			time.RFC3339,
			"2006-01-02",
			"2006-1-2",
			"2006/01/02",
			"2006/1/2",
			"20060102",
		},
	}
}

// LoadHistory ファイルから履歴レコードを読み込む。
// (store_id, sku_id, date) 昇順に整列して返す。
func (s *DatasetService) LoadHistory(path string) ([]models.HistoricalRecord, error) {
	s.mu.RLock()
	if cached, ok := s.cache[path]; ok {
		s.mu.RUnlock()
		return cached, nil
	}
	s.mu.RUnlock()

	rows, err := s.readRows(path)
	if err != nil {
		return nil, err
	}
	records, err := s.parseRows(rows)
	if err != nil {
		return nil, err
	}

	sort.Slice(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.StoreID != b.StoreID {
			return a.StoreID < b.StoreID
		}
		if a.SKUID != b.SKUID {
			return a.SKUID < b.SKUID
		}
		return a.Date.Before(b.Date)
	})

	s.mu.Lock()
	s.cache[path] = records
	s.mu.Unlock()
	return records, nil
}

// InvalidateCache 指定パスのキャッシュを破棄する（再学習時に呼ぶ）
func (s *DatasetService) InvalidateCache(path string) {
	s.mu.Lock()
	delete(s.cache, path)
	s.mu.Unlock()
}

// readRows 形式ごとに生の行を取り出す
func (s *DatasetService) readRows(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("履歴ファイルを開けません: %w", err)
	}
	defer f.Close()

	if strings.HasSuffix(strings.ToLower(path), ".xlsx") {
		book, err := excelize.OpenReader(f)
		if err != nil {
			return nil, fmt.Errorf("Excelファイルの読み込みに失敗しました: %w", err)
		}
		defer book.Close()
		rows, err := book.GetRows(book.GetSheetName(0))
		if err != nil {
			return nil, fmt.Errorf("Excelシートの行取得に失敗しました: %w", err)
		}
		return rows, nil
	}

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("CSVファイルの解析に失敗しました: %w", err)
	}
	return rows, nil
}

// parseRows ヘッダー行を解決してレコードへ変換する
func (s *DatasetService) parseRows(rows [][]string) ([]models.HistoricalRecord, error) {
	if len(rows) < 2 {
		return nil, fmt.Errorf("データ行がありません（ヘッダーのみ、または空ファイル）")
	}
	header := rows[0]

	dateIdx := findColumn(header, "date", "sales_date")
	storeIdx := findColumn(header, "store_id", "store")
	skuIdx := findColumn(header, "sku_id", "sku", "product_id")
	unitsIdx := findColumn(header, "units_sold", "unit_sold", "sales_quantity")
	if dateIdx < 0 || storeIdx < 0 || skuIdx < 0 || unitsIdx < 0 {
		return nil, fmt.Errorf("必須列が見つかりません（date, store_id, sku_id, units_sold）")
	}

	categoryIdx := findColumn(header, "category")
	brandIdx := findColumn(header, "brand")
	stockIdx := findColumn(header, "stock_on_hand", "stock_opening", "stock")
	priceIdx := findColumn(header, "list_price", "price")
	discountIdx := findColumn(header, "discount_pct", "discount")
	promoIdx := findColumn(header, "promo_flag", "promotion")
	tempIdx := findColumn(header, "temperature", "temp")
	rainIdx := findColumn(header, "rain_mm", "precipitation")
	holidayIdx := findColumn(header, "is_holiday", "holiday")
	channelIdx := findColumn(header, "channel")
	leadTimeIdx := findColumn(header, "lead_time_days", "lead_time")
	stockOutIdx := findColumn(header, "stock_out_flag", "stockout")

	records := make([]models.HistoricalRecord, 0, len(rows)-1)
	for lineNo, row := range rows[1:] {
		if len(row) == 0 {
			continue
		}
		date, err := s.parseDate(cell(row, dateIdx))
		if err != nil {
			return nil, fmt.Errorf("行%d: 日付の解析に失敗しました: %w", lineNo+2, err)
		}
		rec := models.HistoricalRecord{
			Date:         date,
			StoreID:      strings.TrimSpace(cell(row, storeIdx)),
			SKUID:        strings.TrimSpace(cell(row, skuIdx)),
			Category:     strings.TrimSpace(cell(row, categoryIdx)),
			Brand:        strings.TrimSpace(cell(row, brandIdx)),
			UnitsSold:    parseFloat(cell(row, unitsIdx)),
			StockOnHand:  parseFloat(cell(row, stockIdx)),
			ListPrice:    parseFloat(cell(row, priceIdx)),
			DiscountPct:  parseFloat(cell(row, discountIdx)),
			PromoFlag:    parseBoolFlag(cell(row, promoIdx)),
			Temperature:  parseFloat(cell(row, tempIdx)),
			RainMM:       parseFloat(cell(row, rainIdx)),
			IsHoliday:    parseBoolFlag(cell(row, holidayIdx)),
			Channel:      strings.TrimSpace(cell(row, channelIdx)),
			LeadTimeDays: parseFloat(cell(row, leadTimeIdx)),
		}
		if rec.StoreID == "" || rec.SKUID == "" {
			continue
		}
		// 在庫切れフラグ: 明示列があればそれを、なければ在庫ゼロで判定
		if stockOutIdx >= 0 {
			rec.StockOut = parseBoolFlag(cell(row, stockOutIdx))
		} else if stockIdx >= 0 {
			rec.StockOut = rec.StockOnHand <= 0
		}
		records = append(records, rec)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("有効なデータ行がありません")
	}
	return records, nil
}

func (s *DatasetService) parseDate(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	for _, layout := range s.dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC().Truncate(24 * time.Hour), nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported date format: %q", v)
}

// SeriesKey 店舗×SKU系列のキー
func SeriesKey(storeID, skuID string) string {
	return storeID + "|" + skuID
}

// GroupBySeries レコードを店舗×SKUごとの昇順系列にまとめる
func GroupBySeries(records []models.HistoricalRecord) map[string][]models.HistoricalRecord {
	out := make(map[string][]models.HistoricalRecord)
	for _, rec := range records {
		key := SeriesKey(rec.StoreID, rec.SKUID)
		out[key] = append(out[key], rec)
	}
	return out
}

// SortedSeriesKeys 系列キーを昇順で返す（学習の決定性を保つため、map順では走査しない）
func SortedSeriesKeys(series map[string][]models.HistoricalRecord) []string {
	keys := make([]string, 0, len(series))
	for key := range series {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// findColumn finds the index of the first matching candidate header (case-insensitive)
func findColumn(header []string, candidates ...string) int {
	for _, candidate := range candidates {
		for i, name := range header {
			if strings.EqualFold(strings.TrimSpace(name), candidate) {
				return i
			}
		}
	}
	return -1
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

func parseFloat(v string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0
	}
	return f
}

func parseBoolFlag(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y":
		return true
	}
	return false
}
