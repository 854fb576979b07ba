package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"strconv"
	"time"
)

// 需要予測APIの動作確認用に、模擬的なFMCG販売実績CSVを生成するツール。
// 曜日・季節・プロモの効果を持つ需要に、意図的な在庫切れ日を混ぜる。
// シード固定で再現可能。

func main() {
	out := flag.String("out", "./data/processed.csv", "出力先CSVパス")
	days := flag.Int("days", 365, "生成する日数")
	stores := flag.Int("stores", 2, "店舗数")
	skus := flag.Int("skus", 3, "SKU数")
	seed := flag.Int64("seed", 42, "乱数シード")
	flag.Parse()

	rng := rand.New(rand.NewSource(*seed))
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	f, err := os.Create(*out)
	if err != nil {
		log.Fatalf("出力ファイルを作成できません: %v", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	header := []string{
		"date", "store_id", "sku_id", "category", "brand",
		"units_sold", "stock_on_hand", "list_price", "discount_pct", "promo_flag",
		"temperature", "rain_mm", "is_holiday", "channel", "lead_time_days",
	}
	if err := w.Write(header); err != nil {
		log.Fatalf("ヘッダーの書き込みに失敗しました: %v", err)
	}

	categories := []string{"Beverages", "Snacks", "Dairy"}
	brands := []string{"BrandA", "BrandB", "BrandC"}

	rows := 0
	for s := 0; s < *stores; s++ {
		storeID := fmt.Sprintf("STORE%04d", s+1)
		for k := 0; k < *skus; k++ {
			skuID := fmt.Sprintf("SKU%04d", k+1)
			category := categories[k%len(categories)]
			brand := brands[k%len(brands)]
			baseDemand := 10.0 + float64(k)*5

			for d := 0; d < *days; d++ {
				date := start.AddDate(0, 0, d)

				// 曜日効果と季節効果
				demand := baseDemand
				if wd := date.Weekday(); wd == time.Saturday || wd == time.Sunday {
					demand *= 1.3
				}
				demand *= 1.0 + 0.2*math.Sin(2*math.Pi*float64(date.YearDay())/365)

				promo := rng.Float64() < 0.1
				discount := 0.0
				if promo {
					demand *= 1.5
					discount = 15
				}
				demand += rng.NormFloat64() * baseDemand * 0.1
				if demand < 0 {
					demand = 0
				}
				units := math.Round(demand)

				// およそ3%の日で在庫切れ: 販売数が在庫量で打ち切られる
				stock := units + float64(rng.Intn(20))
				if rng.Float64() < 0.03 {
					stock = math.Round(units * rng.Float64() * 0.5)
					units = stock
				}

				temp := 12 + 10*math.Sin(2*math.Pi*float64(date.YearDay()-100)/365) + rng.NormFloat64()*2
				rain := 0.0
				if rng.Float64() < 0.25 {
					rain = rng.Float64() * 20
				}

				row := []string{
					date.Format("2006-01-02"),
					storeID,
					skuID,
					category,
					brand,
					strconv.FormatFloat(units, 'f', 0, 64),
					strconv.FormatFloat(stock, 'f', 0, 64),
					"120.0",
					strconv.FormatFloat(discount, 'f', 1, 64),
					boolFlag(promo),
					strconv.FormatFloat(temp, 'f', 1, 64),
					strconv.FormatFloat(rain, 'f', 1, 64),
					boolFlag(date.Weekday() == time.Sunday),
					"retail",
					strconv.Itoa(2 + rng.Intn(5)),
				}
				if err := w.Write(row); err != nil {
					log.Fatalf("行の書き込みに失敗しました: %v", err)
				}
				rows++
			}
		}
	}

	log.Printf("DATAGEN|COMPLETE|PATH=%s|ROWS=%d", *out, rows)
}

func boolFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
