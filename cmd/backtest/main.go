package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"signal-forge-core/config"
	"signal-forge-core/infrastructure/logger"
	"signal-forge-core/internal/container"
	"signal-forge-core/internal/engine"
	"signal-forge-core/schedule"
	"signal-forge-core/venue"
)

type summary struct {
	Symbol      string
	Bars        int
	Iterations  int
	Executed    int
	Trades      int
	Profit      float64
	MaxDrawdown float64
	Position    float64
}

// 按 CSV 收盘价回放 bar，逐根同步驱动一轮迭代。
// 用法：
//
//	go run ./cmd/backtest -config configs/config.yaml -data data/es_closes.csv -out summary.csv
//
// CSV 每行 `close` 或 `RFC3339时间,close`，无法解析的行跳过。
func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "配置文件路径")
	dataPath := flag.String("data", "data/closes.csv", "收盘价 CSV")
	outPath := flag.String("out", "", "若指定则写入 CSV 汇总")
	barStep := flag.Duration("barStep", time.Minute, "CSV 无时间列时的 bar 间隔")
	flag.Parse()

	cfg, err := config.LoadWithEnvOverrides(*cfgPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	// 回放必须同步执行，外部推送与指标服务不参与
	cfg.Mode = schedule.Synchronous
	cfg.Feed.Enabled = false
	cfg.Metrics.Enabled = false
	cfg.Params.Watch.Enabled = false
	cfg.Engine.Throttle = 0

	bars, err := loadBars(*dataPath, *barStep)
	if err != nil {
		log.Fatalf("读取 %s 失败: %v", *dataPath, err)
	}
	if len(bars) == 0 {
		log.Fatalf("数据为空: %s", *dataPath)
	}

	lg, err := logger.New(cfg.Logger)
	if err != nil {
		log.Fatalf("创建日志失败: %v", err)
	}
	c, err := container.New(cfg, container.WithLogger(lg))
	if err != nil {
		log.Fatalf("初始化失败: %v", err)
	}
	if err := c.Build(); err != nil {
		log.Fatalf("构建失败: %v", err)
	}

	sum := replay(context.Background(), c, bars)
	log.Printf("symbol=%s bars=%d iterations=%d executed=%d trades=%d profit=%.2f maxDD=%.2f position=%.2f",
		sum.Symbol, sum.Bars, sum.Iterations, sum.Executed, sum.Trades, sum.Profit, sum.MaxDrawdown, sum.Position)

	if err := c.Stop(); err != nil {
		log.Printf("清场失败: %v", err)
	}
	if *outPath != "" {
		if err := writeSummaryCSV(*outPath, sum); err != nil {
			log.Printf("写入汇总 CSV 失败: %v", err)
		} else {
			log.Printf("已写入汇总: %s", *outPath)
		}
	}
}

func replay(ctx context.Context, c *container.Container, bars []venue.Bar) summary {
	sum := summary{Symbol: c.Config().Symbol, Bars: len(bars)}
	ts := c.Engine()
	for _, bar := range bars {
		c.Advance(bar)
		out, err := ts.Process(ctx)
		if err != nil {
			log.Printf("bar %s 迭代失败: %v", bar.Time.Format(time.RFC3339), err)
			continue
		}
		sum.Iterations++
		if out.StoppedAt == engine.StageComplete {
			sum.Executed += out.Executed
		}
	}
	stats := c.Paper().Stats()
	sum.Trades = stats.TotalTrades
	sum.Profit = stats.Profit
	sum.MaxDrawdown = stats.MaxDrawdown
	if pos, err := c.Paper().Position(sum.Symbol); err == nil {
		sum.Position = pos.Quantity
	}
	return sum
}

func loadBars(path string, step time.Duration) ([]venue.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, err
	}

	start := time.Date(2024, 1, 2, 14, 30, 0, 0, time.UTC)
	out := make([]venue.Bar, 0, len(rows))
	prev := 0.0
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		at := start.Add(time.Duration(len(out)) * step)
		field := row[0]
		if len(row) >= 2 {
			ts, err := time.Parse(time.RFC3339, strings.TrimSpace(row[0]))
			if err != nil {
				continue
			}
			at, field = ts, row[1]
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil || v <= 0 {
			continue
		}
		open := prev
		if open == 0 {
			open = v
		}
		out = append(out, venue.Bar{Open: open, Close: v, Time: at})
		prev = v
	}
	return out, nil
}

func writeSummaryCSV(path string, s summary) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	defer w.Flush()
	header := []string{"symbol", "bars", "iterations", "executed", "trades", "profit", "maxDrawdown", "position"}
	if err := w.Write(header); err != nil {
		return err
	}
	return w.Write([]string{
		s.Symbol,
		strconv.Itoa(s.Bars),
		strconv.Itoa(s.Iterations),
		strconv.Itoa(s.Executed),
		strconv.Itoa(s.Trades),
		fmt.Sprintf("%.6f", s.Profit),
		fmt.Sprintf("%.6f", s.MaxDrawdown),
		fmt.Sprintf("%.6f", s.Position),
	})
}
