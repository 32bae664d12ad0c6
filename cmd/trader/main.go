package main

import (
	"context"
	"flag"
	"log"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"signal-forge-core/internal/container"
	"signal-forge-core/venue"
)

func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "配置文件路径")
	tickInterval := flag.Duration("tick", 200*time.Millisecond, "模拟逐笔价格间隔")
	barInterval := flag.Duration("bar", 5*time.Second, "bar 聚合周期")
	startPrice := flag.Float64("price", 5000, "随机游走起始价")
	stepPct := flag.Float64("step", 0.0002, "每笔价格变动标准差（相对）")
	seed := flag.Int64("seed", time.Now().UnixNano(), "随机种子")
	flag.Parse()

	c, err := container.NewFromFile(*cfgPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	if err := c.Build(); err != nil {
		log.Fatalf("构建失败: %v", err)
	}
	lg := c.Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 先推一根 bar，交易系统启动时就有价格
	walk := newRandomWalk(*startPrice, *stepPct, *seed)
	c.Advance(venue.Bar{Open: walk.price, Close: walk.price, Time: time.Now()})
	agg := venue.NewBarAggregator(*barInterval)

	if err := c.Start(ctx); err != nil {
		lg.Fatal("启动失败", zap.Error(err))
	}
	notifyReady(lg)
	go runWatchdog(ctx, c.HealthCheck, lg)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(*tickInterval)
	defer ticker.Stop()

	lg.Info("paper trader running",
		zap.String("system", c.Config().System),
		zap.String("symbol", c.Config().Symbol),
		zap.Duration("tick", *tickInterval),
		zap.Duration("bar", *barInterval),
		zap.Int64("seed", *seed))

loop:
	for {
		select {
		case s := <-sigs:
			lg.Info("收到退出信号", zap.String("signal", s.String()))
			break loop
		case now := <-ticker.C:
			if bar, ok := agg.OnTick(walk.next(), now); ok {
				c.Advance(bar)
			}
		}
	}

	notifyStopping()
	cancel()
	if err := c.Stop(); err != nil {
		log.Printf("停止时出现错误: %v", err)
		os.Exit(1)
	}
}

// randomWalk 对数正态随机游走的逐笔价格
type randomWalk struct {
	price float64
	step  float64
	rng   *rand.Rand
}

func newRandomWalk(start, step float64, seed int64) *randomWalk {
	return &randomWalk{price: start, step: step, rng: rand.New(rand.NewSource(seed))}
}

func (w *randomWalk) next() float64 {
	w.price *= math.Exp(w.rng.NormFloat64() * w.step)
	return w.price
}
