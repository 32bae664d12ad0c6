package signalmgr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-forge-core/bus"
	"signal-forge-core/level"
	"signal-forge-core/order"
	"signal-forge-core/schedule"
	"signal-forge-core/signal"
)

type fixedPrice float64

func (p fixedPrice) CurrentPrice() float64 { return float64(p) }

// queueGenerator 每次 Generate 吐出一批预置信号
type queueGenerator struct {
	batches [][]signal.TradeSignal
}

func (g *queueGenerator) Generate(signal.View) []signal.TradeSignal {
	if len(g.batches) == 0 {
		return nil
	}
	next := g.batches[0]
	g.batches = g.batches[1:]
	return next
}

func newManager(t *testing.T, gen signal.Generator) (*Manager, *signal.Registry) {
	t.Helper()
	reg := signal.NewRegistry(nil, nil)
	m, err := New(Components{
		Registry:  reg,
		Generator: gen,
		Processor: signal.NewPairProcessor(signal.PairConfig{Symbol: "ES"}, nil),
	})
	require.NoError(t, err)
	return m, reg
}

func TestLoneParentProducesNothingAndStaysQueued(t *testing.T) {
	s1 := signal.New("SIGNAL_1", 100)
	s1.Buy = true
	m, reg := newManager(t, &queueGenerator{batches: [][]signal.TradeSignal{{s1}}})

	assert.Nil(t, m.GenerateOrders())
	_, ok := reg.Lookup(s1.ID)
	assert.True(t, ok)
}

func TestAttachedChildProducesOrderAtParentPrice(t *testing.T) {
	s1 := signal.New("SIGNAL_1", 100)
	s1.Buy = true
	s2 := signal.New("SIGNAL_2", 101).Attach(s1.ID)
	m, reg := newManager(t, &queueGenerator{batches: [][]signal.TradeSignal{{s1}, {s2}}})

	require.Nil(t, m.GenerateOrders())
	orders := m.GenerateOrders()

	require.Len(t, orders, 1)
	assert.Equal(t, 100.0, orders[0].Price)
	assert.Equal(t, order.SideBuy, orders[0].Side)
	assert.ElementsMatch(t, []string{s1.ID, s2.ID}, orders[0].SignalIDs)
	_, ok := reg.Lookup(s1.ID)
	assert.False(t, ok)
	_, ok = reg.Lookup(s2.ID)
	assert.False(t, ok)
	assert.Zero(t, reg.Len())
}

func TestDuplicateGeneratedSignalIsSkipped(t *testing.T) {
	s1 := signal.New("SIGNAL_1", 100)
	m, reg := newManager(t, &queueGenerator{batches: [][]signal.TradeSignal{{s1, s1}}})
	assert.Nil(t, m.GenerateOrders())
	assert.Equal(t, 1, reg.Len())
}

func TestSyncModeRunsLevelCycleBeforeProcessing(t *testing.T) {
	sched := schedule.New(schedule.Synchronous, nil)
	reg := signal.NewRegistry(nil, nil)
	b := bus.New(bus.Config{}, sched, nil, nil)
	b.Subscribe(reg.Subscriber())

	// 价位流水线产生父信号，生成器对其确认，同一轮内得到订单
	levels, err := level.NewManager(level.Config{}, level.Components{
		Generators: []level.Generator{level.NewRoundNumberGenerator(level.RoundNumberConfig{Step: 10, Count: 0})},
		Processor:  level.NewProximityProcessor(level.ProximityConfig{Range: 1}),
		Bus:        b,
		Scheduler:  sched,
	})
	require.NoError(t, err)

	price := fixedPrice(100.5)
	m, err := New(Components{
		Registry:  reg,
		Generator: signal.NewConfirmGenerator(signal.PairConfig{}, price),
		Processor: signal.NewPairProcessor(signal.PairConfig{Symbol: "ES"}, nil),
		Levels:    levels,
		Prices:    price,
		Scheduler: sched,
	})
	require.NoError(t, err)

	// 第一轮：价位信号入表（生成器先于价位周期运行，看不到它）
	assert.Nil(t, m.GenerateOrders())
	assert.Len(t, reg.Pending("SIGNAL_1"), 1)

	// 第二轮：确认并成单
	orders := m.GenerateOrders()
	require.Len(t, orders, 1)
	assert.Equal(t, 100.0, orders[0].Price)
	assert.Zero(t, reg.Len())
}

func TestAsyncModeDoesNotRunLevelsInline(t *testing.T) {
	sched := schedule.New(schedule.Asynchronous, nil)
	defer sched.Shutdown()
	reg := signal.NewRegistry(nil, nil)
	b := bus.New(bus.Config{}, sched, nil, nil)
	called := 0
	levels, err := level.NewManager(level.Config{}, level.Components{
		Generators: []level.Generator{level.GeneratorFunc(func(float64) []level.Level { called++; return nil })},
		Processor:  level.NewProximityProcessor(level.ProximityConfig{}),
		Bus:        b,
		Scheduler:  sched,
		Market:     &idleMarket{},
	})
	require.NoError(t, err)

	m, err := New(Components{Registry: reg, Processor: signal.NewPairProcessor(signal.PairConfig{}, nil), Levels: levels, Prices: fixedPrice(1), Scheduler: sched})
	require.NoError(t, err)
	assert.Nil(t, m.GenerateOrders())
	assert.Zero(t, called)
}

type idleMarket struct{}

func (idleMarket) Ready() bool           { return false }
func (idleMarket) CurrentPrice() float64 { return 0 }

func TestPanickingStrategiesYieldNothing(t *testing.T) {
	reg := signal.NewRegistry(nil, nil)
	m, err := New(Components{
		Registry:  reg,
		Generator: signal.GeneratorFunc(func(signal.View) []signal.TradeSignal { panic("gen") }),
		Processor: signal.ProcessorFunc(func(signal.View) ([]order.PendingOrder, []string) { panic("proc") }),
	})
	require.NoError(t, err)
	assert.Nil(t, m.GenerateOrders())
}

func TestNewValidation(t *testing.T) {
	_, err := New(Components{})
	assert.Error(t, err)
	_, err = New(Components{Registry: signal.NewRegistry(nil, nil)})
	assert.Error(t, err)

	b := bus.New(bus.Config{}, nil, nil, nil)
	levels, err := level.NewManager(level.Config{}, level.Components{Processor: level.NewProximityProcessor(level.ProximityConfig{}), Bus: b})
	require.NoError(t, err)
	_, err = New(Components{Registry: signal.NewRegistry(nil, nil), Processor: signal.NewPairProcessor(signal.PairConfig{}, nil), Levels: levels})
	assert.Error(t, err, "levels without a price source")
}
