package lending

import (
	"context"
	"sync"

	"radiantcore/lending/fixedpoint"
	"radiantcore/lending/interest"
)

// memState is an in-memory lending.EngineState fake, the same shape
// native/lending/engine_accrual_test.go's mockEngineState takes for the
// teacher's own engine tests.
type memState struct {
	mu          sync.Mutex
	markets     map[string]*Market
	reserves    map[string]*Reserve
	obligations map[string]*Obligation
}

func newMemState() *memState {
	return &memState{
		markets:     map[string]*Market{},
		reserves:    map[string]*Reserve{},
		obligations: map[string]*Obligation{},
	}
}

func (m *memState) GetMarket(ctx context.Context, authority string) (*Market, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.markets[authority]
	if !ok {
		return nil, false, nil
	}
	cp := *v
	return &cp, true, nil
}

func (m *memState) PutMarket(ctx context.Context, mkt *Market) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *mkt
	m.markets[mkt.Authority] = &cp
	return nil
}

func (m *memState) GetReserve(ctx context.Context, market, tokenMint string) (*Reserve, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.reserves[market+":"+tokenMint]
	if !ok {
		return nil, false, nil
	}
	cp := *v
	return &cp, true, nil
}

func (m *memState) PutReserve(ctx context.Context, r *Reserve) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.reserves[r.Market+":"+r.TokenMint] = &cp
	return nil
}

func (m *memState) GetObligation(ctx context.Context, market, owner string) (*Obligation, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.obligations[market+":"+owner]
	if !ok {
		return nil, false, nil
	}
	cp := *v
	cp.Deposits = append([]ObligationCollateral{}, v.Deposits...)
	cp.Borrows = append([]ObligationLiquidity{}, v.Borrows...)
	return &cp, true, nil
}

func (m *memState) PutObligation(ctx context.Context, o *Obligation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *o
	cp.Deposits = append([]ObligationCollateral{}, o.Deposits...)
	cp.Borrows = append([]ObligationLiquidity{}, o.Borrows...)
	m.obligations[o.Market+":"+o.Owner] = &cp
	return nil
}

var _ EngineState = (*memState)(nil)

// memCustody is an in-memory Custody fake tracking native-unit balances per
// account.
type memCustody struct {
	mu       sync.Mutex
	balances map[string]uint64
}

func newMemCustody() *memCustody {
	return &memCustody{balances: map[string]uint64{}}
}

func (c *memCustody) fund(account string, amount uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balances[account] += amount
}

func (c *memCustody) Transfer(ctx context.Context, from, to, authority string, amount uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.balances[from] < amount {
		return ErrLiquidityInsufficient
	}
	c.balances[from] -= amount
	c.balances[to] += amount
	return nil
}

func (c *memCustody) Balance(ctx context.Context, account string) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.balances[account], nil
}

var _ Custody = (*memCustody)(nil)

// memOracle is an in-memory OracleAdapter fake keyed by reserve oracle ID.
type memOracle struct {
	mu     sync.Mutex
	prices map[string]OraclePrice
}

func newMemOracle() *memOracle {
	return &memOracle{prices: map[string]OraclePrice{}}
}

func (o *memOracle) setPrice(oracleID string, priceUSD uint64, slot uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.prices[oracleID] = OraclePrice{PriceUSD: fixedpoint.FromUint64(priceUSD), LastUpdatedSlot: slot}
}

func (o *memOracle) PriceUSD(ctx context.Context, oracleID string) (OraclePrice, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	p, ok := o.prices[oracleID]
	if !ok {
		return OraclePrice{}, ErrOracleInvalid
	}
	return p, nil
}

var _ OracleAdapter = (*memOracle)(nil)

// testHarness bundles everything a seed-scenario test needs.
type testHarness struct {
	engine  *Engine
	state   *memState
	custody *memCustody
	oracle  *memOracle
}

func newHarness() *testHarness {
	state := newMemState()
	custody := newMemCustody()
	oracle := newMemOracle()
	engine := NewEngine(state, custody, oracle, NoopEmitter{}, nil)
	return &testHarness{engine: engine, state: state, custody: custody, oracle: oracle}
}

const (
	testMarketAuthority = "authority-1"
	testMarketTreasury  = "treasury-1"
)

func (h *testHarness) initMarket() *Market {
	m, err := h.engine.InitMarket(context.Background(), InitMarketParams{
		Authority: testMarketAuthority,
		Treasury:  testMarketTreasury,
	})
	if err != nil {
		panic(err)
	}
	return m
}

func (h *testHarness) initReserve(mint, vault, feeReceiver, oracleID string, decimals uint8, cfg ReserveConfig) *Reserve {
	r, err := h.engine.InitReserve(context.Background(), InitReserveParams{
		Market:        testMarketAuthority,
		TokenMint:     mint,
		TokenDecimals: decimals,
		Vault:         vault,
		FeeReceiver:   feeReceiver,
		Oracle:        oracleID,
		Config:        cfg,
	})
	if err != nil {
		panic(err)
	}
	h.oracle.setPrice(oracleID, fixedpoint.USDScale, 0) // $1.00 default
	return r
}

func defaultReserveConfig() ReserveConfig {
	return ReserveConfig{
		LTVBPS:                  8_000,
		LiquidationThresholdBPS: 8_500,
		InterestRateConfig:      interest.DefaultConfig,
		DepositsEnabled:         true,
		BorrowsEnabled:          true,
	}
}
