package lending

import (
	"context"
	"fmt"

	"radiantcore/lending/fixedpoint"
	"radiantcore/lending/interest"
)

// InitMarketParams are the admin-supplied fields for InitMarket. Admin
// lifecycle is treated as an external collaborator by spec §1, but the
// operation is still part of the exposed surface (spec §6), so the engine
// offers the minimal constructor the rest of the surface depends on.
type InitMarketParams struct {
	Authority           string
	Treasury            string
	CloseFactorBPS      uint32
	LiquidationBonusBPS uint32
	ProtocolFeeBPS      uint32
}

// InitMarket constructs and persists a new Market.
func (e *Engine) InitMarket(ctx context.Context, p InitMarketParams) (*Market, error) {
	m := &Market{
		Authority:           p.Authority,
		Treasury:            p.Treasury,
		CloseFactorBPS:      p.CloseFactorBPS,
		LiquidationBonusBPS: p.LiquidationBonusBPS,
		ProtocolFeeBPS:      p.ProtocolFeeBPS,
	}
	if m.CloseFactorBPS == 0 {
		m.CloseFactorBPS = DefaultCloseFactorBPS
	}
	if m.LiquidationBonusBPS == 0 {
		m.LiquidationBonusBPS = DefaultLiquidationBonusBPS
	}
	if m.ProtocolFeeBPS == 0 {
		m.ProtocolFeeBPS = DefaultProtocolFeeBPS
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if err := e.state.PutMarket(ctx, m); err != nil {
		return nil, err
	}
	e.emit(EventMarketInitialized, map[string]string{"authority": p.Authority, "treasury": p.Treasury})
	return m, nil
}

// InitReserveParams are the admin-supplied fields for InitReserve.
type InitReserveParams struct {
	Market        string
	TokenMint     string
	TokenDecimals uint8
	Vault         string
	FeeReceiver   string
	Oracle        string
	Config        ReserveConfig
}

// InitReserve constructs and persists a new Reserve, with both cumulative
// indexes starting at INDEX_ONE per spec §3.
func (e *Engine) InitReserve(ctx context.Context, p InitReserveParams) (*Reserve, error) {
	if p.Config.InterestRateConfig == (interest.Config{}) {
		p.Config.InterestRateConfig = interest.DefaultConfig
	}
	if err := p.Config.Validate(); err != nil {
		return nil, err
	}
	m, err := e.getMarket(ctx, p.Market)
	if err != nil {
		return nil, err
	}
	if m.ReservesCount >= MaxReserves {
		return nil, fmt.Errorf("%w: market already holds %d reserves", ErrLimitExceeded, MaxReserves)
	}
	r := &Reserve{
		Market:        p.Market,
		TokenMint:     p.TokenMint,
		TokenDecimals: p.TokenDecimals,
		Vault:         p.Vault,
		FeeReceiver:   p.FeeReceiver,
		Oracle:        p.Oracle,
		Config:        p.Config,
		Liquidity: ReserveLiquidity{
			CumulativeBorrowIndex: fixedpoint.IndexOneU256(),
			CumulativeSupplyIndex: fixedpoint.IndexOneU256(),
		},
	}
	if err := e.state.PutReserve(ctx, r); err != nil {
		return nil, err
	}
	m.ReservesCount++
	if err := e.state.PutMarket(ctx, m); err != nil {
		return nil, err
	}
	e.emit(EventReserveInitialized, map[string]string{"market": p.Market, "token_mint": p.TokenMint})
	return r, nil
}

// UpdateReserveConfig applies a new risk configuration to an existing
// reserve, validating it the same way InitReserve does.
func (e *Engine) UpdateReserveConfig(ctx context.Context, market, tokenMint string, cfg ReserveConfig) (*Reserve, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r, err := e.getReserve(ctx, market, tokenMint)
	if err != nil {
		return nil, err
	}
	r.Config = cfg
	if err := e.state.PutReserve(ctx, r); err != nil {
		return nil, err
	}
	e.emit(EventReserveConfigUpdated, map[string]string{"market": market, "token_mint": tokenMint})
	return r, nil
}

// SetEmergencyMode flips the market's emergency flag. In emergency mode,
// deposit and borrow fail with EmergencyModeActive; withdraw, repay,
// liquidate, and refreshes remain allowed (spec §4.5, seed case 5).
func (e *Engine) SetEmergencyMode(ctx context.Context, market string, enabled bool) (*Market, error) {
	m, err := e.getMarket(ctx, market)
	if err != nil {
		return nil, err
	}
	m.Emergency = enabled
	if err := e.state.PutMarket(ctx, m); err != nil {
		return nil, err
	}
	e.emit(EventEmergencyModeChanged, map[string]string{"market": market, "enabled": fmt.Sprintf("%t", enabled)})
	return m, nil
}

// InitObligation creates an empty obligation for owner, failing with
// NothingToDo-equivalent idempotence if one already exists (callers that
// just want "ensure it exists" should prefer the engine's internal
// getOrCreateObligation path exercised by the five operations).
func (e *Engine) InitObligation(ctx context.Context, market, owner string) (*Obligation, error) {
	_, ok, err := e.state.GetObligation(ctx, market, owner)
	if err != nil {
		return nil, err
	}
	if ok {
		return nil, fmt.Errorf("%w: obligation already exists for %s/%s", ErrNothingToDo, market, owner)
	}
	o := &Obligation{Market: market, Owner: owner}
	if err := e.state.PutObligation(ctx, o); err != nil {
		return nil, err
	}
	e.emit(EventObligationInitialized, map[string]string{"market": market, "owner": owner})
	return o, nil
}

// GetMarket returns a market's current state, the read side callers use for
// status pages and for the emergency-mode pause check (spec §6's read
// surface alongside the five operations).
func (e *Engine) GetMarket(ctx context.Context, authority string) (*Market, error) {
	return e.getMarket(ctx, authority)
}

// GetReserve returns a reserve's current stored state without refreshing it.
func (e *Engine) GetReserve(ctx context.Context, market, tokenMint string) (*Reserve, error) {
	return e.getReserve(ctx, market, tokenMint)
}

// GetObligation returns an obligation's current stored state without
// refreshing it.
func (e *Engine) GetObligation(ctx context.Context, market, owner string) (*Obligation, error) {
	o, ok, err := e.state.GetObligation(ctx, market, owner)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: obligation %s/%s not found", ErrConfigurationInvalid, market, owner)
	}
	return o, nil
}

// CollectFees withdraws up to amount (0 = all) of a reserve's accumulated
// protocol fees to the market treasury, the "collect_fees(amount)" admin
// operation of spec §6.
func (e *Engine) CollectFees(ctx context.Context, market, tokenMint string, amount uint64) (uint64, error) {
	r, err := e.getReserve(ctx, market, tokenMint)
	if err != nil {
		return 0, err
	}
	m, err := e.getMarket(ctx, market)
	if err != nil {
		return 0, err
	}
	if r.Liquidity.AccumulatedProtocolFees.IsZero() {
		return 0, ErrNothingToDo
	}
	collect := r.Liquidity.AccumulatedProtocolFees
	if amount > 0 {
		collect = fixedpoint.Min(collect, fixedpoint.FromUint64(amount))
	}
	collectU64, err := collect.Uint64()
	if err != nil {
		return 0, err
	}
	if err := e.custody.Transfer(ctx, r.Vault, m.Treasury, r.Vault, collectU64); err != nil {
		return 0, err
	}
	r.Liquidity.AccumulatedProtocolFees = fixedpoint.SatSub(r.Liquidity.AccumulatedProtocolFees, collect)
	if err := e.state.PutReserve(ctx, r); err != nil {
		return 0, err
	}
	e.emit(EventProtocolFeesCollected, map[string]string{"market": market, "token_mint": tokenMint, "amount": fmt.Sprintf("%d", collectU64)})
	return collectU64, nil
}
