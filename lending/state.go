package lending

import (
	"context"

	"radiantcore/lending/fixedpoint"
)

// EngineState is the persistence seam the engine is built against, the same
// shape native/lending/engine.go's engineState interface takes for its own
// (chain-account-backed) bookkeeping. A concrete implementation backed by
// goleveldb lives in lending/persist; tests use an in-memory fake.
type EngineState interface {
	GetMarket(ctx context.Context, authority string) (*Market, bool, error)
	PutMarket(ctx context.Context, m *Market) error

	GetReserve(ctx context.Context, market, tokenMint string) (*Reserve, bool, error)
	PutReserve(ctx context.Context, r *Reserve) error

	GetObligation(ctx context.Context, market, owner string) (*Obligation, bool, error)
	PutObligation(ctx context.Context, o *Obligation) error
}

// OraclePrice is a USD price quote scaled to USD_SCALE (1e6), along with the
// slot it was last updated at.
type OraclePrice struct {
	PriceUSD        fixedpoint.U256
	LastUpdatedSlot uint64
}

// OracleAdapter is the consumed price-feed collaborator (spec §6). Staleness
// is checked by the caller against MaxOracleStalenessSlots; deviation
// guarding (SPEC_FULL §D.5) is the adapter's own responsibility.
type OracleAdapter interface {
	PriceUSD(ctx context.Context, reserveOracleID string) (OraclePrice, error)
}

// Custody is the consumed token-movement collaborator (spec §6). The engine
// never holds custody outside vaults; every transfer names an authority
// identity (a vault's derived identity, or a user) that the custody layer is
// responsible for authorizing.
type Custody interface {
	Transfer(ctx context.Context, from, to, authority string, amount uint64) error
	Balance(ctx context.Context, account string) (uint64, error)
}
