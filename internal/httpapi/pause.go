package httpapi

import (
	"context"

	"radiantcore/lending"
	"radiantcore/native/common"
)

// marketPauseView adapts a lending.Engine's per-market emergency flag to
// native/common's PauseView, so the HTTP layer gates deposit/borrow the same
// way the rest of this codebase gates a paused module (common.Guard).
type marketPauseView struct {
	engine *lending.Engine
}

// guard fails with common.ErrModulePaused if market is in emergency mode. It
// does not replace the engine's own guardNotEmergency check inside
// Deposit/Borrow; it lets the HTTP layer reject early with a clear status
// before spending a quota token on a request that would fail inside the
// engine anyway (the rate-limit middleware has already run by then).
func (v *marketPauseView) guard(ctx context.Context, market string) error {
	return common.Guard(pauseAdapter{ctx: ctx, engine: v.engine, market: market}, market)
}

type pauseAdapter struct {
	ctx    context.Context
	engine *lending.Engine
	market string
}

func (p pauseAdapter) IsPaused(module string) bool {
	m, err := p.engine.GetMarket(p.ctx, module)
	if err != nil {
		return false
	}
	return m.Emergency
}
