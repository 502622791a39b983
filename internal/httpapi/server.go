// Package httpapi exposes the lending engine's operations over HTTP,
// grounded on gateway/routes' chi-based JSON handler shape (route naming,
// decode/writeJSONError helpers, 1MiB body cap) but talking to an in-process
// lending.Engine directly instead of proxying to a gRPC backend.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"radiantcore/gateway/auth"
	"radiantcore/gateway/middleware"
	"radiantcore/internal/radiantmetrics"
	"radiantcore/lending"
	"radiantcore/native/common"
)

const maxRequestBody = 1 << 20 // 1 MiB, matching gateway/routes' lendingRequestLimit

// Server wires chi routes to a lending.Engine.
type Server struct {
	engine             *lending.Engine
	authenticator      *middleware.Authenticator
	adminAuthenticator *auth.Authenticator
	rateLimiter        *middleware.RateLimiter
	observability      *middleware.Observability
	pauseView          *marketPauseView
	quota              *accountQuota
	events             *EventHub
	metrics            *radiantmetrics.Recorder
}

// Config bundles a Server's collaborators. Authenticator/RateLimiter/
// Observability are optional; a nil value disables that middleware. Events
// must be the same hub passed as the engine's lending.Emitter, so the
// websocket stream reflects the engine this server actually fronts.
// AdminAuthenticator, when set, layers HMAC request-signing and nonce replay
// protection on top of the admin route group's JWT check.
type Config struct {
	Engine             *lending.Engine
	Authenticator      *middleware.Authenticator
	AdminAuthenticator *auth.Authenticator
	RateLimiter        *middleware.RateLimiter
	Observability      *middleware.Observability
	Quota              common.Quota
	QuotaStore         common.Store
	Events             *EventHub
}

// NewServer builds a Server and its chi-routed http.Handler.
func NewServer(cfg Config) (*Server, http.Handler) {
	events := cfg.Events
	if events == nil {
		events = NewEventHub()
	}
	s := &Server{
		engine:             cfg.Engine,
		authenticator:      cfg.Authenticator,
		adminAuthenticator: cfg.AdminAuthenticator,
		rateLimiter:        cfg.RateLimiter,
		observability:      cfg.Observability,
		pauseView:          &marketPauseView{engine: cfg.Engine},
		quota:              &accountQuota{limit: cfg.Quota, store: cfg.QuotaStore},
		events:             events,
		metrics:            radiantmetrics.Lending(),
	}
	return s, s.routes()
}

// observe records an operation's latency and outcome in the lending metrics
// registry; call via defer with the start time and a pointer to the named
// error return value.
func (s *Server) observe(operation string, start time.Time, err *error) {
	s.metrics.ObserveOperation(operation, time.Since(start), *err)
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.CORS(middleware.CORSConfig{}))
	if s.observability != nil {
		r.Use(s.observability.Middleware("httpapi"))
		r.Handle("/metrics", s.observability.MetricsHandler())
	}
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/events", s.streamEvents)

	r.Route("/v1/markets", func(mr chi.Router) {
		if s.rateLimiter != nil {
			mr.Use(s.rateLimiter.Middleware("authenticated"))
		}
		if s.authenticator != nil {
			mr.Use(s.authenticator.Middleware("lending:admin"))
		}
		if s.adminAuthenticator != nil {
			mr.Use(adminSignatureAuth(s.adminAuthenticator))
		}
		mr.Post("/", s.initMarket)
		mr.Post("/{market}/emergency", s.setEmergencyMode)
		mr.Post("/{market}/reserves", s.initReserve)
		mr.Patch("/{market}/reserves/{mint}/config", s.updateReserveConfig)
		mr.Post("/{market}/obligations/{owner}", s.initObligation)
		mr.Post("/{market}/reserves/{mint}/fees/collect", s.collectFees)
	})

	r.Route("/v1/markets/{market}/reserves/{mint}", func(rr chi.Router) {
		if s.rateLimiter != nil {
			rr.Use(s.rateLimiter.Middleware("permissionless"))
		}
		rr.Get("/", s.getReserve)
		rr.Post("/refresh", s.refreshReserve)
	})

	r.Route("/v1/markets/{market}/obligations/{owner}", func(or chi.Router) {
		if s.rateLimiter != nil {
			or.Use(s.rateLimiter.Middleware("permissionless"))
		}
		or.Get("/", s.getObligation)
		or.Post("/refresh", s.refreshObligation)
	})

	r.Route("/v1/markets/{market}/reserves/{mint}/deposit", func(dr chi.Router) {
		s.mutating(dr, "lending:write")
		dr.Post("/", s.deposit)
	})
	r.Route("/v1/markets/{market}/reserves/{mint}/withdraw", func(wr chi.Router) {
		s.mutating(wr, "lending:write")
		wr.Post("/", s.withdraw)
	})
	r.Route("/v1/markets/{market}/reserves/{mint}/borrow", func(br chi.Router) {
		s.mutating(br, "lending:write")
		br.Post("/", s.borrow)
	})
	r.Route("/v1/markets/{market}/reserves/{mint}/repay", func(rp chi.Router) {
		s.mutating(rp, "lending:write")
		rp.Post("/", s.repay)
	})
	r.Route("/v1/markets/{market}/liquidate", func(lr chi.Router) {
		s.mutating(lr, "lending:liquidate")
		lr.Post("/", s.liquidate)
	})

	return r
}

func (s *Server) mutating(r chi.Router, scope string) {
	if s.rateLimiter != nil {
		r.Use(s.rateLimiter.Middleware("authenticated"))
	}
	if s.authenticator != nil {
		r.Use(s.authenticator.Middleware(scope))
	}
}

func opContext(r *http.Request) lending.OpContext {
	slot, _ := strconv.ParseUint(r.URL.Query().Get("slot"), 10, 64)
	ts := time.Now().Unix()
	if raw := r.URL.Query().Get("timestamp"); raw != "" {
		if parsed, err := strconv.ParseInt(raw, 10, 64); err == nil {
			ts = parsed
		}
	}
	return lending.OpContext{Slot: slot, Timestamp: ts}
}

type amountRequest struct {
	Owner  string `json:"owner"`
	Amount uint64 `json:"amount"`
}

func (s *Server) deposit(w http.ResponseWriter, r *http.Request) {
	market, mint := chi.URLParam(r, "market"), chi.URLParam(r, "mint")
	var req amountRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	if err := s.pauseView.guard(r.Context(), market); err != nil {
		writeJSONError(w, http.StatusServiceUnavailable, err)
		return
	}
	var err error
	defer s.observe("deposit", time.Now(), &err)
	var o *lending.Obligation
	o, err = s.engine.Deposit(r.Context(), market, mint, req.Owner, req.Amount, opContext(r))
	writeResult(w, o, err)
}

func (s *Server) withdraw(w http.ResponseWriter, r *http.Request) {
	market, mint := chi.URLParam(r, "market"), chi.URLParam(r, "mint")
	var req amountRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	var err error
	defer s.observe("withdraw", time.Now(), &err)
	var o *lending.Obligation
	var amount uint64
	o, amount, err = s.engine.Withdraw(r.Context(), market, mint, req.Owner, req.Amount, opContext(r))
	if err != nil {
		writeJSONError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"obligation": o, "amount": amount})
}

func (s *Server) borrow(w http.ResponseWriter, r *http.Request) {
	market, mint := chi.URLParam(r, "market"), chi.URLParam(r, "mint")
	var req amountRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	if err := s.pauseView.guard(r.Context(), market); err != nil {
		writeJSONError(w, http.StatusServiceUnavailable, err)
		return
	}
	if err := s.quota.check(r.Context(), req.Owner, req.Amount); err != nil {
		writeJSONError(w, http.StatusTooManyRequests, err)
		return
	}
	var err error
	defer s.observe("borrow", time.Now(), &err)
	var o *lending.Obligation
	o, err = s.engine.Borrow(r.Context(), market, mint, req.Owner, req.Amount, opContext(r))
	writeResult(w, o, err)
}

type repayRequest struct {
	Owner  string `json:"owner"`
	Payer  string `json:"payer"`
	Amount uint64 `json:"amount"`
}

func (s *Server) repay(w http.ResponseWriter, r *http.Request) {
	market, mint := chi.URLParam(r, "market"), chi.URLParam(r, "mint")
	var req repayRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	if req.Payer == "" {
		req.Payer = req.Owner
	}
	var err error
	defer s.observe("repay", time.Now(), &err)
	var o *lending.Obligation
	var amount uint64
	o, amount, err = s.engine.Repay(r.Context(), market, mint, req.Owner, req.Payer, req.Amount, opContext(r))
	if err != nil {
		writeJSONError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"obligation": o, "amount": amount})
}

type liquidateRequest struct {
	RepayMint      string `json:"repay_mint"`
	CollateralMint string `json:"collateral_mint"`
	Owner          string `json:"owner"`
	Liquidator     string `json:"liquidator"`
	RepayAmount    uint64 `json:"repay_amount"`
}

func (s *Server) liquidate(w http.ResponseWriter, r *http.Request) {
	market := chi.URLParam(r, "market")
	var req liquidateRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	var err error
	defer s.observe("liquidate", time.Now(), &err)
	var o *lending.Obligation
	var result lending.LiquidationResult
	o, result, err = s.engine.Liquidate(r.Context(), market, req.RepayMint, req.CollateralMint, req.Owner, req.Liquidator, req.RepayAmount, opContext(r))
	if err != nil {
		writeJSONError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"obligation": o, "result": result})
}

func (s *Server) refreshReserve(w http.ResponseWriter, r *http.Request) {
	market, mint := chi.URLParam(r, "market"), chi.URLParam(r, "mint")
	oc := opContext(r)
	reserve, err := s.engine.RefreshReserve(r.Context(), market, mint, oc.Slot, oc.Timestamp)
	writeResult(w, reserve, err)
}

func (s *Server) refreshObligation(w http.ResponseWriter, r *http.Request) {
	market, owner := chi.URLParam(r, "market"), chi.URLParam(r, "owner")
	o, err := s.engine.RefreshObligation(r.Context(), market, owner, opContext(r).Slot)
	writeResult(w, o, err)
}

func (s *Server) getReserve(w http.ResponseWriter, r *http.Request) {
	market, mint := chi.URLParam(r, "market"), chi.URLParam(r, "mint")
	reserve, err := s.engine.GetReserve(r.Context(), market, mint)
	writeResult(w, reserve, err)
}

func (s *Server) getObligation(w http.ResponseWriter, r *http.Request) {
	market, owner := chi.URLParam(r, "market"), chi.URLParam(r, "owner")
	o, err := s.engine.GetObligation(r.Context(), market, owner)
	writeResult(w, o, err)
}

type initMarketRequest struct {
	Authority           string `json:"authority"`
	Treasury            string `json:"treasury"`
	CloseFactorBPS      uint32 `json:"close_factor_bps"`
	LiquidationBonusBPS uint32 `json:"liquidation_bonus_bps"`
	ProtocolFeeBPS      uint32 `json:"protocol_fee_bps"`
}

func (s *Server) initMarket(w http.ResponseWriter, r *http.Request) {
	var req initMarketRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	m, err := s.engine.InitMarket(r.Context(), lending.InitMarketParams{
		Authority: req.Authority, Treasury: req.Treasury,
		CloseFactorBPS: req.CloseFactorBPS, LiquidationBonusBPS: req.LiquidationBonusBPS, ProtocolFeeBPS: req.ProtocolFeeBPS,
	})
	writeResult(w, m, err)
}

func (s *Server) setEmergencyMode(w http.ResponseWriter, r *http.Request) {
	market := chi.URLParam(r, "market")
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	m, err := s.engine.SetEmergencyMode(r.Context(), market, req.Enabled)
	writeResult(w, m, err)
}

type initReserveRequest struct {
	TokenMint     string                `json:"token_mint"`
	TokenDecimals uint8                 `json:"token_decimals"`
	Vault         string                `json:"vault"`
	FeeReceiver   string                `json:"fee_receiver"`
	Oracle        string                `json:"oracle"`
	Config        lending.ReserveConfig `json:"config"`
}

func (s *Server) initReserve(w http.ResponseWriter, r *http.Request) {
	market := chi.URLParam(r, "market")
	var req initReserveRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	reserve, err := s.engine.InitReserve(r.Context(), lending.InitReserveParams{
		Market: market, TokenMint: req.TokenMint, TokenDecimals: req.TokenDecimals,
		Vault: req.Vault, FeeReceiver: req.FeeReceiver, Oracle: req.Oracle, Config: req.Config,
	})
	writeResult(w, reserve, err)
}

func (s *Server) updateReserveConfig(w http.ResponseWriter, r *http.Request) {
	market, mint := chi.URLParam(r, "market"), chi.URLParam(r, "mint")
	var cfg lending.ReserveConfig
	if err := decodeRequest(r, &cfg); err != nil {
		writeBadRequest(w, err)
		return
	}
	reserve, err := s.engine.UpdateReserveConfig(r.Context(), market, mint, cfg)
	writeResult(w, reserve, err)
}

func (s *Server) initObligation(w http.ResponseWriter, r *http.Request) {
	market, owner := chi.URLParam(r, "market"), chi.URLParam(r, "owner")
	o, err := s.engine.InitObligation(r.Context(), market, owner)
	writeResult(w, o, err)
}

func (s *Server) collectFees(w http.ResponseWriter, r *http.Request) {
	market, mint := chi.URLParam(r, "market"), chi.URLParam(r, "mint")
	var req struct {
		Amount uint64 `json:"amount"`
	}
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	collected, err := s.engine.CollectFees(r.Context(), market, mint, req.Amount)
	writeResult(w, map[string]uint64{"collected": collected}, err)
}

func decodeRequest(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

func writeResult(w http.ResponseWriter, v any, err error) {
	if err != nil {
		writeJSONError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeBadRequest(w http.ResponseWriter, err error) { writeJSONError(w, http.StatusBadRequest, err) }

func writeJSONError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	message := err.Error()
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// statusFor maps a lending sentinel error to the HTTP status the original
// program's RPC layer would have surfaced as an error code.
func statusFor(err error) int {
	switch {
	case errors.Is(err, lending.ErrConfigurationInvalid), errors.Is(err, lending.ErrAmountTooSmall):
		return http.StatusBadRequest
	case errors.Is(err, lending.ErrPermissionDenied), errors.Is(err, lending.ErrEmergencyModeActive):
		return http.StatusForbidden
	case errors.Is(err, lending.ErrReserveStale), errors.Is(err, lending.ErrOracleStale), errors.Is(err, lending.ErrOracleInvalid):
		return http.StatusConflict
	case errors.Is(err, lending.ErrPositionNotLiquidatable), errors.Is(err, lending.ErrHealthFactorTooLow), errors.Is(err, lending.ErrPositionUnhealthy):
		return http.StatusUnprocessableEntity
	case errors.Is(err, lending.ErrNoDepositFound), errors.Is(err, lending.ErrNoBorrowFound), errors.Is(err, lending.ErrNoCollateral):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
