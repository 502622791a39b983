package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"radiantcore/internal/custody"
	"radiantcore/internal/oracle"
	"radiantcore/lending"
	"radiantcore/lending/fixedpoint"
	"radiantcore/lending/interest"
	"radiantcore/lending/persist"
)

func newTestServer(t *testing.T) (*httptest.Server, *oracle.Aggregator, *custody.Ledger) {
	t.Helper()
	dir := t.TempDir()
	store, err := persist.Open(filepath.Join(dir, "state"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ledger, err := custody.Open(filepath.Join(dir, "custody"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = ledger.Close() })

	agg := oracle.NewAggregator(0, 0)
	engine := lending.NewEngine(store, ledger, agg, lending.NoopEmitter{}, nil)

	_, handler := NewServer(Config{Engine: engine, Events: NewEventHub()})
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv, agg, ledger
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func TestServerHealthz(t *testing.T) {
	srv, _, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServerDepositAndGetObligationFlow(t *testing.T) {
	srv, agg, ledger := newTestServer(t)
	require.NoError(t, ledger.Credit(context.Background(), "owner-1", 10_000))

	resp := postJSON(t, srv.URL+"/v1/markets", initMarketRequest{Authority: "authority-1", Treasury: "treasury-1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, srv.URL+"/v1/markets/authority-1/reserves", initReserveRequest{
		TokenMint: "mint-usdc", TokenDecimals: 6, Vault: "vault-usdc", FeeReceiver: "fees-usdc", Oracle: "oracle-usdc",
		Config: lending.ReserveConfig{
			LTVBPS: 8_000, LiquidationThresholdBPS: 8_500,
			InterestRateConfig: interest.DefaultConfig, DepositsEnabled: true, BorrowsEnabled: true,
		},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	agg.Publish("oracle-usdc", "feed-a", fixedpoint.FromUint64(fixedpoint.USDScale), 0)

	resp = postJSON(t, srv.URL+"/v1/markets/authority-1/reserves/mint-usdc/deposit", amountRequest{Owner: "owner-1", Amount: 1_000})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var depositOut lending.Obligation
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&depositOut))
	resp.Body.Close()
	require.Len(t, depositOut.Deposits, 1)
	require.Equal(t, 0, depositOut.Deposits[0].DepositedAmount.Cmp(fixedpoint.FromUint64(1_000)))

	resp, err := http.Get(srv.URL + "/v1/markets/authority-1/obligations/owner-1")
	require.NoError(t, err)
	var obligationOut lending.Obligation
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&obligationOut))
	resp.Body.Close()
	require.Len(t, obligationOut.Deposits, 1)
}

func TestServerDepositRejectsBadJSON(t *testing.T) {
	srv, _, _ := newTestServer(t)
	resp, err := http.Post(srv.URL+"/v1/markets/authority-1/reserves/mint-usdc/deposit", "application/json", bytes.NewReader([]byte("{not json")))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServerGetObligationNotFoundMapsToBadRequest(t *testing.T) {
	srv, _, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/v1/markets/authority-1/obligations/owner-missing")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
