package oracle

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"radiantcore/lending/fixedpoint"
)

func usd(v uint64) fixedpoint.U256 { return fixedpoint.FromUint64(v * fixedpoint.USDScale) }

func TestAggregatorMedianOfOddFeeds(t *testing.T) {
	a := NewAggregator(0, 0)
	a.Publish("oracle-sol", "feed-a", usd(98), 10)
	a.Publish("oracle-sol", "feed-b", usd(100), 11)
	a.Publish("oracle-sol", "feed-c", usd(102), 12)

	price, err := a.PriceUSD(context.Background(), "oracle-sol")
	require.NoError(t, err)
	require.Equal(t, 0, price.PriceUSD.Cmp(usd(100)))
}

func TestAggregatorMedianOfEvenFeedsAverages(t *testing.T) {
	a := NewAggregator(0, 0)
	a.Publish("oracle-sol", "feed-a", usd(98), 10)
	a.Publish("oracle-sol", "feed-b", usd(100), 11)

	price, err := a.PriceUSD(context.Background(), "oracle-sol")
	require.NoError(t, err)
	require.Equal(t, 0, price.PriceUSD.Cmp(usd(99)))
}

func TestAggregatorUnknownOracleIsInvalid(t *testing.T) {
	a := NewAggregator(0, 0)
	_, err := a.PriceUSD(context.Background(), "missing")
	require.Error(t, err)
}

func TestAggregatorDeviationCapDropsOutlier(t *testing.T) {
	a := NewAggregator(500, 0) // 5%
	a.Publish("oracle-sol", "feed-a", usd(100), 10)
	a.Publish("oracle-sol", "feed-b", usd(100), 10)
	a.Publish("oracle-sol", "feed-c", usd(1_000), 10) // wildly off, should be dropped

	price, err := a.PriceUSD(context.Background(), "oracle-sol")
	require.NoError(t, err)
	require.Equal(t, 0, price.PriceUSD.Cmp(usd(100)))
}

func TestAggregatorDeviationCapRejectsWhenAllFeedsOutliers(t *testing.T) {
	a := NewAggregator(500, 0)
	a.Publish("oracle-sol", "feed-a", usd(100), 10)
	a.Publish("oracle-sol", "feed-b", usd(1_000), 10)

	_, err := a.PriceUSD(context.Background(), "oracle-sol")
	require.Error(t, err)
}

func TestAggregatorBreakerRejectsLargeMoveFromLastAccepted(t *testing.T) {
	a := NewAggregator(0, 500) // 5% breaker
	a.Publish("oracle-sol", "feed-a", usd(100), 10)
	_, err := a.PriceUSD(context.Background(), "oracle-sol")
	require.NoError(t, err)

	a.Publish("oracle-sol", "feed-a", usd(200), 11)
	_, err = a.PriceUSD(context.Background(), "oracle-sol")
	require.Error(t, err)
}
