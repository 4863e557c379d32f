package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paperTrader/internal/domain"
)

func execTrade(pf *domain.Portfolio, side domain.OrderSide, qty, price string) *domain.Trade {
	t := &domain.Trade{
		PortfolioID:  pf.ID,
		InstrumentID: "AAPL",
		Symbol:       "AAPL",
		Side:         side,
		Quantity:     dec(qty),
		Price:        dec(price),
		ExecutedAt:   t0,
		Sequence:     pf.NextSequence(),
	}
	t.TotalAmount = t.Quantity.Mul(t.Price)
	applyTrade(pf, t, t0)
	return t
}

func TestApplyTrade_WeightedAverageCost(t *testing.T) {
	pf := domain.NewPortfolio("p1", "test", dec("10000"), t0)
	execTrade(pf, domain.Buy, "10", "100")
	execTrade(pf, domain.Buy, "10", "120")

	pos := pf.Position("AAPL")
	require.NotNil(t, pos)
	assertDec(t, "20", pos.Quantity)
	assertDec(t, "110", pos.AverageEntryPrice)
	assert.Len(t, pf.Trades, 2)
}

func TestApplyTrade_RoundTripClosesPosition(t *testing.T) {
	pf := domain.NewPortfolio("p1", "test", dec("10000"), t0)
	execTrade(pf, domain.Buy, "10", "100")
	sell := execTrade(pf, domain.Sell, "10", "100")

	assert.Nil(t, pf.Position("AAPL"))
	assert.Empty(t, pf.Positions)
	assert.True(t, sell.Reducing)
	assertDec(t, "0", sell.RealizedPnL)
	assert.Len(t, pf.Trades, 2, "closing trade stays in history")
}

func TestApplyTrade_PartialReduceKeepsAverage(t *testing.T) {
	pf := domain.NewPortfolio("p1", "test", dec("10000"), t0)
	execTrade(pf, domain.Buy, "10", "100")
	sell := execTrade(pf, domain.Sell, "4", "130")

	pos := pf.Position("AAPL")
	require.NotNil(t, pos)
	assertDec(t, "6", pos.Quantity)
	assertDec(t, "100", pos.AverageEntryPrice)
	assertDec(t, "120", sell.RealizedPnL)
	assertDec(t, "120", pos.RealizedPnL)
}

func TestApplyTrade_ShortCoverRealizesInvertedPnL(t *testing.T) {
	pf := domain.NewPortfolio("p1", "test", dec("10000"), t0)
	execTrade(pf, domain.Sell, "5", "100")
	pos := pf.Position("AAPL")
	require.NotNil(t, pos)
	assert.Equal(t, domain.Short, pos.Side())

	cover := execTrade(pf, domain.Buy, "5", "90")
	assertDec(t, "50", cover.RealizedPnL)
	assert.Nil(t, pf.Position("AAPL"))
}

func TestApplyTrade_FlipToShort(t *testing.T) {
	pf := domain.NewPortfolio("p1", "test", dec("10000"), t0)
	execTrade(pf, domain.Buy, "5", "100")
	flip := execTrade(pf, domain.Sell, "8", "110")

	pos := pf.Position("AAPL")
	require.NotNil(t, pos)
	assertDec(t, "-3", pos.Quantity)
	assertDec(t, "110", pos.AverageEntryPrice)
	assertDec(t, "50", flip.RealizedPnL, "only the matched 5 realize P&L")
}

func TestApplyTrade_CashMovesByNetAmount(t *testing.T) {
	pf := domain.NewPortfolio("p1", "test", dec("10000"), t0)
	execTrade(pf, domain.Buy, "10", "100")
	assertDec(t, "9000", pf.CashBalance)

	sell := &domain.Trade{InstrumentID: "AAPL", Symbol: "AAPL", Side: domain.Sell, Quantity: dec("5"), Price: dec("110"),
		TotalAmount: dec("550"), Commission: dec("0.55"), Sequence: pf.NextSequence()}
	applyTrade(pf, sell, t0)
	assertDec(t, "9549.45", pf.CashBalance)
}
