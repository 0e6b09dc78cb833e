package ledger

import (
	fpmath "PaperFolio/internal/math"
)

// Performance holds aggregate statistics over a trade history. It is always
// recomputed from the full history, never incrementally patched. Money
// fields are quote-scale fixed point; ratio fields are derived display
// values computed once at the end of aggregation.
type Performance struct {
	TotalTrades   int // Number of realized (closing) samples
	WinningTrades int
	LosingTrades  int
	WinRate       float64 // Percent

	AverageWin  int64 // Quote scale, positive magnitude
	AverageLoss int64 // Quote scale, positive magnitude
	LargestWin  int64 // Quote scale
	LargestLoss int64 // Quote scale, positive magnitude

	ProfitFactor float64 // Gross wins / gross losses

	TotalReturn        int64 // Quote scale, sum of realized samples
	TotalReturnPercent float64
	TotalFees          int64 // Quote scale
	TotalVolume        int64 // Quote scale, sum of quantity*price

	MaxDrawdown     float64 // Percent of peak equity
	CurrentDrawdown float64 // Percent of peak equity
}

// aggregate builds Performance from chronological realized samples.
func aggregate(samples []RealizedSample, totalFees, totalVolume, initialBalance int64) Performance {
	p := Performance{
		TotalTrades: len(samples),
		TotalFees:   totalFees,
		TotalVolume: totalVolume,
	}

	var grossWins, grossLosses int64

	// Equity curve over realized samples only; unrealized P&L never enters
	// drawdown here.
	equity := initialBalance
	peak := initialBalance

	for _, s := range samples {
		if s.IsWin() {
			p.WinningTrades++
			grossWins += s.PnL
			if s.PnL > p.LargestWin {
				p.LargestWin = s.PnL
			}
		} else {
			p.LosingTrades++
			grossLosses += -s.PnL
			if -s.PnL > p.LargestLoss {
				p.LargestLoss = -s.PnL
			}
		}

		p.TotalReturn += s.PnL
		equity += s.PnL
		if equity > peak {
			peak = equity
		}
		if peak > 0 {
			dd := 100 * float64(peak-equity) / float64(peak)
			if dd > p.MaxDrawdown {
				p.MaxDrawdown = dd
			}
		}
	}

	if peak > 0 {
		p.CurrentDrawdown = 100 * float64(peak-equity) / float64(peak)
	}

	if p.WinningTrades > 0 {
		p.AverageWin = fpmath.DivRounded(grossWins, int64(p.WinningTrades))
	}
	if p.LosingTrades > 0 {
		p.AverageLoss = fpmath.DivRounded(grossLosses, int64(p.LosingTrades))
	}
	if p.TotalTrades > 0 {
		p.WinRate = 100 * float64(p.WinningTrades) / float64(p.TotalTrades)
	}

	switch {
	case grossLosses > 0:
		p.ProfitFactor = float64(grossWins) / float64(grossLosses)
	case grossWins > 0:
		// No losses: report gross wins in quote units as the factor.
		p.ProfitFactor = float64(grossWins) / float64(fpmath.QuoteConfig.Scale)
	default:
		p.ProfitFactor = 0
	}

	if initialBalance > 0 {
		p.TotalReturnPercent = 100 * float64(p.TotalReturn) / float64(initialBalance)
	}

	return p
}
