package backtest

import (
	"math"
	"sort"
)

func meanOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func stddevOf(xs []float64, mean float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	sumSq := 0.0
	for _, x := range xs {
		d := x - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(xs)-1))
}

// downsideDeviation uses zero as the minimum acceptable return, per
// the conventional Sortino definition.
func downsideDeviation(xs []float64) float64 {
	var sumSq float64
	var n int
	for _, x := range xs {
		if x < 0 {
			sumSq += x * x
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return math.Sqrt(sumSq / float64(n))
}

// periodsPerYear estimates the bar frequency from the equity curve's
// average timestamp spacing, for Sharpe/Sortino annualization (spec
// §4.G: "annualized by sqrt(bars_per_year)").
func periodsPerYear(curve []EquityPoint) float64 {
	if len(curve) < 2 {
		return 252
	}
	totalSeconds := curve[len(curve)-1].Timestamp.Sub(curve[0].Timestamp).Seconds()
	if totalSeconds <= 0 {
		return 252
	}
	avgStep := totalSeconds / float64(len(curve)-1)
	if avgStep <= 0 {
		return 252
	}
	return (365 * 24 * 3600) / avgStep
}

// maxDrawdown returns the largest peak-to-trough decline (as a
// fraction, not a percent) and the number of days from peak to trough.
func maxDrawdown(curve []EquityPoint) (float64, float64) {
	if len(curve) == 0 {
		return 0, 0
	}
	peak := curve[0].Equity
	peakIdx := 0
	maxDD := 0.0
	maxDDDays := 0.0
	for i, pt := range curve {
		if pt.Equity > peak {
			peak = pt.Equity
			peakIdx = i
		}
		if peak <= 0 {
			continue
		}
		dd := (peak - pt.Equity) / peak
		if dd > maxDD {
			maxDD = dd
			maxDDDays = curve[i].Timestamp.Sub(curve[peakIdx].Timestamp).Hours() / 24
		}
	}
	return maxDD, maxDDDays
}

// historicalVaR returns the 95% historical VaR and CVaR (as fractions)
// of a per-period return distribution: the 5th percentile loss, and the
// mean of all observations at or below it.
func historicalVaR(returns []float64) (float64, float64) {
	if len(returns) == 0 {
		return 0, 0
	}
	sorted := append([]float64(nil), returns...)
	sort.Float64s(sorted)
	idx := int(math.Floor(0.05 * float64(len(sorted))))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	varValue := -sorted[idx]
	tail := sorted[:idx+1]
	cvar := -meanOf(tail)
	return varValue, cvar
}

func computeMetrics(curve []EquityPoint, trades []Trade, cfg Config) Metrics {
	if len(curve) == 0 {
		return Metrics{}
	}
	initial := cfg.InitialCapital
	final := curve[len(curve)-1].Equity

	var totalReturnPct float64
	if initial != 0 {
		totalReturnPct = (final - initial) / initial * 100
	}

	returns := make([]float64, 0, len(curve))
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Equity
		if prev == 0 {
			continue
		}
		returns = append(returns, curve[i].Equity/prev-1)
	}
	mean := meanOf(returns)
	std := stddevOf(returns, mean)
	downside := downsideDeviation(returns)
	ppy := periodsPerYear(curve)

	var annualized float64
	days := curve[len(curve)-1].Timestamp.Sub(curve[0].Timestamp).Hours() / 24
	if initial > 0 && final > 0 && days > 0 {
		annualized = (math.Pow(final/initial, 365/days) - 1) * 100
	}

	var sharpe, sortino float64
	if std > 0 {
		sharpe = mean / std * math.Sqrt(ppy)
	}
	if downside > 0 {
		sortino = mean / downside * math.Sqrt(ppy)
	}

	maxDD, maxDDDays := maxDrawdown(curve)
	var calmar float64
	if maxDD > 0 {
		calmar = (annualized / 100) / maxDD
	}

	var wins, losses int
	var grossWin, grossLoss float64
	for _, tr := range trades {
		if tr.NetPnL > 0 {
			wins++
			grossWin += tr.NetPnL
		} else if tr.NetPnL < 0 {
			losses++
			grossLoss += -tr.NetPnL
		}
	}
	var winRate, profitFactor, avgWin, avgLoss float64
	if len(trades) > 0 {
		winRate = float64(wins) / float64(len(trades))
	}
	if grossLoss > 0 {
		profitFactor = grossWin / grossLoss
	}
	if wins > 0 {
		avgWin = grossWin / float64(wins)
	}
	if losses > 0 {
		avgLoss = grossLoss / float64(losses)
	}

	varValue, cvarValue := historicalVaR(returns)

	return Metrics{
		TotalReturnPct:     totalReturnPct,
		AnnualizedReturn:   annualized,
		Sharpe:             sharpe,
		Sortino:            sortino,
		Calmar:             calmar,
		MaxDrawdownPct:     maxDD * 100,
		MaxDrawdownDaysNum: maxDDDays,
		WinRate:            winRate,
		ProfitFactor:       profitFactor,
		AvgWin:             avgWin,
		AvgLoss:            avgLoss,
		VaR95:              varValue * 100,
		CVaR95:             cvarValue * 100,
	}
}
