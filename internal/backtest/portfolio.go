package backtest

import (
	"sort"
	"time"

	"github.com/co1onnese/DrummondGeometry-evals-sub003/internal/bar"
)

// portfolio tracks cash, open positions, and the equity curve for one
// deterministic run. All mutation happens on the single event-loop
// goroutine in engine.go; no locking is needed (spec §4.G reproducibility
// requires a single deterministic ordering, not concurrency).
type portfolio struct {
	cash      float64
	positions map[string]*Position // keyed by symbol; one open position per symbol
	trades    []Trade
	curve     []EquityPoint
	cfg       Config
}

func newPortfolio(cfg Config) *portfolio {
	return &portfolio{
		cash:      cfg.InitialCapital,
		positions: make(map[string]*Position),
		cfg:       cfg,
	}
}

// slip applies slippage adversely by trade direction, not by a fixed
// flag: a sell (long exit, short entry) always fills lower, a buy
// (long entry, short exit) always fills higher (spec §4.G steps 2, 7).
func slip(price, bps float64, sell bool) float64 {
	factor := bps / 10000.0
	if sell {
		return price * (1 - factor)
	}
	return price * (1 + factor)
}

// equity returns cash plus the signed value of open positions.
func (p *portfolio) equity() float64 {
	total := p.cash
	for _, pos := range p.positions {
		total += pos.currentValue
	}
	return total
}

// markToMarket updates each open position's floating value using the
// bar close at t (spec §4.G step 1).
func (p *portfolio) markToMarket(bars map[string]bar.Bar) {
	for sym, pos := range p.positions {
		b, ok := bars[sym]
		if !ok {
			continue
		}
		switch pos.Type {
		case PositionLong:
			pos.currentValue = pos.Shares * b.Close
		case PositionShort:
			// short exposure: cash received at entry, liability tracked
			// as negative mark against the current price.
			pos.currentValue = -pos.Shares * b.Close
		}
	}
}

// manageExits implements spec §4.G step 2: intrabar stop/target check
// with the conservative stop-first rule when both are within range.
func (p *portfolio) manageExits(t time.Time, bars map[string]bar.Bar) {
	for sym, pos := range p.positions {
		b, ok := bars[sym]
		if !ok {
			continue
		}
		hitStop, hitTarget := false, false
		switch pos.Type {
		case PositionLong:
			hitStop = b.Low <= pos.Stop
			hitTarget = b.High >= pos.Target
		case PositionShort:
			hitStop = b.High >= pos.Stop
			hitTarget = b.Low <= pos.Target
		}
		if !hitStop && !hitTarget {
			continue
		}
		level := pos.Target
		reason := ExitTarget
		if hitStop {
			level = pos.Stop
			reason = ExitStop
		}
		// closing a long is a sell; closing a short is a buy.
		fill := slip(level, p.cfg.SlippageBps, pos.Type == PositionLong)
		p.closePosition(sym, t, fill, reason)
	}
}

func (p *portfolio) closePosition(symbol string, exitTS time.Time, exitFill float64, reason ExitReason) {
	pos, ok := p.positions[symbol]
	if !ok {
		return
	}
	var gross float64
	switch pos.Type {
	case PositionLong:
		gross = (exitFill - pos.EntryFill) * pos.Shares
		p.cash += exitFill * pos.Shares
	case PositionShort:
		gross = (pos.EntryFill - exitFill) * pos.Shares
		p.cash -= exitFill * pos.Shares // short: proceeds credited at entry; buy the shares back
	}
	commission := (pos.EntryFill + exitFill) * pos.Shares * (p.cfg.CommissionBps / 10000.0)
	net := gross - commission
	notional := pos.EntryFill * pos.Shares
	var retPct float64
	if notional != 0 {
		retPct = net / notional * 100
	}
	p.trades = append(p.trades, Trade{
		Symbol:       symbol,
		Type:         pos.Type,
		EntryTS:      pos.EntryTS,
		ExitTS:       exitTS,
		EntryPrice:   pos.EntryFill,
		ExitPrice:    exitFill,
		PositionSize: pos.Shares,
		GrossPnL:     gross,
		NetPnL:       net,
		ReturnPct:    retPct,
		DurationHrs:  exitTS.Sub(pos.EntryTS).Hours(),
		SignalID:     pos.SignalID,
		ExitReason:   reason,
	})
	delete(p.positions, symbol)
}

// totalRiskRatio implements spec §4.G step 5's portfolio risk bound:
// sum of per-position risk divided by current equity.
func (p *portfolio) totalRiskRatio() float64 {
	eq := p.equity()
	if eq <= 0 {
		return 0
	}
	sum := 0.0
	for _, pos := range p.positions {
		sum += pos.riskAmount()
	}
	return sum / eq
}

// admitLong/admitShort implement spec §4.G steps 5-7: size the
// position against equity and per_trade_risk, reject on insufficient
// risk budget or sub-share sizing, and record the entry fill.
func (p *portfolio) admitLong(symbol string, entryTS time.Time, entry, stop, target float64, signalID string) bool {
	return p.admit(symbol, PositionLong, entryTS, entry, stop, target, signalID)
}

func (p *portfolio) admitShort(symbol string, entryTS time.Time, entry, stop, target float64, signalID string) bool {
	return p.admit(symbol, PositionShort, entryTS, entry, stop, target, signalID)
}

func (p *portfolio) admit(symbol string, typ PositionType, entryTS time.Time, entry, stop, target float64, signalID string) bool {
	if _, exists := p.positions[symbol]; exists {
		return false
	}
	if len(p.positions) >= p.cfg.MaxPositions {
		return false
	}
	risk := entry - stop
	if typ == PositionShort {
		risk = stop - entry
	}
	if risk <= 0 {
		return false
	}
	eq := p.equity()
	riskBudget := eq * p.cfg.PerTradeRisk
	shares := float64(int(riskBudget / risk))
	if shares < 1 {
		return false
	}

	positionRisk := risk * shares
	if (p.totalRiskRatio()*eq+positionRisk)/eq > p.cfg.MaxPortfolioRisk+1e-9 {
		return false
	}

	// opening a long is a buy; opening a short is a sell.
	fill := slip(entry, p.cfg.SlippageBps, typ == PositionShort)
	notional := fill * shares
	commission := notional * (p.cfg.CommissionBps / 10000.0)
	switch typ {
	case PositionLong:
		if notional+commission > p.cash {
			shares = float64(int((p.cash / (1 + p.cfg.CommissionBps/10000.0)) / fill))
			if shares < 1 {
				return false
			}
			notional = fill * shares
			commission = notional * (p.cfg.CommissionBps / 10000.0)
		}
		p.cash -= notional + commission
	case PositionShort:
		p.cash += notional - commission
	}

	value := fill * shares
	if typ == PositionShort {
		value = -value
	}
	p.positions[symbol] = &Position{
		Symbol:       symbol,
		Type:         typ,
		EntryTS:      entryTS,
		EntryFill:    fill,
		Stop:         stop,
		Target:       target,
		Shares:       shares,
		SignalID:     signalID,
		currentValue: value,
	}
	return true
}

// closeAllAtEnd force-closes remaining positions at the last available
// close price, used when the event loop runs out of timestamps.
func (p *portfolio) closeAllAtEnd(t time.Time, bars map[string]bar.Bar) {
	symbols := make([]string, 0, len(p.positions))
	for sym := range p.positions {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	for _, sym := range symbols {
		b, ok := bars[sym]
		if !ok {
			continue
		}
		p.closePosition(sym, t, b.Close, ExitEnd)
	}
}

func (p *portfolio) recordEquity(t time.Time) {
	p.curve = append(p.curve, EquityPoint{Timestamp: t, Equity: p.equity()})
}
