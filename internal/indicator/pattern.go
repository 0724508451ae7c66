package indicator

import (
	"math"

	"github.com/co1onnese/DrummondGeometry-evals-sub003/internal/bar"
)

// PatternConfig carries the pattern-detector thresholds (spec §4.C.4).
// The spec treats these as tunable parameters without universal
// defaults (Open Questions); the values below are this implementation's
// chosen defaults.
type PatternConfig struct {
	PushMinBars            int     // default 3
	RefreshMinExtensionPct float64 // default 0.02
	ExhaustMinExtensionPct float64 // default 0.04
	ExhaustReversalPct     float64 // default 0.005
	OscillationMinBars     int     // default 4
	CWaveMinBars           int     // default 3
}

func DefaultPatternConfig() PatternConfig {
	return PatternConfig{
		PushMinBars:            3,
		RefreshMinExtensionPct: 0.02,
		ExhaustMinExtensionPct: 0.04,
		ExhaustReversalPct:     0.005,
		OscillationMinBars:     4,
		CWaveMinBars:           3,
	}
}

type alignedBar struct {
	b     bar.Bar
	dot   PLdotPoint
	band  Band
	state State
}

// align pairs each bar with the dot and band projected onto it (their
// ProjectionTimestamp equals the bar's timestamp) and the bar's own
// state, the same convention the state classifier and bundle use.
func align(bars []bar.Bar, dots []PLdotPoint, bands []Band, states []State) []alignedBar {
	dotAt := make(map[int64]PLdotPoint, len(dots))
	for _, d := range dots {
		dotAt[d.ProjectionTimestamp.Unix()] = d
	}
	bandAt := make(map[int64]Band, len(bands))
	for _, bd := range bands {
		bandAt[bd.Timestamp.Unix()] = bd
	}
	stateAt := make(map[int64]State, len(states))
	for _, s := range states {
		stateAt[s.Timestamp.Unix()] = s
	}
	var out []alignedBar
	for _, b := range bars {
		key := b.Timestamp.Unix()
		dot, ok1 := dotAt[key]
		bd, ok2 := bandAt[key]
		st, ok3 := stateAt[key]
		if !ok1 || !ok2 || !ok3 {
			continue
		}
		out = append(out, alignedBar{b: b, dot: dot, band: bd, state: st})
	}
	return out
}

// extension returns (close-dot)/dot, signed.
func (a alignedBar) extension() float64 {
	if a.dot.Value == 0 {
		return 0
	}
	return (a.b.Close - a.dot.Value) / a.dot.Value
}

// outsideEnvelope reports whether the close is beyond the band, and on
// which side (+1 above upper, -1 below lower, 0 inside).
func (a alignedBar) outsideEnvelope() int {
	if a.b.Close > a.band.Upper {
		return 1
	}
	if a.b.Close < a.band.Lower {
		return -1
	}
	return 0
}

// DetectPatterns scans the aligned bar/dot/band/state series and emits
// one event per qualifying window (spec §4.C.4).
func DetectPatterns(bars []bar.Bar, dots []PLdotPoint, bands []Band, states []State, cfg PatternConfig) []PatternEvent {
	if cfg.PushMinBars == 0 {
		cfg = DefaultPatternConfig()
	}
	rows := align(bars, dots, bands, states)
	var events []PatternEvent

	events = append(events, detectPush(rows, cfg)...)
	events = append(events, detectRefresh(rows, cfg)...)
	events = append(events, detectExhaust(rows, cfg)...)
	events = append(events, detectCWave(rows, cfg)...)
	events = append(events, detectOscillation(rows, cfg)...)
	return events
}

func detectPush(rows []alignedBar, cfg PatternConfig) []PatternEvent {
	var out []PatternEvent
	i := 0
	for i < len(rows) {
		side := rows[i].outsideEnvelope()
		dir := 0
		switch rows[i].state.Direction {
		case Up:
			dir = 1
		case Down:
			dir = -1
		}
		if side == 0 || side != dir {
			i++
			continue
		}
		j := i
		breaches := []float64{}
		for j < len(rows) && rows[j].outsideEnvelope() == side {
			d := 0
			switch rows[j].state.Direction {
			case Up:
				d = 1
			case Down:
				d = -1
			}
			if d != side {
				break
			}
			breaches = append(breaches, rows[j].extension())
			j++
		}
		n := j - i
		if n >= cfg.PushMinBars {
			out = append(out, PatternEvent{
				Kind:      PldotPush,
				Direction: side,
				Start:     rows[i].b.Timestamp,
				End:       rows[j-1].b.Timestamp,
				Strength:  n,
				Metadata:  map[string]any{"breach_sizes": breaches},
			})
		}
		i = j
	}
	return out
}

func detectRefresh(rows []alignedBar, cfg PatternConfig) []PatternEvent {
	var out []PatternEvent
	for i := 1; i < len(rows); i++ {
		prevExt := rows[i-1].extension()
		curExt := rows[i].extension()
		if math.Abs(prevExt) < cfg.RefreshMinExtensionPct {
			continue
		}
		sameSign := (prevExt > 0 && curExt > 0) || (prevExt < 0 && curExt < 0)
		if !sameSign {
			continue
		}
		if math.Abs(curExt) >= math.Abs(prevExt) {
			continue // not converging
		}
		rate := (math.Abs(prevExt) - math.Abs(curExt)) / math.Abs(prevExt)
		dir := 1
		if prevExt < 0 {
			dir = -1
		}
		out = append(out, PatternEvent{
			Kind:      PldotRefresh,
			Direction: dir,
			Start:     rows[i-1].b.Timestamp,
			End:       rows[i].b.Timestamp,
			Strength:  int(math.Round(math.Abs(prevExt) * 100)),
			Metadata: map[string]any{
				"max_extension_pct": prevExt,
				"convergence_rate":  rate,
			},
		})
	}
	return out
}

func detectExhaust(rows []alignedBar, cfg PatternConfig) []PatternEvent {
	var out []PatternEvent
	for i := 0; i+1 < len(rows); i++ {
		cur, next := rows[i], rows[i+1]
		side := cur.outsideEnvelope()
		if side == 0 {
			continue
		}
		var extBeyond float64
		if side == 1 {
			extBeyond = (cur.b.Close - cur.band.Upper) / cur.band.Upper
		} else {
			extBeyond = (cur.band.Lower - cur.b.Close) / cur.band.Lower
		}
		if extBeyond < cfg.ExhaustMinExtensionPct {
			continue
		}
		move := 0.0
		if cur.b.Close != 0 {
			move = (next.b.Close - cur.b.Close) / cur.b.Close
		}
		reversed := (side == 1 && move <= -cfg.ExhaustReversalPct) || (side == -1 && move >= cfg.ExhaustReversalPct)
		if !reversed {
			continue
		}
		out = append(out, PatternEvent{
			Kind:      Exhaust,
			Direction: -side,
			Start:     cur.b.Timestamp,
			End:       next.b.Timestamp,
			Strength:  int(math.Round(extBeyond * 100)),
			Metadata:  map[string]any{"extension_beyond_envelope_pct": extBeyond, "reversal_pct": move},
		})
	}
	return out
}

func detectCWave(rows []alignedBar, cfg PatternConfig) []PatternEvent {
	var out []PatternEvent
	i := 0
	for i < len(rows) {
		dir := rows[i].state.Direction
		if dir == Neutral {
			i++
			continue
		}
		side := 1
		if dir == Down {
			side = -1
		}
		j := i
		for j < len(rows) {
			r := rows[j]
			if r.state.Direction != dir {
				break
			}
			if j > i {
				prevCenter := rows[j-1].band.Center
				if side == 1 && r.band.Center <= prevCenter {
					break
				}
				if side == -1 && r.band.Center >= prevCenter {
					break
				}
			}
			atEdge := (side == 1 && r.b.Close >= r.band.Upper) || (side == -1 && r.b.Close <= r.band.Lower)
			if !atEdge {
				break
			}
			j++
		}
		n := j - i
		if n >= cfg.CWaveMinBars {
			out = append(out, PatternEvent{
				Kind:      CWave,
				Direction: side,
				Start:     rows[i].b.Timestamp,
				End:       rows[j-1].b.Timestamp,
				Strength:  n,
				Metadata:  map[string]any{"boundary": "band_center"},
			})
			i = j
			continue
		}
		i++
	}
	return out
}

func detectOscillation(rows []alignedBar, cfg PatternConfig) []PatternEvent {
	var out []PatternEvent
	i := 0
	for i < len(rows) {
		if !rows[i].state.Kind.IsCongestion() {
			i++
			continue
		}
		j := i
		lastSide := 0
		alternations := 0
		for j < len(rows) && rows[j].state.Kind.IsCongestion() {
			if rows[j].outsideEnvelope() != 0 {
				break
			}
			side := 1
			if rows[j].b.Close < rows[j].dot.Value {
				side = -1
			}
			if j > i {
				if side == lastSide {
					break
				}
				alternations++
			}
			lastSide = side
			j++
		}
		n := j - i
		if n >= cfg.OscillationMinBars && alternations >= n-1 {
			out = append(out, PatternEvent{
				Kind:      CongestionOscillation,
				Direction: 0,
				Start:     rows[i].b.Timestamp,
				End:       rows[j-1].b.Timestamp,
				Strength:  n,
				Metadata:  map[string]any{"alternations": alternations},
			})
			i = j
			continue
		}
		i++
	}
	return out
}
