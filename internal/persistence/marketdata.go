package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/co1onnese/DrummondGeometry-evals-sub003/internal/bar"
	"github.com/co1onnese/DrummondGeometry-evals-sub003/internal/bundle"
	"github.com/co1onnese/DrummondGeometry-evals-sub003/internal/coordinator"
	"github.com/co1onnese/DrummondGeometry-evals-sub003/internal/indicator"
)

// SymbolRecord is the market_symbols logical row (spec §6). Symbols are
// stored as bare tickers; the exchange suffix belongs to the transport
// boundary only.
type SymbolRecord struct {
	SymbolID        string   `json:"symbol_id" db:"symbol_id"`
	Symbol          string   `json:"symbol" db:"symbol"`
	Exchange        string   `json:"exchange" db:"exchange"`
	IsActive        bool     `json:"is_active" db:"is_active"`
	IndexMembership []string `json:"index_membership" db:"index_membership"`
}

// BarRecord is the bars logical row, unique on (symbol, interval,
// timestamp).
type BarRecord struct {
	Symbol        string    `json:"symbol" db:"symbol"`
	Interval      string    `json:"interval" db:"interval"`
	Timestamp     time.Time `json:"timestamp" db:"timestamp"`
	Open          float64   `json:"o" db:"o"`
	High          float64   `json:"h" db:"h"`
	Low           float64   `json:"l" db:"l"`
	Close         float64   `json:"c" db:"c"`
	Volume        float64   `json:"v" db:"v"`
	IsProvisional bool      `json:"is_provisional" db:"is_provisional"`
}

// PLdotRecord is the pldot logical row, unique on (symbol, interval,
// projection_timestamp).
type PLdotRecord struct {
	Symbol       string    `json:"symbol" db:"symbol"`
	Interval     string    `json:"interval" db:"interval"`
	ProjectionTS time.Time `json:"projection_timestamp" db:"projection_timestamp"`
	Value        float64   `json:"value" db:"value"`
	IsProjected  bool      `json:"is_projected" db:"is_projected"`
}

// EnvelopeRecord is the envelope logical row.
type EnvelopeRecord struct {
	Symbol    string    `json:"symbol" db:"symbol"`
	Interval  string    `json:"interval" db:"interval"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
	Upper     float64   `json:"upper" db:"upper"`
	Lower     float64   `json:"lower" db:"lower"`
	Center    float64   `json:"center" db:"center"`
	Method    string    `json:"method" db:"method"`
}

// MarketStateRecord is the market_states logical row.
type MarketStateRecord struct {
	Symbol         string    `json:"symbol" db:"symbol"`
	Interval       string    `json:"interval" db:"interval"`
	Timestamp      time.Time `json:"timestamp" db:"timestamp"`
	State          string    `json:"state" db:"state"`
	TrendDirection string    `json:"trend_direction" db:"trend_direction"`
	BarsInState    int       `json:"bars_in_state" db:"bars_in_state"`
	SlopeTrend     string    `json:"slope_trend" db:"slope_trend"`
	Confidence     float64   `json:"confidence" db:"confidence"`
}

// PatternEventRecord is the pattern_events logical row.
type PatternEventRecord struct {
	Symbol      string                 `json:"symbol" db:"symbol"`
	Interval    string                 `json:"interval" db:"interval"`
	PatternType string                 `json:"pattern_type" db:"pattern_type"`
	Direction   int                    `json:"direction" db:"direction"`
	StartTS     time.Time              `json:"start_ts" db:"start_ts"`
	EndTS       time.Time              `json:"end_ts" db:"end_ts"`
	Strength    int                    `json:"strength" db:"strength"`
	Metadata    map[string]interface{} `json:"metadata" db:"metadata"`
}

// AnalysisRow is the multi_timeframe_analysis logical row, unique on
// (symbol, HTF, TTF, timestamp).
type AnalysisRow struct {
	AnalysisID           string    `json:"analysis_id" db:"analysis_id"`
	Symbol               string    `json:"symbol" db:"symbol"`
	HTF                  string    `json:"htf" db:"htf"`
	TTF                  string    `json:"ttf" db:"ttf"`
	Timestamp            time.Time `json:"timestamp" db:"timestamp"`
	HTFTrend             string    `json:"htf_trend" db:"htf_trend"`
	HTFStrength          float64   `json:"htf_strength" db:"htf_strength"`
	TTFTrend             string    `json:"ttf_trend" db:"ttf_trend"`
	AlignmentScore       float64   `json:"alignment_score" db:"alignment_score"`
	AlignmentType        string    `json:"alignment_type" db:"alignment_type"`
	TradePermitted       bool      `json:"trade_permitted" db:"trade_permitted"`
	HTFPLdot             float64   `json:"htf_pldot" db:"htf_pldot"`
	TTFPLdot             float64   `json:"ttf_pldot" db:"ttf_pldot"`
	PLdotDistancePercent float64   `json:"pldot_distance_percent" db:"pldot_distance_percent"`
	SignalStrength       float64   `json:"signal_strength" db:"signal_strength"`
	RiskLevel            string    `json:"risk_level" db:"risk_level"`
	RecommendedAction    string    `json:"recommended_action" db:"recommended_action"`
	PatternConfluence    bool      `json:"pattern_confluence" db:"pattern_confluence"`
}

// ConfluenceZoneRecord is the confluence_zones logical row, owned by
// one multi_timeframe_analysis row.
type ConfluenceZoneRecord struct {
	AnalysisID string    `json:"analysis_id" db:"analysis_id"`
	Symbol     string    `json:"symbol" db:"symbol"`
	Level      float64   `json:"level" db:"level"`
	Upper      float64   `json:"upper" db:"upper"`
	Lower      float64   `json:"lower" db:"lower"`
	Strength   int       `json:"strength" db:"strength"`
	Timeframes []string  `json:"timeframes" db:"timeframes"`
	ZoneType   string    `json:"zone_type" db:"zone_type"`
	FirstTouch time.Time `json:"first_touch" db:"first_touch"`
	LastTouch  time.Time `json:"last_touch" db:"last_touch"`
}

// SymbolsRepo persists market_symbols rows.
type SymbolsRepo interface {
	UpsertSymbols(ctx context.Context, symbols []SymbolRecord) error
	ListActive(ctx context.Context) ([]SymbolRecord, error)
}

// IndicatorsRepo persists the four indicator table families. Each Save
// is an idempotent upsert on the table's natural key, so recomputing a
// window after new bars arrive overwrites rather than duplicates.
type IndicatorsRepo interface {
	SavePLdots(ctx context.Context, records []PLdotRecord) error
	SaveEnvelopes(ctx context.Context, records []EnvelopeRecord) error
	SaveMarketStates(ctx context.Context, records []MarketStateRecord) error
	SavePatternEvents(ctx context.Context, records []PatternEventRecord) error
}

// AnalysisRepo persists multi_timeframe_analysis rows together with
// their confluence_zones children in one transaction.
type AnalysisRepo interface {
	SaveAnalysis(ctx context.Context, row AnalysisRow, zones []ConfluenceZoneRecord) error
}

// MarketDataWriter persists a materialized bundle's indicator series
// and the analysis records produced from it. Both repos are optional;
// a nil repo turns that half of the writer into a no-op, so callers
// can run with runs/signals persistence only.
type MarketDataWriter struct {
	Indicators IndicatorsRepo
	Analyses   AnalysisRepo
}

// PersistBundle writes the bundle's PLdot, envelope, market-state, and
// pattern-event series to their §6 tables.
func (w MarketDataWriter) PersistBundle(ctx context.Context, b *bundle.Bundle) error {
	if w.Indicators == nil {
		return nil
	}
	if err := w.Indicators.SavePLdots(ctx, FromPLdots(b.Symbol, b.Interval, b.PLdots)); err != nil {
		return fmt.Errorf("persist pldots for %s %s: %w", b.Symbol, b.Interval, err)
	}
	if err := w.Indicators.SaveEnvelopes(ctx, FromBands(b.Symbol, b.Interval, b.Envelope)); err != nil {
		return fmt.Errorf("persist envelopes for %s %s: %w", b.Symbol, b.Interval, err)
	}
	if err := w.Indicators.SaveMarketStates(ctx, FromStates(b.Symbol, b.Interval, b.States)); err != nil {
		return fmt.Errorf("persist market states for %s %s: %w", b.Symbol, b.Interval, err)
	}
	if err := w.Indicators.SavePatternEvents(ctx, FromPatternEvents(b.Symbol, b.Interval, b.Patterns)); err != nil {
		return fmt.Errorf("persist pattern events for %s %s: %w", b.Symbol, b.Interval, err)
	}
	return nil
}

// PersistAnalysis writes one multi_timeframe_analysis row and its
// confluence_zones children.
func (w MarketDataWriter) PersistAnalysis(ctx context.Context, analysisID string, rec coordinator.AnalysisRecord) error {
	if w.Analyses == nil {
		return nil
	}
	row, zones := FromAnalysis(analysisID, rec)
	if err := w.Analyses.SaveAnalysis(ctx, row, zones); err != nil {
		return fmt.Errorf("persist analysis %s %s/%s: %w", rec.Symbol, rec.HTF, rec.TTF, err)
	}
	return nil
}

// FromBar adapts a bar.Bar to its logical row.
func FromBar(b bar.Bar) BarRecord {
	return BarRecord{
		Symbol:        b.Symbol,
		Interval:      string(b.Interval),
		Timestamp:     b.Timestamp,
		Open:          b.Open,
		High:          b.High,
		Low:           b.Low,
		Close:         b.Close,
		Volume:        b.Volume,
		IsProvisional: b.Provisional,
	}
}

// ToBar adapts a bars row back to the domain type.
func ToBar(r BarRecord) bar.Bar {
	return bar.Bar{
		Symbol:      r.Symbol,
		Interval:    bar.Interval(r.Interval),
		Timestamp:   r.Timestamp,
		Open:        r.Open,
		High:        r.High,
		Low:         r.Low,
		Close:       r.Close,
		Volume:      r.Volume,
		Provisional: r.IsProvisional,
	}
}

// FromPLdots adapts a PLdot series to its logical rows.
func FromPLdots(symbol string, interval bar.Interval, dots []indicator.PLdotPoint) []PLdotRecord {
	out := make([]PLdotRecord, 0, len(dots))
	for _, d := range dots {
		out = append(out, PLdotRecord{
			Symbol:       symbol,
			Interval:     string(interval),
			ProjectionTS: d.ProjectionTimestamp,
			Value:        d.Value,
			IsProjected:  d.IsProjected,
		})
	}
	return out
}

// FromBands adapts an envelope series to its logical rows.
func FromBands(symbol string, interval bar.Interval, bands []indicator.Band) []EnvelopeRecord {
	out := make([]EnvelopeRecord, 0, len(bands))
	for _, b := range bands {
		out = append(out, EnvelopeRecord{
			Symbol:    symbol,
			Interval:  string(interval),
			Timestamp: b.Timestamp,
			Upper:     b.Upper,
			Lower:     b.Lower,
			Center:    b.Center,
			Method:    b.Method,
		})
	}
	return out
}

// FromStates adapts a market-state series to its logical rows.
func FromStates(symbol string, interval bar.Interval, states []indicator.State) []MarketStateRecord {
	out := make([]MarketStateRecord, 0, len(states))
	for _, s := range states {
		out = append(out, MarketStateRecord{
			Symbol:         symbol,
			Interval:       string(interval),
			Timestamp:      s.Timestamp,
			State:          s.Kind.String(),
			TrendDirection: s.Direction.String(),
			BarsInState:    s.BarsInState,
			SlopeTrend:     s.SlopeTrend.String(),
			Confidence:     s.Confidence,
		})
	}
	return out
}

// FromPatternEvents adapts detected pattern events to their logical rows.
func FromPatternEvents(symbol string, interval bar.Interval, events []indicator.PatternEvent) []PatternEventRecord {
	out := make([]PatternEventRecord, 0, len(events))
	for _, e := range events {
		out = append(out, PatternEventRecord{
			Symbol:      symbol,
			Interval:    string(interval),
			PatternType: e.Kind.String(),
			Direction:   e.Direction,
			StartTS:     e.Start,
			EndTS:       e.End,
			Strength:    e.Strength,
			Metadata:    e.Metadata,
		})
	}
	return out
}

// FromAnalysis adapts a coordinator analysis record to its logical row
// plus the confluence_zones children keyed by analysisID.
func FromAnalysis(analysisID string, rec coordinator.AnalysisRecord) (AnalysisRow, []ConfluenceZoneRecord) {
	row := AnalysisRow{
		AnalysisID:           analysisID,
		Symbol:               rec.Symbol,
		HTF:                  rec.HTF,
		TTF:                  rec.TTF,
		Timestamp:            rec.Timestamp,
		HTFTrend:             rec.HTFTrend,
		HTFStrength:          rec.HTFStrength,
		TTFTrend:             rec.TTFTrend,
		AlignmentScore:       rec.AlignmentScore,
		AlignmentType:        string(rec.AlignmentType),
		TradePermitted:       rec.TradePermitted,
		HTFPLdot:             rec.HTFPLdot,
		TTFPLdot:             rec.TTFPLdot,
		PLdotDistancePercent: rec.PLdotDistancePercent,
		SignalStrength:       rec.SignalStrength,
		RiskLevel:            string(rec.RiskLevel),
		RecommendedAction:    string(rec.RecommendedAction),
		PatternConfluence:    rec.PatternConfluence,
	}
	zones := make([]ConfluenceZoneRecord, 0, len(rec.ConfluenceZones))
	for _, z := range rec.ConfluenceZones {
		zones = append(zones, ConfluenceZoneRecord{
			AnalysisID: analysisID,
			Symbol:     rec.Symbol,
			Level:      z.Center,
			Upper:      z.Upper,
			Lower:      z.Lower,
			Strength:   z.Strength,
			Timeframes: z.Timeframes,
			ZoneType:   z.ZoneType,
			FirstTouch: z.FirstTouch,
			LastTouch:  z.LastTouch,
		})
	}
	return row, zones
}
