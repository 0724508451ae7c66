package bar

// Aggregate synthesizes bars at a coarser interval from a sequence of
// base-interval bars (spec §3, §4.A). base must already be sorted by
// Timestamp ascending (Store guarantees this). Buckets are emitted only
// when at least one base bar falls in them; bucket timestamp is the
// bucket's open instant, inclusive.
func Aggregate(base []Bar, target Interval) []Bar {
	if len(base) == 0 {
		return nil
	}
	var out []Bar
	var cur *Bar
	var curBucket = base[0].Timestamp.Add(-1) // sentinel, never equals a real bucket on first iteration

	for _, b := range base {
		bucket := AlignTimestamp(b.Timestamp, target)
		if cur == nil || !bucket.Equal(curBucket) {
			if cur != nil {
				out = append(out, *cur)
			}
			nb := Bar{
				Symbol:      b.Symbol,
				Interval:    target,
				Timestamp:   bucket,
				Open:        b.Open,
				High:        b.High,
				Low:         b.Low,
				Close:       b.Close,
				Volume:      b.Volume,
				Provisional: b.Provisional,
			}
			cur = &nb
			curBucket = bucket
			continue
		}
		if b.High > cur.High {
			cur.High = b.High
		}
		if b.Low < cur.Low {
			cur.Low = b.Low
		}
		cur.Close = b.Close
		cur.Volume += b.Volume
		cur.Provisional = cur.Provisional || b.Provisional
	}
	if cur != nil {
		out = append(out, *cur)
	}
	return out
}
