// Package replay steps archived candles forward in time for backtesting.
// Every step is the close of one candle of the finest interval; the coarser
// intervals only expose candles that had closed by then.
package replay

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/pkg/errors"

	"cryptobot/internal/model"
	"cryptobot/internal/store/file"
)

// Source returns archived candles with OpenTime > afterTS, ascending.
// limit <= 0 means no limit. *sqlite.Reader satisfies it.
type Source interface {
	ReadCandles(market, interval string, afterTS int64, limit int) ([]model.Candle, error)
}

// CSVSource reads the per-interval CSV dumps.
type CSVSource struct {
	CSV *file.CandleCSV
}

func (s CSVSource) ReadCandles(_, interval string, afterTS int64, limit int) ([]model.Candle, error) {
	all, err := s.CSV.Load(interval)
	if err != nil {
		return nil, err
	}
	i := sort.Search(len(all), func(i int) bool { return all[i].OpenTime > afterTS })
	out := all[i:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Step is the market as seen right after one candle of the finest interval
// closed.
type Step struct {
	At     time.Time                 // close time
	Price  float64                   // close of the finest interval
	Series map[string][]model.Candle // closed candles per interval, oldest first
}

// Replayer reads historical candles and replays them at a configurable speed.
type Replayer struct {
	src       Source
	market    string
	intervals []string
	window    int
	log       *slog.Logger
}

// New creates a Replayer. window caps the candles exposed per interval in a
// step; 0 exposes everything up to the step.
func New(src Source, market string, intervals []string, window int) *Replayer {
	return &Replayer{
		src:       src,
		market:    market,
		intervals: intervals,
		window:    window,
		log:       slog.Default().With("component", "replay"),
	}
}

type track struct {
	interval string
	dur      int64 // ms
	candles  []model.Candle
	next     int
}

// Run calls fn for every step after fromTS (unix ms, 0 = all).
// speed controls the playback rate: 1.0 = real-time, 10.0 = 10x, 0 = as fast
// as possible. It returns the number of steps taken.
func (r *Replayer) Run(ctx context.Context, fromTS int64, speed float64, fn func(Step) error) (int, error) {
	if len(r.intervals) == 0 {
		return 0, errors.New("replay: no intervals")
	}
	tracks := make([]*track, 0, len(r.intervals))
	for _, iv := range r.intervals {
		d := model.IntervalDuration(iv)
		if d <= 0 {
			return 0, errors.Errorf("replay: unknown interval %q", iv)
		}
		candles, err := r.src.ReadCandles(r.market, iv, fromTS, 0)
		if err != nil {
			return 0, errors.Wrapf(err, "replay: load %s", iv)
		}
		tracks = append(tracks, &track{interval: iv, dur: d.Milliseconds(), candles: candles})
	}
	sort.SliceStable(tracks, func(i, j int) bool { return tracks[i].dur < tracks[j].dur })
	driver := tracks[0]
	if len(driver.candles) == 0 {
		r.log.Warn("no candles found", "market", r.market, "interval", driver.interval)
		return 0, nil
	}
	r.log.Info("replay loaded", "market", r.market, "driver", driver.interval,
		"steps", len(driver.candles), "speed", speed)

	var prev time.Time
	steps := 0
	for _, d := range driver.candles {
		if err := ctx.Err(); err != nil {
			r.log.Info("replay cancelled", "steps", steps)
			return steps, err
		}
		closeMs := d.OpenTime + driver.dur
		at := time.UnixMilli(closeMs).UTC()

		// Simulate time gaps between candles
		if speed > 0 && !prev.IsZero() {
			gap := time.Duration(float64(at.Sub(prev)) / speed)
			if gap > 5*time.Second {
				gap = 5 * time.Second
			}
			if gap > 0 {
				select {
				case <-ctx.Done():
					return steps, ctx.Err()
				case <-time.After(gap):
				}
			}
		}
		prev = at

		step := Step{At: at, Price: d.CloseFloat(), Series: make(map[string][]model.Candle, len(tracks))}
		for _, t := range tracks {
			for t.next < len(t.candles) && t.candles[t.next].OpenTime+t.dur <= closeMs {
				t.next++
			}
			lo := 0
			if r.window > 0 && t.next > r.window {
				lo = t.next - r.window
			}
			step.Series[t.interval] = t.candles[lo:t.next]
		}
		if err := fn(step); err != nil {
			return steps, err
		}
		steps++
	}
	r.log.Info("replay completed", "steps", steps)
	return steps, nil
}
