package file

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"cryptobot/internal/model"
)

// CandleCSV appends candles to <dir>/<market>_<interval>_candles.csv as
// rows of timestamp,open,high,low,close,volume. Each file is only ever
// appended with candles newer than the last row already in it, so restarts
// continue where the previous run stopped.
type CandleCSV struct {
	dir    string
	market string

	mu        sync.Mutex
	lastSaved map[string]int64 // interval → last written open time
}

// NewCandleCSV creates a dumper for market under dir.
func NewCandleCSV(dir, market string) *CandleCSV {
	return &CandleCSV{dir: dir, market: market, lastSaved: make(map[string]int64, 4)}
}

// Path returns the CSV path of interval.
func (c *CandleCSV) Path(interval string) string {
	return filepath.Join(c.dir, c.market+"_"+interval+"_candles.csv")
}

// Save appends the candles newer than the last saved row and returns how many
// were written.
func (c *CandleCSV) Save(interval string, candles []model.Candle) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	path := c.Path(interval)
	last, ok := c.lastSaved[interval]
	if !ok {
		var err error
		last, err = lastTimestamp(path)
		if err != nil {
			return 0, &model.PersistenceError{Op: "read", Path: path, Err: err}
		}
		c.lastSaved[interval] = last
	}

	var rows [][]string
	for _, k := range candles {
		if k.OpenTime <= last {
			continue
		}
		rows = append(rows, []string{
			strconv.FormatInt(k.OpenTime, 10),
			k.Open.String(),
			k.High.String(),
			k.Low.String(),
			k.Close.String(),
			k.Volume.String(),
		})
		last = k.OpenTime
	}
	if len(rows) == 0 {
		return 0, nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, &model.PersistenceError{Op: "write", Path: path, Err: err}
	}
	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		return 0, &model.PersistenceError{Op: "write", Path: path, Err: errors.Wrap(err, "writing records")}
	}
	if err := f.Close(); err != nil {
		return 0, &model.PersistenceError{Op: "write", Path: path, Err: err}
	}
	c.lastSaved[interval] = last
	return len(rows), nil
}

// Load reads every candle of interval back from disk, oldest first.
// Malformed rows are skipped. A missing file yields no candles.
func (c *CandleCSV) Load(interval string) ([]model.Candle, error) {
	path := c.Path(interval)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &model.PersistenceError{Op: "read", Path: path, Err: err}
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	var out []model.Candle
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return out, &model.PersistenceError{Op: "parse", Path: path, Err: err}
		}
		k, ok := decodeRow(rec)
		if !ok {
			continue
		}
		if n := len(out); n > 0 && k.OpenTime <= out[n-1].OpenTime {
			continue
		}
		out = append(out, k)
	}
	return out, nil
}

func decodeRow(rec []string) (model.Candle, bool) {
	if len(rec) < 6 {
		return model.Candle{}, false
	}
	ts, err := strconv.ParseInt(rec[0], 10, 64)
	if err != nil {
		return model.Candle{}, false
	}
	var v [5]decimal.Decimal
	for i := range v {
		d, err := decimal.NewFromString(rec[i+1])
		if err != nil {
			return model.Candle{}, false
		}
		v[i] = d
	}
	return model.Candle{OpenTime: ts, Open: v[0], High: v[1], Low: v[2], Close: v[3], Volume: v[4]}, true
}

// lastTimestamp returns the largest open time in an existing dump, 0 if none.
func lastTimestamp(path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	var last int64
	for {
		rec, err := r.Read()
		if err == io.EOF {
			return last, nil
		}
		if err != nil {
			return last, err
		}
		if len(rec) == 0 {
			continue
		}
		if ts, err := strconv.ParseInt(rec[0], 10, 64); err == nil && ts > last {
			last = ts
		}
	}
}
