package exchangeapi

import (
	"sort"
	"strconv"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/valyala/fastjson"

	"cryptobot/internal/model"
)

// ParseCandles converts a candles payload ([[ts, o, h, l, c, v], ...]) into
// candles sorted ascending by open time. Fields may be JSON numbers or numeric
// strings. Rows with fewer than six fields or unparseable values are skipped.
func ParseCandles(v *fastjson.Value) ([]model.Candle, error) {
	rows, err := v.Array()
	if err != nil {
		return nil, errors.Wrap(err, "candles payload is not an array")
	}

	out := make([]model.Candle, 0, len(rows))
	for _, row := range rows {
		c, ok := parseCandleRow(row)
		if !ok {
			continue
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OpenTime < out[j].OpenTime })
	return out, nil
}

func parseCandleRow(row *fastjson.Value) (model.Candle, bool) {
	fields, err := row.Array()
	if err != nil || len(fields) < 6 {
		return model.Candle{}, false
	}
	ts, ok := int64Field(fields[0])
	if !ok {
		return model.Candle{}, false
	}
	var vals [5]decimal.Decimal
	for i := range vals {
		d, ok := decimalField(fields[i+1])
		if !ok {
			return model.Candle{}, false
		}
		vals[i] = d
	}
	return model.Candle{
		OpenTime: ts,
		Open:     vals[0],
		High:     vals[1],
		Low:      vals[2],
		Close:    vals[3],
		Volume:   vals[4],
	}, true
}

// decimalField accepts a JSON number or a numeric string.
func decimalField(v *fastjson.Value) (decimal.Decimal, bool) {
	if v == nil {
		return decimal.Decimal{}, false
	}
	switch v.Type() {
	case fastjson.TypeString:
		d, err := decimal.NewFromString(string(v.GetStringBytes()))
		return d, err == nil
	case fastjson.TypeNumber:
		// Keep the literal text so "0.1" stays exactly 0.1.
		d, err := decimal.NewFromString(v.String())
		return d, err == nil
	}
	return decimal.Decimal{}, false
}

func int64Field(v *fastjson.Value) (int64, bool) {
	if v == nil {
		return 0, false
	}
	switch v.Type() {
	case fastjson.TypeNumber:
		n, err := v.Int64()
		if err != nil {
			f, ferr := v.Float64()
			if ferr != nil {
				return 0, false
			}
			return int64(f), true
		}
		return n, true
	case fastjson.TypeString:
		n, err := strconv.ParseInt(string(v.GetStringBytes()), 10, 64)
		return n, err == nil
	}
	return 0, false
}

func floatField(v *fastjson.Value) (float64, bool) {
	d, ok := decimalField(v)
	if !ok {
		return 0, false
	}
	f, _ := d.Float64()
	return f, true
}
