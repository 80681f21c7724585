package replay

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptobot/internal/model"
	"cryptobot/internal/store/file"
)

func TestCSVSource_FiltersAndLimits(t *testing.T) {
	dump := file.NewCandleCSV(t.TempDir(), "BTC-EUR")
	var candles []model.Candle
	for i := int64(1); i <= 5; i++ {
		d := decimal.NewFromInt(i)
		candles = append(candles, model.Candle{OpenTime: i * 60_000, Open: d, High: d, Low: d, Close: d, Volume: d})
	}
	_, err := dump.Save("1m", candles)
	require.NoError(t, err)

	src := CSVSource{CSV: dump}
	got, err := src.ReadCandles("BTC-EUR", "1m", 2*60_000, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(3*60_000), got[0].OpenTime)
	assert.Equal(t, int64(4*60_000), got[1].OpenTime)
}

func TestRun_UnknownInterval(t *testing.T) {
	src := CSVSource{CSV: file.NewCandleCSV(t.TempDir(), "BTC-EUR")}
	_, err := New(src, "BTC-EUR", []string{"7x"}, 0).Run(context.Background(), 0, 0, func(Step) error { return nil })
	assert.ErrorContains(t, err, "unknown interval")
}

func TestRun_StopsOnCallbackError(t *testing.T) {
	dump := file.NewCandleCSV(t.TempDir(), "BTC-EUR")
	d := decimal.NewFromInt(1)
	_, err := dump.Save("1m", []model.Candle{
		{OpenTime: 60_000, Close: d, Open: d, High: d, Low: d, Volume: d},
		{OpenTime: 120_000, Close: d, Open: d, High: d, Low: d, Volume: d},
	})
	require.NoError(t, err)

	stop := errors.New("stop")
	n, err := New(CSVSource{CSV: dump}, "BTC-EUR", []string{"1m"}, 0).
		Run(context.Background(), 0, 0, func(Step) error { return stop })
	assert.ErrorIs(t, err, stop)
	assert.Zero(t, n)
}
