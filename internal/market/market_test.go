package market

import (
	"errors"
	"testing"
	"time"

	"github.com/skalibog/bartrader/pkg/models"
	"github.com/stretchr/testify/require"
)

func at(hour, minute, second int) time.Time {
	// 2024-03-06 - среда
	return time.Date(2024, 3, 6, hour, minute, second, 0, Eastern)
}

func TestClassifyBoundaries(t *testing.T) {
	tests := []struct {
		t    time.Time
		want models.Session
	}{
		{at(0, 0, 0), models.SessionClosed},
		{at(3, 59, 59), models.SessionClosed},
		{at(4, 0, 0), models.SessionPreMarket},
		{at(9, 29, 59), models.SessionPreMarket},
		{at(9, 30, 0), models.SessionRegular},
		{at(15, 59, 59), models.SessionRegular},
		{at(16, 0, 0), models.SessionAfterHours},
		{at(19, 59, 59), models.SessionAfterHours},
		{at(20, 0, 0), models.SessionClosed},
		{at(23, 59, 59), models.SessionClosed},
	}

	for _, tt := range tests {
		t.Run(tt.t.Format("15:04:05"), func(t *testing.T) {
			require.Equal(t, tt.want, Classify(tt.t))
		})
	}
}

func TestClassifyPartitionsDay(t *testing.T) {
	counts := map[models.Session]int{}
	start := at(0, 0, 0)
	for m := 0; m < 24*60; m++ {
		counts[Classify(start.Add(time.Duration(m)*time.Minute))]++
	}

	require.Len(t, counts, 4)
	require.Equal(t, 5*60+30, counts[models.SessionPreMarket])
	require.Equal(t, 6*60+30, counts[models.SessionRegular])
	require.Equal(t, 4*60, counts[models.SessionAfterHours])
	require.Equal(t, 8*60, counts[models.SessionClosed])
}

func TestClassifyIgnoresCalendar(t *testing.T) {
	saturday := time.Date(2024, 3, 9, 10, 0, 0, 0, Eastern)
	require.Equal(t, models.SessionRegular, Classify(saturday))
}

func payloadOf(symbol string, times ...string) models.Payload {
	bars := make([]models.RawBar, len(times))
	for i, ts := range times {
		price := 100 + float64(i)
		bars[i] = models.RawBar{T: ts, O: price, H: price + 1, L: price - 1, C: price + 0.5, V: float64(1000 + i)}
	}
	return models.Payload{symbol: bars}
}

func TestBuildConvertsAndClassifies(t *testing.T) {
	// 14:30Z = 09:30 EST, 13:29Z = 08:29 EST, 21:00Z = 16:00 EST
	table, err := Build(payloadOf("TSLA",
		"2024-03-06T14:30:00Z",
		"2024-03-06T13:29:00Z",
		"2024-03-06T21:00:00.123456789Z",
	), Eastern)
	require.NoError(t, err)

	require.Equal(t, "TSLA", table.Symbol)
	require.Len(t, table.Rows, 3)

	first := table.Rows[0]
	require.Equal(t, 9, first.Timestamp.Hour())
	require.Equal(t, 30, first.Timestamp.Minute())
	require.Equal(t, Eastern, first.Timestamp.Location())
	require.Equal(t, models.SessionRegular, first.Session)
	require.Equal(t, 100.0, first.Open)
	require.Equal(t, 101.0, first.High)
	require.Equal(t, 99.0, first.Low)
	require.Equal(t, 100.5, first.Close)
	require.Equal(t, 1000.0, first.Volume)
	require.False(t, first.ATR.Valid)
	require.False(t, first.Direction.Valid)

	require.Equal(t, models.SessionPreMarket, table.Rows[1].Session)
	require.Equal(t, models.SessionAfterHours, table.Rows[2].Session)

	// порядок входа сохраняется
	require.False(t, table.IsAscending())
}

func TestBuildDaylightSaving(t *testing.T) {
	// летом смещение -4: 13:30Z = 09:30 EDT
	table, err := Build(payloadOf("TSLA", "2024-07-10T13:30:00Z"), Eastern)
	require.NoError(t, err)
	require.Equal(t, models.SessionRegular, table.Rows[0].Session)
}

func TestBuildEmpty(t *testing.T) {
	_, err := Build(models.Payload{"TSLA": nil}, Eastern)
	require.ErrorIs(t, err, ErrEmptyData)

	var emptyErr *EmptyDataError
	require.True(t, errors.As(err, &emptyErr))
	require.Equal(t, "TSLA", emptyErr.Symbol)

	_, err = Build(models.Payload{}, Eastern)
	require.ErrorIs(t, err, ErrEmptyData)
}

func TestBuildRejectsSeveralSymbols(t *testing.T) {
	payload := payloadOf("TSLA", "2024-03-06T14:30:00Z")
	payload["AAPL"] = payload["TSLA"]

	_, err := Build(payload, Eastern)
	require.Error(t, err)
	require.False(t, errors.Is(err, ErrEmptyData))
}

func TestBuildBadTimestamp(t *testing.T) {
	_, err := Build(payloadOf("TSLA", "yesterday"), Eastern)
	require.Error(t, err)
}

func TestSortAscending(t *testing.T) {
	table, err := Build(payloadOf("TSLA",
		"2024-03-06T14:32:00Z",
		"2024-03-06T14:31:00Z",
		"2024-03-06T14:30:00Z",
	), Eastern)
	require.NoError(t, err)

	sorted := table.SortAscending()
	require.True(t, sorted.IsAscending())
	require.Equal(t, table.Rows[2], sorted.Rows[0])
	require.Equal(t, table.Rows[0], sorted.Rows[2])
	// исходная таблица не изменяется
	require.False(t, table.IsAscending())
}

func TestFilterRegular(t *testing.T) {
	table, err := Build(payloadOf("TSLA",
		"2024-03-06T13:00:00Z", // 08:00 pre-market
		"2024-03-06T15:00:00Z", // 10:00 regular
		"2024-03-06T22:00:00Z", // 17:00 after-hours
		"2024-03-06T16:00:00Z", // 11:00 regular
		"2024-03-07T02:00:00Z", // 21:00 closed
	), Eastern)
	require.NoError(t, err)

	filtered := FilterRegular(table)
	require.Len(t, filtered.Rows, 2)
	require.Equal(t, table.Rows[1], filtered.Rows[0])
	require.Equal(t, table.Rows[3], filtered.Rows[1])
	for _, row := range filtered.Rows {
		require.Equal(t, models.SessionRegular, row.Session)
	}

	require.Empty(t, FilterRegular(Table{Symbol: "TSLA"}).Rows)
}

func TestLookbackWindow(t *testing.T) {
	now := time.Date(2024, 3, 6, 18, 45, 0, 0, time.UTC) // 13:45 EST
	start, end := LookbackWindow(now, 3)

	require.Equal(t, time.Date(2024, 3, 3, 0, 0, 0, 0, Eastern), start)
	require.Equal(t, time.Date(2024, 3, 7, 0, 0, 0, 0, Eastern), end)
}

func TestLoadLocation(t *testing.T) {
	loc, err := LoadLocation("")
	require.NoError(t, err)
	require.Equal(t, Eastern, loc)

	_, err = LoadLocation("Mars/Olympus")
	require.Error(t, err)
}
