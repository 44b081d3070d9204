package export

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/skalibog/bartrader/internal/analysis/features"
	"github.com/skalibog/bartrader/pkg/models"
	"github.com/stretchr/testify/require"
)

func dataset() features.Dataset {
	base := time.Date(2024, 3, 6, 14, 30, 0, 0, time.UTC)
	return features.Dataset{
		X: []features.Vector{
			{10.5, 11, 9, 10, 1200, 0.8, 55, 10.1, 10, 9.9},
			{10.25, 10.75, 10, 10.5, 900, 0.75, 48.5, 10.2, 10.05, 9.95},
		},
		Y:     []models.Direction{models.Up, models.Down},
		Times: []time.Time{base, base.Add(time.Minute)},
	}
}

func TestRecords(t *testing.T) {
	records := Records(dataset())
	require.Len(t, records, 2)
	require.Equal(t, int64(1709735400000), records[0].Timestamp)
	require.Equal(t, 10.5, records[0].Close)
	require.Equal(t, 55.0, records[0].RSI)
	require.Equal(t, 9.9, records[0].MALong)
	require.Equal(t, int64(-1), records[1].Direction)
	require.Empty(t, Records(features.Dataset{}))
}

func TestNewSaver(t *testing.T) {
	for format, ext := range map[string]string{"csv": "csv", " JSON ": "json", "parquet": "parquet"} {
		s, err := NewSaver(format)
		require.NoError(t, err)
		require.Equal(t, ext, s.Extension())
	}

	_, err := NewSaver("xlsx")
	require.Error(t, err)
}

func TestFileName(t *testing.T) {
	require.Equal(t, filepath.Join("out", "tsla_dataset.parquet"), FileName("out", "TSLA", ParquetSaver{}))
}

func TestCSVSaver(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.csv")
	require.NoError(t, CSVSaver{}.Save(Records(dataset()), path))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	lines, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, lines, 3)
	require.Equal(t, []string{"t", "close", "high", "low", "open", "volume", "atr", "rsi", "ma_short", "ma_mid", "ma_long", "direction"}, lines[0])
	require.Equal(t, []string{"1709735460000", "10.25", "10.75", "10", "10.5", "900", "0.75", "48.5", "10.2", "10.05", "9.95", "-1"}, lines[2])
}

func TestJSONSaver(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	records := Records(dataset())
	require.NoError(t, JSONSaver{}.Save(records, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got []Record
	require.NoError(t, json.Unmarshal(data, &got))
	require.Equal(t, records, got)
}

func TestParquetSaver(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.parquet")
	records := Records(dataset())
	require.NoError(t, ParquetSaver{}.Save(records, path))

	got, err := parquet.ReadFile[Record](path)
	require.NoError(t, err)
	require.Equal(t, records, got)
}

func TestSaveToMissingDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "data.csv")
	require.Error(t, CSVSaver{}.Save(Records(dataset()), path))
}
