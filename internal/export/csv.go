package export

import (
	"encoding/csv"
	"os"
	"strconv"

	"github.com/skalibog/bartrader/internal/analysis/features"
)

// CSVSaver сохраняет набор в CSV с заголовком t, признаки, direction
type CSVSaver struct{}

func (CSVSaver) Extension() string { return "csv" }

func (CSVSaver) Save(records []Record, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)

	header := append([]string{"t"}, features.Names[:]...)
	header = append(header, "direction")
	if err := w.Write(header); err != nil {
		return err
	}
	for _, r := range records {
		line := []string{strconv.FormatInt(r.Timestamp, 10)}
		for _, v := range r.features() {
			line = append(line, floatStr(v))
		}
		line = append(line, strconv.FormatInt(r.Direction, 10))
		if err := w.Write(line); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}

func floatStr(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
