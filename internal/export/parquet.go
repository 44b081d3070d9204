package export

import (
	"github.com/parquet-go/parquet-go"
)

// ParquetSaver сохраняет набор в Parquet
type ParquetSaver struct{}

func (ParquetSaver) Extension() string { return "parquet" }

func (ParquetSaver) Save(records []Record, path string) error {
	return parquet.WriteFile(path, records)
}
