package export

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Saver сохраняет обучающий набор в файл одного формата
type Saver interface {
	Save(records []Record, path string) error
	Extension() string
}

// NewSaver создает Saver по имени формата (csv, parquet, json)
func NewSaver(format string) (Saver, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "csv":
		return CSVSaver{}, nil
	case "parquet":
		return ParquetSaver{}, nil
	case "json":
		return JSONSaver{}, nil
	default:
		return nil, fmt.Errorf("неподдерживаемый формат %q (csv, parquet, json)", format)
	}
}

// FileName формирует имя файла выгрузки для символа
func FileName(dir, symbol string, s Saver) string {
	return filepath.Join(dir, fmt.Sprintf("%s_dataset.%s", strings.ToLower(symbol), s.Extension()))
}
