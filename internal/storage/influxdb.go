package storage

import (
	"context"
	"fmt"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/skalibog/bartrader/internal/config"
	"github.com/skalibog/bartrader/pkg/logger"
	"github.com/skalibog/bartrader/pkg/models"
	"go.uber.org/zap"
)

const (
	barsMeasurement        = "bars"
	predictionsMeasurement = "predictions"
)

// InfluxDBStorage реализует интерфейс Storage с использованием InfluxDB
type InfluxDBStorage struct {
	client   influxdb2.Client
	queryAPI api.QueryAPI
	writeAPI api.WriteAPI
	org      string
	bucket   string
	done     chan struct{}
}

// NewInfluxDBStorage создает новое хранилище InfluxDB
func NewInfluxDBStorage(ctx context.Context, cfg config.StorageConfig) (*InfluxDBStorage, error) {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	// Проверка соединения
	health, err := client.Health(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("ошибка соединения с InfluxDB: %w", err)
	}
	if health == nil || health.Status != "pass" {
		client.Close()
		return nil, fmt.Errorf("InfluxDB не в состоянии 'pass': %+v", health)
	}

	s := &InfluxDBStorage{
		client:   client,
		queryAPI: client.QueryAPI(cfg.Organization),
		writeAPI: client.WriteAPI(cfg.Organization, cfg.Bucket),
		org:      cfg.Organization,
		bucket:   cfg.Bucket,
		done:     make(chan struct{}),
	}
	go s.logWriteErrors()

	return s, nil
}

// logWriteErrors логирует ошибки асинхронной записи
func (s *InfluxDBStorage) logWriteErrors() {
	errorsCh := s.writeAPI.Errors()
	for {
		select {
		case err, ok := <-errorsCh:
			if !ok {
				return
			}
			logger.Error("Ошибка записи в InfluxDB", zap.Error(err))
		case <-s.done:
			return
		}
	}
}

// Close сбрасывает буфер записи и закрывает соединение с базой данных
func (s *InfluxDBStorage) Close() error {
	s.writeAPI.Flush()
	close(s.done)
	s.client.Close()
	return nil
}

// SaveBars сохраняет бары вместе с рассчитанными индикаторами
func (s *InfluxDBStorage) SaveBars(ctx context.Context, symbol string, rows []models.Row) error {
	for _, row := range rows {
		s.writeAPI.WritePoint(barPoint(symbol, row))
	}

	s.writeAPI.Flush()
	return nil
}

// SavePrediction сохраняет результат торгового цикла
func (s *InfluxDBStorage) SavePrediction(ctx context.Context, p models.Prediction) error {
	s.writeAPI.WritePoint(predictionPoint(p))
	s.writeAPI.Flush()
	return nil
}

// GetPredictions получает последние результаты, новые первыми
func (s *InfluxDBStorage) GetPredictions(ctx context.Context, symbol string, limit int) ([]models.Prediction, error) {
	result, err := s.queryAPI.Query(ctx, predictionsQuery(s.bucket, symbol, limit))
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса предсказаний: %w", err)
	}
	defer result.Close()

	var predictions []models.Prediction
	for result.Next() {
		record := result.Record()

		direction, _ := record.ValueByKey("direction").(int64)
		action, _ := record.ValueByKey("action").(string)
		model, _ := record.ValueByKey("model").(string)
		accuracy, _ := record.ValueByKey("accuracy").(float64)
		trainRows, _ := record.ValueByKey("train_rows").(int64)
		testRows, _ := record.ValueByKey("test_rows").(int64)
		closePrice, _ := record.ValueByKey("close").(float64)

		predictions = append(predictions, models.Prediction{
			Symbol:    symbol,
			Timestamp: record.Time(),
			Direction: models.Direction(direction),
			Action:    action,
			Model:     model,
			Accuracy:  accuracy,
			TrainRows: int(trainRows),
			TestRows:  int(testRows),
			Close:     closePrice,
		})
	}

	// Проверяем на ошибки при обработке результатов
	if result.Err() != nil {
		return nil, fmt.Errorf("ошибка при обработке результатов: %w", result.Err())
	}

	return predictions, nil
}

func barPoint(symbol string, row models.Row) *write.Point {
	fields := map[string]interface{}{
		"open":   row.Open,
		"high":   row.High,
		"low":    row.Low,
		"close":  row.Close,
		"volume": row.Volume,
	}
	// отсутствующие индикаторы не пишутся, чтобы не превратиться в ноль
	optional := map[string]struct {
		valid bool
		value float64
	}{
		"atr":      {row.ATR.Valid, row.ATR.Float64},
		"rsi":      {row.RSI.Valid, row.RSI.Float64},
		"ma_short": {row.MAShort.Valid, row.MAShort.Float64},
		"ma_mid":   {row.MAMid.Valid, row.MAMid.Float64},
		"ma_long":  {row.MALong.Valid, row.MALong.Float64},
	}
	for name, v := range optional {
		if v.valid {
			fields[name] = v.value
		}
	}
	if row.Direction.Valid {
		fields["direction"] = row.Direction.Int64
	}

	return influxdb2.NewPoint(
		barsMeasurement,
		map[string]string{
			"symbol":  symbol,
			"session": string(row.Session),
		},
		fields,
		row.Timestamp,
	)
}

func predictionPoint(p models.Prediction) *write.Point {
	return influxdb2.NewPoint(
		predictionsMeasurement,
		map[string]string{
			"symbol": p.Symbol,
		},
		map[string]interface{}{
			"direction":  int64(p.Direction),
			"action":     p.Action,
			"model":      p.Model,
			"accuracy":   p.Accuracy,
			"train_rows": int64(p.TrainRows),
			"test_rows":  int64(p.TestRows),
			"close":      p.Close,
		},
		p.Timestamp,
	)
}

// predictionsQuery формирует Flux-запрос последних предсказаний
func predictionsQuery(bucket, symbol string, limit int) string {
	return fmt.Sprintf(`
		from(bucket: "%s")
			|> range(start: -30d)
			|> filter(fn: (r) => r._measurement == "%s")
			|> filter(fn: (r) => r.symbol == "%s")
			|> pivot(rowKey:["_time"], columnKey: ["_field"], valueColumn: "_value")
			|> sort(columns: ["_time"], desc: true)
			|> limit(n: %d)
	`, bucket, predictionsMeasurement, symbol, limit)
}
