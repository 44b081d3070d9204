package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/skalibog/bartrader/internal/config"
	"github.com/skalibog/bartrader/pkg/logger"
	"go.uber.org/zap"
)

const usage = `Использование: bartrader [флаги] <команда>

Команды:
  run     торговый цикл по расписанию (по умолчанию)
  serve   HTTP/WebSocket сервер для графиков
  train   однократное обучение и отчет о качестве модели
  export  выгрузка обучающего набора (csv, json, parquet)

Флаги:
`

func main() {
	// Обработка флагов командной строки
	configPath := flag.String("config", "config.yaml", "путь к файлу конфигурации")
	symbol := flag.String("symbol", "", "символ вместо trading.symbol из конфигурации")
	format := flag.String("format", "parquet", "формат выгрузки для export")
	outDir := flag.String("out", ".", "каталог выгрузки для export")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	command := "run"
	if flag.NArg() > 0 {
		command = flag.Arg(0)
	}

	// Проверяем наличие файла конфигурации
	if _, err := os.Stat(*configPath); os.IsNotExist(err) {
		logger.Fatal("Файл конфигурации не найден", zap.String("path", *configPath))
	}

	// Загружаем конфигурацию
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("Ошибка загрузки конфигурации", zap.Error(err))
	}
	if *symbol != "" {
		cfg.Trading.Symbol = *symbol
	}

	if err := logger.Init(cfg.Log.Level, cfg.Log.File); err != nil {
		logger.Fatal("Ошибка инициализации логгера", zap.Error(err))
	}
	defer logger.GetLogger().Sync()

	// Контекст отменяется по SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch command {
	case "run":
		err = runTrader(ctx, cfg)
	case "serve":
		err = serve(ctx, cfg)
	case "train":
		err = train(ctx, cfg)
	case "export":
		err = exportDataset(ctx, cfg, *format, *outDir)
	default:
		flag.Usage()
		os.Exit(2)
	}

	if err != nil {
		logger.Error("Команда завершилась с ошибкой", zap.String("command", command), zap.Error(err))
		_ = logger.GetLogger().Sync()
		os.Exit(1)
	}
	logger.Info("Завершение работы", zap.String("command", command))
}
