package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/skalibog/signalflow/internal/analysis/aggregator"
	"github.com/skalibog/signalflow/internal/analysis/strategy"
	"github.com/skalibog/signalflow/internal/config"
	"github.com/skalibog/signalflow/internal/exchange"
	"github.com/skalibog/signalflow/internal/metrics"
	"github.com/skalibog/signalflow/internal/storage"
	"github.com/skalibog/signalflow/internal/tracker"
	"github.com/skalibog/signalflow/pkg/logger"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:           "signalflow",
		Short:         "Генератор торговых сигналов по техническим индикаторам",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "путь к файлу конфигурации")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(analyzeCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка: %v\n", err)
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Запустить генерацию и сопровождение сигналов",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if err := initLogger(cfg); err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return run(ctx, cfg)
		},
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	client, err := exchange.NewBinanceClient(cfg.Binance)
	if err != nil {
		return fmt.Errorf("ошибка инициализации клиента биржи: %w", err)
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	if cfg.Metrics.Enabled {
		srv := metrics.Serve(cfg.Metrics.Addr, prometheus.DefaultGatherer)
		defer srv.Close()
		logger.Info("Метрики доступны", zap.String("addr", cfg.Metrics.Addr))
	}

	sinks := storage.Multi{storage.NewLogSink(nil)}
	if cfg.Storage.Enabled {
		influx, err := storage.NewInfluxDBSink(ctx, cfg.Storage)
		if err != nil {
			return fmt.Errorf("ошибка инициализации хранилища: %w", err)
		}
		defer influx.Close()
		sinks = append(sinks, influx)
	}

	strategies := strategy.FromConfig(cfg.Analysis.Strategies)
	names := make([]string, len(strategies))
	for i, s := range strategies {
		names[i] = s.Name
	}

	tr := tracker.New(cfg.Tracking, names)
	var opts []strategy.Option
	if *cfg.Tracking.BiasConfidence {
		opts = append(opts, strategy.WithModels(tr))
	}
	gen := strategy.NewGenerator(cfg.Analysis, strategies, opts...)

	analyzer := aggregator.NewAnalyzer(cfg, client, gen, tr, sinks, m)

	logger.Info("Запуск",
		zap.String("market", client.Market()),
		zap.Strings("symbols", cfg.Trading.Symbols),
		zap.String("interval", cfg.Trading.Interval),
		zap.Strings("strategies", names))

	err = analyzer.Run(ctx, client)
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	logger.Info("Завершение работы")
	return err
}

func analyzeCmd() *cobra.Command {
	var (
		interval string
		limit    int
		timeout  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "analyze SYMBOL",
		Short: "Разово проанализировать символ и вывести результат в JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadOrDefault(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("interval") {
				cfg.Trading.Interval = interval
			}
			if cmd.Flags().Changed("limit") {
				cfg.Trading.CandleLimit = limit
			}
			symbol := strings.ToUpper(args[0])
			cfg.Trading.Symbols = []string{symbol}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := initLogger(cfg); err != nil {
				return err
			}
			defer logger.Sync()

			client, err := exchange.NewBinanceClient(cfg.Binance)
			if err != nil {
				return err
			}

			gen := strategy.NewGenerator(cfg.Analysis, strategy.FromConfig(cfg.Analysis.Strategies))
			analyzer := aggregator.NewAnalyzer(cfg, client, gen, tracker.New(cfg.Tracking, nil), nil, nil)

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			report, err := analyzer.Analyze(ctx, symbol)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
	cmd.Flags().StringVar(&interval, "interval", "15m", "интервал свечей: 15m, 1h, 4h, 1d")
	cmd.Flags().IntVar(&limit, "limit", 100, "число загружаемых свечей")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "ограничение времени запроса")
	return cmd
}

// loadOrDefault читает конфигурацию, а при ее отсутствии берет значения по умолчанию
func loadOrDefault(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return config.Default(), nil
	}
	return cfg, err
}

func initLogger(cfg *config.Config) error {
	return logger.Init(logger.Options{
		Level:    cfg.Log.Level,
		File:     cfg.Log.File,
		JSONFile: cfg.Log.JSONFile,
	})
}
