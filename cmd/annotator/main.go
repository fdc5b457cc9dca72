package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	imageannotator "github.com/menta2k/bbox-annotator"
	"github.com/menta2k/bbox-annotator/internal/logger"
	"github.com/menta2k/bbox-annotator/pkg/config"
)

func main() {
	var configPath, serverURL, logMode, metricsAddr, writeConfig string
	var assist, version bool

	flag.StringVar(&configPath, "config", "", "config file (yaml or json); empty uses defaults and ANNOTATOR_* env")
	flag.StringVar(&serverURL, "server", "", "labeling server base URL (overrides config)")
	flag.StringVar(&logMode, "log", "", "log mode: production|development (overrides config)")
	flag.StringVar(&metricsAddr, "metrics-addr", "", "address for /metrics, e.g. :9090 (overrides config)")
	flag.StringVar(&writeConfig, "write-config", "", "write the effective config to this file and exit")
	flag.BoolVar(&assist, "assist", false, "enable vision model box suggestions")
	flag.BoolVar(&version, "version", false, "print version and exit")
	flag.Parse()

	if version {
		fmt.Println(imageannotator.Version)
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal(err)
	}
	if serverURL != "" {
		cfg.Server.BaseURL = serverURL
	}
	if logMode != "" {
		cfg.Log.Mode = logMode
	}
	if metricsAddr != "" {
		cfg.Metrics.Addr = metricsAddr
	}
	if assist {
		cfg.Assist.Enabled = true
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	if writeConfig != "" {
		if err := cfg.SaveToFile(writeConfig); err != nil {
			log.Fatal(err)
		}
		fmt.Printf("config written to %s\n", writeConfig)
		return
	}

	if err := logger.Init(cfg.Log.Mode); err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync()
	l := logger.Log()
	logger.S().Infow("configuration loaded",
		"path", configPath,
		"server", cfg.Server.BaseURL,
		"canvas", fmt.Sprintf("%dx%d", cfg.Canvas.Width, cfg.Canvas.Height),
		"label", cfg.Label.Text,
		"assist", cfg.Assist.Enabled,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := imageannotator.New(cfg, imageannotator.WithLogger(l))
	if err != nil {
		l.Fatal("failed to build annotator", zap.Error(err))
	}
	defer a.Close()

	if cfg.Metrics.Addr != "" {
		go a.Metrics().Serve(ctx, cfg.Metrics.Addr, l.Named("metrics"))
		l.Info("serving metrics", zap.String("addr", cfg.Metrics.Addr))
	}

	ref, err := a.Start(ctx)
	if err != nil {
		l.Fatal("failed to load first image", zap.String("server", cfg.Server.BaseURL), zap.Error(err))
	}
	fmt.Printf("annotating %s (type help for commands)\n", ref.URI)

	if err := a.Console().Run(ctx, os.Stdin, os.Stdout); err != nil && ctx.Err() == nil {
		l.Error("console stopped", zap.Error(err))
	}
}
