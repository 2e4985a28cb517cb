package main

import (
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/wardenproxy/warden/internal/config"
	"github.com/wardenproxy/warden/internal/database"
	"github.com/wardenproxy/warden/internal/logger"
	"github.com/wardenproxy/warden/internal/server"
	"github.com/wardenproxy/warden/internal/version"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logDir := filepath.Join(filepath.Dir(cfg.DatabasePath), "logs")
	_ = os.MkdirAll(logDir, 0o755)
	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(logDir, "warden.log"),
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}
	logger.Init(cfg.IsDevelopment(), io.MultiWriter(os.Stdout, rotator))

	logger.WithFields(map[string]interface{}{
		"version": version.Full(),
		"target":  cfg.TargetURL,
	}).Infof("starting %s", version.Name)

	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}

	srv, err := server.New(db, cfg)
	if err != nil {
		log.Fatalf("build server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.WithFields(map[string]interface{}{"port": cfg.HTTPPort}).Info("listening")
	if err := srv.Run(ctx); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
