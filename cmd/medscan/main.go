package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"

	"github.com/csheth/medscan/internal/capture"
	"github.com/csheth/medscan/internal/config"
	"github.com/csheth/medscan/internal/logger"
	"github.com/csheth/medscan/internal/media"
	"github.com/csheth/medscan/internal/report"
	"github.com/csheth/medscan/internal/scanapi"
	"github.com/csheth/medscan/internal/session"
	"github.com/csheth/medscan/internal/tui"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run returns the exit code so deferred releases happen before the process exits.
func run(args []string) int {
	cfg, err := config.Load(args)
	if errors.Is(err, flag.ErrHelp) {
		fmt.Println("Usage of medscan:")
		config.Usage(os.Stdout)
		return 0
	}
	if err != nil {
		fmt.Println("configuration error:", err)
		return 2
	}

	logCloser, err := logger.Setup(cfg.LogFile, cfg.LogLevel)
	if err != nil {
		fmt.Println("failed to open log file:", err)
		return 1
	}
	defer logCloser.Close()

	client := scanapi.New(scanapi.Config{Endpoint: cfg.Endpoint})
	analyzer, err := scanapi.NewCachingAnalyzer(client, cfg.CacheSize)
	if err != nil {
		fmt.Println("failed to create analysis cache:", err)
		return 1
	}

	reports, err := reportStore(cfg)
	if err != nil {
		fmt.Println("report export disabled:", err)
		logger.WithError(err).Warn("report export disabled")
	}

	camera := capture.NewCamera(cameraDevice(cfg))
	defer func() {
		if err := camera.Release(); err != nil {
			logger.WithError(err).Warn("camera release at shutdown failed")
		}
	}()

	orchestrator := session.New(analyzer, client,
		session.WithObserver(session.NewLoggingObserver(logger.Logger)),
	)

	logger.WithFields(logrus.Fields{
		"endpoint": cfg.Endpoint,
		"camera":   camera.Name(),
		"cache":    cfg.CacheSize,
	}).Info("medscan starting")

	opts := []tea.ProgramOption{tea.WithMouseCellMotion()}
	if !cfg.NoAltScreen {
		opts = append(opts, tea.WithAltScreen())
	}
	program := tea.NewProgram(
		tui.New(tui.Config{
			Session:        orchestrator,
			Loader:         media.NewLoader(nil, cfg.MaxUploadBytes),
			Camera:         camera,
			Reports:        reports,
			Backend:        client.Name(),
			AnalyzeTimeout: cfg.AnalyzeTimeout,
			ChatTimeout:    cfg.ChatTimeout,
			CaptureTimeout: cfg.CaptureTimeout,
			Markdown:       cfg.Markdown,
		}),
		opts...,
	)

	if _, err := program.Run(); err != nil {
		logger.WithError(err).Error("program error")
		fmt.Println("program error:", err)
		return 1
	}
	return 0
}

func cameraDevice(cfg *config.Config) capture.Device {
	if cfg.CameraStill != "" {
		return capture.StillDevice{Path: cfg.CameraStill}
	}
	return capture.CommandDevice{
		Node:    cfg.CameraNode,
		Command: cfg.CameraCommand,
		Logger:  logger.Logger,
	}
}

func reportStore(cfg *config.Config) (report.Store, error) {
	if !cfg.ReportBucket.Enabled() {
		return report.NewFileStore(cfg.ReportPath), nil
	}
	b := cfg.ReportBucket
	store, err := report.NewObjectStore(report.ObjectConfig{
		Endpoint:  b.Endpoint,
		Region:    b.Region,
		AccessKey: b.AccessKey,
		SecretKey: b.SecretKey,
		Bucket:    b.Name,
		Prefix:    b.Prefix,
		UseSSL:    b.UseSSL,
	})
	if err != nil {
		return nil, err
	}
	return store, nil
}
