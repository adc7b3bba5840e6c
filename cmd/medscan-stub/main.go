package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/csheth/medscan/internal/logger"
	"github.com/csheth/medscan/internal/stub"
)

func main() {
	_ = godotenv.Load()

	defaults := stub.DefaultOptions()
	addr := flag.String("addr", ":3000", "listen address")
	analysis := flag.String("analysis", defaults.Analysis, "analysis text returned by /analyze")
	confidence := flag.Float64("confidence", defaults.Confidence, "confidence returned by /analyze")
	failAnalyze := flag.Bool("fail-analyze", false, "answer /analyze with 502")
	failChat := flag.Bool("fail-chat", false, "answer /chat with 500")
	latency := flag.Duration("latency", 0, "delay before every answer")
	flag.Parse()

	logger.Logger.SetOutput(os.Stdout)
	gin.SetMode(gin.ReleaseMode)

	handler := stub.NewHandler(stub.Options{
		Analysis:     *analysis,
		Confidence:   *confidence,
		FailAnalyze:  *failAnalyze,
		FailChat:     *failChat,
		Latency:      *latency,
		MaxBodyBytes: defaults.MaxBodyBytes,
	})
	srv := &http.Server{
		Addr:              *addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.WithFields(logrus.Fields{"addr": *addr}).Info("stub backend listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("stub backend failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("stub backend shutdown")
	}
}
