package main

import (
	"context"
	"log"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"github.com/murairam/my-spotify-wrapped-sub000/internal/app"
	"github.com/murairam/my-spotify-wrapped-sub000/internal/config"
	"github.com/murairam/my-spotify-wrapped-sub000/internal/logger"
)

func main() {
	cfg, err := config.Load(envName())
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	l, err := logger.New(cfg.DevMode, cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer l.Sync()

	application, err := app.NewApp(context.Background(), cfg, l)
	if err != nil {
		l.Fatal("failed to initialize app", zap.Error(err))
	}
	lambda.Start(application.HandleRequest)
}

func envName() string {
	if env := os.Getenv("APP_ENV"); env != "" {
		return env
	}
	return "production"
}
