package main

import (
	"context"
	"errors"
	"os"

	"github.com/fsdevblog/panel-ledger/internal/app"
	"github.com/fsdevblog/panel-ledger/internal/config"
	"github.com/fsdevblog/panel-ledger/internal/logger"
)

func main() {
	conf := config.MustLoadConfig()
	l := logger.NewWithFile(conf.LogFile)

	if err := app.New(conf, l).Run(); err != nil {
		if errors.Is(err, context.Canceled) {
			l.Info("graceful shutdown")
			os.Exit(0)
		}
		panic(err)
	}
}
