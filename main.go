package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/xerrors"

	"github.com/khaledhikmat/vs-track/mode"
	"github.com/khaledhikmat/vs-track/pipeline"
	"github.com/khaledhikmat/vs-track/service/config"
	"github.com/khaledhikmat/vs-track/service/data"
	"github.com/khaledhikmat/vs-track/service/events"
	"github.com/khaledhikmat/vs-track/service/lgr"
	"github.com/khaledhikmat/vs-track/service/verifier"
)

const (
	// WARNING: this has to be bigger that the mode processor shutdown time
	waitOnShutdown = 8 * time.Second

	defaultConfigFile = "vstrack.toml"
)

var modeProcessors = map[string]mode.Processor{
	"run":    mode.Run,
	"report": mode.Report,
}

func main() {
	rootCtx := context.Background()
	canxCtx, canxFn := context.WithCancel(rootCtx)

	// Hook up a signal handler to cancel the context
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		lgr.Logger.Info(
			"received kill signal",
			slog.Any("signal", sig),
		)
		canxFn()
	}()

	// Load env vars if we are in DEV mode. The .env file is optional.
	if os.Getenv("RUN_TIME_ENV") == "dev" || os.Getenv("RUN_TIME_ENV") == "" {
		if err := godotenv.Load(); err != nil {
			lgr.Logger.Info("no .env file loaded", slog.Any("error", err))
		}
	}

	modeType := "run"
	args := os.Args[1:]
	if len(args) > 0 {
		modeType = args[0]
	}

	modeProc, ok := modeProcessors[modeType]
	if !ok {
		lgr.Logger.Error("invalid mode", slog.String("mode", modeType))
		panic("invalid mode")
	}

	cfgFile := os.Getenv("VSTRACK_CONFIG")
	if len(args) > 1 {
		cfgFile = args[1]
	}
	if cfgFile == "" {
		cfgFile = defaultConfigFile
	}

	// Config service
	cfgSvc, err := config.NewToml(cfgFile)
	if err != nil {
		lgr.Logger.Error("error loading config", slog.String("file", cfgFile), slog.Any("error", err))
		panic("error loading config")
	}
	// Data service
	dataSvc, err := data.NewSqlite(cfgSvc.GetDatabasePath())
	if err != nil {
		lgr.Logger.Error("error opening database", slog.String("path", cfgSvc.GetDatabasePath()), slog.Any("error", err))
		panic("error opening database")
	}
	defer dataSvc.Close()

	svcs := pipeline.ServicesFactory{
		CfgSvc:      cfgSvc,
		DataSvc:     dataSvc,
		VerifierSvc: verifier.NewFake(),
		EventsSvc:   events.NewLogging(),
	}

	// Create mode processor result
	modeProcResult := make(chan error, 1)

	// Start the mode processor
	go func() {
		modeProcResult <- modeProc(canxCtx, svcs)
	}()

	// Wait for cancellation or mode proc
	for {
		select {
		case <-canxCtx.Done():
			lgr.Logger.Info(
				"context cancelled",
				slog.String("mode", modeType),
			)
			goto resume

		case err := <-modeProcResult:
			if err != nil {
				lgr.Logger.Info(
					"mode processor exited",
					slog.Any("error", xerrors.Errorf("mode %s: %w", modeType, err)),
				)
			}
			canxFn()
			return
		}
	}

	// Wait in a non-blocking way for `waitOnShutdown` for the mode processor
	// to finish draining
resume:
	lgr.Logger.Info(
		"waiting for mode processor to exit",
	)

	timer := time.NewTimer(waitOnShutdown)
	defer timer.Stop()

	select {
	case <-timer.C:
		lgr.Logger.Info(
			"shutdown waiting period expired. Exiting now",
			slog.Duration("period", waitOnShutdown),
		)

	case err := <-modeProcResult:
		if err != nil {
			lgr.Logger.Info(
				"mode processor exited",
				slog.Any("error", xerrors.Errorf("mode %s: %w", modeType, err)),
			)
		}
	}
}
