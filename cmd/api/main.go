package main

import (
	"net/http"
	"time"

	"github.com/joho/godotenv"

	"callaudit/internal/analysis"
	"callaudit/internal/config"
	"callaudit/internal/judgment"
	"callaudit/internal/logger"
	"callaudit/internal/orchestrator"
	"callaudit/internal/reference"
	"callaudit/internal/restructure"
	"callaudit/internal/server"
	"callaudit/internal/stage"
	"callaudit/internal/store"
	"callaudit/internal/transcribe"
	"callaudit/internal/voicelog"
)

func main() {
	_ = godotenv.Load() // loads .env

	cfg, err := config.New()
	if err != nil {
		logger.New("", "").WithError(err).Fatal("failed to load configuration")
	}

	log := logger.New(cfg.Environment, cfg.LogLevel)
	log.WithField("service", "callaudit").Info("starting service")

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		log.WithError(err).Fatal("failed to open job store")
	}
	defer st.Close()
	log.WithField("db_path", cfg.DatabasePath).Info("job store ready")

	ref, err := reference.Load(cfg.ReferencePath)
	if err != nil {
		log.WithError(err).Fatal("failed to load reference workbook")
	}
	log.WithField("reference_path", cfg.ReferencePath).Info("reference data loaded")

	llm := judgment.NewClient(cfg.JudgmentURL, cfg.JudgmentModel, cfg.JudgmentAPIKey, log)
	transcriber := transcribe.NewService(cfg.AudioBackendURL, cfg.AudioFallbackBackendURL, log)
	scheduler := restructure.NewScheduler(llm, log)
	detector := voicelog.NewDetector(llm, log)
	analyzer := analysis.NewAnalyzer(llm, st, log)
	orch := orchestrator.New(stage.NewClient(log), st, cfg.StageBaseURL, log)

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      server.New(st, ref, transcriber, scheduler, detector, analyzer, orch, log).Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}
	log.WithField("addr", cfg.Addr).Info("listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.WithError(err).Fatal("server terminated")
	}
}
