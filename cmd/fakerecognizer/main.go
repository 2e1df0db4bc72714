package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/imbesat-rizvi/imperio/internal/recognizertest"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:8765", "Listen address")
	transcripts := flag.String("transcripts", "", "Comma separated transcripts returned per utterance")
	apiKey := flag.String("api-key", "", "Required API key (empty accepts any client)")
	interim := flag.Int("interim-every", 6400, "Bytes of audio between interim results (0 disables)")
	final := flag.Int("final-every", 64000, "Bytes of audio after which an utterance is finalized (0 disables)")
	confidence := flag.Float64("confidence", 0.9, "Confidence reported with every result")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	var script []string
	for _, t := range strings.Split(*transcripts, ",") {
		if t = strings.TrimSpace(t); t != "" {
			script = append(script, t)
		}
	}

	recognizer := recognizertest.NewServer(logger, script...)
	recognizer.APIKey = *apiKey
	recognizer.InterimEvery = *interim
	recognizer.FinalEvery = *final
	recognizer.Confidence = *confidence

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Handle("/v1/listen", recognizer)
	router.Get("/sessions", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(recognizer.Sessions()); err != nil {
			logger.Error("Failed to encode sessions", slog.String("error", err.Error()))
		}
	})

	httpServer := &http.Server{
		Addr:              *addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Fake recognizer listening", slog.String("address", "ws://"+*addr+"/v1/listen"))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("Received shutdown signal", slog.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
	}
}
