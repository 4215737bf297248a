package main

import (
	"log"
	"log/slog"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"sceneminer/internal/api"
	"sceneminer/internal/config"
)

func main() {
	_ = godotenv.Load(".env")
	cfg := config.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	s := api.NewServer(cfg, logger)
	log.Printf("sceneminer api listening on %s processors=%q", cfg.APIAddr, cfg.Processors)
	if err := http.ListenAndServe(cfg.APIAddr, s.Routes()); err != nil {
		log.Fatal(err)
	}
}
