package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/binwatch/internal/alert"
	"github.com/binwatch/internal/api"
	"github.com/binwatch/internal/config"
	"github.com/binwatch/internal/hub"
	"github.com/binwatch/internal/ingestion"
	"github.com/binwatch/internal/mqttclient"
	"github.com/binwatch/internal/notify"
	"github.com/binwatch/internal/registry"
	"github.com/binwatch/internal/telemetry"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		log.Fatalf("create data directory: %v", err)
	}

	store, err := telemetry.Open(filepath.Join(cfg.DataDir, "telemetry.seg"))
	if err != nil {
		log.Fatalf("telemetry store: %v", err)
	}
	defer store.Close()
	log.Printf("Loaded %d samples from telemetry segment", store.Len())

	reg, err := registry.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("session registry: %v", err)
	}

	h := hub.New(reg)
	go h.Run()

	gateway := notify.NewHTTPGateway(cfg.PushGatewayURL, cfg.PushTimeout())
	router := notify.NewRouter(reg, h, gateway, cfg.PushTimeout())

	state := ingestion.NewState()
	debounce := alert.NewDebouncer(cfg.AlertThreshold)
	pipe := ingestion.NewPipeline(store, debounce, router, h, state)

	if cfg.BrokerURL != "" {
		mqttc, err := mqttclient.New(mqttclient.Options{
			BrokerURL: cfg.BrokerURL,
			ClientID:  fmt.Sprintf("binwatchd-%d", time.Now().UnixNano()),
		})
		if err != nil {
			log.Fatalf("mqtt client: %v", err)
		}
		defer mqttc.Close()

		svc := ingestion.NewService(mqttc, pipe, cfg.Topic)
		if err := svc.Start(); err != nil {
			log.Fatalf("mqtt ingest: %v", err)
		}
	} else {
		log.Printf("MQTT ingest disabled (no broker configured)")
	}

	server := api.New(store, reg, h, pipe, state)
	go func() {
		if err := server.Start(cfg.ListenPort); err != nil {
			log.Fatalf("http server: %v", err)
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	log.Printf("Shutting down...")
	if err := store.Flush(); err != nil {
		log.Printf("Final flush failed: %v", err)
	}
}
