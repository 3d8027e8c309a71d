//go:build no_serial
// +build no_serial

// Simulation-only build of sensor-bridge for platforms without serial
// support.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/spf13/pflag"

	"github.com/binwatch/internal/mqttclient"
)

func main() {
	broker := pflag.String("broker", "tcp://localhost:1883", "MQTT broker URL")
	topic := pflag.String("topic", "binwatch/telemetry", "telemetry topic")
	interval := pflag.Duration("interval", 2*time.Second, "sampling interval")
	pflag.Parse()

	mqttc, err := mqttclient.New(mqttclient.Options{
		BrokerURL: *broker,
		ClientID:  fmt.Sprintf("sensor-bridge-%d", time.Now().UnixNano()),
	})
	if err != nil {
		log.Fatalf("mqtt connect: %v", err)
	}
	defer mqttc.Close()

	fill := 10.0
	for {
		fill += 3 + rand.Float64()*4
		if fill > 100 {
			fill = 5
		}
		msg := map[string]any{
			"fillLevel": fill,
			"lidOpen":   rand.Intn(4) == 0,
			"timestamp": time.Now().Unix(),
		}
		b, _ := json.Marshal(msg)
		if err := mqttc.Publish(*topic, b, 0, false); err != nil {
			log.Printf("publish: %v", err)
		} else {
			log.Printf("published %s", b)
		}
		time.Sleep(*interval)
	}
}
