//go:build !no_serial
// +build !no_serial

// sensor-bridge reads fill-level/lid readings from a serial-attached ESP32
// and publishes them as telemetry samples over MQTT. With -sim it
// generates a fill/empty cycle instead, for development without hardware.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/tarm/serial"

	"github.com/binwatch/internal/mqttclient"
)

func main() {
	port := pflag.String("port", "/dev/ttyUSB0", "serial port of the sensor")
	baud := pflag.Int("baud", 9600, "serial baud rate")
	broker := pflag.String("broker", "tcp://localhost:1883", "MQTT broker URL")
	topic := pflag.String("topic", "binwatch/telemetry", "telemetry topic")
	sim := pflag.Bool("sim", false, "simulate the sensor instead of reading serial")
	interval := pflag.Duration("interval", 2*time.Second, "simulated sampling interval")
	pflag.Parse()

	mqttc, err := mqttclient.New(mqttclient.Options{
		BrokerURL: *broker,
		ClientID:  fmt.Sprintf("sensor-bridge-%d", time.Now().UnixNano()),
	})
	if err != nil {
		log.Fatalf("mqtt connect: %v", err)
	}
	defer mqttc.Close()

	if *sim {
		simulate(mqttc, *topic, *interval)
		return
	}

	s, err := serial.OpenPort(&serial.Config{Name: *port, Baud: *baud})
	if err != nil {
		log.Fatalf("open serial: %v", err)
	}

	// The firmware prints one "fill,lid" line per sample, e.g. "42.5,0".
	scanner := bufio.NewScanner(s)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fill, lid, err := parseLine(line)
		if err != nil {
			log.Printf("skipping line %q: %v", line, err)
			continue
		}
		publish(mqttc, *topic, fill, lid)
	}
	if err := scanner.Err(); err != nil {
		log.Printf("serial read: %v", err)
	}
}

func parseLine(line string) (float64, bool, error) {
	parts := strings.Split(line, ",")
	if len(parts) != 2 {
		return 0, false, fmt.Errorf("want fill,lid")
	}
	fill, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, false, fmt.Errorf("bad fill level: %w", err)
	}
	lid := strings.TrimSpace(parts[1]) == "1"
	return fill, lid, nil
}

func publish(mqttc *mqttclient.Client, topic string, fill float64, lid bool) {
	msg := map[string]any{
		"fillLevel": fill,
		"lidOpen":   lid,
		"timestamp": time.Now().Unix(),
	}
	b, _ := json.Marshal(msg)
	if err := mqttc.Publish(topic, b, 0, false); err != nil {
		log.Printf("publish: %v", err)
		return
	}
	log.Printf("published %s", b)
}

// simulate walks the bin through fill-up and empty cycles with occasional
// lid openings.
func simulate(mqttc *mqttclient.Client, topic string, interval time.Duration) {
	fill := 10.0
	for {
		fill += 3 + rand.Float64()*4
		if fill > 100 {
			fill = 5 // emptied
		}
		lid := rand.Intn(4) == 0
		publish(mqttc, topic, fill, lid)
		time.Sleep(interval)
	}
}
