package ingestion

import (
	"log"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/binwatch/internal/mqttclient"
)

// DefaultTopic is where the sensor bridge publishes telemetry.
const DefaultTopic = "binwatch/telemetry"

// Service subscribes the pipeline to the sensor's MQTT topic.
type Service struct {
	mqtt  *mqttclient.Client
	pipe  *Pipeline
	topic string
}

func NewService(m *mqttclient.Client, pipe *Pipeline, topic string) *Service {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Service{mqtt: m, pipe: pipe, topic: topic}
}

// Start subscribes and begins feeding samples to the pipeline.
func (s *Service) Start() error {
	if err := s.mqtt.Subscribe(s.topic, 0, s.handle); err != nil {
		return err
	}
	log.Printf("[Ingest] Subscribed to %s", s.topic)
	return nil
}

func (s *Service) handle(_ mqtt.Client, msg mqtt.Message) {
	sample, err := ParseSample(msg.Payload())
	if err != nil {
		log.Printf("[Ingest] Rejected payload: %v (payload=%s)", err, msg.Payload())
		return
	}
	if err := s.pipe.Ingest(sample); err != nil {
		log.Printf("[Ingest] Ingest failed: %v", err)
	}
}
