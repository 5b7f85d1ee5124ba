// Package mqtt publishes detection results to an MQTT broker so downstream
// automations can react to tongue position changes without polling the API.
package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	"tongue-vision-go/internal/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

// DetectionEvent is the JSON payload published per detection.
type DetectionEvent struct {
	Detection  string    `json:"detection"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
}

// outcomeWait bounds how long the drain loop waits on a single publish token.
const outcomeWait = 5 * time.Second

// Publisher is a thin MQTT client publishing detection events. Publishing is
// best effort: a broker outage never fails an API request.
type Publisher struct {
	cfg    config.MQTTConfig
	client mqtt.Client

	// pending carries publish tokens to the single drain goroutine so a
	// stalled broker cannot pile up one waiting goroutine per request.
	pending chan mqtt.Token
	done    chan struct{}
}

// NewPublisher creates a publisher from configuration. Call Start before
// publishing.
func NewPublisher(cfg config.MQTTConfig) *Publisher {
	return &Publisher{cfg: cfg}
}

// Start connects to the broker. Disabled configuration is not an error.
func (p *Publisher) Start() error {
	if !p.cfg.Enabled {
		log.Info("MQTT publisher is disabled in configuration")
		return nil
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", p.cfg.Broker, p.cfg.Port))
	opts.SetClientID(p.cfg.ClientID)
	if p.cfg.Username != "" {
		opts.SetUsername(p.cfg.Username)
		opts.SetPassword(p.cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warnf("MQTT connection lost: %v", err)
	})
	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		log.Infof("MQTT connected to %s:%d", p.cfg.Broker, p.cfg.Port)
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("timeout connecting to MQTT broker %s:%d", p.cfg.Broker, p.cfg.Port)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}

	p.client = client
	p.startOutcomeDrain()
	return nil
}

func (p *Publisher) startOutcomeDrain() {
	p.pending = make(chan mqtt.Token, 64)
	p.done = make(chan struct{})
	go func() {
		for {
			select {
			case token := <-p.pending:
				if !token.WaitTimeout(outcomeWait) {
					log.Warn("Timed out waiting for detection event publish")
				} else if err := token.Error(); err != nil {
					log.Warnf("Failed to publish detection event: %v", err)
				}
			case <-p.done:
				return
			}
		}
	}()
}

// trackOutcome hands a publish token to the drain loop. When the backlog is
// full the outcome goes unobserved rather than blocking the request path.
func (p *Publisher) trackOutcome(token mqtt.Token) {
	select {
	case p.pending <- token:
	default:
		log.Debug("Publish outcome backlog full, dropping token")
	}
}

// PublishDetection sends a detection event to the configured topic.
func (p *Publisher) PublishDetection(detection string, confidence float64) {
	if p.client == nil || !p.client.IsConnected() {
		return
	}

	event := DetectionEvent{
		Detection:  detection,
		Confidence: confidence,
		Timestamp:  time.Now(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		log.Errorf("Failed to marshal detection event: %v", err)
		return
	}

	p.trackOutcome(p.client.Publish(p.cfg.Topic, 0, false, payload))
}

// Stop disconnects from the broker.
func (p *Publisher) Stop() {
	if p.done != nil {
		close(p.done)
		p.done = nil
	}
	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(250)
		log.Info("MQTT publisher disconnected")
	}
}
