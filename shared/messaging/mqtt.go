// Package messaging delivers contact requests to sellers over an MQTT broker.
//
// Each request is published as JSON to "{TopicPrefix}/{sellerID}" so a seller's
// client only needs to subscribe to its own topic.
package messaging

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dfryer1193/cropfeed/feed/domain"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var _ domain.ContactNotifier = (*MQTTPublisher)(nil)

const (
	// DefaultTopicPrefix is the topic prefix contact requests are published under.
	DefaultTopicPrefix = "cropfeed/contact"

	connectTimeout       = 30 * time.Second
	publishTimeout       = 10 * time.Second
	defaultRetryInterval = 5 * time.Second
)

var ErrNotConnected = errors.New("not connected to MQTT broker")

// MQTTConfig holds the broker connection settings.
type MQTTConfig struct {
	// Broker is the MQTT broker URL (e.g., "tcp://broker.example.com:1883").
	Broker   string
	Username string
	Password string
	UseTLS   bool
	// ClientID is generated when empty.
	ClientID    string
	TopicPrefix string
	// QoS is the publish quality of service, 0 to 2.
	QoS byte
	// RetryInterval is the wait between connection attempts.
	RetryInterval time.Duration
}

// MQTTPublisher implements domain.ContactNotifier over MQTT.
type MQTTPublisher struct {
	cfg MQTTConfig

	mu        sync.RWMutex
	client    paho.Client
	connected bool
}

func NewMQTTPublisher(cfg MQTTConfig) *MQTTPublisher {
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = DefaultTopicPrefix
	}
	if cfg.QoS > 2 {
		cfg.QoS = 2
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = defaultRetryInterval
	}
	return &MQTTPublisher{cfg: cfg}
}

// Connect dials the broker. The client reconnects on its own afterwards. If
// the first connection is not made in time the client is stopped, so no
// retries keep running behind a failed Connect.
func (p *MQTTPublisher) Connect(ctx context.Context) error {
	if p.cfg.Broker == "" {
		return errors.New("broker URL is required")
	}

	clientID := p.cfg.ClientID
	if clientID == "" {
		clientID = "cropfeed-" + uuid.NewString()[:8]
	}

	opts := paho.NewClientOptions().
		AddBroker(p.cfg.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(p.cfg.RetryInterval).
		SetMaxReconnectInterval(2 * time.Minute).
		SetKeepAlive(60 * time.Second).
		SetPingTimeout(10 * time.Second).
		SetCleanSession(true).
		SetOnConnectHandler(p.onConnected).
		SetConnectionLostHandler(p.onConnectionLost)

	if p.cfg.Username != "" {
		opts.SetUsername(p.cfg.Username)
	}
	if p.cfg.Password != "" {
		opts.SetPassword(p.cfg.Password)
	}
	if p.cfg.UseTLS {
		opts.SetTLSConfig(&tls.Config{
			MinVersion: tls.VersionTLS12,
		})
	}

	client := paho.NewClient(opts)
	p.mu.Lock()
	p.client = client
	p.mu.Unlock()

	timeout := connectTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}

	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		p.abandon(client)
		return errors.New("connection timeout")
	}
	if token.Error() != nil {
		p.abandon(client)
		return fmt.Errorf("connecting to broker: %w", token.Error())
	}
	return nil
}

func (p *MQTTPublisher) abandon(client paho.Client) {
	client.Disconnect(0)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client == client {
		p.client = nil
		p.connected = false
	}
}

// Close disconnects from the broker, waiting up to a second for in-flight work.
func (p *MQTTPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client != nil {
		p.client.Disconnect(1000)
		p.connected = false
	}
	return nil
}

func (p *MQTTPublisher) IsConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connected && p.client != nil && p.client.IsConnected()
}

// Topic returns the topic requests for sellerID are published to.
func (p *MQTTPublisher) Topic(sellerID string) string {
	if sellerID == "" {
		sellerID = domain.PlaceholderUserID
	}
	return p.cfg.TopicPrefix + "/" + sellerID
}

// NotifyContact publishes req to the seller's topic.
func (p *MQTTPublisher) NotifyContact(ctx context.Context, req domain.ContactRequest) error {
	if !p.IsConnected() {
		return ErrNotConnected
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encoding contact request: %w", err)
	}

	p.mu.RLock()
	client := p.client
	p.mu.RUnlock()

	token := client.Publish(p.Topic(req.SellerID), p.cfg.QoS, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(publishTimeout):
		return errors.New("timeout publishing to MQTT")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publishing contact request: %w", err)
	}

	log.Debug().Str("requestID", req.ID).Str("topic", p.Topic(req.SellerID)).Msg("Contact request published")
	return nil
}

func (p *MQTTPublisher) onConnected(_ paho.Client) {
	p.mu.Lock()
	p.connected = true
	p.mu.Unlock()

	log.Info().Str("broker", p.cfg.Broker).Msg("Connected to MQTT broker")
}

func (p *MQTTPublisher) onConnectionLost(_ paho.Client, err error) {
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()

	log.Error().Err(err).Str("broker", p.cfg.Broker).Msg("MQTT connection lost")
}
