// Package mqttingress is the MQTT Ingress: a single persistent paho.mqtt.golang
// session subscribing to the device-scoped topic tree, dispatching each
// inbound message by topic suffix to the Telemetry Pipeline or a direct
// Liveness Cache update, behind a bounded backpressure queue and worker pool.
package mqttingress

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/iotflow/connectivity/internal/identity"
	"github.com/iotflow/connectivity/internal/liveness"
	"github.com/iotflow/connectivity/internal/pipeline"
)

const (
	topicFilter     = "iotflow/devices/+/telemetry/#"
	statusFilter    = "iotflow/devices/+/status/#"
	commandsFilter  = "iotflow/devices/+/commands/#"
	willTopic       = "$SYS/iotflow/ingress/offline"
	reconnectBase   = 1 * time.Second
	reconnectFactor = 2
	reconnectMax    = 30 * time.Second
)

// inboundMessage is a parsed and queued MQTT message awaiting a worker.
type inboundMessage struct {
	deviceID string
	kind     messageKind
	payload  []byte
}

type messageKind int

const (
	kindTelemetry messageKind = iota
	kindStatus
)

// envelope is the JSON shape published on both telemetry and status topics.
type envelope struct {
	APIKey    string            `json:"api_key"`
	Timestamp *time.Time        `json:"timestamp"`
	Data      map[string]any    `json:"data"`
	Metadata  map[string]string `json:"metadata"`
}

// Ingress owns the broker connection and the in-process dispatch queue.
type Ingress struct {
	client   mqtt.Client
	auth     *identity.Authenticator
	rl       *identity.RateLimiter
	pipeline *pipeline.Service
	live     *liveness.Cache
	logger   *slog.Logger

	queue    chan inboundMessage
	workers  int
	wg       sync.WaitGroup
	quit     chan struct{}
}

// Options configures the broker connection.
type Options struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string
	QueueSize int
	Workers   int
}

func New(opts Options, auth *identity.Authenticator, rl *identity.RateLimiter, svc *pipeline.Service, live *liveness.Cache, logger *slog.Logger) *Ingress {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 4096
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}

	ing := &Ingress{
		auth:     auth,
		rl:       rl,
		pipeline: svc,
		live:     live,
		logger:   logger,
		queue:    make(chan inboundMessage, opts.QueueSize),
		workers:  opts.Workers,
		quit:     make(chan struct{}),
	}

	mqttOpts := mqtt.NewClientOptions().
		AddBroker(opts.BrokerURL).
		SetClientID(opts.ClientID).
		SetUsername(opts.Username).
		SetPassword(opts.Password).
		SetCleanSession(false).
		SetAutoReconnect(false). // the supervisor loop owns reconnect/backoff
		SetWill(willTopic, "offline", 1, true).
		SetConnectionLostHandler(ing.onConnectionLost).
		SetOnConnectHandler(ing.onConnect)

	ing.client = mqtt.NewClient(mqttOpts)
	return ing
}

// Start connects, subscribes, and launches the worker pool. It blocks until
// the initial connection succeeds or ctx is cancelled.
func (ing *Ingress) Start(ctx context.Context) error {
	for i := 0; i < ing.workers; i++ {
		ing.wg.Add(1)
		go ing.worker(ctx)
	}

	return ing.connectWithBackoff(ctx)
}

// Health reports broker connectivity for the composite health check.
func (ing *Ingress) Health(_ context.Context) error {
	if !ing.client.IsConnected() {
		return fmt.Errorf("mqtt broker not connected")
	}
	return nil
}

// Close disconnects from the broker and drains the worker pool.
func (ing *Ingress) Close() {
	close(ing.quit)
	if ing.client.IsConnected() {
		ing.client.Disconnect(250)
	}
	ing.wg.Wait()
}

// connectWithBackoff retries Connect with exponential backoff (1s→30s,
// unlimited attempts) until it succeeds or ctx is cancelled. It is also the
// reconnect path: onConnectionLost re-enters it.
func (ing *Ingress) connectWithBackoff(ctx context.Context) error {
	delay := reconnectBase
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ing.quit:
			return nil
		default:
		}

		token := ing.client.Connect()
		if token.WaitTimeout(10*time.Second) && token.Error() == nil {
			ing.logger.Info("mqtt ingress connected")
			return nil
		}

		ing.logger.Warn("mqtt ingress connect failed, retrying", "error", token.Error(), "delay", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		case <-ing.quit:
			return nil
		}

		delay *= reconnectFactor
		if delay > reconnectMax {
			delay = reconnectMax
		}
	}
}

func (ing *Ingress) onConnectionLost(_ mqtt.Client, err error) {
	ing.logger.Warn("mqtt ingress connection lost", "error", err)
	go func() {
		_ = ing.connectWithBackoff(context.Background())
	}()
}

// onConnect (re)subscribes on every connect, including reconnects, per the
// broker session discipline.
func (ing *Ingress) onConnect(client mqtt.Client) {
	subs := map[string]byte{
		topicFilter:    1,
		statusFilter:   1,
		commandsFilter: 1,
	}
	if token := client.SubscribeMultiple(subs, ing.onMessage); token.Wait() && token.Error() != nil {
		ing.logger.Error("mqtt ingress subscribe failed", "error", token.Error())
	}
}

// onMessage is the paho callback. It must never block — parsing and
// dispatch happen on worker goroutines via the bounded queue.
func (ing *Ingress) onMessage(_ mqtt.Client, msg mqtt.Message) {
	deviceID, kind, ok := parseTopic(msg.Topic())
	if !ok {
		return
	}
	if kind == kindCommandsLoopback {
		return // subscribed only for loopback verification, not consumed
	}

	m := inboundMessage{deviceID: deviceID, kind: kind, payload: msg.Payload()}

	select {
	case ing.queue <- m:
	default:
		ing.dropOldestNonTelemetry(m)
	}
}

// dropOldestNonTelemetry implements the overflow policy: when the queue is
// full, drop the oldest non-telemetry message to make room before dropping
// (and leaving unacked) the newest message so the broker re-delivers it.
func (ing *Ingress) dropOldestNonTelemetry(newest inboundMessage) {
	select {
	case old := <-ing.queue:
		if old.kind == kindStatus {
			ing.logger.Warn("mqtt ingress queue full, dropped oldest status message")
		} else {
			// No non-telemetry message to evict; put it back and drop newest.
			select {
			case ing.queue <- old:
			default:
			}
			ing.logger.Warn("mqtt ingress queue full, dropping newest message for redelivery", "device_id", newest.deviceID)
			return
		}
	default:
	}

	select {
	case ing.queue <- newest:
	default:
		ing.logger.Warn("mqtt ingress queue still full after eviction, dropping newest message", "device_id", newest.deviceID)
	}
}

const kindCommandsLoopback messageKind = -1

func (ing *Ingress) worker(ctx context.Context) {
	defer ing.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ing.quit:
			return
		case m := <-ing.queue:
			dctx, cancel := context.WithTimeout(ctx, 10*time.Second)
			ing.dispatch(dctx, m)
			cancel()
		}
	}
}

func (ing *Ingress) dispatch(ctx context.Context, m inboundMessage) {
	var env envelope
	if err := json.Unmarshal(m.payload, &env); err != nil {
		ing.logger.Warn("mqtt ingress: invalid JSON payload", "device_id", m.deviceID, "error", err)
		return
	}

	id, err := ing.auth.Resolve(ctx, env.APIKey)
	if err != nil {
		ing.logger.Warn("mqtt ingress: auth failed", "device_id", m.deviceID, "error", err)
		return
	}
	if strconv.FormatInt(id.DeviceID, 10) != m.deviceID {
		ing.logger.Warn("mqtt ingress: api key does not match topic device id", "topic_device_id", m.deviceID, "resolved_device_id", id.DeviceID)
		return
	}

	scope := identity.ScopeTelemetry
	if m.kind == kindStatus {
		scope = identity.ScopeHeartbeat
	}
	if err := ing.rl.Check(ctx, scope, m.deviceID); err != nil {
		ing.logger.Warn("mqtt ingress: rate limited", "device_id", m.deviceID, "error", err)
		return
	}

	switch m.kind {
	case kindTelemetry:
		if identity.RequireActive(id) != nil {
			ing.logger.Warn("mqtt ingress: telemetry from non-active device", "device_id", id.DeviceID)
			return
		}
		ing.pipeline.SubmitAsync(ctx, id.DeviceID, pipeline.Envelope{
			DeviceID:  id.DeviceID,
			Timestamp: env.Timestamp,
			Data:      env.Data,
			Metadata:  env.Metadata,
		})
	case kindStatus:
		ing.live.SetOnline(ctx, id.DeviceID, ing.pipeline.HeartbeatTTL(), time.Now().UTC())
	}
}

// parseTopic extracts the device id and message kind from a topic of the
// form iotflow/devices/{id}/telemetry/{sensors|events|metrics},
// iotflow/devices/{id}/status/{heartbeat|online|offline}, or
// iotflow/devices/{id}/commands/control.
func parseTopic(topic string) (deviceID string, kind messageKind, ok bool) {
	parts := strings.Split(topic, "/")
	if len(parts) < 4 || parts[0] != "iotflow" || parts[1] != "devices" {
		return "", 0, false
	}
	deviceID = parts[2]
	switch parts[3] {
	case "telemetry":
		return deviceID, kindTelemetry, true
	case "status":
		return deviceID, kindStatus, true
	case "commands":
		return deviceID, kindCommandsLoopback, true
	default:
		return "", 0, false
	}
}
