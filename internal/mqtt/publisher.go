package mqtt

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/hearthward/larder/internal/config"
	"github.com/hearthward/larder/internal/events"
)

// publishEvery is the fixed state publish interval. Bus events nudge an
// extra publish in between, so the interval only bounds staleness when
// nothing is happening.
const publishEvery = time.Minute

// Stats is one snapshot of the sensor values.
type Stats struct {
	InventoryItems int
	ExpiringRed    int
	ExpiringAmber  int
	ExpiringGreen  int
	PendingJobs    int
	TokensToday    int64
	LastScan       string
}

// StatsSource provides sensor state snapshots. The concrete adapter is
// wired in main to avoid coupling this package to the store, registry,
// and usage ledger.
type StatsSource interface {
	Snapshot() Stats
}

// Publisher manages the MQTT connection, publishes HA discovery config
// messages on (re-)connect, and pushes sensor state updates on a timer
// and on bus events.
type Publisher struct {
	cfg        config.MQTTConfig
	instanceID string
	device     DeviceInfo
	stats      StatsSource
	bus        *events.Bus
	logger     *slog.Logger
	cm         *autopaho.ConnectionManager
}

// New creates a Publisher but does not connect. Call [Publisher.Start]
// to begin the connection and publish loop. bus may be nil; the loop
// then runs on the timer alone.
func New(cfg config.MQTTConfig, instanceID string, stats StatsSource, bus *events.Bus, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		cfg:        cfg,
		instanceID: instanceID,
		device:     NewDeviceInfo(instanceID),
		stats:      stats,
		bus:        bus,
		logger:     logger,
	}
}

// Start connects to the MQTT broker and begins the publish loop. It
// blocks until ctx is cancelled. On every (re-)connect it publishes
// discovery configs and a birth message.
func (p *Publisher) Start(ctx context.Context) error {
	brokerURL, err := url.Parse(p.cfg.BrokerURL)
	if err != nil {
		return fmt.Errorf("parse mqtt broker URL: %w", err)
	}

	availTopic := p.availabilityTopic()

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       30,
		ConnectUsername: p.cfg.Username,
		ConnectPassword: []byte(p.cfg.Password),
		WillMessage: &paho.WillMessage{
			Topic:   availTopic,
			Payload: []byte("offline"),
			QoS:     1,
			Retain:  true,
		},
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			p.logger.Info("mqtt connected to broker", "broker", p.cfg.BrokerURL)
			p.publishDiscovery(ctx, cm)
			p.publishAvailability(ctx, cm, "online")
		},
		OnConnectError: func(err error) {
			p.logger.Warn("mqtt connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: "larder-" + shortID(p.instanceID),
		},
	}

	// Enable TLS for mqtts:// or ssl:// schemes.
	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	p.cm = cm

	// Wait for the initial connection before starting the publish loop.
	connCtx, connCancel := context.WithTimeout(ctx, 30*time.Second)
	defer connCancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		// Log but don't fail — autopaho keeps retrying in the background.
		p.logger.Warn("mqtt initial connection timed out, will retry in background", "error", err)
	}

	p.runLoop(ctx)
	return nil
}

// Stop gracefully disconnects by publishing an "offline" availability
// message before closing the MQTT connection. The provided context
// controls how long to wait for the publish and disconnect to complete.
func (p *Publisher) Stop(ctx context.Context) error {
	if p.cm == nil {
		return nil
	}
	p.publishAvailability(ctx, p.cm, "offline")
	return p.cm.Disconnect(ctx)
}

// --- Topic helpers ---

func (p *Publisher) baseTopic() string {
	return p.cfg.TopicPrefix
}

func (p *Publisher) availabilityTopic() string {
	return p.baseTopic() + "/availability"
}

func (p *Publisher) stateTopic(entity string) string {
	return p.baseTopic() + "/" + entity + "/state"
}

func (p *Publisher) discoveryTopic(component, entity string) string {
	return p.cfg.DiscoveryPrefix + "/" + component + "/" + p.cfg.TopicPrefix + "/" + entity + "/config"
}

// --- Discovery ---

type sensorDef struct {
	entitySuffix string
	config       SensorConfig
}

func (p *Publisher) sensorDefinitions() []sensorDef {
	avail := p.availabilityTopic()
	sensor := func(suffix, name, icon string) sensorDef {
		return sensorDef{
			entitySuffix: suffix,
			config: SensorConfig{
				// Short name + HasEntityName: HA prefixes the device name
				// itself, a full name here would double it.
				Name:              name,
				ObjectID:          suffix,
				HasEntityName:     true,
				UniqueID:          p.instanceID + "_" + suffix,
				StateTopic:        p.stateTopic(suffix),
				AvailabilityTopic: avail,
				Device:            p.device,
				Icon:              icon,
				StateClass:        "measurement",
			},
		}
	}

	defs := []sensorDef{
		sensor("inventory_items", "Inventory Items", "mdi:fridge-outline"),
		sensor("expiring_red", "Expiring Now", "mdi:alert-circle"),
		sensor("expiring_amber", "Expiring Soon", "mdi:alert"),
		sensor("expiring_green", "Fresh Items", "mdi:leaf"),
		sensor("pending_jobs", "Pending Jobs", "mdi:chef-hat"),
		sensor("tokens_today", "Tokens Today", "mdi:counter"),
		sensor("last_scan", "Last Expiry Scan", "mdi:clock-check"),
	}

	// tokens_today accumulates over the day; last_scan is a date, not a
	// measurement.
	defs[5].config.StateClass = "total_increasing"
	defs[5].config.UnitOfMeasurement = "tokens"
	defs[6].config.StateClass = ""
	defs[6].config.EntityCategory = "diagnostic"
	return defs
}

func (p *Publisher) publishDiscovery(ctx context.Context, cm *autopaho.ConnectionManager) {
	for _, s := range p.sensorDefinitions() {
		topic := p.discoveryTopic("sensor", s.entitySuffix)
		payload, err := json.Marshal(s.config)
		if err != nil {
			p.logger.Error("mqtt marshal discovery payload",
				"entity", s.entitySuffix, "error", err)
			continue
		}

		if _, err := cm.Publish(ctx, &paho.Publish{
			Topic:   topic,
			Payload: payload,
			QoS:     1,
			Retain:  true,
		}); err != nil {
			p.logger.Warn("mqtt discovery publish failed",
				"entity", s.entitySuffix, "topic", topic, "error", err)
		} else {
			p.logger.Debug("mqtt discovery published",
				"entity", s.entitySuffix, "topic", topic)
		}
	}
}

func (p *Publisher) publishAvailability(ctx context.Context, cm *autopaho.ConnectionManager, status string) {
	if _, err := cm.Publish(ctx, &paho.Publish{
		Topic:   p.availabilityTopic(),
		Payload: []byte(status),
		QoS:     1,
		Retain:  true,
	}); err != nil {
		p.logger.Warn("mqtt availability publish failed",
			"status", status, "error", err)
	} else {
		p.logger.Info("mqtt availability published", "status", status)
	}
}

// --- State loop ---

func (p *Publisher) runLoop(ctx context.Context) {
	ticker := time.NewTicker(publishEvery)
	defer ticker.Stop()

	var nudge <-chan events.Event
	if p.bus != nil {
		ch := p.bus.Subscribe(16)
		defer p.bus.Unsubscribe(ch)
		nudge = ch
	}

	// Publish immediately on start.
	p.publishStates(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.publishStates(ctx)
		case _, ok := <-nudge:
			if !ok {
				nudge = nil
				continue
			}
			p.publishStates(ctx)
		}
	}
}

func (p *Publisher) publishStates(ctx context.Context) {
	if p.cm == nil || p.stats == nil {
		return
	}

	s := p.stats.Snapshot()
	states := map[string]string{
		"inventory_items": fmt.Sprintf("%d", s.InventoryItems),
		"expiring_red":    fmt.Sprintf("%d", s.ExpiringRed),
		"expiring_amber":  fmt.Sprintf("%d", s.ExpiringAmber),
		"expiring_green":  fmt.Sprintf("%d", s.ExpiringGreen),
		"pending_jobs":    fmt.Sprintf("%d", s.PendingJobs),
		"tokens_today":    fmt.Sprintf("%d", s.TokensToday),
	}
	if s.LastScan != "" {
		states["last_scan"] = s.LastScan
	} else {
		states["last_scan"] = "never"
	}

	for entity, value := range states {
		if _, err := p.cm.Publish(ctx, &paho.Publish{
			Topic:   p.stateTopic(entity),
			Payload: []byte(value),
			QoS:     0,
			Retain:  true,
		}); err != nil {
			p.logger.Debug("mqtt state publish failed",
				"entity", entity, "error", err)
		}
	}

	p.logger.Debug("mqtt sensor states published", "entities", len(states))
}

// shortID trims an instance UUID down to its first segment for the
// client ID, which some brokers cap at 23 bytes.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
