// Gray Logic Commands - command delivery service
//
// This is the main entry point for the command delivery service. It consumes
// enriched command invocations from the MQTT bus, resolves the target device
// and its gateway, and delivers the encoded command through the configured
// destinations (SMS, CoAP, MQTT, raw socket).
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	_ "github.com/nerrad567/gray-logic-commands/migrations"

	"github.com/nerrad567/gray-logic-commands/internal/commands"
	"github.com/nerrad567/gray-logic-commands/internal/commands/outcomes"
	"github.com/nerrad567/gray-logic-commands/internal/commands/routing"
	"github.com/nerrad567/gray-logic-commands/internal/destinations"
	"github.com/nerrad567/gray-logic-commands/internal/device"
	"github.com/nerrad567/gray-logic-commands/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-commands/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-commands/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-commands/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-commands/internal/infrastructure/metrics"
	"github.com/nerrad567/gray-logic-commands/internal/infrastructure/mqtt"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// stopGrace is added to the consumer shutdown timeout when bounding the
// whole shutdown sequence.
const stopGrace = 5 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting Gray Logic Commands",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
		"tenant", cfg.Tenant.ID,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Device resolver
	registry, err := startRegistry(ctx, cfg, db, log)
	if err != nil {
		return err
	}

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		stats := mqttClient.Stats()
		log.Info("disconnecting from MQTT",
			"received", stats.Received,
			"handler_errors", stats.HandlerErrors,
			"panics", stats.Panics,
		)
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log.Component("mqtt"))
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Outcome recorders: SQLite always, InfluxDB when enabled
	recorders := []commands.Recorder{outcomes.NewSQLiteStore(db.DB)}
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			stats := influxClient.Stats()
			log.Info("closing InfluxDB connection",
				"written", stats.Written,
				"dropped", stats.Dropped,
				"failed", stats.Failed,
			)
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		recorders = append(recorders, outcomes.NewInflux(influxClient, cfg.Tenant.ID))
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	var metricsErr <-chan error
	if cfg.Metrics.Enabled {
		srv := metrics.NewServer(cfg.Metrics, reg)
		srv.SetLogger(log.Component("metrics"))
		srv.SetHealthCheck(func(ctx context.Context) error {
			return healthCheck(ctx, db, mqttClient, influxClient)
		})
		metricsErr = srv.Start()
		defer func() {
			if closeErr := srv.Close(context.Background()); closeErr != nil {
				log.Error("error closing metrics server", "error", closeErr)
			}
		}()
		log.Info("metrics server listening", "listen", cfg.Metrics.Listen)
	}

	// Command pipeline
	manager, err := newManager(cfg, registry, recorders, mqttClient, m, log)
	if err != nil {
		return err
	}
	if startErr := manager.Start(ctx); startErr != nil {
		return fmt.Errorf("starting destinations: %w", startErr)
	}
	defer func() {
		log.Info("stopping destinations")
		stopCtx, cancel := context.WithTimeout(context.Background(), stopGrace)
		defer cancel()
		if stopErr := manager.Stop(stopCtx); stopErr != nil {
			log.Error("error stopping destinations", "error", stopErr)
		}
	}()
	log.Info("destinations started", "count", len(cfg.Commands.Destinations))

	consumer := commands.NewConsumer(manager, commands.ConsumerOptions{
		Workers:         cfg.Commands.Consumer.Workers,
		QueueSize:       cfg.Commands.Consumer.QueueSize,
		Overflow:        commands.OverflowPolicy(cfg.Commands.Consumer.Overflow),
		BlockTimeout:    cfg.Commands.Consumer.BlockTimeout,
		ShutdownTimeout: cfg.Commands.Consumer.ShutdownTimeout,
		Logger:          log.Component("consumer"),
		Metrics:         m,
	})
	if startErr := consumer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting consumer: %w", startErr)
	}
	defer func() {
		log.Info("draining command queue")
		stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Commands.Consumer.ShutdownTimeout+stopGrace)
		defer cancel()
		if stopErr := consumer.Stop(stopCtx); stopErr != nil {
			log.Error("error stopping consumer", "error", stopErr)
		}
		stats := consumer.Stats()
		log.Info("consumer stopped",
			"received", stats.Received,
			"processed", stats.Processed,
			"dropped", stats.Dropped,
			"rejected", stats.Rejected,
			"invalid", stats.Invalid,
		)
	}()

	// Subscribe last so nothing arrives before the pipeline is ready.
	// Unsubscribing runs first on shutdown.
	unsubscribe, err := subscribe(cfg, mqttClient, consumer, log)
	if err != nil {
		return err
	}
	defer unsubscribe()

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, cleaning up")
	case err, ok := <-metricsErr:
		if ok && err != nil {
			return err
		}
		<-ctx.Done()
		log.Info("shutdown signal received, cleaning up")
	}

	// Deferred calls run in reverse order:
	// 1. Unsubscribe
	// 2. Consumer drain
	// 3. Destinations
	// 4. Metrics server, InfluxDB, MQTT, database

	log.Info("Gray Logic Commands stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses GRAYLOGIC_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GRAYLOGIC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// startRegistry builds the device resolver, applies the optional seed file
// and warms the cache.
func startRegistry(ctx context.Context, cfg *config.Config, db *database.DB, log *logging.Logger) (*device.Registry, error) {
	registry := device.NewRegistry(device.NewSQLiteRepository(db.DB))
	registry.SetLogger(log.Component("devices"))

	if cfg.Devices.SeedFile != "" {
		seed, err := device.LoadSeed(cfg.Devices.SeedFile)
		if err != nil {
			return nil, fmt.Errorf("loading device seed: %w", err)
		}
		if err := registry.ApplySeed(ctx, seed); err != nil {
			return nil, fmt.Errorf("applying device seed: %w", err)
		}
		log.Info("device seed applied",
			"path", cfg.Devices.SeedFile,
			"devices", len(seed.Devices),
			"commands", len(seed.Commands),
		)
	}

	if err := registry.RefreshCache(ctx); err != nil {
		return nil, fmt.Errorf("loading device registry: %w", err)
	}
	log.Info("device registry initialised", "devices", registry.CachedDevices())
	return registry, nil
}

// newManager assembles routing, destinations and outcome recording into
// the command manager.
func newManager(cfg *config.Config, resolver commands.Resolver, recorders []commands.Recorder, bus publisher, m *metrics.Metrics, log *logging.Logger) (*commands.Manager, error) {
	dests, err := destinations.Build(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("building destinations: %w", err)
	}

	router, err := routing.New(cfg.Commands.Router)
	if err != nil {
		return nil, fmt.Errorf("building router: %w", err)
	}
	if r, ok := router.(interface{ SetLogger(commands.Logger) }); ok {
		r.SetLogger(log.Component("router"))
	}

	policy, err := commands.TargetPolicyByName(cfg.Commands.TargetPolicy)
	if err != nil {
		return nil, fmt.Errorf("target policy: %w", err)
	}

	opts := commands.ManagerOptions{
		Resolver:        resolver,
		Router:          router,
		Destinations:    dests,
		TargetPolicy:    policy,
		Recorder:        outcomes.Multi(recorders...),
		Metrics:         m,
		Logger:          log.Component("commands"),
		DeliveryTimeout: cfg.Commands.DeliveryTimeout,
	}
	if cfg.Commands.UndeliveredTopic != "" {
		opts.Undelivered = &undeliveredPublisher{
			bus:    bus,
			topic:  cfg.TenantTopic(cfg.Commands.UndeliveredTopic),
			tenant: cfg.Tenant.ID,
			qos:    byte(cfg.MQTT.QoS),
		}
	}

	manager, err := commands.NewManager(opts)
	if err != nil {
		return nil, fmt.Errorf("creating command manager: %w", err)
	}
	return manager, nil
}

// subscriber is the part of the MQTT client used for inbound topics.
type subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// inbound pairs a bus topic with the consumer handler for it.
type inbound struct {
	topic   string
	handler mqtt.MessageHandler
}

// subscribe wires the inbound topics to the consumer. The returned func
// removes the subscriptions.
func subscribe(cfg *config.Config, bus subscriber, consumer *commands.Consumer, log *logging.Logger) (func(), error) {
	qos := byte(cfg.MQTT.QoS)
	topics := []inbound{{inboundTopic(cfg), consumer.HandleMessage}}
	if cfg.Commands.SystemTopic != "" {
		topics = append(topics, inbound{cfg.TenantTopic(cfg.Commands.SystemTopic), consumer.HandleSystemMessage})
	}

	var subscribed []string
	unsubscribe := func() {
		for _, topic := range subscribed {
			if err := bus.Unsubscribe(topic); err != nil {
				log.Warn("error unsubscribing", "topic", topic, "error", err)
			}
		}
	}

	for _, t := range topics {
		if err := bus.Subscribe(t.topic, qos, t.handler); err != nil {
			unsubscribe()
			return nil, fmt.Errorf("subscribing to %s: %w", t.topic, err)
		}
		subscribed = append(subscribed, t.topic)
		log.Info("subscribed", "topic", t.topic, "qos", qos)
	}
	return unsubscribe, nil
}

// inboundTopic returns the configured invocation topic or the default
// layout for the tenant.
func inboundTopic(cfg *config.Config) string {
	if cfg.Commands.InboundTopic == "" {
		return mqtt.Topics{}.CommandInvocations(cfg.Tenant.ID)
	}
	return cfg.TenantTopic(cfg.Commands.InboundTopic)
}

// publisher is the part of the MQTT client used for outbound messages.
type publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// undeliveredMessage is published for invocations no destination accepted.
type undeliveredMessage struct {
	Tenant     string              `json:"tenantId"`
	Invocation commands.Invocation `json:"invocation"`
	Cause      string              `json:"cause"`
	ErrorKind  string              `json:"errorKind"`
	FailedAt   time.Time           `json:"failedAt"`
}

// undeliveredPublisher implements commands.UndeliveredSink over the bus.
type undeliveredPublisher struct {
	bus    publisher
	topic  string
	tenant string
	qos    byte
}

// PublishUndelivered implements commands.UndeliveredSink.
func (p *undeliveredPublisher) PublishUndelivered(_ context.Context, inv commands.Invocation, cause error) error {
	msg := undeliveredMessage{
		Tenant:     p.tenant,
		Invocation: inv,
		ErrorKind:  commands.ErrorKind(cause),
		FailedAt:   time.Now().UTC(),
	}
	if cause != nil {
		msg.Cause = cause.Error()
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding undelivered invocation: %w", err)
	}
	if err := p.bus.Publish(p.topic, payload, p.qos, false); err != nil {
		return fmt.Errorf("publishing undelivered invocation: %w", err)
	}
	return nil
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
