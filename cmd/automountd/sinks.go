package main

import (
	"context"
	"fmt"

	"github.com/nerrad567/automountd/internal/api"
	"github.com/nerrad567/automountd/internal/device"
	"github.com/nerrad567/automountd/internal/infrastructure/config"
	"github.com/nerrad567/automountd/internal/infrastructure/database"
	"github.com/nerrad567/automountd/internal/infrastructure/influxdb"
	"github.com/nerrad567/automountd/internal/infrastructure/logging"
	"github.com/nerrad567/automountd/internal/infrastructure/mqtt"
	"github.com/nerrad567/automountd/internal/journal"
	"github.com/nerrad567/automountd/internal/metrics"
	"github.com/nerrad567/automountd/internal/notify"
	"github.com/nerrad567/automountd/migrations"
)

// sinkSet holds the optional backends. Nil fields are disabled or failed.
type sinkSet struct {
	log     *logging.Logger
	mqtt    *mqtt.Client
	db      *database.DB
	journal *journal.SQLiteRepository
	influx  *influxdb.Client
}

// startSinks connects every enabled backend.
func startSinks(ctx context.Context, cfg *config.Config, log *logging.Logger) *sinkSet {
	s := &sinkSet{log: log}

	if cfg.MQTT.Enabled {
		client, err := mqtt.Connect(cfg.MQTT)
		if err != nil {
			log.Warn("MQTT unavailable, continuing without it",
				"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
				"error", err,
			)
		} else {
			client.SetLogger(log.Component("mqtt"))
			client.SetOnConnect(func() { log.Info("MQTT reconnected") })
			client.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
			s.mqtt = client
			log.Info("MQTT connected",
				"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
				"client_id", cfg.MQTT.Broker.ClientID,
				"topic_prefix", client.Topics().Prefix(),
			)
		}
	}

	if cfg.Database.Enabled {
		db, err := openJournal(ctx, cfg.Database)
		if err != nil {
			log.Warn("event journal unavailable, continuing without it", "path", cfg.Database.Path, "error", err)
		} else {
			s.db = db
			s.journal = journal.NewSQLiteRepository(db.DB)
			log.Info("event journal opened", "path", db.Path())
		}
	}

	if cfg.InfluxDB.Enabled {
		client, err := influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			log.Warn("InfluxDB unavailable, continuing without it", "url", cfg.InfluxDB.URL, "error", err)
		} else {
			client.SetOnError(func(err error) { log.Error("InfluxDB write error", "error", err) })
			s.influx = client
			log.Info("InfluxDB connected",
				"url", cfg.InfluxDB.URL,
				"org", cfg.InfluxDB.Org,
				"bucket", cfg.InfluxDB.Bucket,
			)
		}
	}

	return s
}

func openJournal(ctx context.Context, cfg config.DatabaseConfig) (*database.DB, error) {
	db, err := database.Open(cfg)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		db.Close() //nolint:errcheck // best effort on error path
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return db, nil
}

// notifySinks returns the notification sinks for the connected backends.
func (s *sinkSet) notifySinks() []notify.Sink {
	var out []notify.Sink
	if s.mqtt != nil {
		out = append(out, notify.NewMQTTSink(s.mqtt, s.mqtt.Topics()))
	}
	if s.journal != nil {
		out = append(out, notify.NewJournalSink(s.journal))
	}
	if s.influx != nil {
		out = append(out, notify.NewInfluxSink(s.influx))
	}
	return out
}

// journalRepo returns the journal as an interface, nil when disabled.
func (s *sinkSet) journalRepo() journal.Repository {
	if s.journal == nil {
		return nil
	}
	return s.journal
}

// healthChecks lists the connected backends for the health endpoint.
func (s *sinkSet) healthChecks() map[string]api.HealthChecker {
	checks := make(map[string]api.HealthChecker)
	if s.mqtt != nil {
		checks["mqtt"] = s.mqtt
	}
	if s.db != nil {
		checks["database"] = s.db
	}
	if s.influx != nil {
		checks["influxdb"] = s.influx
	}
	return checks
}

// Close shuts the backends down in reverse order of start.
func (s *sinkSet) Close() {
	if s.influx != nil {
		s.log.Info("closing InfluxDB connection")
		if err := s.influx.Close(); err != nil {
			s.log.Error("error closing InfluxDB", "error", err)
		}
	}
	if s.db != nil {
		s.log.Info("closing event journal")
		if err := s.db.Close(); err != nil {
			s.log.Error("error closing database", "error", err)
		}
	}
	if s.mqtt != nil {
		s.log.Info("disconnecting from MQTT")
		if err := s.mqtt.Close(); err != nil {
			s.log.Error("error closing MQTT", "error", err)
		}
	}
}

// registryObservers feeds registry counts to Prometheus and, when enabled,
// InfluxDB.
type registryObservers struct {
	prom   *metrics.Metrics
	influx *influxdb.Client
}

func (o registryObservers) MountResult(ok bool)   { o.prom.MountResult(ok) }
func (o registryObservers) UnmountResult(ok bool) { o.prom.UnmountResult(ok) }

func (o registryObservers) ObserveRegistry(stats device.Stats) {
	o.prom.ObserveRegistry(stats)
	if o.influx == nil {
		return
	}
	volumes := make(map[string]int, len(device.AllVolumeStates))
	for _, st := range device.AllVolumeStates {
		volumes[st.String()] = stats.VolumeStates[st]
	}
	o.influx.WriteRegistryStats(stats.Devices, volumes)
}
