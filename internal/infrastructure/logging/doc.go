// Package logging builds the structured log/slog loggers used by the
// command delivery service.
//
// Every entry carries the service name and version. Packages narrow the
// logger with Component and attach per-destination or per-invocation
// fields with With, so a single delivery can be traced from the consumer
// through routing to the destination that sent it:
//
//	log := logging.New(cfg.Logging, version)
//	log.Component("consumer").Info("worker pool started", "workers", 5)
//
// Production deployments use format "json"; "text" is easier to read on a
// terminal. Levels below the configured one are discarded before
// formatting.
//
// SMS gateway tokens and broker passwords are never logged. Destinations
// appear in logs by id and type only.
package logging
