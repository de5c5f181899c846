package gatekeeper

import (
	"github.com/sentinelops/gatekeeper/model/decision"
	"github.com/sentinelops/gatekeeper/service/audit"
	"github.com/sentinelops/gatekeeper/service/dao"
	"github.com/sentinelops/gatekeeper/service/messaging"
	"github.com/sentinelops/gatekeeper/service/tracker"
	"github.com/sentinelops/gatekeeper/tracing"
)

// Option customises the gatekeeper service.
type Option func(s *Service)

// WithConfig supplies the full configuration. Nil fields inherit defaults.
func WithConfig(config *Config) Option {
	return func(s *Service) {
		if config != nil {
			s.config = config
		}
	}
}

// WithDecisionDAO sets the decision snapshot store.
func WithDecisionDAO(store dao.Service[string, decision.Record]) Option {
	return func(s *Service) { s.decisionDAO = store }
}

// WithAuditLog sets the append-only audit trail.
func WithAuditLog(log audit.Log) Option {
	return func(s *Service) { s.auditLog = log }
}

// WithPublisher sets the tracker adapter used to present escalated decisions
// to guardians.
func WithPublisher(publisher tracker.Publisher) Option {
	return func(s *Service) { s.publisher = publisher }
}

// WithPublishQueue sets the retry queue for failed publications.
func WithPublishQueue(queue messaging.Queue[tracker.Publication]) Option {
	return func(s *Service) { s.publishQueue = queue }
}

// WithTracing configures OpenTelemetry tracing for the service. If outputFile
// is empty the stdout exporter is used; otherwise traces are written to the
// supplied file path. The function is safe to call multiple times – the first
// successful initialisation wins.
func WithTracing(serviceName, serviceVersion, outputFile string) Option {
	return func(s *Service) {
		_ = tracing.Init(serviceName, serviceVersion, outputFile)
	}
}
