// Package observability wires OpenTelemetry trace export for the context
// assembly pipeline.
//
// # Architecture Decision: Datadog Agent Mode
//
// Traces go to a local Datadog Agent over OTLP HTTP instead of the direct
// Datadog intake API:
//
//   - the Agent buffers and retries locally, so a network blip never
//     blocks an assembly or curation call
//   - the Agent holds the API key; the application ships no credential
//   - one localhost hop instead of an internet roundtrip
//
// # Enable the OTLP Receiver
//
// Add to the Agent's datadog.yaml and restart it:
//
//	otlp_config:
//	  receiver:
//	    protocols:
//	      http:
//	        endpoint: "localhost:4318"
//	  traces:
//	    enabled: true
//	    span_name_as_resource_name: true
//
// Verify with:
//
//	datadog-agent status | grep -A 5 "OTLP"
//
// # Configuration
//
// Config file (~/.groundsql/config.yaml):
//
//	datadog:
//	  agent_host: "localhost:4318"
//	  environment: "dev"
//	  service_name: "groundsql"
//
// Spans flush on shutdown; traces appear in APM within a minute or two.
// Assembly, generation and reconcile spans arrive through Genkit's
// TracerProvider, which this package attaches the exporter to.
package observability

import (
	"context"
	"log/slog"
	"os"

	"github.com/firebase/genkit/go/core/tracing"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// DefaultAgentHost is the default Datadog Agent OTLP HTTP endpoint.
const DefaultAgentHost = "localhost:4318"

// Config for the Datadog trace exporter.
type Config struct {
	// AgentHost is the Agent's OTLP endpoint (default: localhost:4318)
	AgentHost string
	// Environment is the deployment environment tag (dev, staging, prod)
	Environment string
	// ServiceName is the service name shown in Datadog APM
	ServiceName string
}

// Setup registers a Datadog Agent exporter with Genkit's TracerProvider
// and returns a shutdown function that flushes pending spans.
//
// Tracing never blocks startup: if the exporter cannot be created the
// application runs untraced and the returned shutdown is a no-op.
func Setup(ctx context.Context, cfg Config) (shutdown func(context.Context) error, err error) {
	agentHost := cfg.AgentHost
	if agentHost == "" {
		agentHost = DefaultAgentHost
	}

	// Genkit's TracerProvider reads service identity from the standard
	// OTEL environment variables.
	if cfg.ServiceName != "" {
		_ = os.Setenv("OTEL_SERVICE_NAME", cfg.ServiceName)
	}
	if cfg.Environment != "" {
		_ = os.Setenv("OTEL_RESOURCE_ATTRIBUTES", "deployment.environment="+cfg.Environment)
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(agentHost),
		otlptracehttp.WithInsecure(), // local agent, no TLS
	)
	if err != nil {
		slog.Warn("failed to create datadog exporter, tracing disabled", "error", err)
		return func(context.Context) error { return nil }, nil
	}

	processor := sdktrace.NewBatchSpanProcessor(exporter)
	tracing.TracerProvider().RegisterSpanProcessor(processor)

	slog.Debug("datadog tracing enabled",
		"agent", agentHost,
		"service", cfg.ServiceName,
		"environment", cfg.Environment,
	)

	return tracing.TracerProvider().Shutdown, nil
}
