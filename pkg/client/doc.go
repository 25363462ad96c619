// Package client talks to the BPM dashboard API.
//
// A Client is built from an explicit Config, either filled in by the caller or
// loaded from FORMBRIDGE_DASHBOARD_* variables with ConfigFromEnv:
//
//	cfg, err := client.ConfigFromEnv()
//	c, err := client.New(cfg)
//	receipt, err := c.RaiseEvent(ctx, domain.Submission{EventName: "SolicitudReembolso", Parameters: params})
//
// RaiseEvent posts to {base}/instances and ContinueInstance to
// {base}/instances/{id}/continue. The dashboard token is forwarded as an opaque
// header value. Every call runs in an OpenTelemetry client span and propagates
// the trace context.
package client
