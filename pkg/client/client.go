package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/aretw0/formbridge/internal/logging"
	"github.com/aretw0/formbridge/pkg/domain"
)

const (
	tracerName   = "github.com/aretw0/formbridge/pkg/client"
	maxErrorBody = 64 << 10
)

// Client is the HTTP implementation of ports.Dispatcher for the BPM dashboard API.
type Client struct {
	cfg        Config
	base       *url.URL
	http       *http.Client
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Config.Timeout is not applied to it.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.http = h
	}
}

// WithTracerProvider sets the provider used for call spans. Defaults to the global one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) {
		c.tracer = tp.Tracer(tracerName)
	}
}

// WithLogger configures a logger for the Client.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New builds a client from an explicit configuration.
func New(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.WireFormat == "" {
		cfg.WireFormat = WireStandard
	}
	if cfg.TokenHeader == "" {
		cfg.TokenHeader = "X-Dashboard-Token"
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "formbridge"
	}

	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid dashboard base url: %w", err)
	}

	c := &Client{
		cfg:        cfg,
		base:       base,
		http:       &http.Client{Timeout: cfg.Timeout},
		tracer:     otel.Tracer(tracerName),
		propagator: otel.GetTextMapPropagator(),
		logger:     logging.NewNop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Config returns the client configuration.
func (c *Client) Config() Config {
	return c.cfg
}

// RaiseEvent starts a new process instance by raising sub.EventName.
func (c *Client) RaiseEvent(ctx context.Context, sub domain.Submission) (domain.Receipt, error) {
	if sub.EventName == "" {
		return domain.Receipt{}, fmt.Errorf("raise event: event name is required")
	}
	body := raiseEventRequest{
		EventName:    sub.EventName,
		SubmissionID: sub.ID,
		Mapping:      sub.Mapping,
		Parameters:   encodeParameters(c.cfg.WireFormat, sub.Parameters),
	}
	return c.call(ctx, domain.OperationRaiseEvent, sub, "instances", body)
}

// ContinueInstance resumes the process instance sub.InstanceID.
func (c *Client) ContinueInstance(ctx context.Context, sub domain.Submission) (domain.Receipt, error) {
	if sub.InstanceID == "" {
		return domain.Receipt{}, fmt.Errorf("continue instance: instance id is required")
	}
	body := continueRequest{
		SubmissionID: sub.ID,
		Mapping:      sub.Mapping,
		Parameters:   encodeParameters(c.cfg.WireFormat, sub.Parameters),
	}
	path := "instances/" + url.PathEscape(sub.InstanceID) + "/continue"
	return c.call(ctx, domain.OperationContinue, sub, path, body)
}

func (c *Client) call(ctx context.Context, op domain.Operation, sub domain.Submission, path string, body any) (domain.Receipt, error) {
	ctx, span := c.tracer.Start(ctx, "dashboard."+string(op),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("formbridge.mapping", sub.Mapping),
			attribute.String("formbridge.submission_id", sub.ID),
			attribute.Int("formbridge.parameters", len(sub.Parameters)),
		),
	)
	defer span.End()

	receipt, err := c.do(ctx, path, body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Warn("Dashboard call failed", "op", op, "submission_id", sub.ID, "err", err)
		return domain.Receipt{}, fmt.Errorf("%s: %w", op, err)
	}

	receipt.SubmissionID = sub.ID
	if receipt.InstanceID == "" {
		receipt.InstanceID = sub.InstanceID
	}
	span.SetAttributes(attribute.String("formbridge.instance_id", receipt.InstanceID))
	c.logger.Debug("Dashboard call succeeded", "op", op, "submission_id", sub.ID, "instance_id", receipt.InstanceID)
	return receipt, nil
}

func (c *Client) do(ctx context.Context, path string, body any) (domain.Receipt, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return domain.Receipt{}, fmt.Errorf("failed to encode request: %w", err)
	}

	endpoint := c.base.JoinPath(path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(payload))
	if err != nil {
		return domain.Receipt{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	if c.cfg.Token != "" {
		req.Header.Set(c.cfg.TokenHeader, c.cfg.Token)
	}
	c.propagator.Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.Receipt{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: raw}
		var er errorResponse
		if json.Unmarshal(raw, &er) == nil {
			apiErr.Message = er.text()
		}
		return domain.Receipt{}, apiErr
	}

	var ir instanceResponse
	if resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(&ir); err != nil && err != io.EOF {
			return domain.Receipt{}, fmt.Errorf("failed to decode response: %w", err)
		}
	}

	receipt := domain.Receipt{
		InstanceID: ir.InstanceID,
		Status:     ir.Status,
		ReceivedAt: c.now().UTC(),
	}
	if ir.ReceivedAt != nil {
		receipt.ReceivedAt = *ir.ReceivedAt
	}
	for _, p := range ir.Parameters {
		receipt.Parameters = append(receipt.Parameters, p.parameter())
	}
	return receipt, nil
}
