package process

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/aretw0/formbridge/internal/logging"
	"github.com/aretw0/formbridge/pkg/domain"
	"github.com/aretw0/formbridge/pkg/ports"
)

// Environment variables set for every run.
const (
	EnvOperation    = "FORMBRIDGE_OPERATION"
	EnvEvent        = "FORMBRIDGE_EVENT"
	EnvMapping      = "FORMBRIDGE_MAPPING"
	EnvSubmissionID = "FORMBRIDGE_SUBMISSION_ID"
	EnvInstanceID   = "FORMBRIDGE_INSTANCE_ID"
	// EnvParamPrefix precedes the sanitized, upper-cased parameter name.
	EnvParamPrefix = "FORMBRIDGE_PARAM_"
)

// maxStderr bounds how much of the command's stderr is kept in errors.
const maxStderr = 4 << 10

var envUnsafe = regexp.MustCompile(`[^A-Z0-9_]`)

// ExitError reports a command that ran but did not succeed.
type ExitError struct {
	Code   int
	Stderr string
	Err    error
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("process exited with code %d", e.Code)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *ExitError) Unwrap() error { return e.Err }

// Dispatcher delivers submissions to a local command instead of the dashboard API.
// The submission is written to stdin as JSON; parameters are also exported as
// environment variables. Values are never passed as command-line flags.
//
// A JSON object on stdout is decoded into the receipt ("instance_id", "status");
// any other output becomes the receipt status.
type Dispatcher struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

var _ ports.Dispatcher = (*Dispatcher)(nil)

// Option configures the dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger used for run diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// New validates cfg and returns a Dispatcher.
func New(cfg Config, opts ...Option) (*Dispatcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	d := &Dispatcher{
		cfg:    cfg,
		logger: logging.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// RaiseEvent runs the command for a new instance.
func (d *Dispatcher) RaiseEvent(ctx context.Context, sub domain.Submission) (domain.Receipt, error) {
	return d.run(ctx, domain.OperationRaiseEvent, sub)
}

// ContinueInstance runs the command for an existing instance.
func (d *Dispatcher) ContinueInstance(ctx context.Context, sub domain.Submission) (domain.Receipt, error) {
	return d.run(ctx, domain.OperationContinue, sub)
}

func (d *Dispatcher) run(ctx context.Context, op domain.Operation, sub domain.Submission) (domain.Receipt, error) {
	if d.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.Timeout)
		defer cancel()
	}

	payload, err := json.Marshal(sub)
	if err != nil {
		return domain.Receipt{}, fmt.Errorf("encode submission: %w", err)
	}

	cmd := exec.CommandContext(ctx, d.cfg.Command, d.cfg.Args...)
	cmd.Dir = d.cfg.Dir
	// Children that outlive the command must not hold the output pipes open.
	cmd.WaitDelay = time.Second
	cmd.Env = append(cmd.Environ(), d.environment(op, sub)...)
	cmd.Stdin = bytes.NewReader(payload)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err = cmd.Run()
	d.logger.DebugContext(ctx, "process dispatch finished",
		"command", d.cfg.Command,
		"operation", op,
		"submission_id", sub.ID,
		"duration", time.Since(start),
	)
	if err != nil {
		if ctx.Err() != nil {
			return domain.Receipt{}, fmt.Errorf("%s: %w", op, ctx.Err())
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return domain.Receipt{}, &ExitError{
				Code:   exitErr.ExitCode(),
				Stderr: truncate(strings.TrimSpace(stderr.String()), maxStderr),
				Err:    err,
			}
		}
		return domain.Receipt{}, fmt.Errorf("%s: %w", op, err)
	}

	return d.receipt(sub, stdout.Bytes())
}

func (d *Dispatcher) receipt(sub domain.Submission, out []byte) (domain.Receipt, error) {
	r := domain.Receipt{
		SubmissionID: sub.ID,
		InstanceID:   sub.InstanceID,
		Parameters:   sub.Parameters,
		ReceivedAt:   d.now().UTC(),
	}

	trimmed := bytes.TrimSpace(out)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var resp struct {
			InstanceID string `json:"instance_id"`
			Status     string `json:"status"`
		}
		if err := json.Unmarshal(trimmed, &resp); err != nil {
			return domain.Receipt{}, fmt.Errorf("decode process output: %w", err)
		}
		if resp.InstanceID != "" {
			r.InstanceID = resp.InstanceID
		}
		r.Status = resp.Status
		return r, nil
	}
	r.Status = string(trimmed)
	return r, nil
}

// environment builds the variables for one run. Later parameters with the same
// name win, matching how the engine applies a merged batch.
func (d *Dispatcher) environment(op domain.Operation, sub domain.Submission) []string {
	env := make([]string, 0, len(d.cfg.Env)+len(sub.Parameters)+5)
	for k, v := range d.cfg.Env {
		env = append(env, k+"="+v)
	}
	env = append(env,
		EnvOperation+"="+string(op),
		EnvEvent+"="+sub.EventName,
		EnvMapping+"="+sub.Mapping,
		EnvSubmissionID+"="+sub.ID,
		EnvInstanceID+"="+sub.InstanceID,
	)
	for _, p := range sub.Parameters {
		env = append(env, ParamEnvName(p.Name)+"="+p.Value)
	}
	return env
}

// ParamEnvName returns the environment variable that carries parameter name.
func ParamEnvName(name string) string {
	return EnvParamPrefix + envUnsafe.ReplaceAllString(strings.ToUpper(name), "_")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
