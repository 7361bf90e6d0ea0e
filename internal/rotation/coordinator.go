// Package rotation implements the four-step Secrets Manager rotation
// protocol for identity tokens.
//
// Every invocation first checks that the secret has rotation enabled and
// that the requested version is staged as AWSPENDING. A version that is
// already AWSCURRENT makes every step a no-op, so the scheduler may invoke
// a step more than once.
package rotation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/systmms/idrotate/internal/credentials"
	"github.com/systmms/idrotate/internal/identity"
	"github.com/systmms/idrotate/internal/logging"
	"github.com/systmms/idrotate/internal/rotation/storage"
	"github.com/systmms/idrotate/pkg/secretstore"
)

// ClientFactory builds the identity client that mints the new token
type ClientFactory func(account credentials.ServiceAccount) identity.TokenSource

// Coordinator runs rotation steps against a secret store
type Coordinator struct {
	store     secretstore.Store
	accounts  credentials.Source
	newClient ClientFactory
	validator identity.Validator
	history   storage.Storage
	logger    *logging.Logger
	now       func() time.Time
}

// Option configures a Coordinator
type Option func(*Coordinator)

// WithLogger sets the logger
func WithLogger(l *logging.Logger) Option {
	return func(c *Coordinator) {
		c.logger = l
	}
}

// WithHistory records every invocation in s
func WithHistory(s storage.Storage) Option {
	return func(c *Coordinator) {
		c.history = s
	}
}

// WithClock sets the time source used for durations and history
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		c.now = now
	}
}

// NewCoordinator creates a Coordinator. accounts supplies the service
// account used by createSecret; validator checks pending tokens.
func NewCoordinator(store secretstore.Store, accounts credentials.Source, newClient ClientFactory, validator identity.Validator, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:     store,
		accounts:  accounts,
		newClient: newClient,
		validator: validator,
		logger:    logging.Nop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Outcome describes how a step invocation ended
type Outcome string

const (
	Done Outcome = "success"
	Noop Outcome = "noop"
)

// Handle runs one step. Idempotent no-ops return nil. Failures are
// returned as *StepError wrapping one of the package sentinels.
func (c *Coordinator) Handle(ctx context.Context, ev Event) error {
	_, err := c.HandleOutcome(ctx, ev)
	return err
}

// HandleOutcome is Handle, also reporting whether the step did any work
func (c *Coordinator) HandleOutcome(ctx context.Context, ev Event) (Outcome, error) {
	start := c.now()
	log := c.logger.With("arn", ev.SecretID, "version", ev.ClientRequestToken, "step", ev.Step.String())

	outcome, err := c.dispatch(ctx, log, ev)
	duration := c.now().Sub(start)

	result := string(outcome)
	if err != nil {
		result = storage.StatusFailed
		err = &StepError{Step: ev.Step, ARN: ev.SecretID, Version: ev.ClientRequestToken, Err: err}
		log.Error("%v", err)
	}
	recordStep(ev.Step, result, duration)
	c.recordHistory(log, ev, result, start, duration, err)

	return outcome, err
}

// Rotate runs all four steps in order for one version, stopping at the
// first failure.
func (c *Coordinator) Rotate(ctx context.Context, secretID, version string) error {
	for _, step := range Steps {
		if err := c.Handle(ctx, Event{SecretID: secretID, ClientRequestToken: version, Step: step}); err != nil {
			return err
		}
	}
	return nil
}

func (c *Coordinator) dispatch(ctx context.Context, log *logging.Logger, ev Event) (Outcome, error) {
	proceed, err := c.guard(ctx, log, ev.SecretID, ev.ClientRequestToken)
	if err != nil || !proceed {
		return Noop, err
	}

	step, err := ParseStep(string(ev.Step))
	if err != nil {
		return Noop, err
	}

	switch step {
	case StepCreate:
		return c.createSecret(ctx, log, ev.SecretID, ev.ClientRequestToken)
	case StepSet:
		return c.setSecret(ctx, log, ev.SecretID, ev.ClientRequestToken)
	case StepTest:
		return c.testSecret(ctx, log, ev.SecretID, ev.ClientRequestToken)
	default:
		return c.finishSecret(ctx, log, ev.SecretID, ev.ClientRequestToken)
	}
}

// guard checks the staging precondition shared by all steps. It returns
// false without error when the version is already AWSCURRENT.
func (c *Coordinator) guard(ctx context.Context, log *logging.Logger, arn, version string) (bool, error) {
	meta, err := c.store.Describe(ctx, arn)
	if err != nil {
		return false, storeError(err)
	}

	if !meta.RotationEnabled {
		return false, fmt.Errorf("%w: secret %s is not enabled for rotation", ErrRotationNotEnabled, arn)
	}
	if !meta.HasVersion(version) {
		return false, fmt.Errorf("%w: secret version %s has no stage for rotation of secret %s", ErrUnknownVersion, version, arn)
	}
	if meta.HasStage(version, secretstore.StageCurrent) {
		log.Info("Secret version %s already set as AWSCURRENT", version)
		return false, nil
	}
	if !meta.HasStage(version, secretstore.StagePending) {
		return false, fmt.Errorf("%w: secret version %s not set as AWSPENDING for rotation of secret %s", ErrNotPending, version, arn)
	}
	return true, nil
}

func (c *Coordinator) recordHistory(log *logging.Logger, ev Event, result string, start time.Time, duration time.Duration, stepErr error) {
	if c.history == nil {
		return
	}

	entry := &storage.HistoryEntry{
		Timestamp: start,
		SecretARN: ev.SecretID,
		Version:   ev.ClientRequestToken,
		Step:      string(ev.Step),
		Status:    result,
		Duration:  duration,
	}
	if stepErr != nil {
		entry.Error = stepErr.Error()
	}

	if err := c.history.SaveHistory(entry); err != nil {
		log.Warn("Failed to record rotation history: %v", err)
		return
	}

	status, err := c.history.GetStatus(ev.SecretID)
	if err != nil {
		status = &storage.RotationStatus{}
	}
	status.Apply(entry, string(StepFinish))
	if err := c.history.SaveStatus(status); err != nil {
		log.Warn("Failed to record rotation status: %v", err)
	}
}

// storeError maps a store not-found into ErrResourceNotFound
func storeError(err error) error {
	if errors.Is(err, secretstore.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrResourceNotFound, err)
	}
	return err
}
