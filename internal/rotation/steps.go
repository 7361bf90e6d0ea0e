package rotation

import (
	"context"
	"errors"
	"fmt"

	"github.com/systmms/idrotate/internal/logging"
	"github.com/systmms/idrotate/pkg/secretstore"
)

// createSecret stores a freshly minted token as the pending version
func (c *Coordinator) createSecret(ctx context.Context, log *logging.Logger, arn, version string) (Outcome, error) {
	if _, err := c.store.GetValue(ctx, arn, secretstore.ByStage(secretstore.StageCurrent)); err != nil {
		return Noop, storeError(err)
	}

	_, err := c.store.GetValue(ctx, arn, secretstore.ValueRef{VersionID: version, Stage: secretstore.StagePending})
	if err == nil {
		log.Info("createSecret: pending value already exists")
		return Noop, nil
	}
	if !errors.Is(err, secretstore.ErrNotFound) {
		return Noop, err
	}

	account, err := c.accounts.Fetch(ctx)
	if err != nil {
		return Noop, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	defer account.Destroy()

	if !account.Complete() {
		return Noop, fmt.Errorf("%w: service account username and password must be set in %s", ErrConfiguration, c.accounts.Describe())
	}

	token, err := c.newClient(account).Token(ctx)
	if err != nil {
		return Noop, err
	}

	if err := c.store.PutValue(ctx, arn, version, token, []string{secretstore.StagePending}); err != nil {
		return Noop, storeError(err)
	}

	log.Info("createSecret: successfully put pending token")
	return Done, nil
}

// setSecret has nothing to do: the secret is the token itself
func (c *Coordinator) setSecret(_ context.Context, log *logging.Logger, _, _ string) (Outcome, error) {
	log.Debug("setSecret: nothing to set for identity tokens")
	return Done, nil
}

// testSecret validates the pending token with the identity provider
func (c *Coordinator) testSecret(ctx context.Context, log *logging.Logger, arn, version string) (Outcome, error) {
	value, err := c.store.GetValue(ctx, arn, secretstore.ByVersion(version))
	if err != nil {
		return Noop, storeError(err)
	}
	if value.SecretString == "" {
		return Noop, fmt.Errorf("%w: pending version %s is empty", ErrInvalidSecret, version)
	}

	if _, err := c.validator.Validate(ctx, value.SecretString); err != nil {
		return Noop, fmt.Errorf("%w: %w", ErrInvalidSecret, err)
	}

	log.Info("testSecret: pending token is valid")
	return Done, nil
}

// finishSecret promotes the pending version to AWSCURRENT
func (c *Coordinator) finishSecret(ctx context.Context, log *logging.Logger, arn, version string) (Outcome, error) {
	meta, err := c.store.Describe(ctx, arn)
	if err != nil {
		return Noop, storeError(err)
	}

	current, _ := meta.VersionWithStage(secretstore.StageCurrent)
	if current == version {
		log.Info("finishSecret: version already marked as AWSCURRENT")
		return Noop, nil
	}

	// current is empty on the first rotation
	if err := c.store.MoveStage(ctx, arn, secretstore.StageCurrent, version, current); err != nil {
		return Noop, storeError(err)
	}

	log.Info("finishSecret: successfully set AWSCURRENT stage to version %s", version)
	return Done, nil
}
