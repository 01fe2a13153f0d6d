package xref

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/blitzedNdun/aws-carddemo-blitzy-sub012/internal/model"
	"github.com/blitzedNdun/aws-carddemo-blitzy-sub012/pkg/logger"
)

// ErrLockHeld is returned by a Locker when another holder owns the key.
var ErrLockHeld = errors.New("cascade lock held by another process")

// Locker serialises cascades on the same root across processes.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

type CascadeConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
}

func DefaultCascadeConfig() CascadeConfig {
	return CascadeConfig{
		MaxRetries: 3,
		BaseDelay:  2 * time.Millisecond,
	}
}

// Coordinator removes every entry of a cascade root as one atomic batch.
type Coordinator struct {
	index  *Index
	locker Locker
	config CascadeConfig
}

// NewCoordinator returns a coordinator. A nil locker relies on the index lock alone.
func NewCoordinator(index *Index, locker Locker, config CascadeConfig) *Coordinator {
	if config.BaseDelay <= 0 {
		config.BaseDelay = DefaultCascadeConfig().BaseDelay
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	return &Coordinator{
		index:  index,
		locker: locker,
		config: config,
	}
}

// CascadeDeleteAccount removes all cards of the account and returns how many were removed.
func (c *Coordinator) CascadeDeleteAccount(ctx context.Context, accountID int64) (int, error) {
	if err := model.ValidateAccountID(accountID); err != nil {
		return 0, err
	}
	return c.cascade(ctx, "account:"+strconv.FormatInt(accountID, 10), func() []string {
		return cloneKeys(c.index.byAccount[accountID])
	})
}

// CascadeDeleteCustomer removes all cards of the customer across all of its accounts.
func (c *Coordinator) CascadeDeleteCustomer(ctx context.Context, customerID int64) (int, error) {
	if err := model.ValidateCustomerID(customerID); err != nil {
		return 0, err
	}
	return c.cascade(ctx, "customer:"+strconv.FormatInt(customerID, 10), func() []string {
		return cloneKeys(c.index.byCustomer[customerID])
	})
}

// cascade retries conflicts with exponential backoff: 2ms, 4ms, 8ms by default.
// affected runs with the index write lock held.
func (c *Coordinator) cascade(ctx context.Context, root string, affected func() []string) (int, error) {
	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		n, err := c.cascadeAttempt(ctx, root, affected)
		if err == nil {
			logger.Info("xref cascade completed", "root", root, "removed", n, "attempt", attempt+1)
			return n, nil
		}
		if model.KindOf(err) != model.KindConflict {
			return 0, err
		}
		lastErr = err

		if attempt < c.config.MaxRetries {
			delay := c.config.BaseDelay * time.Duration(1<<attempt)
			logger.Warn("xref cascade conflict, retrying", "root", root, "attempt", attempt+1, "delay", delay.String())
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(delay):
				continue
			}
		}
	}
	return 0, model.NewConflictError(fmt.Sprintf("cascade %s failed after %d attempts", root, c.config.MaxRetries+1), lastErr)
}

func (c *Coordinator) cascadeAttempt(ctx context.Context, root string, affected func() []string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if c.locker != nil {
		release, err := c.locker.Acquire(ctx, root)
		if err != nil {
			if errors.Is(err, ErrLockHeld) {
				return 0, model.NewConflictError("cascade already running for "+root, err)
			}
			return 0, fmt.Errorf("acquire cascade lock: %w", err)
		}
		defer release()
	}
	return c.index.removeWhere(ctx, affected)
}
