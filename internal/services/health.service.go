package services

import (
	"context"
	"fmt"
	"time"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type IndexVerifier interface {
	Verify() error
}

type HealthService struct {
	db      Pinger
	redis   Pinger
	index   IndexVerifier
	timeout time.Duration
}

// NewHealthService checks the given dependencies. Nil dependencies are skipped.
func NewHealthService(db Pinger, redis Pinger, index IndexVerifier) *HealthService {
	return &HealthService{
		db:      db,
		redis:   redis,
		index:   index,
		timeout: 2 * time.Second,
	}
}

func (s *HealthService) Get() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if s.db != nil {
		if err := s.db.Ping(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	}
	if s.redis != nil {
		if err := s.redis.Ping(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	if s.index != nil {
		if err := s.index.Verify(); err != nil {
			return fmt.Errorf("index: %w", err)
		}
	}
	return nil
}
