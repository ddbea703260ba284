// Package service implements rooms, agents, messages and tasks on top of a
// store.Store. Every operation takes the authenticated room explicitly and
// scopes all storage access to its id.
package service

import (
	"context"
	"strings"
	"time"

	"github.com/umar/agentmesh/internal/store"
)

type Service struct {
	store  store.Store
	now    func() time.Time
	newKey func() (string, error)
}

type Option func(*Service)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithKeyGenerator replaces the api key generator.
func WithKeyGenerator(gen func() (string, error)) Option {
	return func(s *Service) { s.newKey = gen }
}

func New(st store.Store, opts ...Option) *Service {
	s := &Service{
		store:  st,
		now:    time.Now,
		newKey: GenerateAPIKey,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ping reports whether the underlying store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) timestamp() time.Time {
	return s.now().UTC()
}

// required trims value and fails with a ValidationError naming field when
// nothing is left.
func required(field, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", invalidf("%s is required", field)
	}
	return value, nil
}

// optional trims value and maps blank input to nil.
func optional(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
