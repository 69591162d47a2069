package services

import (
	"context"
	"time"

	"github.com/Kaushik-hub77/OneBox-email-Aggregator/internal/config"
)

// Supervisor runs one ConnectionManager per configured account. Managers are
// fully independent; one account failing never affects the others.
type Supervisor struct {
	managers []*ConnectionManager
}

// NewSupervisor builds managers for every configured account
func NewSupervisor(cfg *config.Config, factory SessionFactory, scanner *BackfillScanner, pipeline *Pipeline, logs *LogService) *Supervisor {
	window := time.Duration(cfg.BackfillDays) * 24 * time.Hour
	managers := make([]*ConnectionManager, 0, len(cfg.Accounts))
	for _, account := range cfg.Accounts {
		managers = append(managers, NewConnectionManager(account, factory, scanner, pipeline, logs, ManagerConfig{
			BackfillWindow: window,
			MaxRetries:     cfg.MaxConnectRetries,
		}))
	}
	return &Supervisor{managers: managers}
}

// Start launches every account's manager
func (s *Supervisor) Start(ctx context.Context) {
	for _, m := range s.managers {
		m.Start(ctx)
	}
}

// Stop asks every manager to shut down and waits up to grace for them
func (s *Supervisor) Stop(grace time.Duration) {
	for _, m := range s.managers {
		m.Stop()
	}
	deadline := time.After(grace)
	for _, m := range s.managers {
		select {
		case <-m.Done():
		case <-deadline:
			return
		}
	}
}

// States reports the current state of every account's manager
func (s *Supervisor) States() map[string]ConnState {
	states := make(map[string]ConnState, len(s.managers))
	for _, m := range s.managers {
		states[m.account.ID] = m.State()
	}
	return states
}
