package configsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/psaab/slotstrike/pkg/rules"
	"github.com/psaab/slotstrike/pkg/rulestore"
)

// DefaultInterval is the repository poll period.
const DefaultInterval = time.Second

const historySize = 32

// LoadRuleBook reads both rule kinds and builds a snapshot.
func LoadRuleBook(ctx context.Context, repo rulestore.Repository, initial bool) (*rules.RuleBook, error) {
	mints, err := repo.LoadRules(ctx, rules.KindMint, initial)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", rules.KindMint, err)
	}
	deployers, err := repo.LoadRules(ctx, rules.KindDeployer, initial)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", rules.KindDeployer, err)
	}
	return rules.New(mints, deployers), nil
}

// Service polls the repository and publishes changed snapshots.
type Service struct {
	repo     rulestore.Repository
	bc       *Broadcast
	previous *rules.RuleBook
	interval time.Duration
	history  *History
}

// NewService starts from the snapshot currently held by bc.
func NewService(repo rulestore.Repository, bc *Broadcast, interval time.Duration) *Service {
	if interval <= 0 {
		interval = DefaultInterval
	}
	s := &Service{
		repo:     repo,
		bc:       bc,
		previous: bc.Load(),
		interval: interval,
		history:  NewHistory(historySize),
	}
	s.history.Push(&HistoryEntry{Book: s.previous, Timestamp: time.Now()})
	return s
}

// History returns the published snapshot history.
func (s *Service) History() *History { return s.history }

// Run polls until ctx is cancelled or no subscriber remains.
func (s *Service) Run(ctx context.Context) {
	slog.Info("config sync started", "interval", s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("config sync stopped")
			return
		case <-ticker.C:
			if !s.refresh(ctx) {
				return
			}
		}
	}
}

// refresh runs one poll. It returns false when the loop should stop.
func (s *Service) refresh(ctx context.Context) bool {
	next, err := LoadRuleBook(ctx, s.repo, false)
	if err != nil {
		slog.Error("Failed to refresh config files", "err", err)
		return true
	}
	if next.Equal(s.previous) {
		return true
	}

	changes := rules.Diff(s.previous, next)
	for _, c := range changes {
		slog.Info(c.String())
	}
	if err := s.bc.Publish(next); err != nil {
		if errors.Is(err, ErrNoSubscribers) {
			slog.Warn("Config listeners dropped. Stopping config sync service.")
			return false
		}
		slog.Error("publish rulebook", "err", err)
		return true
	}
	s.previous = next
	s.history.Push(&HistoryEntry{Book: next, Timestamp: time.Now(), Changes: changes})
	return true
}
