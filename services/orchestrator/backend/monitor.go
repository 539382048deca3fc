package backend

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"grievancebot/services/orchestrator/langpack"
)

// Prober is what the monitor polls.
type Prober interface {
	Health(ctx context.Context) (Health, error)
	Suggestions(ctx context.Context, locale langpack.Locale) ([]string, error)
}

// Monitor keeps the backend readiness flag and the remote suggestion lists
// fresh. Its Suggestions method satisfies dialogue.SuggestionSource.
type Monitor struct {
	prober   Prober
	catalog  *langpack.Catalog
	interval time.Duration
	log      *zap.Logger

	mu      sync.RWMutex
	ready   bool
	checked bool
	remote  map[langpack.Locale][]langpack.Suggestion
}

// NewMonitor returns a monitor polling p every interval. Pack suggestions
// from catalog are served until remote ones arrive.
func NewMonitor(p Prober, catalog *langpack.Catalog, interval time.Duration, log *zap.Logger) *Monitor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Monitor{
		prober:   p,
		catalog:  catalog,
		interval: interval,
		log:      log,
		remote:   make(map[langpack.Locale][]langpack.Suggestion),
	}
}

// Run polls until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		m.every(ctx, m.pollHealth)
		return nil
	})
	g.Go(func() error {
		m.every(ctx, m.pollSuggestions)
		return nil
	})
	return g.Wait()
}

func (m *Monitor) every(ctx context.Context, poll func(context.Context)) {
	poll(ctx)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			poll(ctx)
		}
	}
}

func (m *Monitor) pollHealth(ctx context.Context) {
	h, err := m.prober.Health(ctx)
	ready := err == nil && h.Ready()
	if err != nil && ctx.Err() == nil {
		m.log.Warn("health check failed", zap.Error(err))
	}

	m.mu.Lock()
	changed := !m.checked || m.ready != ready
	m.ready, m.checked = ready, true
	m.mu.Unlock()

	if changed {
		m.log.Info("backend readiness", zap.Bool("ready", ready))
	}
}

func (m *Monitor) pollSuggestions(ctx context.Context) {
	for _, l := range langpack.Locales {
		texts, err := m.prober.Suggestions(ctx, l)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.log.Debug("suggestions fetch failed", zap.String("locale", string(l)), zap.Error(err))
			continue
		}
		list := make([]langpack.Suggestion, 0, len(texts))
		for _, t := range texts {
			if t != "" {
				list = append(list, langpack.Suggestion{Key: t, Text: t})
			}
		}
		m.mu.Lock()
		if len(list) > 0 {
			m.remote[l] = list
		} else {
			delete(m.remote, l)
		}
		m.mu.Unlock()
	}
}

// Ready reports the last observed backend readiness.
func (m *Monitor) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ready
}

// Suggestions returns the remote list for locale, or the pack list when the
// backend has none.
func (m *Monitor) Suggestions(locale langpack.Locale) []langpack.Suggestion {
	m.mu.RLock()
	list, ok := m.remote[locale]
	m.mu.RUnlock()
	if ok {
		return list
	}
	return m.catalog.Pack(locale).Suggestions
}
