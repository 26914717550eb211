package provider

import (
	"context"
	"fmt"
	"math/rand"
	"reflect"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"mailer/internal/config"
	"mailer/internal/mailerr"
	"mailer/internal/store"
	"mailer/pkg/models"
)

// Router picks the transport each message is sent through.
//
// Active providers with a positive weight share traffic in proportion to
// their weights. When no weights are set the default provider takes every
// message: the last one marked default, or the first one loaded.
type Router struct {
	store  store.ProviderStore
	legacy config.LegacyConfig
	opts   Options
	logger *zap.Logger

	mu               sync.RWMutex
	loaded           bool
	transports       map[int64]*Transport
	cumulative       []int
	weighted         []*Transport
	defaultTransport *Transport

	randMu sync.Mutex
	rnd    *rand.Rand
}

// NewRouter creates a router over the provider store. rnd may be nil.
func NewRouter(ps store.ProviderStore, legacy config.LegacyConfig, opts Options, rnd *rand.Rand) *Router {
	opts = opts.withDefaults()
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Router{
		store:      ps,
		legacy:     legacy,
		opts:       opts,
		logger:     opts.Logger,
		transports: make(map[int64]*Transport),
		rnd:        rnd,
	}
}

// Reload rebuilds the selection table from the active providers. When the
// store holds no providers at all, the legacy environment settings are
// converted into provider rows first.
func (r *Router) Reload(ctx context.Context) error {
	providers, err := r.store.Providers(ctx, true)
	if err != nil {
		return fmt.Errorf("failed to load transports: %w", err)
	}

	if len(providers) == 0 {
		count, err := r.store.CountProviders(ctx)
		if err != nil {
			return fmt.Errorf("failed to count transports: %w", err)
		}
		if count == 0 {
			if err := r.convertLegacy(ctx); err != nil {
				return err
			}
			if providers, err = r.store.Providers(ctx, true); err != nil {
				return fmt.Errorf("failed to load transports: %w", err)
			}
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	transports := make(map[int64]*Transport, len(providers))
	var (
		cumulative []int
		weighted   []*Transport
		def        *Transport
		total      int
	)
	for _, p := range providers {
		t := r.transports[p.ID]
		if t == nil || !reflect.DeepEqual(*t.Provider, *p) {
			t = NewTransport(p, r.opts)
		}
		transports[p.ID] = t

		if p.Weight > 0 {
			total += p.Weight
			cumulative = append(cumulative, total)
			weighted = append(weighted, t)
		}
		if p.Default {
			def = t
		}
	}
	if def == nil && len(providers) > 0 {
		def = transports[providers[0].ID]
	}

	r.transports = transports
	r.cumulative = cumulative
	r.weighted = weighted
	r.defaultTransport = def
	r.loaded = true

	r.logger.Debug("transports reloaded",
		zap.Int("active", len(transports)),
		zap.Int("weighted", len(weighted)),
		zap.Int("total_weight", total))
	return nil
}

func (r *Router) convertLegacy(ctx context.Context) error {
	converted := ConvertLegacy(r.legacy)
	for _, p := range converted {
		if err := p.Validate(); err != nil {
			r.logger.Warn("skipping legacy transport",
				zap.String("type", string(p.Type)),
				zap.Error(err))
			continue
		}
		if err := r.store.InsertProvider(ctx, p); err != nil {
			return fmt.Errorf("failed to convert legacy %s settings: %w", p.Type, err)
		}
		r.logger.Info("converted legacy transport settings",
			zap.Int64("transport_id", p.ID),
			zap.String("type", string(p.Type)),
			zap.Bool("default", p.Default))
	}
	return nil
}

// Select returns the transport for a message. A requested id that names an
// active provider wins; otherwise a weighted draw decides, falling back to
// the default provider when no weights are set.
func (r *Router) Select(ctx context.Context, requestedID *int64) (*Transport, error) {
	r.mu.RLock()
	loaded := r.loaded
	r.mu.RUnlock()
	if !loaded {
		if err := r.Reload(ctx); err != nil {
			return nil, err
		}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if requestedID != nil {
		if t, ok := r.transports[*requestedID]; ok {
			return t, nil
		}
	}

	if n := len(r.cumulative); n > 0 {
		r.randMu.Lock()
		draw := r.rnd.Intn(r.cumulative[n-1])
		r.randMu.Unlock()
		i := sort.Search(n, func(i int) bool { return r.cumulative[i] > draw })
		return r.weighted[i], nil
	}

	if r.defaultTransport == nil {
		return nil, mailerr.New(mailerr.KindConfiguration, "no active transport configured")
	}
	return r.defaultTransport, nil
}

// Active returns the providers of the current selection table.
func (r *Router) Active() []*models.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*models.Provider, 0, len(r.transports))
	for _, t := range r.transports {
		out = append(out, t.Provider)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func invalidProvider(p *models.Provider, err error) error {
	e := mailerr.Validation(fmt.Sprintf("transport not valid: %s", p.Type), err)
	e.Kind = mailerr.KindConfiguration
	return e
}

// Add validates and stores a new provider. Selection picks it up on the
// next Reload.
func (r *Router) Add(ctx context.Context, p *models.Provider) (*models.Provider, error) {
	if err := p.Validate(); err != nil {
		return nil, invalidProvider(p, err)
	}
	p.ID = 0
	if err := r.store.InsertProvider(ctx, p); err != nil {
		return nil, err
	}
	r.logger.Info("transport added", zap.Int64("transport_id", p.ID), zap.String("type", string(p.Type)))
	return p, nil
}

// Update replaces a stored provider.
func (r *Router) Update(ctx context.Context, p *models.Provider) (*models.Provider, error) {
	if p.ID == 0 {
		return nil, mailerr.New(mailerr.KindConfiguration, "can't update transport, missing id")
	}
	if err := p.Validate(); err != nil {
		return nil, invalidProvider(p, err)
	}
	if err := r.store.UpdateProvider(ctx, p); err != nil {
		return nil, err
	}
	r.logger.Info("transport updated", zap.Int64("transport_id", p.ID))
	return p, nil
}

// Patch merges a partial update into the stored provider.
func (r *Router) Patch(ctx context.Context, id int64, patch models.ProviderPatch) (*models.Provider, error) {
	p, err := r.store.Provider(ctx, id)
	if err != nil {
		return nil, err
	}
	p.Apply(patch)
	return r.Update(ctx, p)
}

func (r *Router) Delete(ctx context.Context, id int64) error {
	if err := r.store.DeleteProvider(ctx, id); err != nil {
		return err
	}
	r.logger.Info("transport deleted", zap.Int64("transport_id", id))
	return nil
}

func (r *Router) List(ctx context.Context, activeOnly bool) ([]*models.Provider, error) {
	return r.store.Providers(ctx, activeOnly)
}

func (r *Router) Get(ctx context.Context, id int64) (*models.Provider, error) {
	return r.store.Provider(ctx, id)
}
