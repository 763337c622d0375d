package dataset

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"schememap/internal/core"
	applog "schememap/internal/log"
	"schememap/internal/metrics"
	"schememap/internal/sources"
)

// SchemeSource is a named scheme reader.
type SchemeSource interface {
	sources.SchemeReader
	Name() string
}

// RegionSource is a named region reader.
type RegionSource interface {
	sources.RegionReader
	Name() string
}

// Loader reads both sources and installs the result in a Holder.
type Loader struct {
	schemes SchemeSource
	regions RegionSource
	holder  *Holder
	logger  *applog.StructuredLogger
	metrics *metrics.Metrics
	now     func() time.Time

	// Reloads are serialized so snapshots install in request order.
	mu sync.Mutex
}

func NewLoader(schemes SchemeSource, regions RegionSource, holder *Holder, logger *applog.Logger) *Loader {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &Loader{
		schemes: schemes,
		regions: regions,
		holder:  holder,
		logger:  applog.NewStructuredLogger(logger),
		now:     time.Now,
	}
}

// WithMetrics records reload results and snapshot sizes on m.
func (l *Loader) WithMetrics(m *metrics.Metrics) *Loader {
	l.metrics = m
	return l
}

// Holder returns the holder the loader installs into.
func (l *Loader) Holder() *Holder { return l.holder }

// Build reads schemes and regions concurrently, validates records and
// dissolves regions by state. It does not install the result.
func (l *Loader) Build(ctx context.Context) (*Dataset, error) {
	var (
		schemes []core.SchemeRecord
		rows    []core.RawRegion
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		recs, err := l.schemes.ReadSchemes(gctx)
		if err != nil {
			return fmt.Errorf("load schemes from %s: %w", l.schemes.Name(), err)
		}
		for i, r := range recs {
			if err := r.Validate(); err != nil {
				return fmt.Errorf("load schemes from %s: record %d (%s): %w", l.schemes.Name(), i, r.SchemeName, err)
			}
		}
		schemes = recs
		return nil
	})
	g.Go(func() error {
		r, err := l.regions.ReadRegions(gctx)
		if err != nil {
			return fmt.Errorf("load regions from %s: %w", l.regions.Name(), err)
		}
		rows = r
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	regions, err := core.Dissolve(rows)
	if err != nil {
		return nil, fmt.Errorf("dissolve regions: %w", err)
	}
	return New(uuid.NewString(), l.now().UTC(), schemes, regions, l.schemes.Name(), l.regions.Name()), nil
}

// Reload builds a new snapshot and installs it. On failure the previous
// snapshot stays in place.
func (l *Loader) Reload(ctx context.Context, reason string) (*Dataset, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	d, err := l.Build(ctx)
	if err != nil {
		l.metrics.IncrementReload("error")
		l.logger.LogError(ctx, "Dataset reload failed", err, applog.ComponentDataset, applog.OpReload,
			applog.NewFields().With(applog.FieldReloadReason, reason))
		return nil, err
	}
	l.holder.Swap(d)
	l.metrics.IncrementReload("ok")
	l.metrics.SetDatasetSize(len(d.Schemes), len(d.Regions))
	l.logger.LogDatasetLoaded(ctx, d.Version, len(d.Schemes), len(d.Regions), d.SchemeSource, d.RegionSource, reason)
	return d, nil
}
