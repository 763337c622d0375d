package sources

import (
	"context"

	"schememap/internal/core"
)

// Ports for dataset adapters.
type (
	// SchemeReader returns every scheme record of a source, in source order.
	SchemeReader interface {
		ReadSchemes(ctx context.Context) ([]core.SchemeRecord, error)
	}

	// RegionReader returns the raw polygon rows of a boundary file. Rows are
	// not dissolved; several may share a state name.
	RegionReader interface {
		ReadRegions(ctx context.Context) ([]core.RawRegion, error)
	}

	// SchemeWriter replaces the full scheme table of a store.
	SchemeWriter interface {
		ReplaceSchemes(ctx context.Context, records []core.SchemeRecord) (int, error)
	}
)
