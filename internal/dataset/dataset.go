// Package dataset holds the immutable scheme and region snapshot shared by
// all requests, and loads new snapshots from the configured sources.
package dataset

import (
	"errors"
	"sync/atomic"
	"time"

	"schememap/internal/core"
)

// ErrNotLoaded is returned while no snapshot has been installed.
var ErrNotLoaded = errors.New("dataset not loaded")

// Dataset is a read-only snapshot. A reload builds a new one; existing
// values are never modified.
type Dataset struct {
	Version      string
	LoadedAt     time.Time
	Schemes      []core.SchemeRecord
	Regions      []core.Region
	SchemeSource string
	RegionSource string

	categories []string
}

// New builds a snapshot and precomputes the category list.
func New(version string, loadedAt time.Time, schemes []core.SchemeRecord, regions []core.Region, schemeSource, regionSource string) *Dataset {
	return &Dataset{
		Version:      version,
		LoadedAt:     loadedAt,
		Schemes:      schemes,
		Regions:      regions,
		SchemeSource: schemeSource,
		RegionSource: regionSource,
		categories:   core.DistinctCategories(schemes),
	}
}

// Categories lists distinct scheme categories in first-seen order.
func (d *Dataset) Categories() []string {
	return append([]string(nil), d.categories...)
}

// Holder publishes the current snapshot.
type Holder struct {
	current atomic.Pointer[Dataset]
}

func NewHolder(initial *Dataset) *Holder {
	h := &Holder{}
	if initial != nil {
		h.current.Store(initial)
	}
	return h
}

// Current returns the installed snapshot or ErrNotLoaded.
func (h *Holder) Current() (*Dataset, error) {
	d := h.current.Load()
	if d == nil {
		return nil, ErrNotLoaded
	}
	return d, nil
}

// Ready reports whether a snapshot is installed.
func (h *Holder) Ready() bool {
	return h.current.Load() != nil
}

// Swap installs d and returns the previous snapshot, if any.
func (h *Holder) Swap(d *Dataset) *Dataset {
	return h.current.Swap(d)
}
