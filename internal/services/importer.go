package services

import (
	"context"
	"fmt"
	"log/slog"

	"schememap/internal/amqp"
	"schememap/internal/core"
	"schememap/internal/sources"
	"schememap/internal/storage"
)

// NamedReader is a scheme source that can identify itself in import logs.
type NamedReader interface {
	sources.SchemeReader
	Name() string
}

// Store is the import target.
type Store interface {
	Import(ctx context.Context, source string, records []core.SchemeRecord) (storage.ImportInfo, error)
}

// Publisher broadcasts reload requests to running servers.
type Publisher interface {
	PublishReload(ctx context.Context, msg *amqp.ReloadMessage) error
}

// ImportService orchestrates scheme imports across SQLite and AMQP
type ImportService struct {
	store     Store
	publisher Publisher
}

// NewImportService creates the service. publisher may be nil, in which case
// servers pick up the new rows on their next reload.
func NewImportService(store Store, publisher Publisher) *ImportService {
	return &ImportService{store: store, publisher: publisher}
}

// Import replaces the stored schemes with everything from src and asks
// running servers to reload. A failed publish does not fail the import.
func (s *ImportService) Import(ctx context.Context, src NamedReader) (storage.ImportInfo, error) {
	records, err := src.ReadSchemes(ctx)
	if err != nil {
		return storage.ImportInfo{}, fmt.Errorf("read %s: %w", src.Name(), err)
	}

	info, err := s.store.Import(ctx, src.Name(), records)
	if err != nil {
		return storage.ImportInfo{}, fmt.Errorf("import %s: %w", src.Name(), err)
	}

	if err := s.publishReload(ctx, info); err != nil {
		slog.ErrorContext(ctx, "Failed to publish reload message",
			"import_id", info.ID, "error", err)
	}
	return info, nil
}

// Export copies every record from src into dst and returns the row count.
func (s *ImportService) Export(ctx context.Context, src sources.SchemeReader, dst sources.SchemeWriter) (int, error) {
	records, err := src.ReadSchemes(ctx)
	if err != nil {
		return 0, fmt.Errorf("read schemes: %w", err)
	}
	n, err := dst.ReplaceSchemes(ctx, records)
	if err != nil {
		return 0, fmt.Errorf("write schemes: %w", err)
	}
	return n, nil
}

func (s *ImportService) publishReload(ctx context.Context, info storage.ImportInfo) error {
	if s.publisher == nil {
		slog.WarnContext(ctx, "AMQP client not available, skipping reload message")
		return nil
	}
	return s.publisher.PublishReload(ctx, amqp.NewReloadMessage("import "+info.ID, info.Source))
}
