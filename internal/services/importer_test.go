package services

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schememap/internal/amqp"
	"schememap/internal/core"
	"schememap/internal/sources/memory"
	"schememap/internal/storage"
)

type fakePublisher struct {
	msgs []*amqp.ReloadMessage
	err  error
}

func (p *fakePublisher) PublishReload(_ context.Context, msg *amqp.ReloadMessage) error {
	p.msgs = append(p.msgs, msg)
	return p.err
}

func importRecords() []core.SchemeRecord {
	return []core.SchemeRecord{
		{Category: "Student", Gender: "Any", MaxAnnualIncome: decimal.NewFromInt(200000), SchemeName: "S1", State: "Kerala", Benefit: decimal.NewFromInt(5000)},
		{Category: "Farmer", Gender: "Male", MaxAnnualIncome: decimal.NewFromInt(100000), SchemeName: "F1", State: "Goa", Benefit: decimal.NewFromInt(9000)},
	}
}

func newStore(t *testing.T) *storage.SQLiteRepository {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "schemes.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestImportService_ImportPublishesReload(t *testing.T) {
	ctx := context.Background()
	repo := newStore(t)
	pub := &fakePublisher{}
	svc := NewImportService(repo, pub)

	info, err := svc.Import(ctx, memory.New(importRecords(), nil))
	require.NoError(t, err)
	assert.Equal(t, 2, info.RowCount)
	assert.Equal(t, "memory", info.Source)

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.Len(t, pub.msgs, 1)
	assert.Equal(t, "import "+info.ID, pub.msgs[0].Reason)
	assert.Equal(t, "memory", pub.msgs[0].Source)
}

func TestImportService_PublishFailureDoesNotFailImport(t *testing.T) {
	svc := NewImportService(newStore(t), &fakePublisher{err: errors.New("circuit breaker is open")})

	info, err := svc.Import(context.Background(), memory.New(importRecords(), nil))
	require.NoError(t, err)
	assert.Equal(t, 2, info.RowCount)
}

func TestImportService_NilPublisher(t *testing.T) {
	svc := NewImportService(newStore(t), nil)
	_, err := svc.Import(context.Background(), memory.New(importRecords(), nil))
	require.NoError(t, err)
}

func TestImportService_RejectsInvalidRecords(t *testing.T) {
	recs := importRecords()
	recs[1].Benefit = decimal.NewFromInt(-5)
	pub := &fakePublisher{}
	svc := NewImportService(newStore(t), pub)

	_, err := svc.Import(context.Background(), memory.New(recs, nil))
	require.ErrorIs(t, err, core.ErrNegativeAmount)
	assert.Empty(t, pub.msgs)
}

func TestImportService_Export(t *testing.T) {
	ctx := context.Background()
	src := memory.New(importRecords(), nil)
	dst := memory.New(nil, nil)

	n, err := NewImportService(nil, nil).Export(ctx, src, dst)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := dst.ReadSchemes(ctx)
	require.NoError(t, err)
	assert.Equal(t, "S1", got[0].SchemeName)
}
