package app

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/bomflow/internal/config"
	"github.com/shaiso/bomflow/internal/domain"
	"github.com/shaiso/bomflow/internal/flow"
	"github.com/shaiso/bomflow/internal/repo"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Knowledge.Path = filepath.Join(t.TempDir(), "knowledge.db")
	return cfg
}

func TestNew_InMemoryEndToEnd(t *testing.T) {
	ctx := context.Background()

	var mu sync.Mutex
	var stages []domain.Stage
	onTrace := func(_ context.Context, _ uuid.UUID, step domain.TraceStep) error {
		mu.Lock()
		defer mu.Unlock()
		stages = append(stages, step.Stage)
		return nil
	}

	a, err := New(ctx, Options{Config: testConfig(t), InMemory: true, OnTrace: onTrace})
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.Pool)
	assert.Nil(t, a.Publisher)

	bom := "mpn,quantity,manufacturer\nSTM32F405RGT6,10,ST\nGRM188R71H104KA93D,200,Murata\n"
	intake := "project:\n  name: Sensor board\nrequirements:\n  budget_total: 100000\n"

	p, err := a.Engine.Run(ctx, flow.Source{
		BOM:    strings.NewReader(bom),
		Intake: strings.NewReader(intake),
	})
	require.NoError(t, err)
	require.Equal(t, domain.ProjectStatusComplete, p.Status, "error: %s", p.Error)
	require.NotNil(t, p.Report)
	assert.Len(t, p.Report.Verdicts, 2)
	assert.Equal(t, "Sensor board", p.Name)

	// проект сохранён и виден через список
	list, err := a.Projects.List(ctx, repo.ListFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, p.ID, list[0].ID)

	mu.Lock()
	assert.Equal(t, domain.StageIntake, stages[0])
	assert.Equal(t, domain.StageComplete, stages[len(stages)-1])
	mu.Unlock()

	a.RecordHistory(ctx, p)
}

func TestNew_BannedPartRejectedEndToEnd(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, Options{Config: testConfig(t), InMemory: true})
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.Knowledge.BanPart(ctx, "STM32F405RGT6", "counterfeit lots reported"))

	bom := "mpn,quantity,manufacturer\nSTM32F405RGT6,10,ST\nGRM188R71H104KA93D,200,Murata\n"
	p, err := a.Engine.Run(ctx, flow.Source{Name: "banned", BOM: strings.NewReader(bom)})
	require.NoError(t, err)
	require.Equal(t, domain.ProjectStatusComplete, p.Status, "error: %s", p.Error)

	byMPN := make(map[string]domain.LineItem, len(p.LineItems))
	for _, it := range p.LineItems {
		byMPN[it.MPN] = it
	}

	banned := byMPN["STM32F405RGT6"]
	assert.Equal(t, domain.LineItemFailed, banned.Status)
	require.NotNil(t, banned.Decision)
	assert.Equal(t, domain.VerdictRejected, banned.Decision.Verdict)
	assert.Contains(t, banned.Decision.Findings[domain.RoleEngineering], "BANNED - counterfeit lots reported")

	other := byMPN["GRM188R71H104KA93D"]
	require.NotNil(t, other.Decision)
	assert.Equal(t, domain.VerdictApproved, other.Decision.Verdict)

	assert.Equal(t, 1, p.Report.Summary.TotalRejected)
	assert.Equal(t, 1, p.Report.Summary.TotalApproved)
}

func TestNew_SameSubmissionRunsOnce(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, Options{Config: testConfig(t), InMemory: true})
	require.NoError(t, err)
	defer a.Close()

	id := uuid.New()
	bom := "mpn,quantity\nSTM32F405RGT6,10\n"
	first, err := a.Engine.Run(ctx, flow.Source{ID: id, BOM: strings.NewReader(bom)})
	require.NoError(t, err)
	second, err := a.Engine.Run(ctx, flow.Source{ID: id, BOM: strings.NewReader(bom)})
	require.NoError(t, err)

	assert.Equal(t, id, first.ID)
	assert.Equal(t, id, second.ID)
	assert.Equal(t, len(first.Trace), len(second.Trace))

	list, err := a.Projects.List(ctx, repo.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	pending, err := a.Projects.Unfinished(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestNew_SeedsSuppliers(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, Options{Config: testConfig(t), InMemory: true})
	require.NoError(t, err)
	defer a.Close()

	suppliers, err := a.Knowledge.ListSuppliers(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, suppliers)
}

func TestNew_BadNarrator(t *testing.T) {
	cfg := testConfig(t)
	cfg.Narrator.Provider = "anthropic" // без ключа

	_, err := New(context.Background(), Options{Config: cfg, InMemory: true})
	assert.Error(t, err)
}

func TestNew_BrokerSkippedWithoutURL(t *testing.T) {
	a, err := New(context.Background(), Options{Config: testConfig(t), InMemory: true, Broker: true})
	require.NoError(t, err)
	defer a.Close()
	assert.Nil(t, a.Conn)
}
