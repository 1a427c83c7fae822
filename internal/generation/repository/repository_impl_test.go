package repository

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	generationdomain "github.com/smallbiznis/pixora/internal/generation/domain"
	"github.com/smallbiznis/pixora/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupStore(t *testing.T) (generationdomain.Store, *gorm.DB, *snowflake.Node) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&generationdomain.GenerationRequest{},
		&generationdomain.Artifact{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return NewStore(StoreParam{DB: db, Log: zap.NewNop()}), db, node
}

func newRun(node *snowflake.Node, tenantID snowflake.ID, requestID string, status generationdomain.Status) *generationdomain.GenerationRequest {
	now := time.Now().UTC()
	return &generationdomain.GenerationRequest{
		ID:             node.Generate(),
		RequestID:      requestID,
		TenantID:       tenantID,
		Type:           generationdomain.TypeImage,
		Kind:           generationdomain.KindCustom,
		Status:         status,
		Prompt:         "espresso machine on a marble counter",
		RequestedCount: 3,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestFindByRequestIDReturnsLiveArtifactsInOrder(t *testing.T) {
	store, _, node := setupStore(t)
	ctx := context.Background()
	tenantID := node.Generate()

	run := newRun(node, tenantID, "gen_find", generationdomain.StatusCompleted)
	require.NoError(t, store.Create(ctx, run))

	// Insert out of ordinal order, with one soft-deleted row in between.
	for _, a := range []struct {
		ordinal int
		deleted bool
	}{{2, false}, {0, false}, {1, true}} {
		require.NoError(t, store.CreateArtifact(ctx, &generationdomain.Artifact{
			ID:        node.Generate(),
			RequestID: run.ID,
			URL:       "https://cdn.example.test/x",
			FileName:  "x.png",
			Ordinal:   a.ordinal,
			ByteSize:  10,
			IsDeleted: a.deleted,
		}))
	}

	got, err := store.FindByRequestID(ctx, tenantID, "gen_find")
	require.NoError(t, err)
	require.Len(t, got.Artifacts, 2)
	assert.Equal(t, 0, got.Artifacts[0].Ordinal)
	assert.Equal(t, 2, got.Artifacts[1].Ordinal)
}

func TestFindByRequestIDScopedToTenant(t *testing.T) {
	store, _, node := setupStore(t)
	ctx := context.Background()

	run := newRun(node, node.Generate(), "gen_mine", generationdomain.StatusProcessing)
	require.NoError(t, store.Create(ctx, run))

	_, err := store.FindByRequestID(ctx, node.Generate(), "gen_mine")
	assert.ErrorIs(t, err, generationdomain.ErrRequestNotFound)
}

func TestTransitionGuardsSourceStatus(t *testing.T) {
	store, _, node := setupStore(t)
	ctx := context.Background()
	tenantID := node.Generate()

	run := newRun(node, tenantID, "gen_trans", generationdomain.StatusProcessing)
	require.NoError(t, store.Create(ctx, run))

	require.NoError(t, store.Transition(ctx, run.ID, generationdomain.StatusProcessing, generationdomain.StatusGenerating))

	// Same move again: the row is no longer in processing.
	err := store.Transition(ctx, run.ID, generationdomain.StatusProcessing, generationdomain.StatusGenerating)
	assert.ErrorIs(t, err, generationdomain.ErrIllegalTransition)

	got, err := store.FindByRequestID(ctx, tenantID, "gen_trans")
	require.NoError(t, err)
	assert.Equal(t, generationdomain.StatusGenerating, got.Status)
}

func TestTransitionRejectsBackwardMove(t *testing.T) {
	store, _, node := setupStore(t)

	run := newRun(node, node.Generate(), "gen_back", generationdomain.StatusGenerating)
	require.NoError(t, store.Create(context.Background(), run))

	err := store.Transition(context.Background(), run.ID, generationdomain.StatusGenerating, generationdomain.StatusProcessing)
	assert.ErrorIs(t, err, generationdomain.ErrIllegalTransition)
}

func TestFinalizeIsTerminalExactlyOnce(t *testing.T) {
	store, _, node := setupStore(t)
	ctx := context.Background()
	tenantID := node.Generate()

	run := newRun(node, tenantID, "gen_final", generationdomain.StatusGenerating)
	require.NoError(t, store.Create(ctx, run))

	completedAt := time.Date(2026, 8, 17, 12, 0, 0, 0, time.UTC)
	msg := "1 of 3 artifact uploads failed"
	require.NoError(t, store.Finalize(ctx, run.ID, generationdomain.StatusCompleted, 2, 1234, &msg, completedAt))

	// A second finalize, from a crashed retry for example, must not touch
	// the terminal row.
	err := store.Finalize(ctx, run.ID, generationdomain.StatusFailed, 0, 0, nil, completedAt.Add(time.Hour))
	assert.ErrorIs(t, err, generationdomain.ErrIllegalTransition)

	got, err := store.FindByRequestID(ctx, tenantID, "gen_final")
	require.NoError(t, err)
	assert.Equal(t, generationdomain.StatusCompleted, got.Status)
	assert.Equal(t, 2, got.TotalArtifacts)
	assert.Equal(t, int64(1234), got.TotalTokens)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, msg, *got.ErrorMessage)
	require.NotNil(t, got.CompletedAt)
	assert.Equal(t, completedAt, got.CompletedAt.UTC())
}

func TestFinalizeRejectsNonTerminalTarget(t *testing.T) {
	store, _, node := setupStore(t)

	run := newRun(node, node.Generate(), "gen_nt", generationdomain.StatusProcessing)
	require.NoError(t, store.Create(context.Background(), run))

	err := store.Finalize(context.Background(), run.ID, generationdomain.StatusGenerating, 0, 0, nil, time.Now().UTC())
	assert.ErrorIs(t, err, generationdomain.ErrIllegalTransition)
}

func TestRecordStagePersistsTokensWithoutStatusChange(t *testing.T) {
	store, _, node := setupStore(t)
	ctx := context.Background()
	tenantID := node.Generate()

	run := newRun(node, tenantID, "gen_stage", generationdomain.StatusProcessing)
	require.NoError(t, store.Create(ctx, run))

	require.NoError(t, store.RecordStage(ctx, run.ID, generationdomain.StageUpdate{
		Fields:             map[string]any{"enhanced_prompt": "warm morning light", "model": "claude-sonnet-4-5"},
		InputTokensColumn:  "analysis_input_tokens",
		OutputTokensColumn: "analysis_output_tokens",
		InputTokens:        150,
		OutputTokens:       420,
	}))

	got, err := store.FindByRequestID(ctx, tenantID, "gen_stage")
	require.NoError(t, err)
	assert.Equal(t, generationdomain.StatusProcessing, got.Status)
	assert.Equal(t, "warm morning light", got.EnhancedPrompt)
	assert.Equal(t, int64(150), got.AnalysisInputTokens)
	assert.Equal(t, int64(420), got.AnalysisOutputTokens)
}

func TestSoftDeleteArtifactDecrementsTotal(t *testing.T) {
	store, _, node := setupStore(t)
	ctx := context.Background()
	tenantID := node.Generate()

	run := newRun(node, tenantID, "gen_del", generationdomain.StatusGenerating)
	require.NoError(t, store.Create(ctx, run))

	artID := node.Generate()
	require.NoError(t, store.CreateArtifact(ctx, &generationdomain.Artifact{
		ID: artID, RequestID: run.ID, URL: "https://cdn.example.test/a", FileName: "a.png", Ordinal: 0, ByteSize: 9,
	}))
	require.NoError(t, store.Finalize(ctx, run.ID, generationdomain.StatusCompleted, 1, 100, nil, time.Now().UTC()))

	require.NoError(t, store.SoftDeleteArtifact(ctx, tenantID, "gen_del", artID))

	got, err := store.FindByRequestID(ctx, tenantID, "gen_del")
	require.NoError(t, err)
	assert.Empty(t, got.Artifacts)
	assert.Equal(t, 0, got.TotalArtifacts)

	// Deleting again finds no live row.
	err = store.SoftDeleteArtifact(ctx, tenantID, "gen_del", artID)
	assert.ErrorIs(t, err, generationdomain.ErrArtifactNotFound)
}

func TestListPagesNewestFirst(t *testing.T) {
	store, _, node := setupStore(t)
	ctx := context.Background()
	tenantID := node.Generate()

	for i := 0; i < 5; i++ {
		run := newRun(node, tenantID, "gen_list_"+string(rune('a'+i)), generationdomain.StatusCompleted)
		require.NoError(t, store.Create(ctx, run))
	}
	// Another tenant's run must never appear.
	other := newRun(node, node.Generate(), "gen_other", generationdomain.StatusCompleted)
	require.NoError(t, store.Create(ctx, other))

	first, info, err := store.List(ctx, generationdomain.ListRequest{
		TenantID:   tenantID,
		Pagination: pagination.Pagination{PageSize: 3},
	})
	require.NoError(t, err)
	require.Len(t, first, 3)
	require.True(t, info.HasMore)

	second, info, err := store.List(ctx, generationdomain.ListRequest{
		TenantID:   tenantID,
		Pagination: pagination.Pagination{PageSize: 3, PageToken: info.NextPageToken},
	})
	require.NoError(t, err)
	require.Len(t, second, 2)
	assert.False(t, info.HasMore)

	// Newest first, no overlap between pages.
	seen := map[string]bool{}
	last := first[0].ID
	for _, r := range append(first, second...) {
		assert.False(t, seen[r.RequestID])
		seen[r.RequestID] = true
		assert.LessOrEqual(t, int64(r.ID), int64(last))
		last = r.ID
	}
}

func TestListFiltersByTypeAndStatus(t *testing.T) {
	store, _, node := setupStore(t)
	ctx := context.Background()
	tenantID := node.Generate()

	img := newRun(node, tenantID, "gen_img", generationdomain.StatusCompleted)
	require.NoError(t, store.Create(ctx, img))

	capRun := newRun(node, tenantID, "gen_cap", generationdomain.StatusFailed)
	capRun.Type = generationdomain.TypeCaption
	require.NoError(t, store.Create(ctx, capRun))

	rows, _, err := store.List(ctx, generationdomain.ListRequest{
		TenantID:   tenantID,
		Type:       generationdomain.TypeCaption,
		Status:     generationdomain.StatusFailed,
		Pagination: pagination.Pagination{PageSize: 10},
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "gen_cap", rows[0].RequestID)
}
