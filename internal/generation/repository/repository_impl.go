// Package repository implements the generation run store over gorm.
package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/bwmarrin/snowflake"
	generationdomain "github.com/smallbiznis/pixora/internal/generation/domain"
	"github.com/smallbiznis/pixora/pkg/db/pagination"
	"github.com/smallbiznis/pixora/pkg/repository"
	"github.com/smallbiznis/pixora/pkg/rls"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type StoreParam struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
}

type store struct {
	db        *gorm.DB
	requests  repository.Repository[generationdomain.GenerationRequest]
	artifacts repository.Repository[generationdomain.Artifact]
	log       *zap.Logger
}

// NewStore returns the gorm-backed generation run store.
func NewStore(p StoreParam) generationdomain.Store {
	return &store{
		db:        p.DB,
		requests:  repository.ProvideStore[generationdomain.GenerationRequest](p.DB),
		artifacts: repository.ProvideStore[generationdomain.Artifact](p.DB),
		log:       p.Log.Named("generation.store"),
	}
}

func (s *store) Create(ctx context.Context, req *generationdomain.GenerationRequest) error {
	return s.requests.Create(ctx, req)
}

func (s *store) FindByRequestID(ctx context.Context, tenantID snowflake.ID, requestID string) (*generationdomain.GenerationRequest, error) {
	req, err := s.requests.FindOne(ctx,
		&generationdomain.GenerationRequest{TenantID: tenantID, RequestID: requestID},
		repository.WithPreload("Artifacts", "is_deleted = ?", false),
	)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, generationdomain.ErrRequestNotFound
	}

	// Preload ordering is not guaranteed across dialects; restore here.
	sortArtifacts(req.Artifacts)
	return req, nil
}

func (s *store) List(ctx context.Context, req generationdomain.ListRequest) ([]*generationdomain.GenerationRequest, *pagination.PageInfo, error) {
	limit := req.Pagination.PageSize
	if limit < 1 {
		limit = 10
	}

	stmt := s.db.WithContext(ctx).
		Model(&generationdomain.GenerationRequest{}).
		Where("tenant_id = ?", req.TenantID).
		Preload("Artifacts", "is_deleted = ?", false).
		Order("id DESC").
		Limit(limit + 1)

	if req.Type != "" {
		stmt = stmt.Where("type = ?", req.Type)
	}
	if req.Status != "" {
		stmt = stmt.Where("status = ?", req.Status)
	}

	if req.Pagination.PageToken != "" {
		cursor, err := pagination.DecodeCursor(req.Pagination.PageToken)
		if err != nil {
			return nil, nil, fmt.Errorf("decode page token: %w", err)
		}
		cursorID, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return nil, nil, fmt.Errorf("decode page token: %w", err)
		}
		stmt = stmt.Where("id < ?", cursorID)
	}

	var rows []*generationdomain.GenerationRequest
	if err := stmt.Find(&rows).Error; err != nil {
		return nil, nil, err
	}

	pageInfo := pagination.BuildCursorPageInfo(rows, int32(limit), func(r *generationdomain.GenerationRequest) string {
		token, _ := pagination.EncodeCursor(pagination.Cursor{ID: r.ID.String()})
		return token
	})
	if len(rows) > limit {
		rows = rows[:limit]
	}

	for _, r := range rows {
		sortArtifacts(r.Artifacts)
	}
	return rows, pageInfo, nil
}

// Transition performs the guarded forward move. The WHERE clause carries the
// expected source status, so a row that already moved on (or finished)
// matches nothing and the run stays monotonic.
func (s *store) Transition(ctx context.Context, id snowflake.ID, from, to generationdomain.Status) error {
	if !generationdomain.CanTransition(from, to) {
		return generationdomain.ErrIllegalTransition
	}

	res := s.db.WithContext(ctx).
		Model(&generationdomain.GenerationRequest{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{
			"status":     to,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return generationdomain.ErrIllegalTransition
	}
	return nil
}

func (s *store) RecordStage(ctx context.Context, id snowflake.ID, update generationdomain.StageUpdate) error {
	values := map[string]any{
		"updated_at": time.Now().UTC(),
	}
	for col, v := range update.Fields {
		values[col] = v
	}
	if update.InputTokensColumn != "" {
		values[update.InputTokensColumn] = update.InputTokens
	}
	if update.OutputTokensColumn != "" {
		values[update.OutputTokensColumn] = update.OutputTokens
	}

	return s.db.WithContext(ctx).
		Model(&generationdomain.GenerationRequest{}).
		Where("id = ?", id).
		Updates(values).Error
}

func (s *store) Finalize(ctx context.Context, id snowflake.ID, to generationdomain.Status, totalArtifacts int, totalTokens int64, errMessage *string, completedAt time.Time) error {
	if !to.IsTerminal() {
		return generationdomain.ErrIllegalTransition
	}

	res := s.db.WithContext(ctx).
		Model(&generationdomain.GenerationRequest{}).
		Where("id = ? AND status NOT IN ?", id, []generationdomain.Status{
			generationdomain.StatusCompleted,
			generationdomain.StatusFailed,
		}).
		Updates(map[string]any{
			"status":          to,
			"total_artifacts": totalArtifacts,
			"total_tokens":    totalTokens,
			"error_message":   errMessage,
			"completed_at":    completedAt,
			"updated_at":      time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return generationdomain.ErrIllegalTransition
	}
	return nil
}

func (s *store) CreateArtifact(ctx context.Context, art *generationdomain.Artifact) error {
	return s.artifacts.Create(ctx, art)
}

func (s *store) SoftDeleteArtifact(ctx context.Context, tenantID snowflake.ID, requestID string, artifactID snowflake.ID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := rls.WithTenant(tx, int64(tenantID)); err != nil {
			return err
		}

		var req generationdomain.GenerationRequest
		err := tx.Where("tenant_id = ? AND request_id = ?", tenantID, requestID).
			First(&req).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return generationdomain.ErrRequestNotFound
			}
			return err
		}

		res := tx.Model(&generationdomain.Artifact{}).
			Where("id = ? AND request_id = ? AND is_deleted = ?", artifactID, req.ID, false).
			Updates(map[string]any{
				"is_deleted": true,
				"updated_at": time.Now().UTC(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return generationdomain.ErrArtifactNotFound
		}

		// total_artifacts tracks live artifacts only.
		return tx.Model(&generationdomain.GenerationRequest{}).
			Where("id = ? AND total_artifacts > 0", req.ID).
			Update("total_artifacts", gorm.Expr("total_artifacts - 1")).Error
	})
}

func sortArtifacts(arts []generationdomain.Artifact) {
	sort.Slice(arts, func(i, j int) bool { return arts[i].Ordinal < arts[j].Ordinal })
}
