package repository

import (
	"context"
	"strconv"
	"time"

	"github.com/smallbiznis/gymledger/internal/routing/domain"
	"github.com/smallbiznis/gymledger/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, decision *domain.RoutingDecision) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO routing_decisions (
			id, selected_entity_id, amount, membership_type, positions, reason,
			method, confidence, threshold_distance, decision_time_ms, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		decision.ID,
		decision.SelectedEntityID,
		decision.Amount,
		decision.MembershipType,
		decision.Positions,
		decision.Reason,
		decision.Method,
		decision.Confidence,
		decision.ThresholdDistance,
		decision.DecisionTimeMs,
		decision.CreatedAt,
	).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, page pagination.Pagination) ([]domain.RoutingDecision, pagination.PageInfo, error) {
	cursor, err := pagination.DecodeCursor(page.PageToken)
	if err != nil {
		return nil, pagination.PageInfo{}, err
	}

	stmt := db.WithContext(ctx).Model(&domain.RoutingDecision{})
	if cursor != nil {
		createdAt, err := time.Parse(time.RFC3339Nano, cursor.CreatedAt)
		if err != nil {
			return nil, pagination.PageInfo{}, pagination.ErrInvalidPageToken
		}
		id, err := strconv.ParseInt(cursor.ID, 10, 64)
		if err != nil {
			return nil, pagination.PageInfo{}, pagination.ErrInvalidPageToken
		}
		stmt = stmt.Where("(created_at < ?) OR (created_at = ? AND id < ?)", createdAt, createdAt, id)
	}

	limit := page.Limit()
	var items []domain.RoutingDecision
	if err := stmt.Order("created_at desc, id desc").Limit(limit + 1).Find(&items).Error; err != nil {
		return nil, pagination.PageInfo{}, err
	}
	return pagination.Page(items, limit, func(d domain.RoutingDecision) pagination.Cursor {
		return pagination.Cursor{ID: d.ID.String(), CreatedAt: d.CreatedAt.UTC().Format(time.RFC3339Nano)}
	})
}
