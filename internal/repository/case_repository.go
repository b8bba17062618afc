package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/case-service/internal/domain"
	apperrors "github.com/spec-kit/case-service/pkg/util"
)

// CaseRepository encapsulates case persistence. GetOpenByCustomer is the
// matcher lookup: it only considers OPEN and ESCALATED cases and returns the
// most recently updated one when duplicates exist.
type CaseRepository interface {
	Create(ctx context.Context, c *domain.Case) error
	Update(ctx context.Context, c *domain.Case) error
	GetByID(ctx context.Context, id string) (*domain.Case, error)
	GetOpenByCustomer(ctx context.Context, customerIdentity string) (*domain.Case, error)
	GetMostRecentActive(ctx context.Context) (*domain.Case, error)
	ListActive(ctx context.Context) ([]domain.Case, error)
	List(ctx context.Context, filter CaseFilter) ([]domain.Case, error)
}

// CaseFilter narrows the read API listing.
type CaseFilter struct {
	Statuses         []domain.CaseStatus
	CustomerIdentity string
	Limit            int
	Offset           int
}

type caseRepository struct {
	db querier
}

// NewCaseRepository instantiates repository.
func NewCaseRepository(pool *pgxpool.Pool) CaseRepository {
	return &caseRepository{db: pool}
}

const caseColumns = `id, customer_identity, status, created_at, updated_at,
               last_customer_message_at, consecutive_customer_messages,
               escalated_reasons, escalated_at, closed_at, closed_by`

func (r *caseRepository) Create(ctx context.Context, c *domain.Case) error {
	const query = `
        INSERT INTO cases (id, customer_identity, status, created_at, updated_at,
                           last_customer_message_at, consecutive_customer_messages, escalated_reasons)
        VALUES ($1,$2,$3,$4,$4,$5,$6,$7)`
	_, err := r.db.Exec(ctx, query,
		c.ID,
		c.CustomerIdentity,
		c.Status,
		c.CreatedAt,
		c.LastCustomerMessageAt,
		c.ConsecutiveCustomerMessages,
		reasonStrings(c.EscalatedReasons),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		// 23505: the partial unique index on active cases lost a creation
		// race; the caller re-runs the matcher lookup.
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperrors.NewConflict("active case already exists for customer", map[string]any{
				"customer_identity": c.CustomerIdentity,
			})
		}
		return err
	}
	c.UpdatedAt = c.CreatedAt
	return nil
}

func (r *caseRepository) Update(ctx context.Context, c *domain.Case) error {
	const query = `
        UPDATE cases SET status=$1, updated_at=NOW(), last_customer_message_at=$2,
            consecutive_customer_messages=$3, escalated_reasons=$4, escalated_at=$5,
            closed_at=$6, closed_by=$7
        WHERE id=$8
        RETURNING updated_at`
	err := r.db.QueryRow(ctx, query,
		c.Status,
		c.LastCustomerMessageAt,
		c.ConsecutiveCustomerMessages,
		reasonStrings(c.EscalatedReasons),
		c.EscalatedAt,
		c.ClosedAt,
		c.ClosedBy,
		c.ID,
	).Scan(&c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.NewNotFound("case", map[string]any{"case_id": c.ID})
	}
	return err
}

func (r *caseRepository) GetByID(ctx context.Context, id string) (*domain.Case, error) {
	query := `SELECT ` + caseColumns + ` FROM cases WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *caseRepository) GetOpenByCustomer(ctx context.Context, customerIdentity string) (*domain.Case, error) {
	query := `SELECT ` + caseColumns + `
        FROM cases
        WHERE customer_identity=$1 AND status IN ('OPEN','ESCALATED')
        ORDER BY updated_at DESC
        LIMIT 1`
	return r.fetchSingle(ctx, query, customerIdentity)
}

func (r *caseRepository) GetMostRecentActive(ctx context.Context) (*domain.Case, error) {
	query := `SELECT ` + caseColumns + `
        FROM cases
        WHERE status IN ('OPEN','ESCALATED')
        ORDER BY updated_at DESC
        LIMIT 1`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	cases, err := scanCases(rows)
	if err != nil {
		return nil, err
	}
	if len(cases) == 0 {
		return nil, apperrors.NewNotFound("active case", nil)
	}
	return &cases[0], nil
}

func (r *caseRepository) fetchSingle(ctx context.Context, query string, args ...any) (*domain.Case, error) {
	var (
		c       domain.Case
		reasons []string
	)
	err := r.db.QueryRow(ctx, query, args...).Scan(
		&c.ID,
		&c.CustomerIdentity,
		&c.Status,
		&c.CreatedAt,
		&c.UpdatedAt,
		&c.LastCustomerMessageAt,
		&c.ConsecutiveCustomerMessages,
		&reasons,
		&c.EscalatedAt,
		&c.ClosedAt,
		&c.ClosedBy,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NewNotFound("case", nil)
	}
	if err != nil {
		return nil, err
	}
	c.EscalatedReasons = reasonTriggers(reasons)
	return &c, nil
}

func (r *caseRepository) ListActive(ctx context.Context) ([]domain.Case, error) {
	query := `SELECT ` + caseColumns + `
        FROM cases
        WHERE status IN ('OPEN','ESCALATED')
        ORDER BY updated_at ASC`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCases(rows)
}

func (r *caseRepository) List(ctx context.Context, filter CaseFilter) ([]domain.Case, error) {
	query := `SELECT ` + caseColumns + ` FROM cases`
	var (
		clauses []string
		args    []any
	)
	if len(filter.Statuses) > 0 {
		args = append(args, statusStrings(filter.Statuses))
		clauses = append(clauses, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if filter.CustomerIdentity != "" {
		args = append(args, filter.CustomerIdentity)
		clauses = append(clauses, fmt.Sprintf("customer_identity = $%d", len(args)))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY updated_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCases(rows)
}

func statusStrings(statuses []domain.CaseStatus) []string {
	out := make([]string, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, string(s))
	}
	return out
}

func scanCases(rows pgx.Rows) ([]domain.Case, error) {
	var result []domain.Case
	for rows.Next() {
		var (
			c       domain.Case
			reasons []string
		)
		if err := rows.Scan(
			&c.ID,
			&c.CustomerIdentity,
			&c.Status,
			&c.CreatedAt,
			&c.UpdatedAt,
			&c.LastCustomerMessageAt,
			&c.ConsecutiveCustomerMessages,
			&reasons,
			&c.EscalatedAt,
			&c.ClosedAt,
			&c.ClosedBy,
		); err != nil {
			return nil, err
		}
		c.EscalatedReasons = reasonTriggers(reasons)
		result = append(result, c)
	}
	return result, rows.Err()
}

func reasonStrings(reasons []domain.EscalationTrigger) []string {
	out := make([]string, 0, len(reasons))
	for _, r := range reasons {
		out = append(out, string(r))
	}
	return out
}

func reasonTriggers(reasons []string) []domain.EscalationTrigger {
	out := make([]domain.EscalationTrigger, 0, len(reasons))
	for _, r := range reasons {
		out = append(out, domain.EscalationTrigger(r))
	}
	return out
}
