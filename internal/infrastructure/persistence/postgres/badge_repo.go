package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/alem-missions/internal/domain/badge"
	"github.com/alem-hub/alem-missions/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// BADGE REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// BadgeRepository implements badge.CatalogueRepository and
// badge.StudentBadgeRepository for PostgreSQL.
type BadgeRepository struct {
	conn *Connection
}

// NewBadgeRepository creates a new BadgeRepository.
func NewBadgeRepository(conn *Connection) *BadgeRepository {
	return &BadgeRepository{conn: conn}
}

// ─────────────────────────────────────────────────────────────────────────────
// Catalogue
// ─────────────────────────────────────────────────────────────────────────────

// Create inserts a badge.
func (r *BadgeRepository) Create(ctx context.Context, b *badge.Badge) error {
	typ, target, count := badge.FlattenCriterion(b.Criterion)

	_, err := r.conn.Exec(ctx, `
		INSERT INTO badges (
			id, name, description, icon,
			criterion_type, criterion_target, criterion_count,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, b.ID, b.Name, b.Description, b.Icon, string(typ), target, count, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.NewDomainError("badge", "Create", shared.ErrAlreadyExists, "badge already exists")
		}
		return shared.Persistence("badge", "Create", err)
	}
	return nil
}

// GetByID returns a badge by ID.
func (r *BadgeRepository) GetByID(ctx context.Context, id string) (*badge.Badge, error) {
	row := r.conn.QueryRow(ctx, `
		SELECT id, name, description, icon, criterion_type, criterion_target, criterion_count, created_at, updated_at
		FROM badges WHERE id = $1
	`, id)

	b, err := scanBadge(row)
	if IsNoRows(err) {
		return nil, badge.ErrBadgeNotFound
	}
	if err != nil {
		return nil, shared.Persistence("badge", "GetByID", err)
	}
	return b, nil
}

// List returns the whole catalogue ordered by ID.
func (r *BadgeRepository) List(ctx context.Context) ([]*badge.Badge, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT id, name, description, icon, criterion_type, criterion_target, criterion_count, created_at, updated_at
		FROM badges ORDER BY id
	`)
	if err != nil {
		return nil, shared.Persistence("badge", "List", err)
	}
	defer rows.Close()

	out := make([]*badge.Badge, 0)
	for rows.Next() {
		b, err := scanBadge(rows)
		if err != nil {
			return nil, shared.Persistence("badge", "List", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.Persistence("badge", "List", err)
	}
	return out, nil
}

// Update saves descriptive fields and the criterion.
func (r *BadgeRepository) Update(ctx context.Context, b *badge.Badge) error {
	typ, target, count := badge.FlattenCriterion(b.Criterion)

	tag, err := r.conn.Exec(ctx, `
		UPDATE badges SET
			name = $2, description = $3, icon = $4,
			criterion_type = $5, criterion_target = $6, criterion_count = $7,
			updated_at = $8
		WHERE id = $1
	`, b.ID, b.Name, b.Description, b.Icon, string(typ), target, count, b.UpdatedAt)
	if err != nil {
		return shared.Persistence("badge", "Update", err)
	}
	if tag.RowsAffected() == 0 {
		return badge.ErrBadgeNotFound
	}
	return nil
}

// Delete removes a badge from the catalogue.
func (r *BadgeRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.conn.Exec(ctx, `DELETE FROM badges WHERE id = $1`, id)
	if err != nil {
		return shared.Persistence("badge", "Delete", err)
	}
	if tag.RowsAffected() == 0 {
		return badge.ErrBadgeNotFound
	}
	return nil
}

// IsHeld reports whether any student holds the badge.
func (r *BadgeRepository) IsHeld(ctx context.Context, id string) (bool, error) {
	var held bool
	err := r.conn.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM student_badges WHERE $1 = ANY(badge_ids))`, id,
	).Scan(&held)
	if err != nil {
		return false, shared.Persistence("badge", "IsHeld", err)
	}
	return held, nil
}

func scanBadge(row pgx.Row) (*badge.Badge, error) {
	var b badge.Badge
	var typ, target string
	var count int

	if err := row.Scan(&b.ID, &b.Name, &b.Description, &b.Icon, &typ, &target, &count, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}

	c, err := badge.ParseCriterion(badge.CriterionType(typ), target, count)
	if err != nil {
		return nil, fmt.Errorf("badge %s has an invalid criterion: %w", b.ID, err)
	}
	b.Criterion = c
	return &b, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Student badge sets
// ─────────────────────────────────────────────────────────────────────────────

// GetBadgeIDs returns the student's badges, empty when none.
func (r *BadgeRepository) GetBadgeIDs(ctx context.Context, studentID string) ([]string, error) {
	var ids []string
	err := r.conn.QueryRow(ctx,
		`SELECT badge_ids FROM student_badges WHERE student_id = $1`, studentID,
	).Scan(&ids)
	if IsNoRows(err) {
		return []string{}, nil
	}
	if err != nil {
		return nil, shared.Persistence("badge", "GetBadgeIDs", err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// AddBadges unions badgeIDs into the student's set and returns the ones that
// were new. The student row is locked for the read-diff-write, so concurrent
// awards for one student serialize and none is lost.
func (r *BadgeRepository) AddBadges(ctx context.Context, studentID string, badgeIDs []string) ([]string, error) {
	badgeIDs = shared.DedupeStrings(badgeIDs)
	if len(badgeIDs) == 0 {
		return nil, nil
	}

	var added []string
	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO student_badges (student_id) VALUES ($1) ON CONFLICT (student_id) DO NOTHING`,
			studentID,
		); err != nil {
			return err
		}

		var current []string
		if err := tx.QueryRow(ctx,
			`SELECT badge_ids FROM student_badges WHERE student_id = $1 FOR UPDATE`, studentID,
		).Scan(&current); err != nil {
			return err
		}

		held := make(map[string]struct{}, len(current))
		for _, id := range current {
			held[id] = struct{}{}
		}
		added = added[:0]
		for _, id := range badgeIDs {
			if _, ok := held[id]; !ok {
				added = append(added, id)
			}
		}
		if len(added) == 0 {
			return nil
		}

		_, err := tx.Exec(ctx, `
			UPDATE student_badges SET badge_ids = badge_ids || $2::text[], updated_at = NOW()
			WHERE student_id = $1
		`, studentID, added)
		return err
	})
	if err != nil {
		return nil, shared.Persistence("badge", "AddBadges", err)
	}
	return added, nil
}
