package cycles

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"perfreview/internal/domain/timeline"
)

type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

const cycleColumns = `
    c.id, c.tenant_id, c.name, c.status, c.timeline_version, c.created_by, c.created_at, c.updated_at,
    t.review_period_start, t.review_period_end, t.self_start, t.self_end,
    t.peer_start, t.peer_end, t.manager_start, t.manager_end
  `

const cycleFrom = `
    FROM review_cycles c
    JOIN review_cycle_timelines t ON t.cycle_id = c.id AND t.version = c.timeline_version
  `

// mapError turns missing rows and malformed ids into ErrNotFound and unique
// violations into ErrDuplicateAssignment.
func mapError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "22P02":
			return ErrNotFound
		case "23505":
			return ErrDuplicateAssignment
		}
	}
	return err
}

func scanCycle(row pgx.Row) (ReviewCycle, error) {
	var c ReviewCycle
	tl := &c.Timeline
	err := row.Scan(
		&c.ID, &c.TenantID, &c.Name, &c.Status, &c.TimelineVersion, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt,
		&tl.ReviewPeriod.Start, &tl.ReviewPeriod.End, &tl.SelfAssessment.Start, &tl.SelfAssessment.End,
		&tl.PeerReview.Start, &tl.PeerReview.End, &tl.ManagerReview.Start, &tl.ManagerReview.End,
	)
	if err != nil {
		return ReviewCycle{}, err
	}
	c.Timeline = c.Timeline.Normalized()
	return c, nil
}

func (s *Store) CreateCycle(ctx context.Context, cycle ReviewCycle) (ReviewCycle, error) {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return ReviewCycle{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var id string
	if err := tx.QueryRow(ctx, `
    INSERT INTO review_cycles (tenant_id, name, status, timeline_version, created_by)
    VALUES ($1,$2,$3,1,$4)
    RETURNING id
  `, cycle.TenantID, cycle.Name, cycle.Status, cycle.CreatedBy).Scan(&id); err != nil {
		return ReviewCycle{}, err
	}
	if err := insertTimeline(ctx, tx, id, 1, cycle.CreatedBy, cycle.Timeline); err != nil {
		return ReviewCycle{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return ReviewCycle{}, err
	}
	return s.GetCycle(ctx, cycle.TenantID, id)
}

func insertTimeline(ctx context.Context, tx pgx.Tx, cycleID string, version int, actorID string, t timeline.Timeline) error {
	_, err := tx.Exec(ctx, `
    INSERT INTO review_cycle_timelines (
      cycle_id, version, review_period_start, review_period_end, self_start, self_end,
      peer_start, peer_end, manager_start, manager_end, created_by
    )
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
  `, cycleID, version,
		t.ReviewPeriod.Start, t.ReviewPeriod.End, t.SelfAssessment.Start, t.SelfAssessment.End,
		t.PeerReview.Start, t.PeerReview.End, t.ManagerReview.Start, t.ManagerReview.End, actorID)
	return err
}

func (s *Store) GetCycle(ctx context.Context, tenantID, cycleID string) (ReviewCycle, error) {
	row := s.DB.QueryRow(ctx, "SELECT "+cycleColumns+cycleFrom+" WHERE c.tenant_id = $1 AND c.id = $2", tenantID, cycleID)
	cycle, err := scanCycle(row)
	if err != nil {
		return ReviewCycle{}, mapError(err)
	}
	return cycle, nil
}

func (s *Store) ListCycles(ctx context.Context, tenantID string, filter ListFilter) ([]ReviewCycle, error) {
	query := "SELECT " + cycleColumns + cycleFrom + " WHERE c.tenant_id = $1"
	args := []any{tenantID}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND c.status = $%d", len(args))
	}
	if filter.ReviewerID != "" {
		args = append(args, filter.ReviewerID)
		query += fmt.Sprintf(" AND EXISTS (SELECT 1 FROM review_assignments a WHERE a.cycle_id = c.id AND (a.reviewer_id = $%d OR a.subject_id = $%d))", len(args), len(args))
	}
	query += " ORDER BY c.created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit, filter.Offset)
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ReviewCycle
	for rows.Next() {
		cycle, err := scanCycle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cycle)
	}
	return out, rows.Err()
}

func (s *Store) AppendTimeline(ctx context.Context, tenantID, cycleID, actorID string, t timeline.Timeline) (ReviewCycle, error) {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return ReviewCycle{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var version int
	err = tx.QueryRow(ctx, `
    UPDATE review_cycles
    SET timeline_version = timeline_version + 1, updated_at = now()
    WHERE tenant_id = $1 AND id = $2
    RETURNING timeline_version
  `, tenantID, cycleID).Scan(&version)
	if err != nil {
		return ReviewCycle{}, mapError(err)
	}
	if err := insertTimeline(ctx, tx, cycleID, version, actorID, t); err != nil {
		return ReviewCycle{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return ReviewCycle{}, err
	}
	return s.GetCycle(ctx, tenantID, cycleID)
}

func (s *Store) TimelineHistory(ctx context.Context, tenantID, cycleID string) ([]TimelineVersion, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT t.version, t.created_by, t.created_at,
           t.review_period_start, t.review_period_end, t.self_start, t.self_end,
           t.peer_start, t.peer_end, t.manager_start, t.manager_end
    FROM review_cycle_timelines t
    JOIN review_cycles c ON c.id = t.cycle_id
    WHERE c.tenant_id = $1 AND c.id = $2
    ORDER BY t.version ASC
  `, tenantID, cycleID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []TimelineVersion
	for rows.Next() {
		var v TimelineVersion
		tl := &v.Timeline
		if err := rows.Scan(&v.Version, &v.CreatedBy, &v.CreatedAt,
			&tl.ReviewPeriod.Start, &tl.ReviewPeriod.End, &tl.SelfAssessment.Start, &tl.SelfAssessment.End,
			&tl.PeerReview.Start, &tl.PeerReview.End, &tl.ManagerReview.Start, &tl.ManagerReview.End); err != nil {
			return nil, err
		}
		v.Timeline = v.Timeline.Normalized()
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}

func (s *Store) UpdateCycleStatus(ctx context.Context, tenantID, cycleID, status string) error {
	tag, err := s.DB.Exec(ctx, `
    UPDATE review_cycles
    SET status = $1, updated_at = now()
    WHERE tenant_id = $2 AND id = $3
  `, status, tenantID, cycleID)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const assignmentColumns = "id, cycle_id, phase, reviewer_id, subject_id, submitted_at, created_at"

func scanAssignment(row pgx.Row) (Assignment, error) {
	var a Assignment
	var phase string
	if err := row.Scan(&a.ID, &a.CycleID, &phase, &a.ReviewerID, &a.SubjectID, &a.SubmittedAt, &a.CreatedAt); err != nil {
		return Assignment{}, err
	}
	a.Phase = timeline.Phase(phase)
	return a, nil
}

func (s *Store) CreateAssignment(ctx context.Context, tenantID string, assignment Assignment) (Assignment, error) {
	row := s.DB.QueryRow(ctx, `
    INSERT INTO review_assignments (tenant_id, cycle_id, phase, reviewer_id, subject_id)
    VALUES ($1,$2,$3,$4,$5)
    RETURNING `+assignmentColumns,
		tenantID, assignment.CycleID, string(assignment.Phase), assignment.ReviewerID, assignment.SubjectID)
	a, err := scanAssignment(row)
	if err != nil {
		return Assignment{}, mapError(err)
	}
	return a, nil
}

func (s *Store) GetAssignment(ctx context.Context, tenantID, assignmentID string) (Assignment, error) {
	row := s.DB.QueryRow(ctx, "SELECT "+assignmentColumns+" FROM review_assignments WHERE tenant_id = $1 AND id = $2", tenantID, assignmentID)
	a, err := scanAssignment(row)
	if err != nil {
		return Assignment{}, mapError(err)
	}
	return a, nil
}

// MarkSubmitted sets submitted_at once. It reports false when the assignment
// was already submitted.
func (s *Store) MarkSubmitted(ctx context.Context, tenantID, assignmentID string, at time.Time) (bool, error) {
	tag, err := s.DB.Exec(ctx, `
    UPDATE review_assignments
    SET submitted_at = $1
    WHERE tenant_id = $2 AND id = $3 AND submitted_at IS NULL
  `, at, tenantID, assignmentID)
	if err != nil {
		return false, mapError(err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) ListAssignments(ctx context.Context, tenantID string, filter AssignmentFilter) ([]Assignment, error) {
	query := "SELECT " + assignmentColumns + " FROM review_assignments WHERE tenant_id = $1"
	args := []any{tenantID}
	if filter.CycleID != "" {
		args = append(args, filter.CycleID)
		query += fmt.Sprintf(" AND cycle_id = $%d", len(args))
	}
	if filter.ReviewerID != "" {
		args = append(args, filter.ReviewerID)
		query += fmt.Sprintf(" AND reviewer_id = $%d", len(args))
	}
	if filter.Phase != "" {
		args = append(args, string(filter.Phase))
		query += fmt.Sprintf(" AND phase = $%d", len(args))
	}
	if filter.Pending {
		query += " AND submitted_at IS NULL"
	}
	query += " ORDER BY created_at ASC"

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) PhaseCounts(ctx context.Context, tenantID, cycleID string) (timeline.Counts, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT phase, COUNT(1), COUNT(submitted_at)
    FROM review_assignments
    WHERE tenant_id = $1 AND cycle_id = $2
    GROUP BY phase
  `, tenantID, cycleID)
	if err != nil {
		return timeline.Counts{}, err
	}
	defer rows.Close()

	var counts timeline.Counts
	for rows.Next() {
		var phase string
		var total, completed int
		if err := rows.Scan(&phase, &total, &completed); err != nil {
			return timeline.Counts{}, err
		}
		pc := timeline.PhaseCount{Completed: completed, Total: total}
		switch timeline.Phase(phase) {
		case timeline.PhaseSelfAssessment:
			counts.Self = pc
		case timeline.PhasePeerReview:
			counts.Peer = pc
		case timeline.PhaseManagerReview:
			counts.Manager = pc
		}
	}
	return counts, rows.Err()
}

func (s *Store) ListOpenCycleTenants(ctx context.Context) ([]string, error) {
	rows, err := s.DB.Query(ctx, `SELECT DISTINCT tenant_id FROM review_cycles WHERE status <> 'closed'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
