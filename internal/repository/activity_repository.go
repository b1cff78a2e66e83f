package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/gym-roster/internal/model"
)

// ActivityRepo is the MySQL Store. Activity scopes are transactions that
// hold a row lock on the activity (SELECT ... FOR UPDATE), so the exclusion
// also holds between server processes sharing the database.
type ActivityRepo struct {
	db *sql.DB
}

func NewActivityRepo(db *sql.DB) *ActivityRepo {
	return &ActivityRepo{db: db}
}

// DB exposes the underlying handle for health checks.
func (r *ActivityRepo) DB() *sql.DB {
	return r.db
}

const activityColumns = `a.id, a.title, a.category, a.description, a.day, a.start_time,
	a.duration_minutes, a.max_capacity, a.instructor, a.photo_url, a.created_at, a.updated_at`

// enrolledColumn counts the ledger rows of the activity in the same statement
// so the returned pair is always consistent.
const enrolledColumn = `(SELECT COUNT(*) FROM enrollments e WHERE e.activity_id = a.id) AS enrolled`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanActivity(row rowScanner, withCount bool) (*model.Activity, error) {
	var (
		a        model.Activity
		category string
		day      string
	)
	dest := []any{
		&a.ID, &a.Title, &category, &a.Description, &day, &a.StartTime,
		&a.DurationMinutes, &a.MaxCapacity, &a.Instructor, &a.PhotoURL, &a.CreatedAt, &a.UpdatedAt,
	}
	if withCount {
		dest = append(dest, &a.Enrolled)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	a.Category = model.Category(category)
	a.Day = model.Day(day)
	return &a, nil
}

func (r *ActivityRepo) InsertActivity(ctx context.Context, spec model.ActivitySpec) (*model.Activity, error) {
	const q = `INSERT INTO activities
		(title, category, description, day, start_time, duration_minutes, max_capacity, instructor, photo_url)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q,
		spec.Title, string(spec.Category), spec.Description, string(spec.Day), spec.StartTime,
		spec.DurationMinutes, spec.MaxCapacity, spec.Instructor, spec.PhotoURL)
	if err != nil {
		return nil, classify(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, classify(err)
	}
	return r.GetActivity(ctx, uint64(id))
}

func (r *ActivityRepo) GetActivity(ctx context.Context, id uint64) (*model.Activity, error) {
	q := `SELECT ` + activityColumns + `, ` + enrolledColumn + ` FROM activities a WHERE a.id = ?`
	a, err := scanActivity(r.db.QueryRowContext(ctx, q, id), true)
	if err != nil {
		return nil, classify(err)
	}
	return a, nil
}

// ListActivities applies the filter in SQL. Search is a case-insensitive
// substring match over title, description and instructor.
func (r *ActivityRepo) ListActivities(ctx context.Context, f model.ActivityFilter) ([]model.Activity, error) {
	where := []string{}
	args := []any{}
	if f.Category != "" {
		where = append(where, "a.category = ?")
		args = append(args, string(f.Category))
	}
	if f.Day != "" {
		where = append(where, "a.day = ?")
		args = append(args, string(f.Day))
	}
	if f.StartTime != "" {
		where = append(where, "a.start_time = ?")
		args = append(args, f.StartTime)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		pattern := "%" + escapeLike(strings.ToLower(s)) + "%"
		where = append(where, "(LOWER(a.title) LIKE ? OR LOWER(a.description) LIKE ? OR LOWER(a.instructor) LIKE ?)")
		args = append(args, pattern, pattern, pattern)
	}
	cond := "1=1"
	if len(where) > 0 {
		cond = strings.Join(where, " AND ")
	}
	order := "a.id ASC"
	if f.Sort == model.SortSchedule {
		order = "FIELD(a.day, 'monday','tuesday','wednesday','thursday','friday','saturday','sunday','open'), a.start_time, a.id"
	}

	q := `SELECT ` + activityColumns + `, ` + enrolledColumn + ` FROM activities a WHERE ` + cond + ` ORDER BY ` + order
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	out := []model.Activity{}
	for rows.Next() {
		a, err := scanActivity(rows, true)
		if err != nil {
			return nil, classify(err)
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return out, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (r *ActivityRepo) InActivityScope(ctx context.Context, activityID uint64, fn ScopeFunc) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	q := `SELECT ` + activityColumns + ` FROM activities a WHERE a.id = ? FOR UPDATE`
	a, err := scanActivity(tx.QueryRowContext(ctx, q, activityID), false)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return classify(err)
	}
	scope := &mysqlScope{tx: tx, activityID: activityID}
	if a.Enrolled, err = scope.CountEnrollments(ctx); err != nil {
		return err
	}
	if err := fn(ctx, scope, a); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return classify(err)
	}
	committed = true
	return nil
}

// mysqlScope implements ScopeTx on an open transaction holding the
// activity row lock.
type mysqlScope struct {
	tx         *sql.Tx
	activityID uint64
}

func (s *mysqlScope) UpdateActivity(ctx context.Context, spec model.ActivitySpec) (*model.Activity, error) {
	const q = `UPDATE activities SET title = ?, category = ?, description = ?, day = ?, start_time = ?,
		duration_minutes = ?, max_capacity = ?, instructor = ?, photo_url = ?
		WHERE id = ?`
	if _, err := s.tx.ExecContext(ctx, q,
		spec.Title, string(spec.Category), spec.Description, string(spec.Day), spec.StartTime,
		spec.DurationMinutes, spec.MaxCapacity, spec.Instructor, spec.PhotoURL, s.activityID); err != nil {
		return nil, classify(err)
	}
	sel := `SELECT ` + activityColumns + `, ` + enrolledColumn + ` FROM activities a WHERE a.id = ?`
	a, err := scanActivity(s.tx.QueryRowContext(ctx, sel, s.activityID), true)
	if err != nil {
		return nil, classify(err)
	}
	return a, nil
}

func (s *mysqlScope) DeleteActivity(ctx context.Context) error {
	res, err := s.tx.ExecContext(ctx, `DELETE FROM activities WHERE id = ?`, s.activityID)
	if err != nil {
		return classify(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
