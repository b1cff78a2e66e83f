package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/iliyamo/gym-roster/internal/model"
)

func (r *ActivityRepo) GetEnrollment(ctx context.Context, id uint64) (*model.Enrollment, error) {
	const q = `SELECT id, user_id, activity_id, created_at FROM enrollments WHERE id = ?`
	var e model.Enrollment
	if err := r.db.QueryRowContext(ctx, q, id).Scan(&e.ID, &e.UserID, &e.ActivityID, &e.CreatedAt); err != nil {
		return nil, classify(err)
	}
	return &e, nil
}

// ListEnrollmentsByUser joins each enrollment with its activity. The join is
// a LEFT JOIN so an enrollment whose activity row is gone comes back with
// ActivityMissing set instead of being dropped.
func (r *ActivityRepo) ListEnrollmentsByUser(ctx context.Context, userID uint64) ([]model.EnrollmentDetail, error) {
	const q = `SELECT e.id, e.user_id, e.activity_id, e.created_at,
			a.id, a.title, a.category, a.description, a.day, a.start_time,
			a.duration_minutes, a.max_capacity, a.instructor, a.photo_url, a.created_at, a.updated_at,
			(SELECT COUNT(*) FROM enrollments x WHERE x.activity_id = e.activity_id)
		FROM enrollments e
		LEFT JOIN activities a ON a.id = e.activity_id
		WHERE e.user_id = ?
		ORDER BY e.id ASC`
	rows, err := r.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	out := []model.EnrollmentDetail{}
	for rows.Next() {
		var (
			d                  model.EnrollmentDetail
			aID                sql.NullInt64
			title, category    sql.NullString
			desc, day, start   sql.NullString
			instr, photo       sql.NullString
			duration, capacity sql.NullInt64
			created, updated   sql.NullTime
			enrolled           int
		)
		if err := rows.Scan(&d.ID, &d.UserID, &d.ActivityID, &d.CreatedAt,
			&aID, &title, &category, &desc, &day, &start,
			&duration, &capacity, &instr, &photo, &created, &updated, &enrolled); err != nil {
			return nil, classify(err)
		}
		if !aID.Valid {
			d.ActivityMissing = true
			out = append(out, d)
			continue
		}
		d.Activity = &model.Activity{
			ID:              uint64(aID.Int64),
			Title:           title.String,
			Category:        model.Category(category.String),
			Description:     desc.String,
			Day:             model.Day(day.String),
			StartTime:       start.String,
			DurationMinutes: int(duration.Int64),
			MaxCapacity:     int(capacity.Int64),
			Instructor:      instr.String,
			PhotoURL:        photo.String,
			Enrolled:        enrolled,
			CreatedAt:       created.Time,
			UpdatedAt:       updated.Time,
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return out, nil
}

func (s *mysqlScope) CountEnrollments(ctx context.Context) (int, error) {
	var n int
	err := s.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM enrollments WHERE activity_id = ?`, s.activityID).Scan(&n)
	if err != nil {
		return 0, classify(err)
	}
	return n, nil
}

func (s *mysqlScope) FindEnrollment(ctx context.Context, userID uint64) (*model.Enrollment, error) {
	const q = `SELECT id, user_id, activity_id, created_at FROM enrollments WHERE user_id = ? AND activity_id = ?`
	var e model.Enrollment
	if err := s.tx.QueryRowContext(ctx, q, userID, s.activityID).Scan(&e.ID, &e.UserID, &e.ActivityID, &e.CreatedAt); err != nil {
		return nil, classify(err)
	}
	return &e, nil
}

// InsertEnrollment relies on the UNIQUE (user_id, activity_id) index as the
// last line against duplicates. A missing user surfaces as ErrNotFound
// through the foreign key.
func (s *mysqlScope) InsertEnrollment(ctx context.Context, userID uint64) (*model.Enrollment, error) {
	now := time.Now().UTC().Truncate(time.Second)
	res, err := s.tx.ExecContext(ctx,
		`INSERT INTO enrollments (user_id, activity_id, created_at) VALUES (?, ?, ?)`,
		userID, s.activityID, now)
	if err != nil {
		switch {
		case isMySQLError(err, mysqlDuplicateEntry):
			return nil, ErrAlreadyEnrolled
		case isMySQLError(err, mysqlNoReferencedRow):
			return nil, fmt.Errorf("user %d: %w", userID, ErrNotFound)
		}
		return nil, classify(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, classify(err)
	}
	return &model.Enrollment{ID: uint64(id), UserID: userID, ActivityID: s.activityID, CreatedAt: now}, nil
}

func (s *mysqlScope) DeleteEnrollment(ctx context.Context, enrollmentID uint64) error {
	res, err := s.tx.ExecContext(ctx,
		`DELETE FROM enrollments WHERE id = ? AND activity_id = ?`, enrollmentID, s.activityID)
	if err != nil {
		return classify(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *mysqlScope) DeleteAllEnrollments(ctx context.Context) (int, error) {
	res, err := s.tx.ExecContext(ctx, `DELETE FROM enrollments WHERE activity_id = ?`, s.activityID)
	if err != nil {
		return 0, classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, classify(err)
	}
	return int(n), nil
}
