package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"class-booking/internal/models"

	"github.com/lib/pq"
)

// ListActiveClasses retrieves active classes, newest first, with their schedules
func (s *Store) ListActiveClasses(ctx context.Context) ([]models.Class, error) {
	var classes []models.Class
	err := s.db.SelectContext(ctx, &classes,
		"SELECT "+selectList("c", classColumns)+" FROM classes c WHERE c.is_active = TRUE ORDER BY c.created_at DESC")
	if err != nil {
		return nil, err
	}
	return classes, s.attachSchedules(ctx, classes)
}

// ListClasses retrieves every class regardless of state, newest first
func (s *Store) ListClasses(ctx context.Context) ([]models.Class, error) {
	var classes []models.Class
	err := s.db.SelectContext(ctx, &classes,
		"SELECT "+selectList("c", classColumns)+" FROM classes c ORDER BY c.created_at DESC")
	if err != nil {
		return nil, err
	}
	return classes, s.attachSchedules(ctx, classes)
}

// GetActiveClass retrieves an active class with its schedules
func (s *Store) GetActiveClass(ctx context.Context, id string) (*models.Class, error) {
	var class models.Class
	err := s.db.GetContext(ctx, &class,
		"SELECT "+selectList("c", classColumns)+" FROM classes c WHERE c.id = $1 AND c.is_active = TRUE", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: class %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, mapInvalidID(err, "class", id)
	}

	list := []models.Class{class}
	if err := s.attachSchedules(ctx, list); err != nil {
		return nil, err
	}
	return &list[0], nil
}

// GetClassByID retrieves a class without its schedules
func (s *Store) GetClassByID(ctx context.Context, id string) (*models.Class, error) {
	var class models.Class
	err := s.db.GetContext(ctx, &class,
		"SELECT "+selectList("c", classColumns)+" FROM classes c WHERE c.id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: class %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, mapInvalidID(err, "class", id)
	}
	return &class, nil
}

// CreateClass inserts a class and fills its generated fields
func (s *Store) CreateClass(ctx context.Context, class *models.Class) error {
	query := `
		INSERT INTO classes (title, description, long_description, price, duration_hours,
			instructor_name, instructor_bio, max_students, meeting_link, meeting_type,
			category, level, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at, updated_at`

	row := s.db.QueryRowxContext(ctx, query,
		class.Title, class.Description, class.LongDescription, class.Price, class.DurationHours,
		class.InstructorName, class.InstructorBio, class.MaxStudents, class.MeetingLink, class.MeetingType,
		class.Category, class.Level, class.IsActive)
	if err := row.Scan(&class.ID, &class.CreatedAt, &class.UpdatedAt); err != nil {
		return mapError(err)
	}
	return nil
}

// UpdateClass overwrites a class. The price is locked once any payment references the class.
func (s *Store) UpdateClass(ctx context.Context, class *models.Class) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var current models.Class
	err = tx.GetContext(ctx, &current,
		"SELECT "+selectList("c", classColumns)+" FROM classes c WHERE c.id = $1 FOR UPDATE", class.ID)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: class %s", ErrNotFound, class.ID)
	}
	if err != nil {
		return mapInvalidID(err, "class", class.ID)
	}

	if !current.Price.Equal(class.Price) {
		var referenced bool
		err = tx.GetContext(ctx, &referenced,
			"SELECT EXISTS(SELECT 1 FROM payments WHERE class_id = $1)", class.ID)
		if err != nil {
			return fmt.Errorf("failed to check class payments: %w", err)
		}
		if referenced {
			return fmt.Errorf("%w: price of class %s is referenced by payments", ErrConflict, class.ID)
		}
	}

	query := `
		UPDATE classes SET title = $1, description = $2, long_description = $3, price = $4,
			duration_hours = $5, instructor_name = $6, instructor_bio = $7, max_students = $8,
			meeting_link = $9, meeting_type = $10, category = $11, level = $12, is_active = $13,
			updated_at = NOW()
		WHERE id = $14
		RETURNING created_at, updated_at`

	row := tx.QueryRowxContext(ctx, query,
		class.Title, class.Description, class.LongDescription, class.Price, class.DurationHours,
		class.InstructorName, class.InstructorBio, class.MaxStudents, class.MeetingLink, class.MeetingType,
		class.Category, class.Level, class.IsActive, class.ID)
	if err := row.Scan(&class.CreatedAt, &class.UpdatedAt); err != nil {
		return mapError(err)
	}

	return tx.Commit()
}

// DeleteClass removes a class and its schedules. Classes referenced by payments cannot be deleted.
func (s *Store) DeleteClass(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM classes WHERE id = $1", id)
	if err != nil {
		return mapInvalidID(mapError(err), "class", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: class %s", ErrNotFound, id)
	}
	return nil
}

// CreateSchedule inserts a schedule for an existing class
func (s *Store) CreateSchedule(ctx context.Context, schedule *models.Schedule) error {
	query := `
		INSERT INTO class_schedules (class_id, start_date, start_time, end_time, timezone)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, is_full, enrolled_count`

	row := s.db.QueryRowxContext(ctx, query,
		schedule.ClassID, schedule.StartDate, schedule.StartTime, schedule.EndTime, schedule.Timezone)
	err := row.Scan(&schedule.ID, &schedule.IsFull, &schedule.EnrolledCount)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" {
			return fmt.Errorf("%w: class %s", ErrNotFound, schedule.ClassID)
		}
		return mapInvalidID(err, "class", schedule.ClassID)
	}
	return nil
}

// GetSchedule retrieves a schedule by ID
func (s *Store) GetSchedule(ctx context.Context, id string) (*models.Schedule, error) {
	var schedule models.Schedule
	err := s.db.GetContext(ctx, &schedule,
		"SELECT "+selectList("s", scheduleColumns)+" FROM class_schedules s WHERE s.id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: schedule %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, mapInvalidID(err, "schedule", id)
	}
	return &schedule, nil
}

// AdjustScheduleEnrollment moves enrolled_count by delta and recomputes is_full
// against the class capacity
func (s *Store) AdjustScheduleEnrollment(ctx context.Context, scheduleID string, delta int) (*models.Schedule, error) {
	query := `
		UPDATE class_schedules s
		SET enrolled_count = GREATEST(s.enrolled_count + $2, 0),
			is_full = c.max_students IS NOT NULL AND GREATEST(s.enrolled_count + $2, 0) >= c.max_students
		FROM classes c
		WHERE s.id = $1 AND c.id = s.class_id
		RETURNING ` + selectList("s", scheduleColumns)

	var schedule models.Schedule
	err := s.db.GetContext(ctx, &schedule, query, scheduleID, delta)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: schedule %s", ErrNotFound, scheduleID)
	}
	if err != nil {
		return nil, mapInvalidID(err, "schedule", scheduleID)
	}
	return &schedule, nil
}

// attachSchedules loads schedules for the given classes in one query
func (s *Store) attachSchedules(ctx context.Context, classes []models.Class) error {
	if len(classes) == 0 {
		return nil
	}

	ids := make([]string, len(classes))
	for i := range classes {
		ids[i] = classes[i].ID
	}

	var schedules []models.Schedule
	err := s.db.SelectContext(ctx, &schedules,
		"SELECT "+selectList("s", scheduleColumns)+
			" FROM class_schedules s WHERE s.class_id = ANY($1) ORDER BY s.start_date, s.start_time",
		pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to load schedules: %w", err)
	}

	byClass := make(map[string][]models.Schedule, len(classes))
	for _, sch := range schedules {
		byClass[sch.ClassID] = append(byClass[sch.ClassID], sch)
	}
	for i := range classes {
		classes[i].Schedules = byClass[classes[i].ID]
		if classes[i].Schedules == nil {
			classes[i].Schedules = []models.Schedule{}
		}
	}
	return nil
}

// mapInvalidID treats a malformed UUID the same as a missing row
func mapInvalidID(err error, kind, id string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "22P02" {
		return fmt.Errorf("%w: %s %s", ErrNotFound, kind, id)
	}
	return err
}
