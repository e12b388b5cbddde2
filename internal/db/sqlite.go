// Package db provides SQLite storage implementation.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/javiermolinar/studyplanner/internal/dateutil"
	"github.com/javiermolinar/studyplanner/internal/profile"
)

// instantLayout stores instants as sortable UTC text.
const instantLayout = "2006-01-02T15:04:05Z"

// SQLite implements profile.Repository and task.Repository using SQLite.
type SQLite struct {
	db       *sql.DB
	defaults profile.Preferences
}

// Option configures a SQLite repository.
type Option func(*SQLite)

// WithPreferenceDefaults sets the preferences created lazily for new users.
func WithPreferenceDefaults(p profile.Preferences) Option {
	return func(s *SQLite) { s.defaults = p }
}

// New creates a new SQLite repository and runs migrations.
func New(path string, opts ...Option) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "" && path != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One connection keeps per-connection pragmas in effect and serializes writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &SQLite{db: db, defaults: profile.DefaultPreferences()}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close releases database resources.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// CreateUser adds a new user. A zero ID is assigned by the database.
func (s *SQLite) CreateUser(ctx context.Context, u *profile.User) error {
	var id any
	if u.ID > 0 {
		id = u.ID
	}
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, calendar_token, created_at) VALUES (?, ?, ?, ?)`,
		id, u.Email, u.CalendarToken, formatInstant(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("inserting user: %w", err)
	}
	newID, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting last insert id: %w", err)
	}
	u.ID = newID
	return nil
}

// EnsureUser returns the user with the given ID, creating it if missing.
func (s *SQLite) EnsureUser(ctx context.Context, id int64) (*profile.User, error) {
	u, err := s.GetUser(ctx, id)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, profile.ErrUserNotFound) {
		return nil, err
	}
	u = &profile.User{ID: id}
	if err := s.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// GetUser retrieves a user by ID.
func (s *SQLite) GetUser(ctx context.Context, id int64) (*profile.User, error) {
	var u profile.User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, calendar_token FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.Email, &u.CalendarToken)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", profile.ErrUserNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}
	return &u, nil
}

// SetCalendarToken stores the serialized OAuth token. Empty unlinks.
func (s *SQLite) SetCalendarToken(ctx context.Context, userID int64, token string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE users SET calendar_token = ? WHERE id = ?`, token, userID)
	if err != nil {
		return fmt.Errorf("updating calendar token: %w", err)
	}
	return expectRow(result, fmt.Errorf("%w: %d", profile.ErrUserNotFound, userID))
}

// GetPreferences returns the user's preferences, creating defaults on first read.
func (s *SQLite) GetPreferences(ctx context.Context, userID int64) (*profile.Preferences, error) {
	p := profile.Preferences{UserID: userID}
	err := s.db.QueryRowContext(ctx, `
		SELECT wake_time, sleep_time, study_block_length, max_study_minutes_per_day,
		       commute_duration_mins, dinner_time
		FROM preferences
		WHERE user_id = ?
	`, userID).Scan(
		&p.WakeTime,
		&p.SleepTime,
		&p.StudyBlockLength,
		&p.MaxStudyMinutesPerDay,
		&p.CommuteDurationMins,
		&p.DinnerTime,
	)
	if err == nil {
		return &p, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("querying preferences: %w", err)
	}

	if _, err := s.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	p = s.defaults
	p.UserID = userID
	if err := s.UpdatePreferences(ctx, &p); err != nil {
		return nil, fmt.Errorf("creating default preferences: %w", err)
	}
	return &p, nil
}

// UpdatePreferences replaces the user's preferences.
func (s *SQLite) UpdatePreferences(ctx context.Context, p *profile.Preferences) error {
	if err := p.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO preferences (
			user_id, wake_time, sleep_time, study_block_length, max_study_minutes_per_day,
			commute_duration_mins, dinner_time
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			wake_time = excluded.wake_time,
			sleep_time = excluded.sleep_time,
			study_block_length = excluded.study_block_length,
			max_study_minutes_per_day = excluded.max_study_minutes_per_day,
			commute_duration_mins = excluded.commute_duration_mins,
			dinner_time = excluded.dinner_time
	`,
		p.UserID,
		p.WakeTime,
		p.SleepTime,
		p.StudyBlockLength,
		p.MaxStudyMinutesPerDay,
		p.CommuteDurationMins,
		p.DinnerTime,
	)
	if err != nil {
		return fmt.Errorf("saving preferences: %w", err)
	}
	return nil
}

// CreateFixedSchedule adds a weekly commitment.
func (s *SQLite) CreateFixedSchedule(ctx context.Context, f *profile.FixedSchedule) error {
	return insertFixedSchedule(ctx, s.db, f)
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertFixedSchedule(ctx context.Context, ex execer, f *profile.FixedSchedule) error {
	if err := f.Validate(); err != nil {
		return err
	}
	result, err := ex.ExecContext(ctx, `
		INSERT INTO fixed_schedules (user_id, title, category, day_of_week, start_time, end_time)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		f.UserID,
		f.Title,
		f.Category,
		strings.ToLower(f.DayOfWeek.String()),
		f.StartTime,
		f.EndTime,
	)
	if err != nil {
		return fmt.Errorf("inserting fixed schedule %q: %w", f.Title, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting last insert id: %w", err)
	}
	f.ID = id
	return nil
}

// ListFixedSchedules returns the user's commitments ordered by weekday and start.
func (s *SQLite) ListFixedSchedules(ctx context.Context, userID int64) ([]*profile.FixedSchedule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, title, category, day_of_week, start_time, end_time
		FROM fixed_schedules
		WHERE user_id = ?
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying fixed schedules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var list []*profile.FixedSchedule
	for rows.Next() {
		var (
			f   profile.FixedSchedule
			day string
		)
		if err := rows.Scan(&f.ID, &f.UserID, &f.Title, &f.Category, &day, &f.StartTime, &f.EndTime); err != nil {
			return nil, fmt.Errorf("scanning fixed schedule: %w", err)
		}
		if f.DayOfWeek, err = dateutil.ParseWeekday(day); err != nil {
			return nil, fmt.Errorf("parsing day of week: %w", err)
		}
		list = append(list, &f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating fixed schedules: %w", err)
	}

	slices.SortFunc(list, func(a, b *profile.FixedSchedule) int {
		if a.DayOfWeek != b.DayOfWeek {
			return int(a.DayOfWeek) - int(b.DayOfWeek)
		}
		return strings.Compare(a.StartTime, b.StartTime)
	})
	return list, nil
}

// DeleteFixedSchedule removes a commitment owned by the user.
func (s *SQLite) DeleteFixedSchedule(ctx context.Context, userID, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM fixed_schedules WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("deleting fixed schedule: %w", err)
	}
	return expectRow(result, fmt.Errorf("%w: %d", profile.ErrScheduleNotFound, id))
}

// ReplaceFixedSchedules atomically swaps the user's commitments for list.
func (s *SQLite) ReplaceFixedSchedules(ctx context.Context, userID int64, list []*profile.FixedSchedule) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM fixed_schedules WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("clearing fixed schedules: %w", err)
	}
	for _, f := range list {
		f.UserID = userID
		if err := insertFixedSchedule(ctx, tx, f); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// SetOverride inserts or replaces the override for (user, date, type).
func (s *SQLite) SetOverride(ctx context.Context, o *profile.DailyOverride) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO daily_overrides (user_id, date, override_type, value, note)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id, date, override_type) DO UPDATE SET
			value = excluded.value,
			note = excluded.note
		RETURNING id
	`, o.UserID, o.Date, o.Type, o.Value, o.Note).Scan(&o.ID)
	if err != nil {
		return fmt.Errorf("saving override: %w", err)
	}
	return nil
}

// ListOverrides returns overrides dated within [from, to] by date key.
func (s *SQLite) ListOverrides(ctx context.Context, userID int64, from, to time.Time) ([]*profile.DailyOverride, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, date, override_type, value, note
		FROM daily_overrides
		WHERE user_id = ? AND date >= ? AND date <= ?
		ORDER BY date, override_type
	`, userID, dateutil.DateKey(from), dateutil.DateKey(to))
	if err != nil {
		return nil, fmt.Errorf("querying overrides: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var list []*profile.DailyOverride
	for rows.Next() {
		var o profile.DailyOverride
		if err := rows.Scan(&o.ID, &o.UserID, &o.Date, &o.Type, &o.Value, &o.Note); err != nil {
			return nil, fmt.Errorf("scanning override: %w", err)
		}
		list = append(list, &o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating overrides: %w", err)
	}
	return list, nil
}

// DeleteOverride removes one override type for a date.
func (s *SQLite) DeleteOverride(ctx context.Context, userID int64, date string, t profile.OverrideType) (int, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM daily_overrides WHERE user_id = ? AND date = ? AND override_type = ?`,
		userID, date, t,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting override: %w", err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

// ClearOverrides removes every override for a date.
func (s *SQLite) ClearOverrides(ctx context.Context, userID int64, date string) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM daily_overrides WHERE user_id = ? AND date = ?`, userID, date)
	if err != nil {
		return 0, fmt.Errorf("clearing overrides: %w", err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

// expectRow returns notFound when the statement touched no rows.
func expectRow(result sql.Result, notFound error) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows: %w", err)
	}
	if rows == 0 {
		return notFound
	}
	return nil
}

func formatInstant(t time.Time) string {
	return t.UTC().Format(instantLayout)
}

func parseInstant(s string) (time.Time, error) {
	t, err := time.Parse(instantLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognized instant format: %s", s)
	}
	return t, nil
}
