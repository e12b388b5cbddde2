package db

import "fmt"

// migrate runs database migrations.
func (s *SQLite) migrate() error {
	query := `
		CREATE TABLE IF NOT EXISTS users (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			email          TEXT NOT NULL DEFAULT '',
			calendar_token TEXT NOT NULL DEFAULT '',
			created_at     TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS preferences (
			user_id                   INTEGER PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
			wake_time                 TEXT NOT NULL,
			sleep_time                TEXT NOT NULL,
			study_block_length        INTEGER NOT NULL CHECK(study_block_length > 0),
			max_study_minutes_per_day INTEGER NOT NULL CHECK(max_study_minutes_per_day >= 0),
			commute_duration_mins     INTEGER NOT NULL CHECK(commute_duration_mins >= 0),
			dinner_time               TEXT NOT NULL DEFAULT ''
		);

		CREATE TABLE IF NOT EXISTS fixed_schedules (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id     INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			title       TEXT NOT NULL,
			category    TEXT NOT NULL CHECK(category IN ('university', 'work', 'other')),
			day_of_week TEXT NOT NULL,
			start_time  TEXT NOT NULL,
			end_time    TEXT NOT NULL,
			CHECK(end_time > start_time)
		);

		CREATE TABLE IF NOT EXISTS daily_overrides (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id       INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			date          TEXT NOT NULL,
			override_type TEXT NOT NULL CHECK(override_type IN
				('departure_time', 'return_time', 'skip_commute', 'skip_dinner', 'custom_wake')),
			value         TEXT NOT NULL,
			note          TEXT NOT NULL DEFAULT '',
			UNIQUE(user_id, date, override_type)
		);

		CREATE TABLE IF NOT EXISTS tasks (
			id                  INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id             INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			title               TEXT NOT NULL,
			course_tag          TEXT NOT NULL DEFAULT '',
			total_required_time INTEGER NOT NULL CHECK(total_required_time > 0),
			deadline            TEXT NOT NULL,
			priority            TEXT NOT NULL DEFAULT 'normal' CHECK(priority IN ('normal', 'high')),
			is_completed        INTEGER NOT NULL DEFAULT 0,
			scheduled_minutes   INTEGER NOT NULL DEFAULT 0,
			status              TEXT NOT NULL DEFAULT 'pending'
				CHECK(status IN ('pending', 'scheduled', 'underplanned', 'completed')),
			created_at          TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS study_blocks (
			id                INTEGER PRIMARY KEY AUTOINCREMENT,
			task_id           INTEGER NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
			start_time        TEXT NOT NULL,
			end_time          TEXT NOT NULL,
			external_event_id TEXT NOT NULL DEFAULT '',
			CHECK(end_time > start_time)
		);

		CREATE INDEX IF NOT EXISTS idx_fixed_user ON fixed_schedules(user_id);
		CREATE INDEX IF NOT EXISTS idx_overrides_user_date ON daily_overrides(user_id, date);
		CREATE INDEX IF NOT EXISTS idx_tasks_user ON tasks(user_id, deadline);
		CREATE INDEX IF NOT EXISTS idx_blocks_task ON study_blocks(task_id);
		CREATE INDEX IF NOT EXISTS idx_blocks_start ON study_blocks(start_time);
	`

	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("creating tables: %w", err)
	}

	return nil
}
