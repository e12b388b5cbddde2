package integration

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/javiermolinar/studyplanner/internal/calendar"
	"github.com/javiermolinar/studyplanner/internal/calendar/calendartest"
	"github.com/javiermolinar/studyplanner/internal/db"
	"github.com/javiermolinar/studyplanner/internal/planner"
	"github.com/javiermolinar/studyplanner/internal/profile"
	"github.com/javiermolinar/studyplanner/internal/scheduler"
	"github.com/javiermolinar/studyplanner/internal/task"
)

// monday is 2025-03-03, a Monday.
var monday = time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)

type env struct {
	repo *db.SQLite
	cal  *calendartest.Fake
	p    *planner.Planner
	user *profile.User
	loc  *time.Location
}

// openRepo creates a fresh repository for each test with automatic cleanup.
func openRepo(t *testing.T) *db.SQLite {
	t.Helper()
	repo, err := db.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open repo: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

// newEnv wires SQLite, the fake calendar and a planner pinned to now.
func newEnv(t *testing.T, loc *time.Location, now time.Time, events ...calendar.Event) *env {
	t.Helper()
	repo := openRepo(t)

	user := &profile.User{Email: "student@example.com", CalendarToken: "token"}
	if err := repo.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("failed to create user: %v", err)
	}

	cal := calendartest.New(events...)
	cfg := planner.DefaultConfig()
	cfg.Location = loc
	p := planner.New(repo, repo, &calendartest.Provider{Cal: cal}, cfg, zerolog.Nop(),
		planner.WithClock(func() time.Time { return now }))

	return &env{repo: repo, cal: cal, p: p, user: user, loc: loc}
}

func (e *env) setPrefs(t *testing.T, edit func(*profile.Preferences)) {
	t.Helper()
	ctx := context.Background()
	prefs, err := e.repo.GetPreferences(ctx, e.user.ID)
	if err != nil {
		t.Fatalf("failed to get preferences: %v", err)
	}
	edit(prefs)
	if err := e.repo.UpdatePreferences(ctx, prefs); err != nil {
		t.Fatalf("failed to update preferences: %v", err)
	}
}

func (e *env) addTask(t *testing.T, title string, minutes int, deadline time.Time) *task.Task {
	t.Helper()
	tsk, err := e.p.AddTask(context.Background(), e.user.ID, title, "", minutes, deadline, "")
	if err != nil {
		t.Fatalf("failed to add task: %v", err)
	}
	return tsk
}

func at(day time.Time, h, m int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, day.Location())
}

func TestScheduleTask_ExactGap(t *testing.T) {
	now := at(monday, 8, 0)
	e := newEnv(t, time.UTC, now, calendar.Event{
		ID: "busy", Title: "Seminar", Start: at(monday, 9, 40), End: at(monday, 10, 0),
	})
	tsk := e.addTask(t, "Problem set", 100, now.Add(2*time.Hour))

	res, err := e.p.ScheduleTask(context.Background(), tsk.ID)
	if err != nil {
		t.Fatalf("ScheduleTask failed: %v", err)
	}
	if res.BlocksCreated != 2 || res.ScheduledMinutes != 100 {
		t.Fatalf("got %d blocks / %d minutes, want 2 / 100", res.BlocksCreated, res.ScheduledMinutes)
	}

	blocks, err := e.repo.ListBlocksByTask(context.Background(), tsk.ID)
	if err != nil {
		t.Fatalf("ListBlocksByTask failed: %v", err)
	}
	wantStarts := []time.Time{at(monday, 8, 0), at(monday, 8, 50)}
	for i, b := range blocks {
		if !b.Start.Equal(wantStarts[i]) || b.Minutes() != 50 {
			t.Errorf("block %d: got %v (%d min), want %v (50 min)", i, b.Start, b.Minutes(), wantStarts[i])
		}
		if !b.IsMirrored() {
			t.Errorf("block %d was not mirrored", i)
		}
	}

	got, err := e.repo.GetTask(context.Background(), tsk.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if got.ScheduledMinutes != 100 || got.Status != task.StatusScheduled {
		t.Errorf("got %d minutes / %s, want 100 / scheduled", got.ScheduledMinutes, got.Status)
	}
}

func TestScheduleTask_GapTooShortThenReplan(t *testing.T) {
	ctx := context.Background()
	now := at(monday, 8, 0)
	e := newEnv(t, time.UTC, now, calendar.Event{
		ID: "busy", Title: "Lab", Start: at(monday, 8, 40), End: at(monday, 10, 0),
	})
	tsk := e.addTask(t, "Lab report", 100, now.Add(2*time.Hour))

	res, err := e.p.ScheduleTask(ctx, tsk.ID)
	if err != nil {
		t.Fatalf("ScheduleTask failed: %v", err)
	}
	if res.BlocksCreated != 0 || res.Status != task.StatusUnderplanned {
		t.Fatalf("got %d blocks / %s, want 0 / underplanned", res.BlocksCreated, res.Status)
	}
	got, err := e.repo.GetTask(ctx, tsk.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if got.ScheduledMinutes != 0 {
		t.Errorf("got %d scheduled minutes, want 0", got.ScheduledMinutes)
	}

	// The lab is cancelled, so the replan finds room.
	if err := e.cal.DeleteEvent(ctx, "busy"); err != nil {
		t.Fatalf("DeleteEvent failed: %v", err)
	}
	results, err := e.p.ReplanUnderplanned(ctx, e.user.ID)
	if err != nil {
		t.Fatalf("ReplanUnderplanned failed: %v", err)
	}
	if len(results) != 1 || results[0].Status != task.StatusScheduled {
		t.Fatalf("unexpected replan results %+v", results)
	}
}

func TestScheduleTask_DailyCapSpillsToNextDay(t *testing.T) {
	now := at(monday, 8, 0)
	e := newEnv(t, time.UTC, now)
	e.setPrefs(t, func(p *profile.Preferences) {
		p.MaxStudyMinutesPerDay = 100
		p.DinnerTime = ""
	})
	tsk := e.addTask(t, "Thesis chapter", 200, at(monday.AddDate(0, 0, 2), 0, 0))

	res, err := e.p.ScheduleTask(context.Background(), tsk.ID)
	if err != nil {
		t.Fatalf("ScheduleTask failed: %v", err)
	}
	if res.BlocksCreated != 4 {
		t.Fatalf("got %d blocks, want 4", res.BlocksCreated)
	}

	perDay := task.MinutesByDate(res.Blocks, time.UTC)
	if perDay["2025-03-03"] != 100 || perDay["2025-03-04"] != 100 {
		t.Errorf("got minutes per day %v, want 100 on each of Mar 3 and Mar 4", perDay)
	}
}

func TestSchedule_FixedClassWithCommute(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, time.UTC, at(monday, 6, 0))

	fs, err := profile.NewFixedSchedule(e.user.ID, "Calculus", "university", "monday", "09:00", "11:50")
	if err != nil {
		t.Fatalf("NewFixedSchedule failed: %v", err)
	}
	if err := e.repo.CreateFixedSchedule(ctx, fs); err != nil {
		t.Fatalf("CreateFixedSchedule failed: %v", err)
	}

	events, err := e.p.Schedule(ctx, e.user.ID, monday, 1)
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}

	want := map[string]bool{
		"Calculus 09:00-11:50": false,
		"Commute 07:30-09:00":  false,
		"Commute 11:50-13:20":  false,
		"Dinner 20:00-21:00":   false,
	}
	for _, ev := range events {
		key := ev.Title + " " + ev.Start.Format("15:04") + "-" + ev.End.Format("15:04")
		if _, ok := want[key]; ok {
			want[key] = true
		}
	}
	for k, seen := range want {
		if !seen {
			t.Errorf("missing event %s", k)
		}
	}
}

func TestSchedule_OverridesChangeCommute(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, time.UTC, at(monday, 6, 0))

	fs, err := profile.NewFixedSchedule(e.user.ID, "Calculus", "university", "monday", "09:00", "11:50")
	if err != nil {
		t.Fatalf("NewFixedSchedule failed: %v", err)
	}
	if err := e.repo.CreateFixedSchedule(ctx, fs); err != nil {
		t.Fatalf("CreateFixedSchedule failed: %v", err)
	}
	for _, o := range []struct{ typ, value string }{
		{"departure_time", "10:00"}, // after the class starts, so ignored
		{"return_time", "14:30"},
	} {
		ov, err := profile.NewDailyOverride(e.user.ID, "2025-03-03", o.typ, o.value, "")
		if err != nil {
			t.Fatalf("NewDailyOverride failed: %v", err)
		}
		if err := e.repo.SetOverride(ctx, ov); err != nil {
			t.Fatalf("SetOverride failed: %v", err)
		}
	}

	events, err := e.p.Schedule(ctx, e.user.ID, monday, 1)
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	var legs []string
	for _, ev := range events {
		if ev.Source == scheduler.SourceCommute {
			legs = append(legs, ev.Start.Format("15:04")+"-"+ev.End.Format("15:04"))
		}
	}
	if len(legs) != 2 || legs[0] != "07:30-09:00" || legs[1] != "11:50-14:30" {
		t.Errorf("got commute legs %v, want [07:30-09:00 11:50-14:30]", legs)
	}
}

func TestCheckConflicts_NewMeeting(t *testing.T) {
	ctx := context.Background()
	now := at(monday, 8, 0)
	e := newEnv(t, time.UTC, now)
	tsk := e.addTask(t, "Reading", 100, at(monday, 12, 0))

	if _, err := e.p.ScheduleTask(ctx, tsk.ID); err != nil {
		t.Fatalf("ScheduleTask failed: %v", err)
	}

	// Own mirrors are busy in the calendar but never conflict.
	conflicts, err := e.p.CheckConflicts(ctx, e.user.ID)
	if err != nil {
		t.Fatalf("CheckConflicts failed: %v", err)
	}
	if len(conflicts) != 0 {
		t.Fatalf("got %d conflicts before the meeting, want 0", len(conflicts))
	}

	if _, err := e.cal.CreateEvent(ctx, calendar.EventInput{
		Summary: "Advisor meeting", Start: at(monday, 9, 0), End: at(monday, 9, 30),
	}); err != nil {
		t.Fatalf("CreateEvent failed: %v", err)
	}

	conflicts, err = e.p.CheckConflicts(ctx, e.user.ID)
	if err != nil {
		t.Fatalf("CheckConflicts failed: %v", err)
	}
	if len(conflicts) != 1 {
		t.Fatalf("got %d conflicts, want 1", len(conflicts))
	}
	c := conflicts[0]
	if !c.Block.Start.Equal(at(monday, 8, 50)) || c.TaskTitle != "Reading" {
		t.Errorf("unexpected conflict block %v for %q", c.Block.Start, c.TaskTitle)
	}
	if len(c.Events) != 1 || c.Events[0].Title != "Advisor meeting" {
		t.Errorf("unexpected conflicting events %+v", c.Events)
	}

	moved, err := e.p.RescheduleBlock(ctx, c.Block.ID, at(monday, 10, 0))
	if err != nil {
		t.Fatalf("RescheduleBlock failed: %v", err)
	}
	if !moved.End.Equal(at(monday, 10, 50)) {
		t.Errorf("got end %v, want 10:50", moved.End)
	}
	conflicts, err = e.p.CheckConflicts(ctx, e.user.ID)
	if err != nil {
		t.Fatalf("CheckConflicts failed: %v", err)
	}
	if len(conflicts) != 0 {
		t.Errorf("got %d conflicts after the move, want 0", len(conflicts))
	}
}

func TestDeleteTask_RemovesBlocksAndMirrors(t *testing.T) {
	ctx := context.Background()
	now := at(monday, 8, 0)
	e := newEnv(t, time.UTC, now)
	tsk := e.addTask(t, "Flashcards", 100, at(monday, 12, 0))

	if _, err := e.p.ScheduleTask(ctx, tsk.ID); err != nil {
		t.Fatalf("ScheduleTask failed: %v", err)
	}
	if err := e.p.DeleteTask(ctx, tsk.ID); err != nil {
		t.Fatalf("DeleteTask failed: %v", err)
	}

	if len(e.cal.Deleted) != 2 {
		t.Errorf("got %d deleted mirrors, want 2", len(e.cal.Deleted))
	}
	blocks, err := e.repo.ListBlocksByUser(ctx, e.user.ID, monday, monday.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("ListBlocksByUser failed: %v", err)
	}
	if len(blocks) != 0 {
		t.Errorf("got %d blocks after delete, want 0", len(blocks))
	}
}
