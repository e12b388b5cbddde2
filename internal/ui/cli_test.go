package ui

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/javiermolinar/studyplanner/internal/calendar/calendartest"
	"github.com/javiermolinar/studyplanner/internal/config"
	"github.com/javiermolinar/studyplanner/internal/db"
	"github.com/javiermolinar/studyplanner/internal/planner"
)

// testNow is Monday 2025-03-03 08:00 UTC.
var testNow = time.Date(2025, 3, 3, 8, 0, 0, 0, time.UTC)

type cliEnv struct {
	repo *db.SQLite
	cal  *calendartest.Fake
	cfg  *config.Config
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	DisableColor()

	repo := newTestRepo(t)
	if err := repo.SetCalendarToken(context.Background(), 1, "token"); err != nil {
		t.Fatalf("SetCalendarToken failed: %v", err)
	}

	cfg := config.Default()
	cfg.Schedule.Timezone = "UTC"
	cfg.Log.Level = "off"
	return &cliEnv{repo: repo, cal: calendartest.New(), cfg: cfg}
}

// run executes one command line on a fresh App sharing the env's storage.
func (e *cliEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := NewApp(e.cfg,
		WithRepo(e.repo),
		WithCalendars(&calendartest.Provider{Cal: e.cal}),
		WithOutput(&out),
		WithPlannerOptions(planner.WithClock(func() time.Time { return testNow })),
	)
	app.SetArgs(args)
	err := app.ExecuteContext(context.Background())
	return out.String(), err
}

func (e *cliEnv) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := e.run(t, args...)
	if err != nil {
		t.Fatalf("%s failed: %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

func TestTaskAdd_Plan(t *testing.T) {
	env := newCLIEnv(t)

	out := env.mustRun(t, "task", "add", "Linear algebra", "--minutes=100", "--deadline=2025-03-04", "--course=MATH201", "--plan")

	if !strings.Contains(out, "Created task #1: Linear algebra") {
		t.Errorf("missing creation line in:\n%s", out)
	}
	if !strings.Contains(out, "2 blocks | 1h40m planned") {
		t.Errorf("missing plan summary in:\n%s", out)
	}
	if len(env.cal.Created) != 2 {
		t.Errorf("got %d mirrored events, want 2", len(env.cal.Created))
	}

	got, err := env.repo.GetTask(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	wantDeadline := time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC)
	if !got.Deadline.Equal(wantDeadline) {
		t.Errorf("got deadline %v, want %v", got.Deadline, wantDeadline)
	}
	if got.ScheduledMinutes != 100 {
		t.Errorf("got %d scheduled minutes, want 100", got.ScheduledMinutes)
	}
}

func TestTaskAdd_PlanShortRemainder(t *testing.T) {
	env := newCLIEnv(t)

	out := env.mustRun(t, "task", "add", "Flashcards", "--minutes=30", "--deadline=2025-03-04", "--plan")
	if !strings.Contains(out, "0 blocks | 0m planned") {
		t.Errorf("missing plan summary in:\n%s", out)
	}
	if !strings.Contains(out, "Remainder of 30m is below the block length") {
		t.Errorf("missing remainder note in:\n%s", out)
	}
}

func TestTaskAdd_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"naive timestamp", []string{"task", "add", "Essay", "--minutes=60", "--deadline=2025-03-04T17:00"}},
		{"zero minutes", []string{"task", "add", "Essay", "--minutes=0", "--deadline=2025-03-04"}},
		{"missing deadline", []string{"task", "add", "Essay", "--minutes=60"}},
		{"bad priority", []string{"task", "add", "Essay", "--minutes=60", "--deadline=2025-03-04", "--priority=urgent"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newCLIEnv(t)
			if _, err := env.run(t, tt.args...); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestTaskLifecycle(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun(t, "task", "add", "Essay draft", "--minutes=60", "--deadline=2025-03-07")

	out := env.mustRun(t, "task", "list")
	if !strings.Contains(out, "Essay draft") {
		t.Errorf("list is missing the task:\n%s", out)
	}

	env.mustRun(t, "task", "update", "1", "--minutes=120", "--priority=high")
	got, err := env.repo.GetTask(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if got.TotalRequiredTime != 120 || got.Priority != "high" {
		t.Errorf("update not applied: %+v", got)
	}

	env.mustRun(t, "task", "done", "1")
	if out := env.mustRun(t, "task", "list"); strings.Contains(out, "Essay draft") {
		t.Errorf("completed task still listed:\n%s", out)
	}
	if out := env.mustRun(t, "task", "list", "--all"); !strings.Contains(out, "Essay draft") {
		t.Errorf("--all is missing the completed task:\n%s", out)
	}

	env.mustRun(t, "task", "delete", "1")
	if _, err := env.run(t, "task", "show", "1"); err == nil {
		t.Error("expected error showing a deleted task")
	}
}

func TestMove(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun(t, "task", "add", "Reading", "--minutes=50", "--deadline=2025-03-04", "--plan")

	out := env.mustRun(t, "move", "1", "--at=2025-03-03T15:00:00Z")
	if !strings.Contains(out, "Mon Mar 3 15:00-15:50") {
		t.Errorf("unexpected output:\n%s", out)
	}

	b, err := env.repo.GetBlock(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetBlock failed: %v", err)
	}
	if want := time.Date(2025, 3, 3, 15, 0, 0, 0, time.UTC); !b.Start.Equal(want) {
		t.Errorf("got start %v, want %v", b.Start, want)
	}
	if len(env.cal.Updated) != 1 {
		t.Errorf("got %d mirror updates, want 1", len(env.cal.Updated))
	}
}

func TestFixedAndOverrides(t *testing.T) {
	env := newCLIEnv(t)

	env.mustRun(t, "fixed", "add", "Physics lecture", "--category=university", "--day=tuesday", "--start=10:00", "--end=12:00")
	out := env.mustRun(t, "fixed", "list")
	if !strings.Contains(out, "Physics lecture") || !strings.Contains(out, "Tuesday") {
		t.Errorf("unexpected fixed list:\n%s", out)
	}

	env.mustRun(t, "override", "set", "2025-03-04", "skip_dinner", "true", "--note=eating out")
	out = env.mustRun(t, "override", "list", "2025-03-04")
	if !strings.Contains(out, "skip_dinner") || !strings.Contains(out, "eating out") {
		t.Errorf("unexpected override list:\n%s", out)
	}

	out = env.mustRun(t, "override", "clear", "2025-03-04")
	if !strings.Contains(out, "Removed 1 overrides") {
		t.Errorf("unexpected clear output:\n%s", out)
	}

	if _, err := env.run(t, "override", "set", "2025-03-04", "skip_lunch", "true"); err == nil {
		t.Error("expected error for unknown override type")
	}
}

func TestPrefsSet(t *testing.T) {
	env := newCLIEnv(t)

	env.mustRun(t, "prefs", "set", "--block=45", "--dinner=")
	p, err := env.repo.GetPreferences(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetPreferences failed: %v", err)
	}
	if p.StudyBlockLength != 45 || p.DinnerTime != "" {
		t.Errorf("preferences not applied: %+v", p)
	}

	if _, err := env.run(t, "prefs", "set", "--wake=25:00"); err == nil {
		t.Error("expected error for invalid wake time")
	}
	if _, err := env.run(t, "prefs", "set"); err == nil {
		t.Error("expected error with no flags")
	}
}

func TestSlots(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun(t, "prefs", "set", "--commute=0", "--dinner=")

	out := env.mustRun(t, "slots", "--min=60")
	if !strings.Contains(out, "Mon Mar 3 08:00-23:00") {
		t.Errorf("unexpected slots:\n%s", out)
	}

	out = env.mustRun(t, "suggest", "--minutes=90", "--prefer=evening", "--days=1")
	if !strings.Contains(out, "1. Mon Mar 3 08:00-09:30") {
		t.Errorf("unexpected suggestions:\n%s", out)
	}
}

func TestToolsRun(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun(t, "task", "add", "Essay draft", "--minutes=60", "--deadline=2025-03-07")

	out := env.mustRun(t, "tools", "run", "list_tasks")
	var got struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if got.Count != 1 {
		t.Errorf("got count %d, want 1", got.Count)
	}

	if _, err := env.run(t, "tools", "run", "no_such_tool"); err == nil {
		t.Error("expected error for unknown tool")
	}
}

func TestWatchOnce(t *testing.T) {
	env := newCLIEnv(t)
	env.cfg.Watch.ReloadConfig = false

	out := env.mustRun(t, "watch", "--once")
	if !strings.Contains(out, "Conflicts: 0") || !strings.Contains(out, "Replanned tasks: 0") {
		t.Errorf("unexpected output:\n%s", out)
	}
}
