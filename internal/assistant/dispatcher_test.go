package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/openai/openai-go"
	"github.com/rs/zerolog"

	"github.com/javiermolinar/studyplanner/internal/apperr"
	"github.com/javiermolinar/studyplanner/internal/calendar"
	"github.com/javiermolinar/studyplanner/internal/calendar/calendartest"
	"github.com/javiermolinar/studyplanner/internal/dateutil"
	"github.com/javiermolinar/studyplanner/internal/db"
	"github.com/javiermolinar/studyplanner/internal/planner"
	"github.com/javiermolinar/studyplanner/internal/profile"
	"github.com/javiermolinar/studyplanner/internal/task"
)

// testNow is Monday 2025-03-03 08:00 UTC.
var testNow = time.Date(2025, 3, 3, 8, 0, 0, 0, time.UTC)

type testEnv struct {
	d    *Dispatcher
	repo *db.SQLite
	cal  *calendartest.Fake
	user *profile.User
}

func newTestEnv(t *testing.T, events ...calendar.Event) *testEnv {
	t.Helper()

	repo, err := db.New(filepath.Join(t.TempDir(), "assistant.db"))
	if err != nil {
		t.Fatalf("failed to create test repo: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	user := &profile.User{Email: "student@example.com", CalendarToken: "token"}
	if err := repo.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	cal := calendartest.New(events...)
	cfg := planner.DefaultConfig()
	cfg.Location = time.UTC
	p := planner.New(repo, repo, &calendartest.Provider{Cal: cal}, cfg, zerolog.Nop(),
		planner.WithClock(func() time.Time { return testNow }))

	return &testEnv{
		d:    NewDispatcher(p, repo, repo, user.ID, zerolog.Nop()),
		repo: repo,
		cal:  cal,
		user: user,
	}
}

// run executes a tool and decodes its JSON result into a generic map.
func (e *testEnv) run(t *testing.T, name, args string) map[string]any {
	t.Helper()
	out, err := e.d.Execute(context.Background(), name, args)
	if err != nil {
		t.Fatalf("%s failed: %v", name, err)
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(out), &m); err != nil {
		t.Fatalf("%s returned invalid JSON %q: %v", name, out, err)
	}
	return m
}

func TestTools_CoverHandlers(t *testing.T) {
	env := newTestEnv(t)

	tools := Tools()
	if len(tools) != len(env.d.handlers) {
		t.Errorf("got %d tools, want %d", len(tools), len(env.d.handlers))
	}
	seen := make(map[string]bool)
	for _, tool := range tools {
		name := tool.Function.Name
		if seen[name] {
			t.Errorf("duplicate tool %s", name)
		}
		seen[name] = true
		if _, ok := env.d.handlers[name]; !ok {
			t.Errorf("tool %s has no handler", name)
		}
		if tool.Function.Parameters["type"] != "object" {
			t.Errorf("tool %s parameters are not an object schema", name)
		}
	}
}

func TestExecute_Errors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tests := []struct {
		name string
		tool string
		args string
		want error
	}{
		{"unknown tool", "launch_rocket", "{}", ErrUnknownTool},
		{"malformed json", ToolListTasks, "{", ErrBadArgs},
		{"unknown field", ToolListTasks, `{"colour":"red"}`, ErrBadArgs},
		{"missing start date", ToolFindFreeSlots, `{}`, ErrMissingArg},
		{"naive new start", ToolUpdateStudySession, `{"block_id":1,"new_start":"2025-03-03T10:00:00"}`, apperr.ErrInvalidInput},
		{"missing task", ToolPlanTask, `{"task_id":99}`, apperr.ErrNotFound},
		{"bad status", ToolListTasks, `{"status":"done"}`, apperr.ErrInvalidInput},
		{"bad override", ToolSetDailyOverride, `{"date":"2025-03-04","override_type":"skip_lunch","value":"true"}`, apperr.ErrInvalidInput},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.d.Execute(ctx, tc.tool, tc.args)
			if !errors.Is(err, tc.want) {
				t.Errorf("got %v, want %v", err, tc.want)
			}
		})
	}
}

func TestCreateAndPlanTask(t *testing.T) {
	env := newTestEnv(t)

	created := env.run(t, ToolCreateTask,
		`{"title":"Essay","course_tag":"HIST","total_minutes":100,"deadline":"2025-03-03T10:00:00Z","schedule":true}`)

	tv := created["task"].(map[string]any)
	if tv["title"] != "Essay" || tv["total_minutes"].(float64) != 100 {
		t.Errorf("unexpected task %v", tv)
	}
	plan, ok := created["plan"].(map[string]any)
	if !ok {
		t.Fatalf("expected plan in result, got %v", created)
	}
	if plan["status"] != string(task.StatusScheduled) || plan["blocks_created"].(float64) != 2 {
		t.Errorf("unexpected plan %v", plan)
	}
	if len(env.cal.Events()) != 2 {
		t.Errorf("got %d calendar events, want 2", len(env.cal.Events()))
	}

	listed := env.run(t, ToolListTasks, `{}`)
	if listed["count"].(float64) != 1 {
		t.Errorf("got %v tasks, want 1", listed["count"])
	}
}

func TestCreateTask_DateOnlyDeadline(t *testing.T) {
	env := newTestEnv(t)

	created := env.run(t, ToolCreateTask, `{"title":"Reading","total_minutes":50,"deadline":"2025-03-05"}`)
	tv := created["task"].(map[string]any)
	if tv["deadline"] != "2025-03-06T00:00:00Z" {
		t.Errorf("got deadline %v, want end of 2025-03-05", tv["deadline"])
	}
	if _, ok := created["plan"]; ok {
		t.Error("expected no plan without schedule flag")
	}
}

func TestUpdateCompleteDeleteTask(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tsk, err := task.New(env.user.ID, "Lab", "", 50, testNow.Add(48*time.Hour), "")
	if err != nil {
		t.Fatalf("task.New failed: %v", err)
	}
	if err := env.repo.CreateTask(ctx, tsk); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	updated := env.run(t, ToolUpdateTask, `{"task_id":1,"title":"Lab report","priority":"high"}`)
	if updated["title"] != "Lab report" || updated["priority"] != "high" {
		t.Errorf("unexpected update %v", updated)
	}

	env.run(t, ToolCompleteTask, `{"task_id":1}`)
	got, err := env.repo.GetTask(ctx, tsk.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if !got.IsCompleted {
		t.Error("expected task completed")
	}

	env.run(t, ToolDeleteTask, `{"task_id":1}`)
	if _, err := env.repo.GetTask(ctx, tsk.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("got %v after delete, want not found", err)
	}
}

func TestForeignTaskIsHidden(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	other := &profile.User{Email: "other@example.com"}
	if err := env.repo.CreateUser(ctx, other); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	tsk, _ := task.New(other.ID, "Secret", "", 50, testNow.Add(24*time.Hour), "")
	if err := env.repo.CreateTask(ctx, tsk); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	for _, tool := range []string{ToolPlanTask, ToolCompleteTask, ToolDeleteTask} {
		if _, err := env.d.Execute(ctx, tool, `{"task_id":1}`); !errors.Is(err, apperr.ErrNotFound) {
			t.Errorf("%s: got %v, want not found", tool, err)
		}
	}
}

func TestUpdateStudySession(t *testing.T) {
	env := newTestEnv(t)

	env.run(t, ToolCreateTask, `{"title":"Essay","total_minutes":50,"deadline":"2025-03-04","schedule":true}`)
	moved := env.run(t, ToolUpdateStudySession, `{"block_id":1,"new_start":"2025-03-03T15:00:00+00:00"}`)

	if moved["start"] != "2025-03-03T15:00:00Z" || moved["end"] != "2025-03-03T15:50:00Z" {
		t.Errorf("unexpected move %v", moved)
	}
}

func TestFreeSlotsAndSuggestions(t *testing.T) {
	env := newTestEnv(t, calendar.Event{
		ID:    "lecture",
		Title: "Lecture",
		Start: time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 3, 3, 12, 0, 0, 0, time.UTC),
	})

	free := env.run(t, ToolFindFreeSlots, `{"start_date":"2025-03-03","min_duration_mins":60}`)
	slots := free["slots"].([]any)
	// 12:00-20:00 and 21:00-23:00; 08:00-09:00 is exactly one hour too.
	if len(slots) != 3 {
		t.Fatalf("got %d slots, want 3: %v", len(slots), slots)
	}
	first := slots[0].(map[string]any)
	if first["start"] != "2025-03-03T08:00:00Z" || first["minutes"].(float64) != 60 {
		t.Errorf("unexpected first slot %v", first)
	}

	sugg := env.run(t, ToolSuggestStudyTime,
		`{"duration_mins":90,"start_date":"2025-03-03","preferred_time":"evening"}`)
	list := sugg["suggestions"].([]any)
	if len(list) == 0 {
		t.Fatal("expected suggestions")
	}
	top := list[0].(map[string]any)
	if top["start"] != "2025-03-03T21:00:00Z" || top["score"].(float64) != 10 {
		t.Errorf("unexpected top suggestion %v", top)
	}
}

func TestScheduleAndOverview(t *testing.T) {
	env := newTestEnv(t, calendar.Event{
		ID:    "lecture",
		Title: "Lecture",
		Start: time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC),
	})

	sched := env.run(t, ToolGetSchedule, `{}`)
	events := sched["events"].([]any)
	var titles []string
	for _, e := range events {
		titles = append(titles, e.(map[string]any)["title"].(string))
	}
	if strings.Join(titles, ",") != "Lecture,Dinner" {
		t.Errorf("got events %v, want Lecture,Dinner", titles)
	}

	env.run(t, ToolCreateTask, `{"title":"Essay","total_minutes":50,"deadline":"2025-03-04","priority":"high"}`)
	overview := env.run(t, ToolGetTodayOverview, ``)
	if overview["date"] != "2025-03-03" || overview["pending_count"].(float64) != 1 {
		t.Errorf("unexpected overview %v", overview)
	}
}

func TestPreferences(t *testing.T) {
	env := newTestEnv(t)

	prefs := env.run(t, ToolGetPreferences, `{}`)
	if prefs["wake_time"] != "08:00" {
		t.Errorf("got wake time %v, want default 08:00", prefs["wake_time"])
	}

	updated := env.run(t, ToolUpdatePreferences, `{"wake_time":"07:00","dinner_time":""}`)
	if updated["wake_time"] != "07:00" || updated["dinner_time"] != "" || updated["sleep_time"] != "23:00" {
		t.Errorf("unexpected preferences %v", updated)
	}

	if _, err := env.d.Execute(context.Background(), ToolUpdatePreferences, `{"sleep_time":"06:00"}`); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("got %v, want invalid input", err)
	}
}

func TestDailyOverrides(t *testing.T) {
	env := newTestEnv(t)

	env.run(t, ToolSetDailyOverride, `{"date":"2025-03-04","override_type":"skip_dinner","value":"true"}`)
	env.run(t, ToolSetDailyOverride, `{"date":"2025-03-04","override_type":"custom_wake","value":"10:00","note":"late start"}`)

	listed := env.run(t, ToolGetDailyOverrides, `{"date":"2025-03-04"}`)
	if n := len(listed["overrides"].([]any)); n != 2 {
		t.Fatalf("got %d overrides, want 2", n)
	}
	upcoming := env.run(t, ToolGetDailyOverrides, `{}`)
	if n := len(upcoming["overrides"].([]any)); n != 2 {
		t.Errorf("got %d upcoming overrides, want 2", n)
	}

	cleared := env.run(t, ToolClearDailyOverride, `{"date":"2025-03-04","override_type":"skip_dinner"}`)
	if cleared["removed"].(float64) != 1 {
		t.Errorf("got %v removed, want 1", cleared["removed"])
	}
	cleared = env.run(t, ToolClearDailyOverride, `{"date":"2025-03-04","override_type":"all"}`)
	if cleared["removed"].(float64) != 1 {
		t.Errorf("got %v removed, want 1", cleared["removed"])
	}
}

func TestClearDailyOverride_RequiresDateAndType(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	today := dateutil.DateKey(time.Now().UTC())
	for _, date := range []string{today, "2025-03-03"} {
		env.run(t, ToolSetDailyOverride, `{"date":"`+date+`","override_type":"skip_dinner","value":"true"}`)
	}

	for _, args := range []string{`{}`, `{"override_type":"all"}`, `{"date":"2025-03-03"}`} {
		if _, err := env.d.Execute(ctx, ToolClearDailyOverride, args); !errors.Is(err, ErrMissingArg) {
			t.Errorf("%s: got %v, want missing argument", args, err)
		}
	}

	for _, date := range []string{today, "2025-03-03"} {
		day, err := dateutil.ParseDate(date, time.UTC)
		if err != nil {
			t.Fatalf("ParseDate failed: %v", err)
		}
		list, err := env.repo.ListOverrides(ctx, env.user.ID, day, day)
		if err != nil {
			t.Fatalf("ListOverrides failed: %v", err)
		}
		if len(list) != 1 {
			t.Errorf("%s: got %d overrides, want 1", date, len(list))
		}
	}
}

func TestCreateCalendarEvent_RequiresDate(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.d.Execute(context.Background(), ToolCreateCalendarEvent,
		`{"title":"Revision","start_time":"14:00","end_time":"16:00"}`)
	if !errors.Is(err, ErrMissingArg) {
		t.Errorf("got %v, want missing argument", err)
	}
	if n := len(env.cal.Events()); n != 0 {
		t.Errorf("got %d events, want 0", n)
	}
}

func TestCalendarEvents(t *testing.T) {
	env := newTestEnv(t)

	created := env.run(t, ToolCreateCalendarEvent,
		`{"title":"Revision","date":"2025-03-03","start_time":"14:00","end_time":"16:00","split_into_blocks":true}`)
	list := created["created"].([]any)
	// 14:00-14:50 and 15:00-15:50; the second break ends the span.
	if len(list) != 2 {
		t.Fatalf("got %d events, want 2: %v", len(list), list)
	}
	if title := list[0].(map[string]any)["title"]; title != "Revision (Block 1)" {
		t.Errorf("got title %v, want Revision (Block 1)", title)
	}

	deleted := env.run(t, ToolDeleteEventsByTitle, `{"contains":"revision","start_date":"2025-03-03"}`)
	if deleted["count"].(float64) != 2 {
		t.Errorf("got %v deleted, want 2", deleted["count"])
	}
	if n := len(env.cal.Events()); n != 0 {
		t.Errorf("got %d events left, want 0", n)
	}
}

func TestGetConflicts(t *testing.T) {
	env := newTestEnv(t)

	env.run(t, ToolCreateTask, `{"title":"Essay","total_minutes":50,"deadline":"2025-03-04","schedule":true}`)
	// Something lands on top of the 08:00 block after planning.
	if _, err := env.cal.CreateEvent(context.Background(), calendar.EventInput{
		Summary: "Dentist",
		Start:   time.Date(2025, 3, 3, 8, 10, 0, 0, time.UTC),
		End:     time.Date(2025, 3, 3, 8, 40, 0, 0, time.UTC),
	}); err != nil {
		t.Fatalf("CreateEvent failed: %v", err)
	}

	out := env.run(t, ToolGetConflicts, `{}`)
	if out["count"].(float64) != 1 {
		t.Fatalf("got %v conflicts, want 1", out["count"])
	}
	c := out["conflicts"].([]any)[0].(map[string]any)
	if c["task"] != "Essay" {
		t.Errorf("got task %v, want Essay", c["task"])
	}
}

func TestHandleToolCalls(t *testing.T) {
	env := newTestEnv(t)

	msgs := env.d.HandleToolCalls(context.Background(), []openai.ChatCompletionMessageToolCall{
		{ID: "call_1", Function: openai.ChatCompletionMessageToolCallFunction{Name: ToolGetPreferences, Arguments: "{}"}},
		{ID: "call_2", Function: openai.ChatCompletionMessageToolCallFunction{Name: "nope", Arguments: "{}"}},
	})
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}

	for i, wantID := range []string{"call_1", "call_2"} {
		tm := msgs[i].OfTool
		if tm == nil {
			t.Fatalf("message %d is not a tool message", i)
		}
		if tm.ToolCallID != wantID {
			t.Errorf("message %d: got call id %s, want %s", i, tm.ToolCallID, wantID)
		}
	}
	content := msgs[1].OfTool.Content.OfString.Value
	if !strings.Contains(content, `"error"`) {
		t.Errorf("got content %s, want an error payload", content)
	}
}
