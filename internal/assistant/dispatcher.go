package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/rs/zerolog"

	"github.com/javiermolinar/studyplanner/internal/apperr"
	"github.com/javiermolinar/studyplanner/internal/dateutil"
	"github.com/javiermolinar/studyplanner/internal/planner"
	"github.com/javiermolinar/studyplanner/internal/profile"
	"github.com/javiermolinar/studyplanner/internal/summary"
	"github.com/javiermolinar/studyplanner/internal/task"
)

// Dispatch errors.
var (
	ErrUnknownTool = fmt.Errorf("%w: unknown tool", apperr.ErrInvalidInput)
	ErrBadArgs     = fmt.Errorf("%w: malformed tool arguments", apperr.ErrInvalidInput)
	ErrMissingArg  = fmt.Errorf("%w: missing required argument", apperr.ErrInvalidInput)
)

// Defaults applied when optional arguments are omitted.
const (
	defaultMinSlotMinutes = 30
	overrideLookaheadDays = 14
)

type handlerFunc func(ctx context.Context, args json.RawMessage) (any, error)

// Dispatcher executes tool calls for one user.
type Dispatcher struct {
	planner  *planner.Planner
	profiles profile.Repository
	tasks    task.Repository
	userID   int64
	view     viewer
	log      zerolog.Logger
	handlers map[string]handlerFunc
}

// NewDispatcher creates a Dispatcher acting for userID.
func NewDispatcher(p *planner.Planner, profiles profile.Repository, tasks task.Repository, userID int64, log zerolog.Logger) *Dispatcher {
	d := &Dispatcher{
		planner:  p,
		profiles: profiles,
		tasks:    tasks,
		userID:   userID,
		view:     viewer{loc: p.Location()},
		log:      log.With().Str("component", "assistant").Int64("user_id", userID).Logger(),
	}
	d.handlers = map[string]handlerFunc{
		ToolPlanTask:            d.planTask,
		ToolUpdateStudySession:  d.updateStudySession,
		ToolGetConflicts:        d.getConflicts,
		ToolFindFreeSlots:       d.findFreeSlots,
		ToolSuggestStudyTime:    d.suggestStudyTime,
		ToolGetSchedule:         d.getSchedule,
		ToolGetTodayOverview:    d.getTodayOverview,
		ToolListTasks:           d.listTasks,
		ToolCreateTask:          d.createTask,
		ToolUpdateTask:          d.updateTask,
		ToolDeleteTask:          d.deleteTask,
		ToolCompleteTask:        d.completeTask,
		ToolGetPreferences:      d.getPreferences,
		ToolUpdatePreferences:   d.updatePreferences,
		ToolSetDailyOverride:    d.setDailyOverride,
		ToolGetDailyOverrides:   d.getDailyOverrides,
		ToolClearDailyOverride:  d.clearDailyOverride,
		ToolCreateCalendarEvent: d.createCalendarEvent,
		ToolDeleteEventsByTitle: d.deleteEventsByTitle,
	}
	return d
}

// Execute runs the named tool with JSON arguments and returns a JSON result.
func (d *Dispatcher) Execute(ctx context.Context, name, argsJSON string) (string, error) {
	h, ok := d.handlers[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}
	args := bytes.TrimSpace([]byte(argsJSON))
	if len(args) == 0 {
		args = []byte("{}")
	}

	d.log.Debug().Str("tool", name).Bytes("args", args).Msg("executing tool")
	result, err := h(ctx, args)
	if err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}
	out, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("encoding %s result: %w", name, err)
	}
	return string(out), nil
}

// HandleToolCalls executes each call and returns one tool message per call.
// Failures are reported to the assistant as {"error": "..."} content.
func (d *Dispatcher) HandleToolCalls(ctx context.Context, calls []openai.ChatCompletionMessageToolCall) []openai.ChatCompletionMessageParamUnion {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(calls))
	for _, call := range calls {
		content, err := d.Execute(ctx, call.Function.Name, call.Function.Arguments)
		if err != nil {
			ev := d.log.Warn()
			if IsUserError(err) {
				ev = d.log.Debug()
			}
			ev.Err(err).Str("tool", call.Function.Name).Msg("tool call failed")
			content = errorContent(err)
		}
		msgs = append(msgs, openai.ToolMessage(content, call.ID))
	}
	return msgs
}

func errorContent(err error) string {
	out, _ := json.Marshal(map[string]string{"error": err.Error()})
	return string(out)
}

func decode(args json.RawMessage, v any) error {
	dec := json.NewDecoder(bytes.NewReader(args))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadArgs, err)
	}
	return nil
}

func required(name, value string) error {
	if value == "" {
		return fmt.Errorf("%w: %s", ErrMissingArg, name)
	}
	return nil
}

// window parses an inclusive date range. An empty end covers only the start date.
func (d *Dispatcher) window(startDate, endDate string) (time.Time, time.Time, error) {
	if err := required("start_date", startDate); err != nil {
		return time.Time{}, time.Time{}, err
	}
	if endDate == "" {
		endDate = startDate
	}
	loc := d.planner.Location()
	start, err := dateutil.ParseBoundary(startDate, loc, false)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("start_date: %w", err)
	}
	end, err := dateutil.ParseBoundary(endDate, loc, true)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("end_date: %w", err)
	}
	return start, end, nil
}

// ownTask loads a task and hides tasks that belong to other users.
func (d *Dispatcher) ownTask(ctx context.Context, id int64) (*task.Task, error) {
	t, err := d.tasks.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.UserID != d.userID {
		return nil, task.ErrTaskNotFound
	}
	return t, nil
}

type taskIDArgs struct {
	TaskID int64 `json:"task_id"`
}

func (d *Dispatcher) planTask(ctx context.Context, raw json.RawMessage) (any, error) {
	var args taskIDArgs
	if err := decode(raw, &args); err != nil {
		return nil, err
	}
	if _, err := d.ownTask(ctx, args.TaskID); err != nil {
		return nil, err
	}
	res, err := d.planner.ScheduleTask(ctx, args.TaskID)
	if err != nil {
		return nil, err
	}
	return d.view.plan(res), nil
}

func (d *Dispatcher) updateStudySession(ctx context.Context, raw json.RawMessage) (any, error) {
	var args struct {
		BlockID  int64  `json:"block_id"`
		NewStart string `json:"new_start"`
	}
	if err := decode(raw, &args); err != nil {
		return nil, err
	}
	if err := required("new_start", args.NewStart); err != nil {
		return nil, err
	}
	newStart, err := dateutil.ParseInstant(args.NewStart)
	if err != nil {
		return nil, fmt.Errorf("new_start: %w", err)
	}
	b, err := d.tasks.GetBlock(ctx, args.BlockID)
	if err != nil {
		return nil, err
	}
	if _, err := d.ownTask(ctx, b.TaskID); err != nil {
		return nil, task.ErrBlockNotFound
	}
	moved, err := d.planner.RescheduleBlock(ctx, args.BlockID, newStart)
	if err != nil {
		return nil, err
	}
	return d.view.block(moved), nil
}

func (d *Dispatcher) getConflicts(ctx context.Context, raw json.RawMessage) (any, error) {
	if err := decode(raw, &struct{}{}); err != nil {
		return nil, err
	}
	conflicts, err := d.planner.CheckConflicts(ctx, d.userID)
	if err != nil {
		return nil, err
	}
	out := make([]conflictView, 0, len(conflicts))
	for _, c := range conflicts {
		out = append(out, conflictView{
			Block:  d.view.block(c.Block),
			Task:   c.TaskTitle,
			Events: d.view.events(c.Events),
		})
	}
	return map[string]any{"conflicts": out, "count": len(out)}, nil
}

func (d *Dispatcher) findFreeSlots(ctx context.Context, raw json.RawMessage) (any, error) {
	var args struct {
		StartDate       string `json:"start_date"`
		EndDate         string `json:"end_date"`
		MinDurationMins *int   `json:"min_duration_mins"`
	}
	if err := decode(raw, &args); err != nil {
		return nil, err
	}
	start, end, err := d.window(args.StartDate, args.EndDate)
	if err != nil {
		return nil, err
	}
	minMins := defaultMinSlotMinutes
	if args.MinDurationMins != nil {
		minMins = *args.MinDurationMins
	}

	free, err := d.planner.FindFreeSlots(ctx, d.userID, start, end, time.Duration(minMins)*time.Minute)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"slots":              d.view.slots(free.Slots),
		"busy":               d.view.events(free.Busy),
		"total_free_minutes": free.TotalFreeMinutes,
		"wake_time":          free.WakeTime,
		"sleep_time":         free.SleepTime,
	}, nil
}

func (d *Dispatcher) suggestStudyTime(ctx context.Context, raw json.RawMessage) (any, error) {
	var args struct {
		DurationMins  int    `json:"duration_mins"`
		StartDate     string `json:"start_date"`
		EndDate       string `json:"end_date"`
		PreferredTime string `json:"preferred_time"`
	}
	if err := decode(raw, &args); err != nil {
		return nil, err
	}
	start, end, err := d.window(args.StartDate, args.EndDate)
	if err != nil {
		return nil, err
	}
	suggestions, err := d.planner.SuggestStudyTime(ctx, d.userID, start, end,
		time.Duration(args.DurationMins)*time.Minute, args.PreferredTime)
	if err != nil {
		return nil, err
	}

	out := make([]map[string]any, 0, len(suggestions))
	for _, s := range suggestions {
		out = append(out, map[string]any{
			"start": d.view.instant(s.Start),
			"end":   d.view.instant(s.End),
			"score": s.Score,
		})
	}
	return map[string]any{"suggestions": out}, nil
}

func (d *Dispatcher) getSchedule(ctx context.Context, raw json.RawMessage) (any, error) {
	var args struct {
		StartDate string `json:"start_date"`
		Days      *int   `json:"days"`
	}
	if err := decode(raw, &args); err != nil {
		return nil, err
	}
	start := d.planner.Now()
	if args.StartDate != "" {
		var err error
		if start, err = dateutil.ParseBoundary(args.StartDate, d.planner.Location(), false); err != nil {
			return nil, fmt.Errorf("start_date: %w", err)
		}
	}
	days := 1
	if args.Days != nil {
		days = *args.Days
	}

	events, err := d.planner.Schedule(ctx, d.userID, start, days)
	if err != nil {
		return nil, err
	}
	return map[string]any{"events": d.view.events(events), "days": days}, nil
}

func (d *Dispatcher) getTodayOverview(ctx context.Context, raw json.RawMessage) (any, error) {
	if err := decode(raw, &struct{}{}); err != nil {
		return nil, err
	}
	o, err := summary.BuildDayOverview(ctx, d.planner, d.tasks, summary.BuildDayOverviewOptions{
		UserID: d.userID,
		Date:   d.planner.Now(),
	})
	if err != nil {
		return nil, err
	}
	return d.view.overview(o), nil
}

func (d *Dispatcher) listTasks(ctx context.Context, raw json.RawMessage) (any, error) {
	var args struct {
		Status           string `json:"status"`
		IncludeCompleted bool   `json:"include_completed"`
	}
	if err := decode(raw, &args); err != nil {
		return nil, err
	}
	filter := task.ListFilter{IncludeCompleted: args.IncludeCompleted}
	if args.Status != "" {
		st, err := task.ParseStatus(args.Status)
		if err != nil {
			return nil, err
		}
		filter.Status = st
	}

	tasks, err := d.tasks.ListTasks(ctx, d.userID, filter)
	if err != nil {
		return nil, err
	}
	return map[string]any{"tasks": d.view.tasks(tasks), "count": len(tasks)}, nil
}

func (d *Dispatcher) createTask(ctx context.Context, raw json.RawMessage) (any, error) {
	var args struct {
		Title        string `json:"title"`
		CourseTag    string `json:"course_tag"`
		TotalMinutes int    `json:"total_minutes"`
		Deadline     string `json:"deadline"`
		Priority     string `json:"priority"`
		Schedule     bool   `json:"schedule"`
	}
	if err := decode(raw, &args); err != nil {
		return nil, err
	}
	if err := required("deadline", args.Deadline); err != nil {
		return nil, err
	}
	deadline, err := dateutil.ParseBoundary(args.Deadline, d.planner.Location(), true)
	if err != nil {
		return nil, fmt.Errorf("deadline: %w", err)
	}

	t, err := d.planner.AddTask(ctx, d.userID, args.Title, args.CourseTag, args.TotalMinutes, deadline, args.Priority)
	if err != nil {
		return nil, err
	}
	out := map[string]any{"task": d.view.task(t)}
	if args.Schedule {
		res, err := d.planner.ScheduleTask(ctx, t.ID)
		if err != nil {
			out["schedule_error"] = err.Error()
		} else {
			out["plan"] = d.view.plan(res)
		}
	}
	return out, nil
}

func (d *Dispatcher) updateTask(ctx context.Context, raw json.RawMessage) (any, error) {
	var args struct {
		TaskID       int64   `json:"task_id"`
		Title        *string `json:"title"`
		CourseTag    *string `json:"course_tag"`
		TotalMinutes *int    `json:"total_minutes"`
		Deadline     *string `json:"deadline"`
		Priority     *string `json:"priority"`
		Status       *string `json:"status"`
	}
	if err := decode(raw, &args); err != nil {
		return nil, err
	}
	if _, err := d.ownTask(ctx, args.TaskID); err != nil {
		return nil, err
	}
	u := task.Update{
		Title:             args.Title,
		CourseTag:         args.CourseTag,
		TotalRequiredTime: args.TotalMinutes,
		Priority:          args.Priority,
		Status:            args.Status,
	}
	if args.Deadline != nil {
		deadline, err := dateutil.ParseBoundary(*args.Deadline, d.planner.Location(), true)
		if err != nil {
			return nil, fmt.Errorf("deadline: %w", err)
		}
		u.Deadline = &deadline
	}

	t, err := d.planner.UpdateTask(ctx, args.TaskID, u)
	if err != nil {
		return nil, err
	}
	return d.view.task(t), nil
}

func (d *Dispatcher) deleteTask(ctx context.Context, raw json.RawMessage) (any, error) {
	var args taskIDArgs
	if err := decode(raw, &args); err != nil {
		return nil, err
	}
	if _, err := d.ownTask(ctx, args.TaskID); err != nil {
		return nil, err
	}
	if err := d.planner.DeleteTask(ctx, args.TaskID); err != nil {
		return nil, err
	}
	return map[string]any{"deleted": args.TaskID}, nil
}

func (d *Dispatcher) completeTask(ctx context.Context, raw json.RawMessage) (any, error) {
	var args taskIDArgs
	if err := decode(raw, &args); err != nil {
		return nil, err
	}
	if _, err := d.ownTask(ctx, args.TaskID); err != nil {
		return nil, err
	}
	if err := d.planner.CompleteTask(ctx, args.TaskID); err != nil {
		return nil, err
	}
	return map[string]any{"completed": args.TaskID}, nil
}

func (d *Dispatcher) getPreferences(ctx context.Context, raw json.RawMessage) (any, error) {
	if err := decode(raw, &struct{}{}); err != nil {
		return nil, err
	}
	p, err := d.profiles.GetPreferences(ctx, d.userID)
	if err != nil {
		return nil, err
	}
	return preferences(p), nil
}

func (d *Dispatcher) updatePreferences(ctx context.Context, raw json.RawMessage) (any, error) {
	var args struct {
		WakeTime              *string `json:"wake_time"`
		SleepTime             *string `json:"sleep_time"`
		StudyBlockLength      *int    `json:"study_block_length"`
		MaxStudyMinutesPerDay *int    `json:"max_study_minutes_per_day"`
		CommuteDurationMins   *int    `json:"commute_duration_mins"`
		DinnerTime            *string `json:"dinner_time"`
	}
	if err := decode(raw, &args); err != nil {
		return nil, err
	}
	p, err := d.profiles.GetPreferences(ctx, d.userID)
	if err != nil {
		return nil, err
	}
	if args.WakeTime != nil {
		p.WakeTime = *args.WakeTime
	}
	if args.SleepTime != nil {
		p.SleepTime = *args.SleepTime
	}
	if args.StudyBlockLength != nil {
		p.StudyBlockLength = *args.StudyBlockLength
	}
	if args.MaxStudyMinutesPerDay != nil {
		p.MaxStudyMinutesPerDay = *args.MaxStudyMinutesPerDay
	}
	if args.CommuteDurationMins != nil {
		p.CommuteDurationMins = *args.CommuteDurationMins
	}
	if args.DinnerTime != nil {
		p.DinnerTime = *args.DinnerTime
	}
	if err := d.profiles.UpdatePreferences(ctx, p); err != nil {
		return nil, err
	}
	return preferences(p), nil
}

func (d *Dispatcher) setDailyOverride(ctx context.Context, raw json.RawMessage) (any, error) {
	var args struct {
		Date         string `json:"date"`
		OverrideType string `json:"override_type"`
		Value        string `json:"value"`
		Note         string `json:"note"`
	}
	if err := decode(raw, &args); err != nil {
		return nil, err
	}
	o, err := profile.NewDailyOverride(d.userID, args.Date, args.OverrideType, args.Value, args.Note)
	if err != nil {
		return nil, err
	}
	if err := d.profiles.SetOverride(ctx, o); err != nil {
		return nil, err
	}
	return overrides([]*profile.DailyOverride{o})[0], nil
}

func (d *Dispatcher) getDailyOverrides(ctx context.Context, raw json.RawMessage) (any, error) {
	var args struct {
		Date string `json:"date"`
	}
	if err := decode(raw, &args); err != nil {
		return nil, err
	}
	loc := d.planner.Location()
	from := dateutil.TruncateToDay(d.planner.Now())
	to := from.AddDate(0, 0, overrideLookaheadDays)
	if args.Date != "" {
		day, err := dateutil.ParseDate(args.Date, loc)
		if err != nil {
			return nil, err
		}
		from, to = day, day
	}

	list, err := d.profiles.ListOverrides(ctx, d.userID, from, to)
	if err != nil {
		return nil, err
	}
	return map[string]any{"overrides": overrides(list)}, nil
}

// clearAllOverrides is the override_type that clears every override of a date.
const clearAllOverrides = "all"

func (d *Dispatcher) clearDailyOverride(ctx context.Context, raw json.RawMessage) (any, error) {
	var args struct {
		Date         string `json:"date"`
		OverrideType string `json:"override_type"`
	}
	if err := decode(raw, &args); err != nil {
		return nil, err
	}
	if err := required("date", args.Date); err != nil {
		return nil, err
	}
	if err := required("override_type", args.OverrideType); err != nil {
		return nil, err
	}
	day, err := dateutil.ParseDate(args.Date, d.planner.Location())
	if err != nil {
		return nil, err
	}
	key := dateutil.DateKey(day)

	var removed int
	if args.OverrideType == clearAllOverrides {
		removed, err = d.profiles.ClearOverrides(ctx, d.userID, key)
	} else {
		typ, perr := profile.ParseOverrideType(args.OverrideType)
		if perr != nil {
			return nil, perr
		}
		removed, err = d.profiles.DeleteOverride(ctx, d.userID, key, typ)
	}
	if err != nil {
		return nil, err
	}
	return map[string]any{"date": key, "removed": removed}, nil
}

func (d *Dispatcher) createCalendarEvent(ctx context.Context, raw json.RawMessage) (any, error) {
	var args struct {
		Title           string `json:"title"`
		Date            string `json:"date"`
		StartTime       string `json:"start_time"`
		EndTime         string `json:"end_time"`
		SplitIntoBlocks bool   `json:"split_into_blocks"`
	}
	if err := decode(raw, &args); err != nil {
		return nil, err
	}
	if err := required("date", args.Date); err != nil {
		return nil, err
	}
	day, err := dateutil.ParseDate(args.Date, d.planner.Location())
	if err != nil {
		return nil, err
	}
	start, err := dateutil.At(day, args.StartTime)
	if err != nil {
		return nil, fmt.Errorf("start_time: %w", err)
	}
	end, err := dateutil.At(day, args.EndTime)
	if err != nil {
		return nil, fmt.Errorf("end_time: %w", err)
	}

	created, err := d.planner.CreateCalendarEvent(ctx, d.userID, args.Title, start, end, args.SplitIntoBlocks)
	out := make([]createdEventView, 0, len(created))
	for _, e := range created {
		out = append(out, createdEventView{
			ID:    e.ID,
			Title: e.Title,
			Start: d.view.instant(e.Start),
			End:   d.view.instant(e.End),
		})
	}
	if err != nil {
		if len(out) == 0 {
			return nil, err
		}
		return map[string]any{"created": out, "error": err.Error()}, nil
	}
	return map[string]any{"created": out}, nil
}

func (d *Dispatcher) deleteEventsByTitle(ctx context.Context, raw json.RawMessage) (any, error) {
	var args struct {
		Contains  string `json:"contains"`
		StartDate string `json:"start_date"`
		EndDate   string `json:"end_date"`
	}
	if err := decode(raw, &args); err != nil {
		return nil, err
	}
	start, end, err := d.window(args.StartDate, args.EndDate)
	if err != nil {
		return nil, err
	}
	deleted, err := d.planner.DeleteEventsByTitle(ctx, d.userID, args.Contains, start, end)
	if err != nil {
		return nil, err
	}
	return map[string]any{"deleted": d.view.calendarEvents(deleted), "count": len(deleted)}, nil
}

// IsUserError reports whether err stems from caller input or state rather
// than an infrastructure failure.
func IsUserError(err error) bool {
	return errors.Is(err, apperr.ErrInvalidInput) ||
		errors.Is(err, apperr.ErrInvalidState) ||
		errors.Is(err, apperr.ErrNotFound)
}
