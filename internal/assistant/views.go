package assistant

import (
	"time"

	"github.com/javiermolinar/studyplanner/internal/calendar"
	"github.com/javiermolinar/studyplanner/internal/planner"
	"github.com/javiermolinar/studyplanner/internal/profile"
	"github.com/javiermolinar/studyplanner/internal/scheduler"
	"github.com/javiermolinar/studyplanner/internal/summary"
	"github.com/javiermolinar/studyplanner/internal/task"
)

// JSON views returned to the assistant. Instants are RFC3339 in the
// planner's location.

type taskView struct {
	ID               int64  `json:"id"`
	Title            string `json:"title"`
	CourseTag        string `json:"course_tag,omitempty"`
	TotalMinutes     int    `json:"total_minutes"`
	ScheduledMinutes int    `json:"scheduled_minutes"`
	Deadline         string `json:"deadline"`
	Priority         string `json:"priority"`
	Status           string `json:"status"`
	Completed        bool   `json:"completed"`
}

type blockView struct {
	ID       int64  `json:"id"`
	TaskID   int64  `json:"task_id"`
	Start    string `json:"start"`
	End      string `json:"end"`
	Minutes  int    `json:"minutes"`
	Mirrored bool   `json:"mirrored"`
}

type eventView struct {
	Title  string `json:"title"`
	Start  string `json:"start"`
	End    string `json:"end"`
	Source string `json:"source"`
}

type slotView struct {
	Start   string `json:"start"`
	End     string `json:"end"`
	Minutes int    `json:"minutes"`
}

type overrideView struct {
	Date  string `json:"date"`
	Type  string `json:"override_type"`
	Value string `json:"value"`
	Note  string `json:"note,omitempty"`
}

type preferencesView struct {
	WakeTime              string `json:"wake_time"`
	SleepTime             string `json:"sleep_time"`
	StudyBlockLength      int    `json:"study_block_length"`
	MaxStudyMinutesPerDay int    `json:"max_study_minutes_per_day"`
	CommuteDurationMins   int    `json:"commute_duration_mins"`
	DinnerTime            string `json:"dinner_time"`
}

type planView struct {
	TaskID           int64       `json:"task_id"`
	ScheduledMinutes int         `json:"scheduled_minutes"`
	BlocksCreated    int         `json:"blocks_created"`
	Mirrored         int         `json:"mirrored"`
	Status           string      `json:"status"`
	Blocks           []blockView `json:"blocks"`
	ShortRemainder   int         `json:"short_remainder_minutes,omitempty"`
}

type conflictView struct {
	Block  blockView   `json:"block"`
	Task   string      `json:"task"`
	Events []eventView `json:"events"`
}

type overviewView struct {
	Date         string      `json:"date"`
	Events       []eventView `json:"events"`
	Blocks       []blockView `json:"blocks"`
	StudyMinutes int         `json:"study_minutes"`
	PendingCount int         `json:"pending_count"`
	Top          []taskView  `json:"top_tasks"`
}

type createdEventView struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Start string `json:"start"`
	End   string `json:"end"`
}

type viewer struct {
	loc *time.Location
}

func (v viewer) instant(t time.Time) string {
	return t.In(v.loc).Format(time.RFC3339)
}

func (v viewer) task(t *task.Task) taskView {
	return taskView{
		ID:               t.ID,
		Title:            t.Title,
		CourseTag:        t.CourseTag,
		TotalMinutes:     t.TotalRequiredTime,
		ScheduledMinutes: t.ScheduledMinutes,
		Deadline:         v.instant(t.Deadline),
		Priority:         string(t.Priority),
		Status:           string(t.Status),
		Completed:        t.IsCompleted,
	}
}

func (v viewer) tasks(list []*task.Task) []taskView {
	out := make([]taskView, 0, len(list))
	for _, t := range list {
		out = append(out, v.task(t))
	}
	return out
}

func (v viewer) block(b *task.StudyBlock) blockView {
	return blockView{
		ID:       b.ID,
		TaskID:   b.TaskID,
		Start:    v.instant(b.Start),
		End:      v.instant(b.End),
		Minutes:  b.Minutes(),
		Mirrored: b.IsMirrored(),
	}
}

func (v viewer) blocks(list []*task.StudyBlock) []blockView {
	out := make([]blockView, 0, len(list))
	for _, b := range list {
		out = append(out, v.block(b))
	}
	return out
}

func (v viewer) events(list []scheduler.NormalizedEvent) []eventView {
	out := make([]eventView, 0, len(list))
	for _, e := range list {
		out = append(out, eventView{
			Title:  e.Title,
			Start:  v.instant(e.Start),
			End:    v.instant(e.End),
			Source: string(e.Source),
		})
	}
	return out
}

func (v viewer) calendarEvents(list []calendar.Event) []eventView {
	out := make([]eventView, 0, len(list))
	for _, e := range list {
		ev := eventView{Title: e.Title, Source: string(scheduler.SourceCalendar)}
		if e.AllDay {
			ev.Start, ev.End = e.StartDate, e.EndDate
		} else {
			ev.Start, ev.End = v.instant(e.Start), v.instant(e.End)
		}
		out = append(out, ev)
	}
	return out
}

func (v viewer) slots(list []scheduler.Gap) []slotView {
	out := make([]slotView, 0, len(list))
	for _, g := range list {
		out = append(out, slotView{Start: v.instant(g.Start), End: v.instant(g.End), Minutes: g.Minutes()})
	}
	return out
}

func (v viewer) plan(r *planner.ScheduleResult) planView {
	return planView{
		TaskID:           r.TaskID,
		ScheduledMinutes: r.ScheduledMinutes,
		BlocksCreated:    r.BlocksCreated,
		Mirrored:         r.Mirrored,
		Status:           string(r.Status),
		Blocks:           v.blocks(r.Blocks),
		ShortRemainder:   r.ShortRemainder,
	}
}

func (v viewer) overview(o *summary.DayOverview) overviewView {
	return overviewView{
		Date:         o.Date.Format("2006-01-02"),
		Events:       v.events(o.Events),
		Blocks:       v.blocks(o.Blocks),
		StudyMinutes: o.StudyMinutes,
		PendingCount: o.PendingCount,
		Top:          v.tasks(o.Top),
	}
}

func preferences(p *profile.Preferences) preferencesView {
	return preferencesView{
		WakeTime:              p.WakeTime,
		SleepTime:             p.SleepTime,
		StudyBlockLength:      p.StudyBlockLength,
		MaxStudyMinutesPerDay: p.MaxStudyMinutesPerDay,
		CommuteDurationMins:   p.CommuteDurationMins,
		DinnerTime:            p.DinnerTime,
	}
}

func overrides(list []*profile.DailyOverride) []overrideView {
	out := make([]overrideView, 0, len(list))
	for _, o := range list {
		out = append(out, overrideView{Date: o.Date, Type: string(o.Type), Value: o.Value, Note: o.Note})
	}
	return out
}
