package ui

import (
	"fmt"
	"io"
	"time"

	"github.com/javiermolinar/studyplanner/internal/scheduler"
	"github.com/javiermolinar/studyplanner/internal/task"
)

const (
	dayLayout   = "Mon Jan 2"
	clockLayout = "15:04"
)

// FormatDuration formats minutes as a human-readable duration.
func FormatDuration(minutes int) string {
	if minutes == 0 {
		return "0m"
	}
	hours := minutes / 60
	mins := minutes % 60
	if hours == 0 {
		return fmt.Sprintf("%dm", mins)
	}
	if mins == 0 {
		return fmt.Sprintf("%dh", hours)
	}
	return fmt.Sprintf("%dh%dm", hours, mins)
}

// FormatSpan renders [start, end) in loc as "Mon Jan 2 09:00-09:50". The end
// carries its own date when the span crosses midnight.
func FormatSpan(start, end time.Time, loc *time.Location) string {
	start, end = start.In(loc), end.In(loc)
	endLayout := clockLayout
	if start.YearDay() != end.YearDay() || start.Year() != end.Year() {
		endLayout = dayLayout + " " + clockLayout
	}
	return fmt.Sprintf("%s %s-%s", start.Format(dayLayout), start.Format(clockLayout), end.Format(endLayout))
}

// truncate shortens s to width runes, marking the cut with "...".
func truncate(s string, width int) string {
	r := []rune(s)
	if width <= 3 || len(r) <= width {
		return s
	}
	return string(r[:width-3]) + "..."
}

// descWidth is the room left for titles on a row with the given overhead.
func descWidth(overhead, minWidth int) int {
	if w := termWidth() - overhead; w > minWidth {
		return w
	}
	return minWidth
}

func statusSymbol(s task.Status) string {
	switch s {
	case task.StatusPending:
		return "○"
	case task.StatusScheduled:
		return "●"
	case task.StatusUnderplanned:
		return "◐"
	case task.StatusCompleted:
		return "✓"
	default:
		return "?"
	}
}

func sourceTag(s scheduler.Source) string {
	switch s {
	case scheduler.SourceCalendar:
		return "[cal]"
	case scheduler.SourceFixed:
		return "[fix]"
	case scheduler.SourceCommute:
		return "[com]"
	case scheduler.SourceDinner:
		return "[din]"
	case scheduler.SourceStudyBlock:
		return "[stu]"
	default:
		return "[" + string(s) + "]"
	}
}

// printTaskRow prints one task with its progress and deadline.
func printTaskRow(w io.Writer, t *task.Task, loc *time.Location) {
	priority := " "
	if t.Priority == task.PriorityHigh {
		priority = formatWarn("!")
	}
	title := t.Title
	if t.CourseTag != "" {
		title = fmt.Sprintf("%s (%s)", t.Title, t.CourseTag)
	}
	progress := fmt.Sprintf("%s/%s", FormatDuration(t.ScheduledMinutes), FormatDuration(t.TotalRequiredTime))
	fmt.Fprintf(w, "  %s%s #%-4d %-*s  %s  due %s\n",
		priority, statusSymbol(t.Status), t.ID,
		40, truncate(title, 40),
		formatStats(fmt.Sprintf("%-11s", progress)),
		t.Deadline.In(loc).Format(dayLayout+" "+clockLayout))
}

// printBlockRow prints one study block.
func printBlockRow(w io.Writer, b *task.StudyBlock, title string, loc *time.Location) {
	mirror := formatMuted("local")
	if b.IsMirrored() {
		mirror = formatMuted("synced")
	}
	fmt.Fprintf(w, "  %s  #%-4d %s  %s  %s\n",
		formatStudy(FormatSpan(b.Start, b.End, loc)), b.ID,
		formatStudy(truncate(title, descWidth(50, 20))),
		formatMuted(FormatDuration(b.Minutes())), mirror)
}

// printEventRow prints one busy interval.
func printEventRow(w io.Writer, e scheduler.NormalizedEvent, loc *time.Location) {
	fmt.Fprintf(w, "  %s  %s %s\n",
		formatBusy(FormatSpan(e.Start, e.End, loc)),
		formatMuted(sourceTag(e.Source)),
		truncate(e.Title, descWidth(40, 20)))
}

// printGapRow prints one free interval.
func printGapRow(w io.Writer, g scheduler.Gap, loc *time.Location) {
	fmt.Fprintf(w, "  %s  %s\n", FormatSpan(g.Start, g.End, loc), formatStats(FormatDuration(g.Minutes())))
}
