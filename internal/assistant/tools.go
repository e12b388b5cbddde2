// Package assistant exposes the planner as function-calling tools for an
// external chat assistant. It defines the tool schemas and executes calls.
package assistant

import "github.com/openai/openai-go"

// Tool names.
const (
	ToolPlanTask            = "plan_task"
	ToolUpdateStudySession  = "update_study_session"
	ToolGetConflicts        = "get_conflicts"
	ToolFindFreeSlots       = "find_free_slots"
	ToolSuggestStudyTime    = "suggest_study_time"
	ToolGetSchedule         = "get_schedule"
	ToolGetTodayOverview    = "get_today_overview"
	ToolListTasks           = "list_tasks"
	ToolCreateTask          = "create_task"
	ToolUpdateTask          = "update_task"
	ToolDeleteTask          = "delete_task"
	ToolCompleteTask        = "complete_task"
	ToolGetPreferences      = "get_preferences"
	ToolUpdatePreferences   = "update_preferences"
	ToolSetDailyOverride    = "set_daily_override"
	ToolGetDailyOverrides   = "get_daily_overrides"
	ToolClearDailyOverride  = "clear_daily_override"
	ToolCreateCalendarEvent = "create_calendar_event"
	ToolDeleteEventsByTitle = "delete_events_by_title"
)

func tool(name, description string, properties map[string]any, required ...string) openai.ChatCompletionToolParam {
	if properties == nil {
		properties = map[string]any{}
	}
	if required == nil {
		required = []string{}
	}
	return openai.ChatCompletionToolParam{
		Function: openai.FunctionDefinitionParam{
			Name:        name,
			Description: openai.String(description),
			Parameters: openai.FunctionParameters{
				"type":       "object",
				"properties": properties,
				"required":   required,
			},
		},
	}
}

func str(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

func integer(description string) map[string]any {
	return map[string]any{"type": "integer", "description": description}
}

func boolean(description string) map[string]any {
	return map[string]any{"type": "boolean", "description": description}
}

func enum(description string, values ...string) map[string]any {
	return map[string]any{"type": "string", "description": description, "enum": values}
}

const (
	dateHelp    = "Date as YYYY-MM-DD."
	instantHelp = "Timestamp with offset, e.g. 2025-03-03T14:00:00+01:00."
)

// Tools returns the function definitions the assistant can call.
func Tools() []openai.ChatCompletionToolParam {
	return []openai.ChatCompletionToolParam{
		tool(ToolPlanTask,
			"Allocate study blocks for a task's remaining minutes in free time before its deadline and mirror them to the calendar.",
			map[string]any{"task_id": integer("ID of the task to plan.")},
			"task_id"),
		tool(ToolUpdateStudySession,
			"Move a study block to a new start time, keeping its duration.",
			map[string]any{
				"block_id":  integer("ID of the study block."),
				"new_start": str(instantHelp),
			},
			"block_id", "new_start"),
		tool(ToolGetConflicts,
			"List future study blocks that overlap calendar events, classes, commute or dinner.",
			nil),
		tool(ToolFindFreeSlots,
			"Find free time slots inside the awake window.",
			map[string]any{
				"start_date":        str(dateHelp),
				"end_date":          str(dateHelp + " Inclusive. Defaults to start_date."),
				"min_duration_mins": integer("Shortest slot to return. Defaults to 30."),
			},
			"start_date"),
		tool(ToolSuggestStudyTime,
			"Suggest up to three slots that fit a study session, favoring a part of the day.",
			map[string]any{
				"duration_mins":  integer("Session length in minutes."),
				"start_date":     str(dateHelp),
				"end_date":       str(dateHelp + " Inclusive. Defaults to start_date."),
				"preferred_time": enum("Preferred part of the day.", "morning", "afternoon", "evening", "any"),
			},
			"duration_mins", "start_date"),
		tool(ToolGetSchedule,
			"Get all busy events (calendar, classes, commute, dinner) for consecutive days.",
			map[string]any{
				"start_date": str(dateHelp + " Defaults to today."),
				"days":       integer("Number of days. Defaults to 1."),
			}),
		tool(ToolGetTodayOverview,
			"Summarize today's events, study blocks and the most urgent pending tasks.",
			nil),
		tool(ToolListTasks,
			"List study tasks ordered by deadline.",
			map[string]any{
				"status":            enum("Only tasks with this status.", "pending", "scheduled", "underplanned", "completed"),
				"include_completed": boolean("Include completed tasks when no status is given."),
			}),
		tool(ToolCreateTask,
			"Create a study task. Set schedule to plan it immediately.",
			map[string]any{
				"title":         str("Task title."),
				"course_tag":    str("Course code or name."),
				"total_minutes": integer("Total study time needed in minutes."),
				"deadline":      str(instantHelp),
				"priority":      enum("Task priority.", "normal", "high"),
				"schedule":      boolean("Plan the task right after creating it."),
			},
			"title", "total_minutes", "deadline"),
		tool(ToolUpdateTask,
			"Edit a task. Omitted fields stay unchanged.",
			map[string]any{
				"task_id":       integer("ID of the task."),
				"title":         str("New title."),
				"course_tag":    str("New course tag."),
				"total_minutes": integer("New total study time in minutes."),
				"deadline":      str(instantHelp),
				"priority":      enum("New priority.", "normal", "high"),
				"status":        enum("New status.", "pending", "scheduled", "underplanned", "completed"),
			},
			"task_id"),
		tool(ToolDeleteTask,
			"Delete a task, its study blocks and their calendar events.",
			map[string]any{"task_id": integer("ID of the task.")},
			"task_id"),
		tool(ToolCompleteTask,
			"Mark a task as completed.",
			map[string]any{"task_id": integer("ID of the task.")},
			"task_id"),
		tool(ToolGetPreferences,
			"Get wake and sleep times, study block length, daily cap, commute and dinner settings.",
			nil),
		tool(ToolUpdatePreferences,
			"Update scheduling preferences. Omitted fields stay unchanged.",
			map[string]any{
				"wake_time":                 str("HH:MM."),
				"sleep_time":                str("HH:MM."),
				"study_block_length":        integer("Minutes per study block."),
				"max_study_minutes_per_day": integer("Daily study cap in minutes, 0 for unlimited."),
				"commute_duration_mins":     integer("One-way commute in minutes."),
				"dinner_time":               str("HH:MM, or empty to disable the dinner block."),
			}),
		tool(ToolSetDailyOverride,
			"Override the routine for one date, e.g. leave earlier, skip commute or dinner, wake later.",
			map[string]any{
				"date": str(dateHelp),
				"override_type": enum("What to override.",
					"departure_time", "return_time", "skip_commute", "skip_dinner", "custom_wake"),
				"value": str("HH:MM for times, true or false for skips."),
				"note":  str("Optional reason."),
			},
			"date", "override_type", "value"),
		tool(ToolGetDailyOverrides,
			"List overrides for a date, or for the next two weeks when no date is given.",
			map[string]any{"date": str(dateHelp)}),
		tool(ToolClearDailyOverride,
			"Remove one override type for a date, or all of them with override_type \"all\".",
			map[string]any{
				"date": str(dateHelp),
				"override_type": enum("Override to remove, or all.",
					"departure_time", "return_time", "skip_commute", "skip_dinner", "custom_wake", "all"),
			},
			"date", "override_type"),
		tool(ToolCreateCalendarEvent,
			"Create a calendar event at a specific time. For study sessions set split_into_blocks to get focused blocks with breaks.",
			map[string]any{
				"title":             str("Event title."),
				"date":              str(dateHelp),
				"start_time":        str("HH:MM."),
				"end_time":          str("HH:MM."),
				"split_into_blocks": boolean("Split into study blocks separated by breaks."),
			},
			"title", "date", "start_time", "end_time"),
		tool(ToolDeleteEventsByTitle,
			"Delete calendar events whose title contains the given text.",
			map[string]any{
				"contains":   str("Case-insensitive title fragment."),
				"start_date": str(dateHelp),
				"end_date":   str(dateHelp + " Inclusive. Defaults to start_date."),
			},
			"contains", "start_date"),
	}
}
