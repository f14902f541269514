package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"tasktracker/domain"
)

var (
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

const shortIDLen = 8

func shortID(id string) string {
	if len(id) <= shortIDLen {
		return id
	}
	return id[:shortIDLen]
}

func priorityLabel(p domain.Priority) string {
	switch p {
	case domain.PriorityHigh:
		return red(string(p))
	case domain.PriorityLow:
		return green(string(p))
	default:
		return yellow(string(p))
	}
}

func renderTasks(w io.Writer, tasks []domain.Task) {
	if len(tasks) == 0 {
		fmt.Fprintln(w, gray("No tasks found"))
		return
	}
	for _, t := range tasks {
		box := "[ ]"
		title := bold(t.Title)
		if t.Completed {
			box = "[x]"
			title = gray(t.Title)
		}
		line := fmt.Sprintf("%s %s  %s  %s", box, gray(shortID(t.ID)), title, priorityLabel(t.Priority))
		if t.Due != nil {
			line += "  due " + t.Due.String()
		}
		fmt.Fprintln(w, line)
		if t.Notes != "" {
			fmt.Fprintf(w, "    %s\n", gray(t.Notes))
		}
	}
}

func renderStats(w io.Writer, s domain.Stats) {
	fmt.Fprintf(w, "%s %d\n", bold("Total:"), s.Total)
	fmt.Fprintf(w, "%s %d\n", bold("Completed:"), s.Completed)
	fmt.Fprintf(w, "%s %d\n", bold("Pending:"), s.Pending)
	fmt.Fprintf(w, "%s %s\n", bold("High priority:"), red(s.HighPriority))
	fmt.Fprintf(w, "%s %d%%\n", bold("Progress:"), s.Progress)
}
