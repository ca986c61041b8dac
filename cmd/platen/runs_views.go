package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"platen/internal/ipc"
)

func buildRunStatsRows(stats map[string]int) [][]string {
	if len(stats) == 0 {
		return nil
	}
	keys := make([]string, 0, len(stats))
	for key := range stats {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	rows := make([][]string, 0, len(keys))
	for _, key := range keys {
		rows = append(rows, []string{formatStatusLabel(key), fmt.Sprintf("%d", stats[key])})
	}
	return rows
}

func buildRunListRows(runs []ipc.Run) [][]string {
	if len(runs) == 0 {
		return nil
	}
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		label := strings.TrimSpace(run.Label)
		if label == "" {
			label = "-"
		}
		rows = append(rows, []string{
			run.ID,
			formatStatusLabel(run.Kind),
			label,
			formatStatusLabel(run.Status),
			formatDisplayTime(run.StartedAt),
			formatRunDuration(run),
		})
	}
	return rows
}

func formatStatusLabel(status string) string {
	status = strings.TrimSpace(status)
	if status == "" {
		return ""
	}
	parts := strings.Split(status, "_")
	for i, part := range parts {
		lower := strings.ToLower(part)
		if lower == "" {
			continue
		}
		parts[i] = strings.ToUpper(lower[:1]) + lower[1:]
	}
	return strings.Join(parts, " ")
}

func formatDisplayTime(value *time.Time) string {
	if value == nil || value.IsZero() {
		return "-"
	}
	return value.UTC().Format("2006-01-02 15:04")
}

func formatRunDuration(run ipc.Run) string {
	if run.StartedAt == nil || run.StartedAt.IsZero() {
		return "-"
	}
	if run.FinishedAt == nil || run.FinishedAt.IsZero() {
		return "running"
	}
	d := run.FinishedAt.Sub(*run.StartedAt)
	if d < 0 {
		return "-"
	}
	return d.Round(time.Second).String()
}
