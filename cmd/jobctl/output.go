package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/codeforge-run/orchestrator/internal/jobstate"
	"github.com/codeforge-run/orchestrator/internal/storage"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	successStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#04B575"))
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF5F5F"))
	labelStyle   = lipgloss.NewStyle().Bold(true)
)

func renderJobList(jobs []*storage.Job) string {
	headers := []string{"ID", "Status", "Issue #", "Title", "Repository ID"}
	rows := make([][]string, 0, len(jobs))
	for _, j := range jobs {
		rows = append(rows, []string{j.ID.String(), formatStatus(j.Status), fmt.Sprintf("%d", j.IssueNumber), j.IssueTitle, j.RepositoryID.String()})
	}

	widths := columnWidths(headers, rows)
	lines := []string{headerStyle.Render(formatRow(headers, widths))}
	for _, row := range rows {
		lines = append(lines, formatRow(row, widths))
	}
	return strings.Join(lines, "\n")
}

func renderJobDetails(job storage.Job) string {
	lines := []string{
		fmt.Sprintf("%s %s", labelStyle.Render("ID:"), job.ID),
		fmt.Sprintf("%s %s", labelStyle.Render("Status:"), formatStatus(job.Status)),
		fmt.Sprintf("%s %s", labelStyle.Render("Repository ID:"), job.RepositoryID),
		fmt.Sprintf("%s #%d %s", labelStyle.Render("Issue:"), job.IssueNumber, job.IssueTitle),
	}

	if job.IssueURL != "" {
		lines = append(lines, fmt.Sprintf("%s %s", labelStyle.Render("Issue URL:"), job.IssueURL))
	}

	if len(job.Metadata) > 0 {
		lines = append(lines, fmt.Sprintf("%s %s", labelStyle.Render("Metadata:"), formatMap(job.Metadata)))
	}

	if !job.CreatedAt.IsZero() {
		lines = append(lines, fmt.Sprintf("%s %s", labelStyle.Render("Created At:"), job.CreatedAt.Format(time.RFC3339)))
	}
	if !job.UpdatedAt.IsZero() {
		lines = append(lines, fmt.Sprintf("%s %s", labelStyle.Render("Updated At:"), job.UpdatedAt.Format(time.RFC3339)))
	}

	return strings.Join(lines, "\n")
}

func renderStateHistory(transitions []*storage.JobStateTransition) string {
	headers := []string{"From", "To", "Reason", "Triggered By", "At"}
	rows := make([][]string, 0, len(transitions))
	for _, t := range transitions {
		from := "-"
		if t.FromStatus != nil {
			from = *t.FromStatus
		}
		rows = append(rows, []string{from, t.ToStatus, t.Reason, t.TriggeredBy, t.CreatedAt.Format(time.RFC3339)})
	}

	widths := columnWidths(headers, rows)
	lines := []string{headerStyle.Render(formatRow(headers, widths))}
	for _, row := range rows {
		lines = append(lines, formatRow(row, widths))
	}
	return strings.Join(lines, "\n")
}

func renderRepoList(repos []*storage.Repository) string {
	headers := []string{"ID", "Owner", "Name", "Enabled"}
	rows := make([][]string, 0, len(repos))
	for _, r := range repos {
		rows = append(rows, []string{r.ID.String(), r.Owner, r.Name, fmt.Sprintf("%t", r.Enabled)})
	}

	widths := columnWidths(headers, rows)
	lines := []string{headerStyle.Render(formatRow(headers, widths))}
	for _, row := range rows {
		lines = append(lines, formatRow(row, widths))
	}
	return strings.Join(lines, "\n")
}

func renderRepoDetails(repo storage.Repository) string {
	lines := []string{
		fmt.Sprintf("%s %s", labelStyle.Render("ID:"), repo.ID),
		fmt.Sprintf("%s %s/%s", labelStyle.Render("Repository:"), repo.Owner, repo.Name),
		fmt.Sprintf("%s %t", labelStyle.Render("Enabled:"), repo.Enabled),
	}
	if len(repo.PolicyOverrides) > 0 {
		lines = append(lines, fmt.Sprintf("%s %s", labelStyle.Render("Policy Overrides:"), formatMap(repo.PolicyOverrides)))
	}
	return strings.Join(lines, "\n")
}

func formatStatus(status string) string {
	switch jobstate.Status(status) {
	case jobstate.StatusCompleted:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575")).Render(status)
	case jobstate.StatusFailed:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F5F")).Render(status)
	case jobstate.StatusCancelled:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("#F5A623")).Render(status)
	default:
		return status
	}
}

func formatMap(value any) string {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprintf("%v", value)
	}
	return string(data)
}

func columnWidths(headers []string, rows [][]string) []int {
	widths := make([]int, len(headers))
	for i, header := range headers {
		widths[i] = len(header)
	}
	for _, row := range rows {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}
	return widths
}

func formatRow(cells []string, widths []int) string {
	parts := make([]string, 0, len(cells))
	for i, cell := range cells {
		parts = append(parts, padRight(cell, widths[i]+2))
	}
	return strings.TrimRight(strings.Join(parts, ""), " ")
}

func padRight(value string, width int) string {
	if len(value) >= width {
		return value
	}
	return fmt.Sprintf("%-*s", width, value)
}
