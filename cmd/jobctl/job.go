package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/codeforge-run/orchestrator/internal/jobstate"
	"github.com/codeforge-run/orchestrator/internal/storage"
)

func newJobCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Inspect and drive orchestrator jobs",
	}

	cmd.AddCommand(newJobCreateCommand())
	cmd.AddCommand(newJobGetCommand())
	cmd.AddCommand(newJobListCommand())
	cmd.AddCommand(newJobHistoryCommand())
	cmd.AddCommand(newJobCancelCommand())

	return cmd
}

func newJobCreateCommand() *cobra.Command {
	var repositoryID string
	var issueNumber int
	var issueTitle string
	var issueBody string
	var issueURL string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Queue a job for an issue",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if repositoryID == "" {
				return fmt.Errorf("repository-id is required")
			}
			repoID, err := uuid.Parse(repositoryID)
			if err != nil {
				return fmt.Errorf("invalid repository-id: %w", err)
			}

			job := &storage.Job{
				RepositoryID: repoID,
				Status:       string(jobstate.StatusQueued),
				IssueNumber:  issueNumber,
				IssueTitle:   issueTitle,
				IssueBody:    issueBody,
				IssueURL:     issueURL,
			}
			if err := state.tenants.CreateJob(scopedContext(cmd.Context()), job); err != nil {
				return err
			}

			cmd.Println(successStyle.Render("Job queued"))
			cmd.Println(renderJobDetails(*job))
			return nil
		},
	}

	cmd.Flags().StringVar(&repositoryID, "repository-id", "", "Repository UUID the job targets")
	cmd.Flags().IntVar(&issueNumber, "issue-number", 0, "Source issue number")
	cmd.Flags().StringVar(&issueTitle, "issue-title", "", "Source issue title")
	cmd.Flags().StringVar(&issueBody, "issue-body", "", "Source issue body")
	cmd.Flags().StringVar(&issueURL, "issue-url", "", "Source issue URL")

	return cmd
}

func newJobGetCommand() *cobra.Command {
	var jobID string

	cmd := &cobra.Command{
		Use:   "get",
		Short: "Get a job",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if jobID == "" {
				return fmt.Errorf("job-id is required")
			}

			job, err := state.tenants.GetJob(scopedContext(cmd.Context()), jobID)
			if err != nil {
				return err
			}

			cmd.Println(headerStyle.Render("Job details"))
			cmd.Println(renderJobDetails(*job))
			return nil
		},
	}

	cmd.Flags().StringVar(&jobID, "job-id", "", "Job UUID")
	return cmd
}

func newJobListCommand() *cobra.Command {
	var repositoryID string
	var statuses []string
	var limit int
	var offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			jobs, err := state.tenants.ListJobs(scopedContext(cmd.Context()), storage.JobFilters{
				Statuses:     statuses,
				RepositoryID: repositoryID,
				Limit:        limit,
				Offset:       offset,
			})
			if err != nil {
				return err
			}

			cmd.Println(renderJobList(jobs))
			return nil
		},
	}

	cmd.Flags().StringVar(&repositoryID, "repository-id", "", "Filter to one repository")
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Filter to one or more statuses (repeatable)")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum rows to return")
	cmd.Flags().IntVar(&offset, "offset", 0, "Row offset")

	return cmd
}

func newJobHistoryCommand() *cobra.Command {
	var jobID string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show a job's state transition history",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if jobID == "" {
				return fmt.Errorf("job-id is required")
			}

			transitions, err := state.tenants.GetStateHistory(scopedContext(cmd.Context()), jobID)
			if err != nil {
				return err
			}

			cmd.Println(renderStateHistory(transitions))
			return nil
		},
	}

	cmd.Flags().StringVar(&jobID, "job-id", "", "Job UUID")
	return cmd
}

func newJobCancelCommand() *cobra.Command {
	var jobID string
	var reason string

	cmd := &cobra.Command{
		Use:   "cancel",
		Short: "Cancel a job",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if jobID == "" {
				return fmt.Errorf("job-id is required")
			}
			if reason == "" {
				reason = "cancelled via jobctl"
			}

			ctx := scopedContext(cmd.Context())
			job, err := state.tenants.GetJob(ctx, jobID)
			if err != nil {
				return err
			}

			if !jobstate.ValidTransition(jobstate.Status(job.Status), jobstate.EventCancel) {
				return fmt.Errorf("job %s cannot be cancelled from status %s", jobID, job.Status)
			}

			if err := state.tenants.Transition(ctx, jobID, job.Status, jobstate.EventCancel, reason, nil); err != nil {
				return err
			}

			cmd.Println(successStyle.Render("Job cancelled"))
			return nil
		},
	}

	cmd.Flags().StringVar(&jobID, "job-id", "", "Job UUID")
	cmd.Flags().StringVar(&reason, "reason", "", "Reason recorded on the state transition")
	return cmd
}
