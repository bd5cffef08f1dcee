package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/codeforge-run/orchestrator/internal/storage"
)

func newRepoCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repo",
		Short: "Manage the repositories a tenant monitors",
	}

	cmd.AddCommand(newRepoCreateCommand())
	cmd.AddCommand(newRepoListCommand())
	cmd.AddCommand(newRepoSetEnabledCommand())

	return cmd
}

func newRepoCreateCommand() *cobra.Command {
	var githubRepoID int64
	var owner string
	var name string
	var enabled bool

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a repository",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if owner == "" || name == "" {
				return fmt.Errorf("owner and name are required")
			}

			repo := &storage.Repository{
				GitHubRepoID: githubRepoID,
				Owner:        owner,
				Name:         name,
				FullName:     owner + "/" + name,
				Enabled:      enabled,
			}
			if err := state.tenants.CreateRepository(scopedContext(cmd.Context()), repo); err != nil {
				return err
			}

			cmd.Println(successStyle.Render("Repository registered"))
			cmd.Println(renderRepoDetails(*repo))
			return nil
		},
	}

	cmd.Flags().Int64Var(&githubRepoID, "github-repo-id", 0, "GitHub repository numeric ID")
	cmd.Flags().StringVar(&owner, "owner", "", "Repository owner")
	cmd.Flags().StringVar(&name, "name", "", "Repository name")
	cmd.Flags().BoolVar(&enabled, "enabled", true, "Whether new jobs may be queued against this repository")

	return cmd
}

func newRepoListCommand() *cobra.Command {
	var enabledOnly bool
	var limit int
	var offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List repositories",
		RunE: func(cmd *cobra.Command, _ []string) error {
			filters := storage.RepositoryFilters{Limit: limit, Offset: offset}
			if enabledOnly {
				t := true
				filters.Enabled = &t
			}

			repos, err := state.tenants.ListRepositories(scopedContext(cmd.Context()), filters)
			if err != nil {
				return err
			}

			cmd.Println(renderRepoList(repos))
			return nil
		},
	}

	cmd.Flags().BoolVar(&enabledOnly, "enabled-only", false, "Only show enabled repositories")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum rows to return")
	cmd.Flags().IntVar(&offset, "offset", 0, "Row offset")

	return cmd
}

func newRepoSetEnabledCommand() *cobra.Command {
	var repositoryID string
	var enabled bool

	cmd := &cobra.Command{
		Use:   "set-enabled",
		Short: "Enable or disable a repository",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if repositoryID == "" {
				return fmt.Errorf("repository-id is required")
			}

			ctx := scopedContext(cmd.Context())
			repo, err := state.tenants.GetRepositoryByID(ctx, repositoryID)
			if err != nil {
				return err
			}

			repo.Enabled = enabled
			if err := state.tenants.UpdateRepository(ctx, repo); err != nil {
				return err
			}

			cmd.Println(successStyle.Render("Repository updated"))
			cmd.Println(renderRepoDetails(*repo))
			return nil
		},
	}

	cmd.Flags().StringVar(&repositoryID, "repository-id", "", "Repository UUID")
	cmd.Flags().BoolVar(&enabled, "enabled", true, "Target enabled state")

	return cmd
}
