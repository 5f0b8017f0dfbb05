package main

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/company-research/internal/dispatch"
	"github.com/sells-group/company-research/internal/model"
	"github.com/sells-group/company-research/internal/service"
	"github.com/sells-group/company-research/internal/workflow"
	"github.com/sells-group/company-research/pkg/taskclient"
)

var profileLocal bool

var profileCmd = &cobra.Command{
	Use:   "profile <company-id>",
	Short: "Run the search, crawl, extract and store pipeline for a company",
	Long: "Runs the profile pipeline for a company and prints a per-stage report. " +
		"By default the pipeline is driven through the task API at workflow.api_base_url; " +
		"with --local the tasks run in this process.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if profileLocal {
			return runProfileLocal(ctx, cmd, args[0])
		}

		client := taskclient.New(cfg.Workflow.APIBaseURL)
		company, err := client.GetCompany(ctx, args[0])
		if err != nil {
			return err
		}
		return runProfile(ctx, cmd, client, company)
	},
}

func runProfileLocal(ctx context.Context, cmd *cobra.Command, companyID string) error {
	env, err := newEngine(ctx, "worker")
	if err != nil {
		return err
	}
	defer env.Close()

	runner := dispatch.NewRunner(ctx, env.Dispatcher, cfg.Dispatch.Concurrency)
	defer runner.Wait()

	svc := service.New(env.Store, runner,
		service.WithAutoDispatch(true),
		service.WithSearchMaxResults(cfg.Search.MaxResults),
	)
	company, err := svc.GetCompany(ctx, companyID)
	if err != nil {
		return err
	}
	return runProfile(ctx, cmd, svc, company)
}

func runProfile(ctx context.Context, cmd *cobra.Command, api workflow.TaskAPI, company *model.Company) error {
	coord := workflow.NewCoordinator(api,
		workflow.WithPollInterval(cfg.Workflow.PollInterval()),
		workflow.WithMaxPollAttempts(cfg.Workflow.MaxPollAttempts),
		workflow.WithMaxResults(cfg.Search.MaxResults),
	)
	report, err := coord.RunPipeline(ctx, company.ID, company.Name)
	if report != nil {
		zap.L().Info("profile pipeline finished",
			zap.String("company_id", company.ID),
			zap.Int("completed", report.CompletedCount),
			zap.Int("failed", report.FailedCount),
			zap.String("stopped_at", report.StoppedAt),
		)
		if perr := printJSON(cmd.OutOrStdout(), report); perr != nil {
			return perr
		}
	}
	return err
}

func init() {
	profileCmd.Flags().BoolVar(&profileLocal, "local", false, "run tasks in this process instead of through the API")
	rootCmd.AddCommand(profileCmd)
}
