package main

import (
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/company-research/internal/dispatch"
	"github.com/sells-group/company-research/internal/model"
	"github.com/sells-group/company-research/internal/service"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Create, inspect and process tasks",
}

var taskCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a pending task",
	RunE: func(cmd *cobra.Command, args []string) error {
		agentType, _ := cmd.Flags().GetString("agent")
		taskType, _ := cmd.Flags().GetString("type")
		raw, _ := cmd.Flags().GetString("params")

		var params model.Params
		if raw != "" {
			if err := json.Unmarshal([]byte(raw), &params); err != nil {
				return eris.Wrap(err, "parse --params")
			}
		}

		env, err := newEngine(cmd.Context(), "worker")
		if err != nil {
			return err
		}
		defer env.Close()

		svc := service.New(env.Store, nil)
		id, err := svc.CreateTask(cmd.Context(), model.AgentType(agentType), model.TaskType(taskType), params)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), map[string]string{"task_id": id})
	},
}

var taskGetCmd = &cobra.Command{
	Use:   "get <task-id>",
	Short: "Show a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := newEngine(cmd.Context(), "worker")
		if err != nil {
			return err
		}
		defer env.Close()

		task, err := env.Store.GetTask(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), task)
	},
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		agentType, _ := cmd.Flags().GetString("agent")
		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")
		skip, _ := cmd.Flags().GetInt("skip")

		filter := model.TaskFilter{
			AgentType: model.AgentType(agentType),
			Status:    model.TaskStatus(status),
			Limit:     limit,
			Offset:    skip,
		}
		if filter.Status != "" && !filter.Status.Valid() {
			return eris.Errorf("invalid --status %q", status)
		}

		env, err := newEngine(cmd.Context(), "worker")
		if err != nil {
			return err
		}
		defer env.Close()

		tasks, err := env.Store.ListTasks(cmd.Context(), filter)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), tasks)
	},
}

var taskProcessCmd = &cobra.Command{
	Use:   "process <task-id>",
	Short: "Run one task in the foreground",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := newEngine(ctx, "worker")
		if err != nil {
			return err
		}
		defer env.Close()

		runner := dispatch.NewRunner(ctx, env.Dispatcher, 1)
		if err := runner.Run(ctx, args[0]); err != nil {
			return err
		}

		task, err := env.Store.GetTask(ctx, args[0])
		if err != nil {
			return err
		}
		zap.L().Info("task processed",
			zap.String("task_id", task.ID),
			zap.String("status", string(task.Status)),
		)
		return printJSON(cmd.OutOrStdout(), task)
	},
}

func init() {
	taskCreateCmd.Flags().String("agent", "", "agent type (search, crawl, extract, store, analyze, strategy, orchestration)")
	taskCreateCmd.Flags().String("type", "", "task type")
	taskCreateCmd.Flags().String("params", "", "task parameters as a JSON object")
	_ = taskCreateCmd.MarkFlagRequired("agent")
	_ = taskCreateCmd.MarkFlagRequired("type")

	taskListCmd.Flags().String("agent", "", "filter by agent type")
	taskListCmd.Flags().String("status", "", "filter by status")
	taskListCmd.Flags().Int("limit", 50, "maximum number of tasks")
	taskListCmd.Flags().Int("skip", 0, "number of tasks to skip")

	taskCmd.AddCommand(taskCreateCmd, taskGetCmd, taskListCmd, taskProcessCmd)
	rootCmd.AddCommand(taskCmd)
}
