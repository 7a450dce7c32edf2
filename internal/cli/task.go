package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rcliao/timeblock/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Manage the task snapshot the scheduler reads",
	}

	add := &cobra.Command{
		Use:   "add",
		Short: "Add or replace a task",
		Run:   runTaskAdd,
	}
	add.Flags().String("id", "", "Task ID (required)")
	add.Flags().StringP("title", "t", "", "Title")
	add.Flags().StringP("estimate", "e", "", "Estimated duration, e.g. 90m or 2h (required)")
	add.Flags().StringP("priority", "p", "normal", "Priority: low, normal, high, critical or an integer")
	add.Flags().String("deadline", "", "Deadline (RFC3339)")
	add.Flags().String("earliest", "", "Earliest start (RFC3339)")
	add.Flags().Int("min", 0, "Minimum session minutes (default: policy)")
	add.Flags().Int("max", 0, "Maximum session minutes (default: policy)")
	add.Flags().String("link", "", "Link ID")
	add.MarkFlagRequired("id")
	add.MarkFlagRequired("estimate")

	rm := &cobra.Command{
		Use:   "rm <id>",
		Short: "Remove a task and its unpinned sessions",
		Args:  cobra.ExactArgs(1),
		Run:   runTaskRm,
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		Run:   runTaskList,
	}

	cmd.AddCommand(add, rm, list)
	RootCmd.AddCommand(cmd)
}

func runTaskAdd(cmd *cobra.Command, args []string) {
	id, _ := cmd.Flags().GetString("id")
	title, _ := cmd.Flags().GetString("title")
	estimate, _ := cmd.Flags().GetString("estimate")
	priority, _ := cmd.Flags().GetString("priority")
	deadline, _ := cmd.Flags().GetString("deadline")
	earliest, _ := cmd.Flags().GetString("earliest")
	minSession, _ := cmd.Flags().GetInt("min")
	maxSession, _ := cmd.Flags().GetInt("max")
	link, _ := cmd.Flags().GetString("link")

	est, err := time.ParseDuration(estimate)
	if err != nil {
		exitErr("parse --estimate", err)
	}
	prio, err := model.ParsePriority(priority)
	if err != nil {
		exitErr("parse --priority", err)
	}
	t := model.Task{
		ID:                id,
		Title:             title,
		EstimatedDuration: model.Duration(est),
		Priority:          prio,
		MinSessionMinutes: minSession,
		MaxSessionMinutes: maxSession,
		LinkID:            link,
	}
	if t.Deadline, err = optionalTime(deadline); err != nil {
		exitErr("parse --deadline", err)
	}
	if t.EarliestStart, err = optionalTime(earliest); err != nil {
		exitErr("parse --earliest", err)
	}

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	if err := s.PutTask(cmd.Context(), getUser(), t); err != nil {
		exitErr("add task", err)
	}

	b, _ := json.Marshal(t)
	fmt.Println(string(b))
}

func runTaskRm(cmd *cobra.Command, args []string) {
	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	if err := s.RemoveTask(cmd.Context(), getUser(), args[0]); err != nil {
		exitErr("rm task", err)
	}
	fmt.Printf(`{"ok":true,"removed":%q}`+"\n", args[0])
}

func runTaskList(cmd *cobra.Command, args []string) {
	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	tasks, err := s.ListTasks(cmd.Context(), getUser())
	if err != nil {
		exitErr("list tasks", err)
	}
	if tasks == nil {
		tasks = []model.Task{}
	}

	b, _ := json.MarshalIndent(tasks, "", "  ")
	fmt.Println(string(b))
}

func optionalTime(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
