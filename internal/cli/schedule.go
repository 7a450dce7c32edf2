package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rcliao/timeblock/internal/model"
	"github.com/rcliao/timeblock/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Recompute and save the schedule",
		Long: "Recompute the user's schedule over the horizon and replace the stored movable sessions. " +
			"The horizon starts at local midnight of --from in the policy timezone.",
		Run: runSchedule,
	}
	cmd.Flags().String("from", "", "Horizon start: YYYY-MM-DD or RFC3339 (default: today)")
	cmd.Flags().Int("days", 0, "Horizon length in days (default: config horizon_days)")
	cmd.Flags().Bool("json", false, "Print the full schedule as JSON")

	last := &cobra.Command{
		Use:   "last",
		Short: "Show the most recent saved run",
		Run:   runScheduleLast,
	}
	cmd.AddCommand(last)

	RootCmd.AddCommand(cmd)
}

func runSchedule(cmd *cobra.Command, args []string) {
	from, _ := cmd.Flags().GetString("from")
	days, _ := cmd.Flags().GetInt("days")
	asJSON, _ := cmd.Flags().GetBool("json")
	if days <= 0 {
		days = cfg.HorizonDays
	}

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	log := newLogger()
	svc := newService(s, log)
	user := getUser()

	p, err := svc.Policy(cmd.Context(), user)
	if err != nil {
		exitErr("load policy", err)
	}
	loc, err := p.Location()
	if err != nil {
		exitErr("policy timezone", err)
	}
	start, err := parseDay(from, loc, time.Now())
	if err != nil {
		exitErr("parse --from", err)
	}
	horizon := model.Interval{Start: start.UTC(), End: start.AddDate(0, 0, days).UTC()}

	run, err := svc.Reschedule(cmd.Context(), user, horizon)
	if err != nil {
		exitErr("schedule", err)
	}

	if asJSON {
		b, _ := json.MarshalIndent(run.Schedule, "", "  ")
		fmt.Println(string(b))
		return
	}
	printRun(run, loc)
}

func runScheduleLast(cmd *cobra.Command, args []string) {
	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	run, err := s.LastRun(cmd.Context(), getUser())
	if err != nil {
		exitErr("last run", err)
	}
	b, _ := json.MarshalIndent(run, "", "  ")
	fmt.Println(string(b))
}

func printRun(run *store.Run, loc *time.Location) {
	fmt.Printf("run %s: %d placements, %d unplaced (%s to %s)\n", run.ID, run.Placements, run.Unplaced,
		run.Horizon.Start.In(loc).Format(time.RFC3339), run.Horizon.End.In(loc).Format(time.RFC3339))
	for _, p := range run.Schedule.Placements {
		fmt.Printf("  %s  %s-%s  %s\n", p.Block.Start.In(loc).Format("Mon 2006-01-02"),
			p.Block.Start.In(loc).Format("15:04"), p.Block.End.In(loc).Format("15:04"), label(p.Block))
	}
	for _, u := range run.Schedule.Unplaced {
		fmt.Printf("  unplaced %s: %s (placed %dm, remaining %dm)\n", u.TaskID, u.Reason, u.PlacedMinutes, u.RemainingMinutes)
	}
}

func label(b model.Timeblock) string {
	if b.Title != "" {
		return b.Title
	}
	return b.ID
}

// parseDay accepts a YYYY-MM-DD date, read as local midnight in loc, or an
// RFC3339 instant. Empty means the start of today in loc.
func parseDay(s string, loc *time.Location, now time.Time) (time.Time, error) {
	if s == "" {
		n := now.In(loc)
		return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, loc), nil
	}
	if t, err := time.ParseInLocation(time.DateOnly, s, loc); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q is neither YYYY-MM-DD nor RFC3339", s)
	}
	return t, nil
}
