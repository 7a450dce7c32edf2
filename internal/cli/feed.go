package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Print the unified timeblock feed",
		Long:  "Print every timeblock (sessions, events, busy time) intersecting [from, to) as JSON, ordered by start.",
		Run:   runFeed,
	}
	cmd.Flags().String("from", "", "Range start: YYYY-MM-DD or RFC3339 (default: today)")
	cmd.Flags().String("to", "", "Range end: YYYY-MM-DD or RFC3339 (default: from + horizon_days)")
	cmd.Flags().Bool("text", false, "Print one line per block instead of JSON")

	RootCmd.AddCommand(cmd)
}

func runFeed(cmd *cobra.Command, args []string) {
	fromStr, _ := cmd.Flags().GetString("from")
	toStr, _ := cmd.Flags().GetString("to")
	asText, _ := cmd.Flags().GetBool("text")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	svc := newService(s, newLogger())
	user := getUser()

	p, err := svc.Policy(cmd.Context(), user)
	if err != nil {
		exitErr("load policy", err)
	}
	loc, err := p.Location()
	if err != nil {
		exitErr("policy timezone", err)
	}
	from, err := parseDay(fromStr, loc, time.Now())
	if err != nil {
		exitErr("parse --from", err)
	}
	to := from.AddDate(0, 0, cfg.HorizonDays)
	if toStr != "" {
		if to, err = parseDay(toStr, loc, time.Now()); err != nil {
			exitErr("parse --to", err)
		}
	}

	blocks, err := svc.Feed(cmd.Context(), user, from.UTC(), to.UTC())
	if err != nil {
		exitErr("feed", err)
	}

	if asText {
		for _, b := range blocks {
			flag := ""
			if b.ReadOnly {
				flag = " (fixed)"
			}
			if b.IsAllDay {
				fmt.Printf("%s  all day      %-8s %s%s\n", b.Start.In(loc).Format("Mon 2006-01-02"), b.Source, label(b), flag)
				continue
			}
			fmt.Printf("%s  %s-%s  %-8s %s%s\n", b.Start.In(loc).Format("Mon 2006-01-02"),
				b.Start.In(loc).Format("15:04"), b.End.In(loc).Format("15:04"), b.Source, label(b), flag)
		}
		return
	}

	b, _ := json.MarshalIndent(blocks, "", "  ")
	fmt.Println(string(b))
}
