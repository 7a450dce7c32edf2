package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/rcliao/timeblock/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show scheduling counts per user",
		Run:   runStats,
	}
	cmd.Flags().Bool("json", false, "Print raw statistics as JSON")

	RootCmd.AddCommand(cmd)
}

func runStats(cmd *cobra.Command, args []string) {
	asJSON, _ := cmd.Flags().GetBool("json")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	stats, err := s.Stats(cmd.Context())
	if err != nil {
		exitErr("stats", err)
	}

	if asJSON {
		b, _ := json.MarshalIndent(stats, "", "  ")
		fmt.Println(string(b))
		return
	}
	writeStats(os.Stdout, stats)
}

// writeStats renders a summary line, the last run, and one row per user.
func writeStats(w io.Writer, st *store.Stats) {
	fmt.Fprintf(w, "%s (%s): %d tasks, %d records, %d runs, %d links\n",
		st.DBPath, humanize.Bytes(uint64(st.DBSizeBytes)), st.Tasks, st.Records, st.Runs, st.Links)
	if st.LastRunAt != nil {
		fmt.Fprintf(w, "last run: %s\n", st.LastRunAt.UTC().Format(time.RFC3339))
	} else {
		fmt.Fprintln(w, "last run: never")
	}
	if len(st.Users) == 0 {
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "USER\tTASKS\tSESSIONS\tPINNED\tCALENDAR\tBUSY")
	for _, u := range st.Users {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\n", u.UserID, u.Tasks, u.Sessions, u.Pinned, u.Calendar, u.Busy)
	}
	tw.Flush()
}
