package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/rcliao/timeblock/internal/gate"
)

func init() {
	cmd := &cobra.Command{
		Use:   "gate",
		Short: "Run the acceptance gate",
		Long: "Run every acceptance scenario against the scheduling pipeline, print a report, " +
			"and write a JSON result artifact. Exits non-zero if any scenario fails or the run exceeds its budget.",
		Run: runGate,
	}
	cmd.Flags().StringP("out", "o", "", "Result artifact path (default: config gate.output; \"-\" to skip)")
	cmd.Flags().Duration("budget", 0, "Wall-clock budget for the whole run (default: config gate.budget)")
	cmd.Flags().Bool("sequential", false, "Run scenarios one at a time")
	cmd.Flags().StringSlice("scenario", nil, "Only run the named scenarios")

	RootCmd.AddCommand(cmd)
}

func runGate(cmd *cobra.Command, args []string) {
	out, _ := cmd.Flags().GetString("out")
	budget, _ := cmd.Flags().GetDuration("budget")
	sequential, _ := cmd.Flags().GetBool("sequential")
	only, _ := cmd.Flags().GetStringSlice("scenario")

	if out == "" {
		out = cfg.Gate.Output
	}
	if budget <= 0 {
		budget = cfg.GateBudget()
	}

	scenarios, err := selectScenarios(only)
	if err != nil {
		exitErr("gate", err)
	}

	g := gate.New(newLogger(), gate.Options{
		Budget:     budget,
		Sequential: sequential || cfg.Gate.Sequential,
		Scenarios:  scenarios,
	})
	report := g.Run(cmd.Context())

	if code := finishGate(os.Stdout, os.Stderr, report, out); code != 0 {
		os.Exit(code)
	}
}

// finishGate prints the report, writes the artifact unless out is empty or
// "-", and returns the process exit code: 0 only for a passing run whose
// artifact was written.
func finishGate(stdout, stderr io.Writer, report gate.Report, out string) int {
	fmt.Fprint(stdout, report.Text())
	code := 0
	if out != "" && out != "-" {
		if err := report.WriteArtifact(out); err != nil {
			fmt.Fprintf(stderr, "error: write artifact: %v\n", err)
			code = 1
		}
	}
	if !report.Passed {
		code = 1
	}
	return code
}

// selectScenarios returns nil (the full catalogue) when names is empty.
func selectScenarios(names []string) ([]gate.Scenario, error) {
	if len(names) == 0 {
		return nil, nil
	}
	byName := make(map[string]gate.Scenario)
	for _, sc := range gate.Scenarios() {
		byName[sc.Name] = sc
	}
	var out []gate.Scenario
	for _, n := range names {
		sc, ok := byName[n]
		if !ok {
			return nil, fmt.Errorf("unknown scenario %q", n)
		}
		out = append(out, sc)
	}
	return out, nil
}
