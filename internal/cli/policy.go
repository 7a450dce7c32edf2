package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/timeblock/internal/config"
	"github.com/rcliao/timeblock/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Show or set the user's scheduling policy",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective policy (stored, or the configured default)",
		Run:   runPolicyShow,
	}

	set := &cobra.Command{
		Use:   "set <file>",
		Short: "Store a policy from a YAML or JSON file",
		Args:  cobra.ExactArgs(1),
		Run:   runPolicySet,
	}

	cmd.AddCommand(show, set)
	RootCmd.AddCommand(cmd)
}

func runPolicyShow(cmd *cobra.Command, args []string) {
	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	p, err := newService(s, newLogger()).Policy(cmd.Context(), getUser())
	if err != nil {
		exitErr("load policy", err)
	}

	b, _ := json.MarshalIndent(p, "", "  ")
	fmt.Println(string(b))
}

func runPolicySet(cmd *cobra.Command, args []string) {
	var p model.Policy
	if err := config.DecodeFile(args[0], &p); err != nil {
		exitErr("read policy", err)
	}

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	if err := s.PutPolicy(cmd.Context(), getUser(), p); err != nil {
		exitErr("set policy", err)
	}

	b, _ := json.Marshal(p)
	fmt.Println(string(b))
}
