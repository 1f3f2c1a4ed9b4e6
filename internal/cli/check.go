package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gzhole/cmdauditor/internal/decision"
)

var checkJSON bool

var checkCmd = &cobra.Command{
	Use:   "check-command <command>",
	Short: "Print the decision for one command",
	Long: `Validate a command and print exactly one line on stdout:

  PASS                 run the command unchanged
  EXECUTE: <command>   run this replacement instead
  ERROR: <message>     do not run the command

The exit status is 0 whatever the decision; only configuration and rule
loading problems exit non-zero.

Example:
  cmdauditor check-command 'rm -rf /'
  cmdauditor check-command --json 'find / -name "*.tmp"'`,
	Args: cobra.MinimumNArgs(1),
	RunE: checkCommand,
}

func init() {
	checkCmd.Flags().BoolVar(&checkJSON, "json", false, "Print the decision with its provenance as JSON")
	rootCmd.AddCommand(checkCmd)
}

func checkCommand(cmd *cobra.Command, args []string) error {
	command := strings.Join(args, " ")

	s, err := openSession("check")
	if err != nil {
		return err
	}
	defer s.Close()

	d := s.checker.Check(cmd.Context(), command)
	if checkJSON {
		return json.NewEncoder(os.Stdout).Encode(d)
	}
	fmt.Fprintln(os.Stdout, decision.Encode(d))
	return nil
}
