package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/gzhole/cmdauditor/internal/decision"
	"github.com/gzhole/cmdauditor/internal/metrics"
	"github.com/gzhole/cmdauditor/internal/shellparse"
)

var (
	scanJobs        int
	scanJSON        bool
	scanMetricsFile string
)

var scanCmd = &cobra.Command{
	Use:   "scan <script>",
	Short: "Check every statement of a shell script without running it",
	Long: `Split a script into its top-level statements and check each one, in
parallel. Nothing is executed. The exit status is 1 when any statement
would be rejected. Use - to read the script from stdin.

  cmdauditor scan deploy.sh
  cmdauditor scan --jobs 8 --metrics-file /var/lib/node_exporter/cmdauditor.prom ci.sh`,
	Args: cobra.ExactArgs(1),
	RunE: scanCommand,
}

func init() {
	scanCmd.Flags().IntVar(&scanJobs, "jobs", runtime.NumCPU(), "Number of statements checked concurrently")
	scanCmd.Flags().BoolVar(&scanJSON, "json", false, "Print one JSON object per statement")
	scanCmd.Flags().StringVar(&scanMetricsFile, "metrics-file", "", "Write prometheus metrics to this textfile when done")
	rootCmd.AddCommand(scanCmd)
}

type scanResult struct {
	Line     uint              `json:"line"`
	Command  string            `json:"command"`
	Decision decision.Decision `json:"decision"`
}

func scanCommand(cmd *cobra.Command, args []string) error {
	script, err := readScript(args[0])
	if err != nil {
		return err
	}

	s, err := openSession("scan")
	if err != nil {
		return err
	}
	defer s.Close()

	stmts, err := shellparse.Split(script)
	if err != nil {
		s.log.Warn("script does not parse, checking line by line", "error", err)
		stmts = shellparse.Lines(script)
	}

	results := make([]scanResult, len(stmts))
	g, ctx := errgroup.WithContext(cmd.Context())
	if scanJobs < 1 {
		scanJobs = 1
	}
	g.SetLimit(scanJobs)
	for i, st := range stmts {
		i, st := i, st
		g.Go(func() error {
			results[i] = scanResult{Line: st.Line, Command: st.Text, Decision: s.checker.Check(ctx, st.Text)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	counts := printScan(os.Stdout, results)

	if scanMetricsFile != "" {
		if err := metrics.WriteTextfile(scanMetricsFile); err != nil {
			return fmt.Errorf("failed to write metrics: %w", err)
		}
	}
	if counts[decision.KindError] > 0 {
		return &ExitError{Code: 1}
	}
	return nil
}

func readScript(path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read script: %w", err)
	}
	return string(data), nil
}

func printScan(w io.Writer, results []scanResult) map[decision.Kind]int {
	counts := map[decision.Kind]int{}
	enc := json.NewEncoder(w)
	for _, r := range results {
		counts[r.Decision.Kind]++
		if scanJSON {
			_ = enc.Encode(r)
			continue
		}
		fmt.Fprintf(w, "%4d  %s  %s\n", r.Line, decisionIcon(string(r.Decision.Kind)), r.Command)
		switch r.Decision.Kind {
		case decision.KindExecute:
			fmt.Fprintf(w, "      -> %s\n", r.Decision.Replacement)
		case decision.KindError:
			fmt.Fprintf(w, "      %s\n", r.Decision.Reason)
		}
	}
	if !scanJSON {
		fmt.Fprintf(w, "\n%d statements: %d pass, %d rewritten, %d rejected\n",
			len(results), counts[decision.KindPass], counts[decision.KindExecute], counts[decision.KindError])
	}
	return counts
}
