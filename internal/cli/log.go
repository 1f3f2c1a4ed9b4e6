package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/gzhole/cmdauditor/internal/logger"
)

var (
	logFilterDecision string
	logFilterSource   string
	logLast           int
	logSummary        bool
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "View and filter the audit log",
	Long: `View the cmdauditor audit log with filtering and summary options.

Examples:
  cmdauditor log                        # Show all entries
  cmdauditor log --last 20              # Show last 20 entries
  cmdauditor log --decision ERROR       # Show only rejected commands
  cmdauditor log --source fallback      # Show commands allowed because the AI failed
  cmdauditor log --summary              # Show summary stats`,
	RunE: logCommand,
}

func init() {
	logCmd.Flags().StringVar(&logFilterDecision, "decision", "", "Filter by decision (PASS, EXECUTE, ERROR)")
	logCmd.Flags().StringVar(&logFilterSource, "source", "", "Filter by source (screen, rule, ai, fallback, skipped)")
	logCmd.Flags().IntVar(&logLast, "last", 0, "Show last N entries")
	logCmd.Flags().BoolVar(&logSummary, "summary", false, "Show summary statistics")
	rootCmd.AddCommand(logCmd)
}

func logCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if cfg == nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	events, err := readAuditLog(cfg.Logging.AuditLog)
	if err != nil {
		return fmt.Errorf("failed to read audit log: %w", err)
	}
	if len(events) == 0 {
		fmt.Println("No audit log entries found.")
		return nil
	}

	filtered := filterEvents(events, logFilterDecision, logFilterSource)
	if logLast > 0 && logLast < len(filtered) {
		filtered = filtered[len(filtered)-logLast:]
	}

	if logSummary {
		printSummary(os.Stdout, events)
		return nil
	}
	printEvents(os.Stdout, filtered)
	return nil
}

func readAuditLog(path string) ([]logger.AuditEvent, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	var events []logger.AuditEvent
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		var event logger.AuditEvent
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			continue // skip malformed lines
		}
		events = append(events, event)
	}
	return events, scanner.Err()
}

func filterEvents(events []logger.AuditEvent, decision, source string) []logger.AuditEvent {
	if decision == "" && source == "" {
		return events
	}
	var filtered []logger.AuditEvent
	for _, e := range events {
		if decision != "" && !strings.EqualFold(e.Decision, decision) {
			continue
		}
		if source != "" && !strings.EqualFold(e.Source, source) {
			continue
		}
		filtered = append(filtered, e)
	}
	return filtered
}

func printEvents(w io.Writer, events []logger.AuditEvent) {
	for _, e := range events {
		fmt.Fprintf(w, "%s %s %s\n", decisionIcon(e.Decision), formatTimestamp(e.Timestamp), e.Command)
		if e.Replacement != "" {
			fmt.Fprintf(w, "     Replaced with: %s\n", e.Replacement)
		}
		if e.Message != "" {
			fmt.Fprintf(w, "     Message: %s\n", e.Message)
		}
		source := e.Source
		if e.RuleID != "" {
			source += " " + e.RuleID
		}
		if e.Fallback != "" {
			source += " (" + e.Fallback + ")"
		}
		fmt.Fprintf(w, "     Source: %s  %dms\n", source, e.DurationMS)
		if len(e.Suspicious) > 0 {
			fmt.Fprintf(w, "     Suspicious: %s\n", strings.Join(e.Suspicious, ", "))
		}
		if e.Cwd != "" {
			fmt.Fprintf(w, "     Cwd: %s\n", e.Cwd)
		}
		fmt.Fprintln(w)
	}
}

func printSummary(w io.Writer, all []logger.AuditEvent) {
	counts := map[string]int{}
	sources := map[string]int{}
	for _, e := range all {
		counts[e.Decision]++
		sources[e.Source]++
	}

	fmt.Fprintln(w, "═══════════════════════════════════════════")
	fmt.Fprintln(w, "  cmdauditor audit summary")
	fmt.Fprintln(w, "═══════════════════════════════════════════")
	fmt.Fprintf(w, "  Total events:    %d\n", len(all))
	fmt.Fprintf(w, "  PASS:            %d\n", counts["PASS"])
	fmt.Fprintf(w, "  EXECUTE:         %d\n", counts["EXECUTE"])
	fmt.Fprintf(w, "  ERROR:           %d\n", counts["ERROR"])
	fmt.Fprintf(w, "  AI fallbacks:    %d\n", sources["fallback"])
	fmt.Fprintln(w, "═══════════════════════════════════════════")
	fmt.Fprintf(w, "  First event:     %s\n", formatTimestamp(all[0].Timestamp))
	fmt.Fprintf(w, "  Last event:      %s\n", formatTimestamp(all[len(all)-1].Timestamp))

	var blocked []logger.AuditEvent
	for _, e := range all {
		if e.Decision == "ERROR" {
			blocked = append(blocked, e)
		}
	}
	if len(blocked) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "  Rejected commands:")
		if len(blocked) > 10 {
			blocked = blocked[len(blocked)-10:]
		}
		for _, e := range blocked {
			fmt.Fprintf(w, "    %s %s\n", formatTimestamp(e.Timestamp), e.Command)
		}
	}
	fmt.Fprintln(w)
}

func decisionIcon(decision string) string {
	switch decision {
	case "ERROR":
		return "\xf0\x9f\x9b\x91" // stop sign
	case "EXECUTE":
		return "\xe2\x9c\x8f\xef\xb8\x8f " // pencil
	case "PASS":
		return "\xe2\x9c\x85" // check mark
	default:
		return "\xe2\x9d\x93" // question mark
	}
}

func formatTimestamp(ts string) string {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return ts
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
