package approval

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// IsInteractive reports whether the process talks to a person: both
// stdin and stderr must be terminals.
func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stderr.Fd()))
}

var (
	labelStyle   = lipgloss.NewStyle().Bold(true)
	blockStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	rewriteStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	commandStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
)

const tag = "[cmdauditor]"

// BlockNotice is printed when a command is refused.
func BlockNotice(reason string) string {
	return fmt.Sprintf("%s %s %s",
		labelStyle.Render(tag),
		blockStyle.Render("\U0001f6d1 blocked:"),
		reason)
}

// RewriteNotice shows the replacement before it runs.
func RewriteNotice(original, replacement string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render(tag), rewriteStyle.Render("✏️  rewritten:"))
	fmt.Fprintf(&b, "  - %s\n", original)
	fmt.Fprintf(&b, "  + %s", commandStyle.Render(replacement))
	return b.String()
}

// Warning is a dim one-line diagnostic that never blocks.
func Warning(format string, args ...any) string {
	return fmt.Sprintf("%s %s", labelStyle.Render(tag), warnStyle.Render("warning: "+fmt.Sprintf(format, args...)))
}

// Confirm asks a yes/no question on out and reads the answer from in.
// Anything other than an explicit yes, including EOF, is a no.
func Confirm(in io.Reader, out io.Writer, question string) bool {
	reader := bufio.NewReader(in)
	for {
		fmt.Fprintf(out, "%s %s [y/N]: ", labelStyle.Render(tag), question)
		input, err := reader.ReadString('\n')
		input = strings.TrimSpace(strings.ToLower(input))

		switch input {
		case "y", "yes":
			return true
		case "", "n", "no":
			return false
		}
		if err != nil {
			return false
		}
		fmt.Fprintln(out, "Please answer y or n.")
	}
}
