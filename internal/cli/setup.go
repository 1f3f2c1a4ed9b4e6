package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/gzhole/cmdauditor/internal/approval"
	"github.com/gzhole/cmdauditor/internal/config"
	"github.com/gzhole/cmdauditor/internal/policy"
	"github.com/gzhole/cmdauditor/internal/shellhook"
)

var (
	setupDisable bool
	setupYes     bool
)

var setupCmd = &cobra.Command{
	Use:   "setup [bash|zsh]",
	Short: "Install the shell integration",
	Long: `Install the hook script for bash or zsh (default: $SHELL) and add a
source line to ~/.bashrc or ~/.zshrc. A starter rules file is written to
~/.cmdauditor/rules.yaml when none exists.

  cmdauditor setup bash
  cmdauditor setup zsh --disable     # remove the source line again
  cmdauditor setup bash --disable -y  # without asking`,
	Args: cobra.MaximumNArgs(1),
	RunE: setupCommand,
}

func init() {
	setupCmd.Flags().BoolVar(&setupDisable, "disable", false, "Remove the shell integration")
	setupCmd.Flags().BoolVarP(&setupYes, "yes", "y", false, "Do not ask before removing the integration")
	rootCmd.AddCommand(setupCmd)
}

func setupCommand(cmd *cobra.Command, args []string) error {
	name := ""
	if len(args) == 1 {
		name = args[0]
	}
	shell, err := shellhook.ParseShell(name)
	if err != nil {
		return err
	}

	inst, err := newInstaller()
	if err != nil {
		return err
	}

	if setupDisable {
		if !setupYes && approval.IsInteractive() &&
			!approval.Confirm(os.Stdin, os.Stderr, fmt.Sprintf("Stop checking %s commands?", shell)) {
			fmt.Println("Nothing changed.")
			return nil
		}
		res, err := inst.Uninstall(shell)
		if err != nil {
			return fmt.Errorf("failed to remove %s integration: %w", shell, err)
		}
		if res.RCUpdated {
			fmt.Printf("Removed cmdauditor from %s. Open a new shell to finish.\n", res.RCFile)
		} else {
			fmt.Printf("cmdauditor was not enabled in %s.\n", res.RCFile)
		}
		return nil
	}

	res, err := inst.Install(shell)
	if err != nil {
		return fmt.Errorf("failed to install %s integration: %w", shell, err)
	}
	fmt.Printf("Hook script: %s\n", res.ScriptPath)
	if res.RCUpdated {
		fmt.Printf("Added source line to %s\n", res.RCFile)
	} else {
		fmt.Printf("%s already sources the hook\n", res.RCFile)
	}

	if path, written, err := writeStarterRules(inst.ConfigDir); err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not write starter rules: %v\n", err)
	} else if written {
		fmt.Printf("Starter rules:  %s\n", path)
	}

	fmt.Println()
	fmt.Println("Open a new shell, or run:  source " + res.RCFile)
	fmt.Println("Set OPENAI_API_KEY to enable AI checks for commands no rule matches.")
	return nil
}

func newInstaller() (*shellhook.Installer, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	bin, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("cannot locate cmdauditor binary: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(bin); err == nil {
		bin = resolved
	}
	return &shellhook.Installer{
		Home:      home,
		ConfigDir: filepath.Join(home, config.DefaultConfigDir),
		Binary:    bin,
	}, nil
}

func writeStarterRules(configDir string) (string, bool, error) {
	path := filepath.Join(configDir, config.DefaultRulesFile)
	if _, err := os.Stat(path); err == nil {
		return path, false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return path, false, err
	}
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return path, false, err
	}
	return path, true, os.WriteFile(path, policy.StarterRules, 0600)
}
