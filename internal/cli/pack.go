package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gzhole/cmdauditor/internal/policy"
)

var packCmd = &cobra.Command{
	Use:   "pack",
	Short: "Manage rule packs",
	Long: `Rule packs are extra rule files kept in ~/.cmdauditor/packs/. They are
loaded in name order after your own rules files. A pack whose file name
starts with an underscore is disabled.

Examples:
  cmdauditor pack list
  cmdauditor pack disable git-safety
  cmdauditor pack enable git-safety
  cmdauditor pack show git-safety`,
}

var packListCmd = &cobra.Command{
	Use:   "list",
	Short: "List installed rule packs",
	RunE:  packList,
}

var packEnableCmd = &cobra.Command{
	Use:   "enable <pack-name>",
	Short: "Enable a disabled rule pack",
	Args:  cobra.ExactArgs(1),
	RunE:  packEnable,
}

var packDisableCmd = &cobra.Command{
	Use:   "disable <pack-name>",
	Short: "Disable a rule pack (prefix with underscore)",
	Args:  cobra.ExactArgs(1),
	RunE:  packDisable,
}

var packShowCmd = &cobra.Command{
	Use:   "show <pack-name>",
	Short: "Print a rule pack",
	Args:  cobra.ExactArgs(1),
	RunE:  packShow,
}

func init() {
	packCmd.AddCommand(packListCmd, packEnableCmd, packDisableCmd, packShowCmd)
	rootCmd.AddCommand(packCmd)
}

func packsDir() (string, error) {
	cfg, err := loadConfig()
	if cfg == nil {
		return "", err
	}
	if err := os.MkdirAll(cfg.Rules.PacksDir, 0700); err != nil {
		return "", err
	}
	return cfg.Rules.PacksDir, nil
}

func packList(cmd *cobra.Command, args []string) error {
	dir, err := packsDir()
	if err != nil {
		return err
	}

	_, infos, err := policy.LoadPacks(dir)
	if err != nil {
		return fmt.Errorf("failed to load packs: %w", err)
	}
	if len(infos) == 0 {
		fmt.Println("No rule packs installed.")
		fmt.Printf("\nTo install a pack, copy its YAML file to: %s\n", dir)
		return nil
	}

	fmt.Println("Installed rule packs:")
	fmt.Println(strings.Repeat("─", 60))
	for _, info := range infos {
		status := "\xe2\x9c\x85" // check mark
		detail := fmt.Sprintf("%d rules", info.RuleCount)
		if !info.Enabled {
			status = "\xe2\x9d\x8c" // cross mark
			detail = "disabled"
		}
		fmt.Printf("  %s  %-25s %s\n", status, strings.TrimPrefix(info.Name, "_"), detail)
	}
	fmt.Println(strings.Repeat("─", 60))
	fmt.Printf("\nPacks directory: %s\n", dir)
	return nil
}

// packPath finds name in dir with either extension, enabled or not.
func packPath(dir, name string, enabled bool) (string, bool) {
	base := name
	if !enabled {
		base = "_" + name
	}
	for _, ext := range []string{".yaml", ".yml"} {
		p := filepath.Join(dir, base+ext)
		if _, err := os.Stat(p); err == nil {
			return p, true
		}
	}
	return "", false
}

func packEnable(cmd *cobra.Command, args []string) error {
	dir, err := packsDir()
	if err != nil {
		return err
	}
	name := args[0]

	if disabled, ok := packPath(dir, name, false); ok {
		enabled := filepath.Join(dir, strings.TrimPrefix(filepath.Base(disabled), "_"))
		if err := os.Rename(disabled, enabled); err != nil {
			return fmt.Errorf("failed to enable pack: %w", err)
		}
		fmt.Printf("\xe2\x9c\x85 Pack '%s' enabled.\n", name)
		return nil
	}
	if _, ok := packPath(dir, name, true); ok {
		fmt.Printf("Pack '%s' is already enabled.\n", name)
		return nil
	}
	return fmt.Errorf("pack '%s' not found in %s", name, dir)
}

func packDisable(cmd *cobra.Command, args []string) error {
	dir, err := packsDir()
	if err != nil {
		return err
	}
	name := args[0]

	if enabled, ok := packPath(dir, name, true); ok {
		disabled := filepath.Join(dir, "_"+filepath.Base(enabled))
		if err := os.Rename(enabled, disabled); err != nil {
			return fmt.Errorf("failed to disable pack: %w", err)
		}
		fmt.Printf("\xe2\x9d\x8c Pack '%s' disabled.\n", name)
		return nil
	}
	if _, ok := packPath(dir, name, false); ok {
		fmt.Printf("Pack '%s' is already disabled.\n", name)
		return nil
	}
	return fmt.Errorf("pack '%s' not found in %s", name, dir)
}

func packShow(cmd *cobra.Command, args []string) error {
	dir, err := packsDir()
	if err != nil {
		return err
	}
	name := args[0]

	path, ok := packPath(dir, name, true)
	if !ok {
		if path, ok = packPath(dir, name, false); !ok {
			return fmt.Errorf("pack '%s' not found in %s", name, dir)
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
