// Package shellhook installs the bash and zsh adapters that route every
// interactive command through "cmdauditor hook".
package shellhook

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

//go:embed scripts/bash.sh
var bashScript string

//go:embed scripts/zsh.sh
var zshScript string

const binPlaceholder = "__CMDAUDITOR_BIN__"

type Shell string

const (
	Bash Shell = "bash"
	Zsh  Shell = "zsh"
)

// ParseShell accepts a shell name or path; empty means $SHELL.
func ParseShell(name string) (Shell, error) {
	if name == "" {
		name = os.Getenv("SHELL")
	}
	switch strings.ToLower(filepath.Base(name)) {
	case "bash":
		return Bash, nil
	case "zsh":
		return Zsh, nil
	default:
		return "", fmt.Errorf("unsupported shell %q (bash and zsh are supported)", name)
	}
}

// Script returns the hook script for shell calling binary.
func Script(shell Shell, binary string) (string, error) {
	var tmpl string
	switch shell {
	case Bash:
		tmpl = bashScript
	case Zsh:
		tmpl = zshScript
	default:
		return "", fmt.Errorf("unsupported shell %q", shell)
	}
	if strings.Contains(binary, "'") {
		return "", fmt.Errorf("binary path %q must not contain a single quote", binary)
	}
	return strings.ReplaceAll(tmpl, binPlaceholder, binary), nil
}

type Result struct {
	Shell      Shell
	ScriptPath string
	RCFile     string
	RCUpdated  bool
}

type Status struct {
	Shell        Shell
	ScriptPath   string
	RCFile       string
	ScriptExists bool
	LinePresent  bool
}

// Installer writes hook scripts under ConfigDir/shell and manages the
// source line in the user's rc file.
type Installer struct {
	Home      string
	ConfigDir string
	Binary    string
}

func (i *Installer) Install(shell Shell) (Result, error) {
	script, err := Script(shell, i.Binary)
	if err != nil {
		return Result{}, err
	}
	scriptPath, rcFile := i.paths(shell)
	if err := os.MkdirAll(filepath.Dir(scriptPath), 0o700); err != nil {
		return Result{}, err
	}
	if err := os.WriteFile(scriptPath, []byte(script), 0o644); err != nil {
		return Result{}, err
	}

	updated, err := ensureRCLine(rcFile, i.sourceLine(scriptPath))
	if err != nil {
		return Result{}, err
	}
	return Result{Shell: shell, ScriptPath: scriptPath, RCFile: rcFile, RCUpdated: updated}, nil
}

// Uninstall removes the source line. The script stays in place.
func (i *Installer) Uninstall(shell Shell) (Result, error) {
	scriptPath, rcFile := i.paths(shell)
	updated, err := removeRCLine(rcFile, i.sourceLine(scriptPath))
	if err != nil {
		return Result{}, err
	}
	return Result{Shell: shell, ScriptPath: scriptPath, RCFile: rcFile, RCUpdated: updated}, nil
}

func (i *Installer) Status(shell Shell) Status {
	scriptPath, rcFile := i.paths(shell)
	st := Status{Shell: shell, ScriptPath: scriptPath, RCFile: rcFile}
	if info, err := os.Stat(scriptPath); err == nil && info.Mode().IsRegular() {
		st.ScriptExists = true
	}
	if contents, err := os.ReadFile(rcFile); err == nil {
		st.LinePresent = strings.Contains(string(contents), i.sourceLine(scriptPath))
	}
	return st
}

func (i *Installer) paths(shell Shell) (script, rc string) {
	script = filepath.Join(i.ConfigDir, "shell", string(shell)+".sh")
	switch shell {
	case Zsh:
		rc = filepath.Join(i.Home, ".zshrc")
	default:
		rc = filepath.Join(i.Home, ".bashrc")
	}
	return script, rc
}

func (i *Installer) sourceLine(scriptPath string) string {
	p := scriptPath
	if rel, err := filepath.Rel(i.Home, scriptPath); err == nil && !strings.HasPrefix(rel, "..") {
		p = "$HOME/" + filepath.ToSlash(rel)
	}
	return fmt.Sprintf(`[ -f "%s" ] && source "%s"`, p, p)
}

const rcHeader = "# Added by cmdauditor setup"

func ensureRCLine(path, line string) (bool, error) {
	contents, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, err
	}
	if strings.Contains(string(contents), line) {
		return false, nil
	}

	var b strings.Builder
	b.Write(contents)
	if len(contents) > 0 && !strings.HasSuffix(string(contents), "\n") {
		b.WriteString("\n")
	}
	b.WriteString(rcHeader + "\n" + line + "\n")
	return true, os.WriteFile(path, []byte(b.String()), 0o644)
}

func removeRCLine(path, line string) (bool, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}

	lines := strings.Split(string(contents), "\n")
	filtered := make([]string, 0, len(lines))
	removed := false
	for _, existing := range lines {
		if strings.Contains(existing, line) {
			removed = true
			continue
		}
		if existing == rcHeader {
			continue
		}
		filtered = append(filtered, existing)
	}
	if !removed {
		return false, nil
	}
	return true, os.WriteFile(path, []byte(strings.Join(filtered, "\n")), 0o644)
}
