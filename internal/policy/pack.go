package policy

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Pack is the mapping form of a rule file, with optional metadata.
type Pack struct {
	Name              string  `yaml:"name"`
	Description       string  `yaml:"description"`
	Version           string  `yaml:"version"`
	Author            string  `yaml:"author"`
	Rules             RuleSet `yaml:"rules"`
	DangerousPatterns RuleSet `yaml:"dangerous_patterns"`
}

// PackInfo is a summary of a pack for listing.
type PackInfo struct {
	Name      string
	Enabled   bool
	Path      string
	RuleCount int
	Err       error
}

// LoadPacks reads every .yaml file in dir in lexical order and returns
// their rules concatenated. Files whose name starts with "_" are listed
// but not loaded. A missing directory is not an error; a broken pack is.
func LoadPacks(dir string) (RuleSet, []PackInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, nil
		}
		return nil, nil, err
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !isYAMLFile(entry.Name()) {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	var (
		all   RuleSet
		infos []PackInfo
	)
	for _, name := range names {
		path := filepath.Join(dir, name)
		baseName := strings.TrimSuffix(name, filepath.Ext(name))
		info := PackInfo{
			Name:    baseName,
			Enabled: !strings.HasPrefix(baseName, "_"),
			Path:    path,
		}
		if !info.Enabled {
			infos = append(infos, info)
			continue
		}

		rules, err := Load(path)
		if err != nil {
			info.Err = err
			infos = append(infos, info)
			return nil, infos, err
		}
		info.RuleCount = len(rules)
		infos = append(infos, info)
		all = append(all, rules...)
	}
	return all, infos, nil
}

func isYAMLFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}
