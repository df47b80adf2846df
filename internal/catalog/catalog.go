package catalog

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

var ErrDuplicateTask = errors.New("duplicate task name")

type Task struct {
	Name           string   `yaml:"name" json:"name"`
	Category       string   `yaml:"category" json:"category"`
	Prompt         string   `yaml:"prompt" json:"prompt"`
	Expected       []string `yaml:"expected_contains" json:"expected_contains"`
	ContextSize    int      `yaml:"context_size" json:"context_size"`
	IdealMaxTokens int      `yaml:"ideal_max_tokens" json:"ideal_max_tokens"`
}

type file struct {
	Tasks []Task `yaml:"tasks"`
}

// Load reads a YAML task catalog of the form `tasks: [...]`.
func Load(path string) ([]Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading tasks %s: %w", path, err)
	}
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing tasks %s: %w", path, err)
	}
	if err := Validate(f.Tasks); err != nil {
		return nil, fmt.Errorf("invalid tasks %s: %w", path, err)
	}
	return f.Tasks, nil
}

func Validate(tasks []Task) error {
	if len(tasks) == 0 {
		return fmt.Errorf("no tasks defined")
	}
	seen := make(map[string]bool, len(tasks))
	for i, t := range tasks {
		if t.Name == "" {
			return fmt.Errorf("task %d: name is required", i)
		}
		if seen[t.Name] {
			return fmt.Errorf("task %q: %w", t.Name, ErrDuplicateTask)
		}
		seen[t.Name] = true
		if t.Category == "" {
			return fmt.Errorf("task %q: category is required", t.Name)
		}
		if t.Prompt == "" {
			return fmt.Errorf("task %q: prompt is required", t.Name)
		}
	}
	return nil
}

// Filter keeps tasks whose name is in names (all when names is empty) and
// whose category matches category (all when empty). Input order is kept.
func Filter(tasks []Task, names []string, category string) []Task {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	var filtered []Task
	for _, t := range tasks {
		if len(want) > 0 && !want[t.Name] {
			continue
		}
		if category != "" && !MatchCategory(t.Category, category) {
			continue
		}
		filtered = append(filtered, t)
	}
	return filtered
}

// MatchCategory reports whether category matches pattern. A trailing "/*"
// or "*" in pattern matches any category with that prefix.
func MatchCategory(category, pattern string) bool {
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(category, strings.TrimSuffix(pattern, "*"))
	}
	return category == pattern
}

func Names(tasks []Task) []string {
	names := make([]string, len(tasks))
	for i, t := range tasks {
		names[i] = t.Name
	}
	return names
}
