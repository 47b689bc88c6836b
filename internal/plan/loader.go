// Package plan loads task plans from YAML files and watches them for
// additions, so new work can be fed to a running orchestrator without a
// restart.
package plan

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/xXKillerNoobYT/copilot-orchestration-extension-sub014/pkg/models"
)

// DefaultPriority is assigned to plan entries that omit a priority.
// Lower numbers are scheduled first.
const DefaultPriority = 5

// Plan is the YAML document shape.
type Plan struct {
	Tasks []Entry `yaml:"tasks"`
}

// Entry is a single task in a plan file.
type Entry struct {
	ID        string   `yaml:"id"`
	Title     string   `yaml:"title"`
	Priority  int      `yaml:"priority"`
	DependsOn []string `yaml:"depends_on"`
}

// Load reads and parses a plan file.
func Load(path string) ([]*models.Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}
	tasks, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("plan %s: %w", path, err)
	}
	return tasks, nil
}

// Parse parses plan YAML into tasks. Every entry needs an id and a
// title; ids must be unique within the file. Dependencies may reference
// entries later in the file or tasks added separately.
func Parse(data []byte) ([]*models.Task, error) {
	var p Plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}

	seen := make(map[string]bool, len(p.Tasks))
	tasks := make([]*models.Task, 0, len(p.Tasks))
	for i, e := range p.Tasks {
		if e.ID == "" {
			return nil, fmt.Errorf("task %d: missing id", i)
		}
		if e.Title == "" {
			return nil, fmt.Errorf("task %s: missing title", e.ID)
		}
		if seen[e.ID] {
			return nil, fmt.Errorf("task %s: duplicate id", e.ID)
		}
		seen[e.ID] = true

		priority := e.Priority
		if priority == 0 {
			priority = DefaultPriority
		}

		tasks = append(tasks, &models.Task{
			ID:        e.ID,
			Title:     e.Title,
			Priority:  priority,
			DependsOn: append([]string(nil), e.DependsOn...),
		})
	}
	return tasks, nil
}
