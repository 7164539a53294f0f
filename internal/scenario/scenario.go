// Package scenario loads and runs declarative playground workloads: YAML
// files describing isolation domains and a task tree (structured and
// detached spawns, simulated work, failures, and cancellations) executed
// against the runtime. Scenarios are how the CLI demonstrates and exercises
// the runtime end to end.
package scenario

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration for YAML unmarshaling ("250ms", "2s").
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = Duration(dur)
	return nil
}

// TaskSpec describes one task in the scenario tree.
type TaskSpec struct {
	Name          string     `yaml:"name"`
	Domain        string     `yaml:"domain,omitempty"`
	Detached      bool       `yaml:"detached,omitempty"`
	Sleep         Duration   `yaml:"sleep,omitempty"`
	Fail          string     `yaml:"fail,omitempty"` // fail with this message after the sleep
	ObserveCancel bool       `yaml:"observe_cancel,omitempty"`
	CancelAfter   Duration   `yaml:"cancel_after,omitempty"`
	Children      []TaskSpec `yaml:"children,omitempty"`
}

// Scenario is one workload file.
type Scenario struct {
	Name    string     `yaml:"name"`
	Domains []string   `yaml:"domains,omitempty"`
	Tasks   []TaskSpec `yaml:"tasks"`
}

// Parse decodes and validates a scenario document.
func Parse(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("unmarshal scenario: %w", err)
	}
	if err := sc.validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// Load reads a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	sc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return sc, nil
}

// Discover returns scenario files matching a doublestar pattern
// (e.g. "scenarios/**/*.yaml"), sorted.
func Discover(pattern string) ([]string, error) {
	paths, err := doublestar.FilepathGlob(pattern)
	if err != nil {
		return nil, fmt.Errorf("glob %q: %w", pattern, err)
	}
	sort.Strings(paths)
	return paths, nil
}

func (sc *Scenario) validate() error {
	if sc.Name == "" {
		return fmt.Errorf("scenario needs a name")
	}
	if len(sc.Tasks) == 0 {
		return fmt.Errorf("scenario %s has no tasks", sc.Name)
	}
	seen := make(map[string]bool)
	var walk func(specs []TaskSpec) error
	walk = func(specs []TaskSpec) error {
		for _, spec := range specs {
			if spec.Name == "" {
				return fmt.Errorf("scenario %s: task without a name", sc.Name)
			}
			if seen[spec.Name] {
				return fmt.Errorf("scenario %s: duplicate task name %q", sc.Name, spec.Name)
			}
			seen[spec.Name] = true
			if err := walk(spec.Children); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(sc.Tasks)
}
