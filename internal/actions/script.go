package actions

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"jordanella.com/rps-autoplay/internal/input"
)

//go:embed scripts.yaml
var defaultScripts []byte

// Script names the phase controller dispatches
const (
	ScriptDraw         = "draw"
	ScriptLoss         = "loss"
	ScriptWin          = "win"
	ScriptTerminalDraw = "terminal_draw"
	ScriptTerminalWin  = "terminal_win"
	ScriptTerminalLoss = "terminal_loss"
)

// RequiredScripts must be present in every library
var RequiredScripts = []string{
	ScriptDraw, ScriptLoss, ScriptWin,
	ScriptTerminalDraw, ScriptTerminalWin, ScriptTerminalLoss,
}

// ErrScriptNotFound is returned for a script name the library lacks
var ErrScriptNotFound = errors.New("script not found")

// Step waits, then taps a key one or more times
type Step struct {
	Wait  int    `yaml:"wait"`            // milliseconds before the key
	Key   string `yaml:"key"`             // key name, see input.Lookup
	Times int    `yaml:"times,omitempty"` // 0 or 1 taps once
	Gap   int    `yaml:"gap,omitempty"`   // milliseconds between taps, 0 uses the presser default
}

// WaitDuration returns the pre-key delay
func (s Step) WaitDuration() time.Duration {
	return time.Duration(s.Wait) * time.Millisecond
}

// Repeat returns how many taps the step sends
func (s Step) Repeat() int {
	if s.Times < 1 {
		return 1
	}
	return s.Times
}

// Validate checks a step's numbers. Unknown keys are not an error here.
func (s Step) Validate() error {
	if s.Wait < 0 {
		return fmt.Errorf("wait (%d) must not be negative", s.Wait)
	}
	if s.Key == "" {
		return fmt.Errorf("key is required")
	}
	if s.Times < 0 {
		return fmt.Errorf("times (%d) must not be negative", s.Times)
	}
	if s.Gap < 0 {
		return fmt.Errorf("gap (%d) must not be negative", s.Gap)
	}
	return nil
}

// Script is a named key sequence
type Script struct {
	Name        string `yaml:"-"`
	Description string `yaml:"description,omitempty"`
	Steps       []Step `yaml:"steps"`
}

// Duration returns the minimum wall time the script takes, ignoring holds
func (s *Script) Duration() time.Duration {
	var total time.Duration
	for _, st := range s.Steps {
		total += st.WaitDuration()
		if n := st.Repeat(); n > 1 {
			total += time.Duration(n-1) * time.Duration(st.Gap) * time.Millisecond
		}
	}
	return total
}

type scriptFile struct {
	Scripts map[string]*Script `yaml:"scripts"`
}

// Library holds validated scripts by name
type Library struct {
	scripts map[string]*Script

	// Warnings lists steps whose key has no scan code; they are skipped at run time
	Warnings []string
}

// ParseLibrary decodes and validates a scripts document
func ParseLibrary(data []byte) (*Library, error) {
	var file scriptFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal scripts YAML: %w", err)
	}

	lib := &Library{scripts: make(map[string]*Script, len(file.Scripts))}
	for name, script := range file.Scripts {
		if script == nil {
			return nil, fmt.Errorf("script '%s' is empty", name)
		}
		script.Name = name
		for i, step := range script.Steps {
			if err := step.Validate(); err != nil {
				return nil, fmt.Errorf("script '%s' step %d validation failed: %w", name, i+1, err)
			}
			if _, err := input.Lookup(step.Key); err != nil {
				lib.Warnings = append(lib.Warnings, fmt.Sprintf("script '%s' step %d: %v", name, i+1, err))
			}
		}
		lib.scripts[name] = script
	}

	var missing []string
	for _, name := range RequiredScripts {
		if _, ok := lib.scripts[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("scripts missing: %v", missing)
	}
	return lib, nil
}

// DefaultLibrary returns the built-in scripts
func DefaultLibrary() (*Library, error) {
	return ParseLibrary(defaultScripts)
}

// LoadLibrary reads scripts from path, or the built-in scripts when path is empty
func LoadLibrary(path string) (*Library, error) {
	if path == "" {
		return DefaultLibrary()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scripts file %s: %w", path, err)
	}
	return ParseLibrary(data)
}

// Get returns a script by name
func (l *Library) Get(name string) (*Script, error) {
	if s, ok := l.scripts[name]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrScriptNotFound, name)
}

// Names returns the sorted script names
func (l *Library) Names() []string {
	names := make([]string, 0, len(l.scripts))
	for name := range l.scripts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
