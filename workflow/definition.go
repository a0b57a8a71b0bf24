package workflow

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration with human-readable YAML/JSON encoding
// ("250ms", "5s") for use in declarative graph definitions.
type Duration time.Duration

// MarshalYAML encodes the duration as a string.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML decodes a duration string.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalJSON encodes the duration as a string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON decodes a duration string.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Definition is a serializable graph definition. Work functions are bound by
// name through a WorkRegistry when the definition is built.
type Definition struct {
	// Name is the graph name.
	Name string `json:"name" yaml:"name"`
	// Description describes the graph.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	// Steps contains all step definitions.
	Steps []StepDefinition `json:"steps" yaml:"steps"`
}

// StepDefinition is a serializable step descriptor.
type StepDefinition struct {
	// Name is the unique step identifier.
	Name string `json:"name" yaml:"name"`
	// Work is the registered work-function name; defaults to Name.
	Work string `json:"work,omitempty" yaml:"work,omitempty"`
	// DependsOn lists dependency step names.
	DependsOn []string `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	// Critical defaults to true when omitted.
	Critical *bool `json:"critical,omitempty" yaml:"critical,omitempty"`
	// Timeout bounds a single attempt ("5s", "250ms").
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	// Retries is the number of additional attempts after a timeout.
	Retries int `json:"retries,omitempty" yaml:"retries,omitempty"`
}

// WorkRegistry provides named work-function lookup for building graphs from
// declarative definitions.
type WorkRegistry struct {
	mu    sync.RWMutex
	works map[string]WorkFunc
}

// NewWorkRegistry creates an empty registry.
func NewWorkRegistry() *WorkRegistry {
	return &WorkRegistry{works: make(map[string]WorkFunc)}
}

// Register adds a work function under a name, replacing any previous entry.
func (r *WorkRegistry) Register(name string, work WorkFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.works[name] = work
}

// Get retrieves a work function by name.
func (r *WorkRegistry) Get(name string) (WorkFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	work, ok := r.works[name]
	return work, ok
}

// List returns sorted names of all registered work functions.
func (r *WorkRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.works))
	for name := range r.works {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks the definition for structural problems that do not need a
// registry: empty names, duplicates, unknown dependencies, negative retries.
// Cycle detection happens when the built steps are handed to the
// orchestrator.
func (d *Definition) Validate() error {
	if len(d.Steps) == 0 {
		return fmt.Errorf("definition %q has no steps", d.Name)
	}

	seen := make(map[string]struct{}, len(d.Steps))
	for i, step := range d.Steps {
		if step.Name == "" {
			return fmt.Errorf("step at index %d: %w", i, ErrEmptyStepName)
		}
		if _, dup := seen[step.Name]; dup {
			return fmt.Errorf("step %q: %w", step.Name, ErrDuplicateStep)
		}
		seen[step.Name] = struct{}{}
		if step.Retries < 0 {
			return fmt.Errorf("step %q: retries must be non-negative, got %d", step.Name, step.Retries)
		}
	}

	for _, step := range d.Steps {
		for _, dep := range step.DependsOn {
			if _, exists := seen[dep]; !exists {
				return fmt.Errorf("step %q depends on %q: %w", step.Name, dep, ErrUnknownDependency)
			}
		}
	}

	return nil
}

// Build resolves every step's work function against the registry and
// returns step descriptors ready for NewDAGOrchestrator.
func (d *Definition) Build(registry *WorkRegistry) ([]Step, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	if registry == nil {
		return nil, fmt.Errorf("definition %q: work registry is nil", d.Name)
	}

	steps := make([]Step, 0, len(d.Steps))
	for _, def := range d.Steps {
		workName := def.Work
		if workName == "" {
			workName = def.Name
		}
		work, ok := registry.Get(workName)
		if !ok {
			return nil, fmt.Errorf("step %q: work function %q is not registered", def.Name, workName)
		}

		critical := true
		if def.Critical != nil {
			critical = *def.Critical
		}

		steps = append(steps, Step{
			Name:      def.Name,
			Work:      work,
			DependsOn: def.DependsOn,
			Critical:  critical,
			Timeout:   time.Duration(def.Timeout),
			Retries:   def.Retries,
		})
	}

	return steps, nil
}

// ToYAML serializes the definition to YAML.
func (d *Definition) ToYAML() (string, error) {
	data, err := yaml.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("failed to marshal to YAML: %w", err)
	}
	return string(data), nil
}

// ToJSON serializes the definition to indented JSON.
func (d *Definition) ToJSON() (string, error) {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal to JSON: %w", err)
	}
	return string(data), nil
}

// DefinitionFromYAML parses and validates a YAML definition.
func DefinitionFromYAML(yamlStr string) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal([]byte(yamlStr), &def); err != nil {
		return nil, fmt.Errorf("failed to unmarshal from YAML: %w", err)
	}
	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	return &def, nil
}

// DefinitionFromJSON parses and validates a JSON definition.
func DefinitionFromJSON(jsonStr string) (*Definition, error) {
	var def Definition
	if err := json.Unmarshal([]byte(jsonStr), &def); err != nil {
		return nil, fmt.Errorf("failed to unmarshal from JSON: %w", err)
	}
	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	return &def, nil
}

// LoadDefinitionFromYAMLFile loads a definition from a YAML file.
func LoadDefinitionFromYAMLFile(filename string) (*Definition, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return DefinitionFromYAML(string(data))
}

// LoadDefinitionFromJSONFile loads a definition from a JSON file.
func LoadDefinitionFromJSONFile(filename string) (*Definition, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return DefinitionFromJSON(string(data))
}
