package models

// Workflow is a complete workflow definition: a parameter schema plus
// an ordered list of templated action calls. Definitions are loaded
// once at startup and never mutated afterwards.
type Workflow struct {
	ID          string                      `yaml:"id" json:"id"`
	Name        string                      `yaml:"name" json:"name"`
	Description string                      `yaml:"description" json:"description"`
	Tags        []string                    `yaml:"tags,omitempty" json:"tags,omitempty"`
	Scene       SceneHints                  `yaml:"scene,omitempty" json:"scene,omitempty"`
	Parameters  map[string]*ParameterSchema `yaml:"parameters,omitempty" json:"parameters,omitempty"`
	Steps       []*Step                     `yaml:"steps" json:"steps"`
}

// SceneHints describe the scene shape a workflow is authored for. The
// structural scorer compares them against the current snapshot.
type SceneHints struct {
	Mode              string `yaml:"mode,omitempty" json:"mode,omitempty"` // "object", "edit", "" = any
	RequiresSelection bool   `yaml:"requires_selection,omitempty" json:"requires_selection,omitempty"`
	Shape             string `yaml:"shape,omitempty" json:"shape,omitempty"` // "flat", "tall", "cubic", "" = any
}

// ParameterSchema declares one workflow parameter.
//
// A parameter with a Computed formula must list its inputs in
// DependsOn; the resolver evaluates computed parameters in topological
// order of that graph.
type ParameterSchema struct {
	Type        string    `yaml:"type" json:"type"` // "number", "integer", "enum"
	Description string    `yaml:"description,omitempty" json:"description,omitempty"`
	Min         *float64  `yaml:"min,omitempty" json:"min,omitempty"`
	Max         *float64  `yaml:"max,omitempty" json:"max,omitempty"`
	Enum        []float64 `yaml:"enum,omitempty" json:"enum,omitempty"`
	Default     *float64  `yaml:"default,omitempty" json:"default,omitempty"`
	Computed    string    `yaml:"computed,omitempty" json:"computed,omitempty"`
	DependsOn   []string  `yaml:"depends_on,omitempty" json:"depends_on,omitempty"`
	Keywords    []string  `yaml:"keywords,omitempty" json:"keywords,omitempty"`
}

// Step is one templated action call within a workflow.
//
// Param values may be literals, "$name" references into the merged
// parameter/scene context, or "$CALCULATE(expr)" formulas.
//
// Optional marks a step as a non-essential feature that adaptation may
// filter out on a medium-confidence match. DisableAdaptation forces an
// optional step to be treated as core so that its inclusion is governed
// purely by Condition; the two filters are not interchangeable and a
// step guarded by a precise condition must never also be subject to
// approximate relevance filtering.
type Step struct {
	Tool              string         `yaml:"tool" json:"tool"`
	Params            map[string]any `yaml:"params,omitempty" json:"params,omitempty"`
	Description       string         `yaml:"description,omitempty" json:"description,omitempty"`
	Condition         string         `yaml:"condition,omitempty" json:"condition,omitempty"`
	Optional          bool           `yaml:"optional,omitempty" json:"optional,omitempty"`
	DisableAdaptation bool           `yaml:"disable_adaptation,omitempty" json:"disable_adaptation,omitempty"`
	Tags              []string       `yaml:"tags,omitempty" json:"tags,omitempty"`
}

// Core reports whether the step survives adaptation filtering
// unconditionally.
func (s *Step) Core() bool {
	return !s.Optional || s.DisableAdaptation
}

// ComputedParams returns the names of parameters with a formula.
func (w *Workflow) ComputedParams() []string {
	var names []string
	for name, schema := range w.Parameters {
		if schema.Computed != "" {
			names = append(names, name)
		}
	}
	return names
}
