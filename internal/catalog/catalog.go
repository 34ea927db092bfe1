// Package catalog loads and validates the workflow catalog. The
// catalog is read once from a directory of YAML documents at startup
// and is immutable afterwards.
package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/scenesmith/scenepilot/pkg/models"
)

// CyclicDependencyError reports a cycle in a workflow's computed
// parameter graph. It is fatal and raised at load time.
type CyclicDependencyError struct {
	WorkflowID string
	Members    []string
}

func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("workflow %s: cyclic depends_on among computed parameters: %s",
		e.WorkflowID, strings.Join(e.Members, ", "))
}

// Catalog is the load-once registry of workflow definitions.
type Catalog struct {
	workflows map[string]*models.Workflow
	order     []string
}

// New builds a catalog from already-constructed definitions. Each
// definition is validated the same way Load validates files.
func New(workflows ...*models.Workflow) (*Catalog, error) {
	c := &Catalog{workflows: make(map[string]*models.Workflow)}
	for _, wf := range workflows {
		if err := Validate(wf); err != nil {
			return nil, err
		}
		if _, dup := c.workflows[wf.ID]; dup {
			return nil, fmt.Errorf("duplicate workflow id %q", wf.ID)
		}
		c.workflows[wf.ID] = wf
		c.order = append(c.order, wf.ID)
	}
	sort.Strings(c.order)
	return c, nil
}

// Load reads every *.yaml / *.yml file under dir and validates each
// workflow, including the acyclicity of computed parameter graphs.
func Load(dir string) (*Catalog, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog directory: %w", err)
	}

	c := &Catalog{workflows: make(map[string]*models.Workflow)}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		wf, err := LoadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		if _, dup := c.workflows[wf.ID]; dup {
			return nil, fmt.Errorf("duplicate workflow id %q in %s", wf.ID, entry.Name())
		}
		c.workflows[wf.ID] = wf
		c.order = append(c.order, wf.ID)
	}

	if len(c.workflows) == 0 {
		return nil, fmt.Errorf("no workflow definitions found in %s", dir)
	}
	sort.Strings(c.order)
	return c, nil
}

// LoadFile reads and validates a single workflow definition.
func LoadFile(path string) (*models.Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow file: %w", err)
	}

	var wf models.Workflow
	if err := yaml.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("failed to parse workflow YAML %s: %w", path, err)
	}

	if err := Validate(&wf); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &wf, nil
}

// Get returns the workflow with the given id.
func (c *Catalog) Get(id string) (*models.Workflow, bool) {
	wf, ok := c.workflows[id]
	return wf, ok
}

// List returns all workflows in stable id order.
func (c *Catalog) List() []*models.Workflow {
	out := make([]*models.Workflow, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.workflows[id])
	}
	return out
}

// Len returns the number of loaded workflows.
func (c *Catalog) Len() int { return len(c.workflows) }

// Validate checks a workflow definition for structural defects. A
// defective definition is refused whole; there is no partial load.
func Validate(wf *models.Workflow) error {
	if wf.ID == "" {
		return fmt.Errorf("workflow is missing an id")
	}
	if len(wf.Steps) == 0 {
		return fmt.Errorf("workflow %s has no steps", wf.ID)
	}

	for name, schema := range wf.Parameters {
		switch schema.Type {
		case "number", "integer", "enum":
		default:
			return fmt.Errorf("workflow %s: parameter %s has unknown type %q", wf.ID, name, schema.Type)
		}
		if schema.Type == "enum" && len(schema.Enum) == 0 {
			return fmt.Errorf("workflow %s: enum parameter %s has no values", wf.ID, name)
		}
		if schema.Computed != "" && len(schema.DependsOn) == 0 {
			return fmt.Errorf("workflow %s: computed parameter %s has no depends_on", wf.ID, name)
		}
		if schema.Computed == "" && len(schema.DependsOn) > 0 {
			return fmt.Errorf("workflow %s: parameter %s lists depends_on without a computed formula", wf.ID, name)
		}
		for _, dep := range schema.DependsOn {
			if _, ok := wf.Parameters[dep]; !ok {
				return fmt.Errorf("workflow %s: parameter %s depends on undeclared %s", wf.ID, name, dep)
			}
		}
		if schema.Min != nil && schema.Max != nil && *schema.Min > *schema.Max {
			return fmt.Errorf("workflow %s: parameter %s has min > max", wf.ID, name)
		}
		if schema.Default != nil {
			if schema.Min != nil && *schema.Default < *schema.Min ||
				schema.Max != nil && *schema.Default > *schema.Max {
				return fmt.Errorf("workflow %s: parameter %s default %g outside declared range", wf.ID, name, *schema.Default)
			}
		}
	}

	if _, err := TopoSortComputed(wf.ID, wf.Parameters); err != nil {
		return err
	}

	for i, step := range wf.Steps {
		if step.Tool == "" {
			return fmt.Errorf("workflow %s: step %d is missing a tool", wf.ID, i)
		}
	}
	return nil
}

// TopoSortComputed orders the computed parameters of a schema so that
// every parameter appears after all computed parameters it depends on.
// Non-computed dependencies are inputs, not nodes. A cycle yields
// CyclicDependencyError, never a partial order.
func TopoSortComputed(workflowID string, params map[string]*models.ParameterSchema) ([]string, error) {
	computed := make(map[string]bool)
	for name, schema := range params {
		if schema.Computed != "" {
			computed[name] = true
		}
	}

	// Kahn's algorithm over computed-to-computed edges.
	indegree := make(map[string]int, len(computed))
	dependents := make(map[string][]string, len(computed))
	for name := range computed {
		indegree[name] = 0
	}
	for name := range computed {
		for _, dep := range params[name].DependsOn {
			if computed[dep] {
				indegree[name]++
				dependents[dep] = append(dependents[dep], name)
			}
		}
	}

	var queue []string
	for name, deg := range indegree {
		if deg == 0 {
			queue = append(queue, name)
		}
	}
	sort.Strings(queue)

	var order []string
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		order = append(order, name)

		next := dependents[name]
		sort.Strings(next)
		for _, dep := range next {
			indegree[dep]--
			if indegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	if len(order) != len(computed) {
		var members []string
		for name := range computed {
			if indegree[name] > 0 {
				members = append(members, name)
			}
		}
		sort.Strings(members)
		return nil, &CyclicDependencyError{WorkflowID: workflowID, Members: members}
	}
	return order, nil
}
