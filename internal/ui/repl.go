// Package ui is the interactive shell over the router.
package ui

import (
	"bufio"
	"database/sql"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/scenesmith/scenepilot/internal/catalog"
	"github.com/scenesmith/scenepilot/internal/resolve"
	"github.com/scenesmith/scenepilot/internal/router"
)

// REPL is the interactive goal prompt.
type REPL struct {
	router  *router.Router
	catalog *catalog.Catalog
	db      *sql.DB
	in      *bufio.Reader
	out     io.Writer
	version string
}

func NewREPL(r *router.Router, cat *catalog.Catalog, db *sql.DB, in io.Reader, out io.Writer, version string) *REPL {
	return &REPL{
		router:  r,
		catalog: cat,
		db:      db,
		in:      bufio.NewReader(in),
		out:     out,
		version: version,
	}
}

// Start runs the interactive loop until quit or EOF.
func (repl *REPL) Start() error {
	fmt.Fprintf(repl.out, "ScenePilot %s - goal-directed workflow router\n", repl.version)
	fmt.Fprintln(repl.out, "Type a goal, or 'help' for commands, 'quit' to exit.")
	fmt.Fprintln(repl.out)

	for {
		fmt.Fprint(repl.out, "> ")
		input, err := repl.in.ReadString('\n')
		if err == io.EOF {
			fmt.Fprintln(repl.out)
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if done, err := repl.handleCommand(input); done {
			fmt.Fprintln(repl.out, "Goodbye!")
			return nil
		} else if err != nil {
			fmt.Fprintf(repl.out, "Error: %v\n\n", err)
		}
	}
}

// HandleOnce processes one input non-interactively.
func (repl *REPL) HandleOnce(input string) error {
	_, err := repl.handleCommand(input)
	return err
}

func (repl *REPL) handleCommand(input string) (quit bool, err error) {
	parts := strings.Fields(input)
	command := parts[0]
	args := parts[1:]

	switch command {
	case "help":
		repl.showHelp()
		return false, nil
	case "exit", "quit":
		return true, nil
	case "list":
		return false, repl.listWorkflows()
	case "info":
		if len(args) == 0 {
			return false, fmt.Errorf("usage: info <workflow_id>")
		}
		return false, repl.showWorkflow(args[0])
	case "logs":
		return false, repl.showLogs()
	default:
		// Everything else is a goal.
		return false, repl.handleGoal(input)
	}
}

func (repl *REPL) showHelp() {
	fmt.Fprintln(repl.out, `
Available Commands:
  help                - Show this help message
  list                - List the workflow catalog
  info <workflow_id>  - Show a workflow's parameters and steps
  logs                - Show recent goal resolutions
  exit, quit          - Exit ScenePilot

Anything else is treated as a goal, for example:
  > create a wooden table
  > add a tall bookshelf against the wall`)
	fmt.Fprintln(repl.out)
}

func (repl *REPL) handleGoal(goal string) error {
	res := repl.router.SetGoal(goal, nil)

	if res.Status == router.StatusNeedsInput {
		supplied, err := repl.promptForParameters(res.Unresolved)
		if err != nil {
			return err
		}
		res = repl.router.SetGoal(goal, supplied)
	}

	switch res.Status {
	case router.StatusReady:
		fmt.Fprintf(repl.out, "\nMatched: %s (confidence: %.2f)\n", res.WorkflowID, res.Confidence)
		for name, value := range res.Resolved {
			fmt.Fprintf(repl.out, "  %s = %g (%s)\n", name, value, res.Provenance[name])
		}
		fmt.Fprintf(repl.out, "Dispatched %d action(s)", len(res.Calls))
		if len(res.Rejected) > 0 {
			fmt.Fprintf(repl.out, ", %d rejected", len(res.Rejected))
		}
		fmt.Fprintln(repl.out)
		for _, rej := range res.Rejected {
			fmt.Fprintf(repl.out, "  ✗ %s: %s\n", rej.Action, rej.Reason)
		}
		fmt.Fprintln(repl.out)
		return nil

	case router.StatusNeedsInput:
		// Still incomplete after prompting; the caller gave up on some.
		fmt.Fprintln(repl.out, "Goal left incomplete; nothing was dispatched.")
		return nil

	case router.StatusNoMatch:
		fmt.Fprintln(repl.out, "No workflow matched your goal.")
		fmt.Fprintln(repl.out, "Try rephrasing, or 'list' to browse the catalog.")
		return nil

	default:
		return fmt.Errorf("%s failed at %s: %s", res.Err.Type, res.Err.Stage, res.Err.Details)
	}
}

// promptForParameters asks for each unresolved parameter. An empty
// answer falls back to the default when one exists; otherwise the
// parameter stays unresolved.
func (repl *REPL) promptForParameters(unresolved []resolve.Unresolved) (map[string]float64, error) {
	supplied := make(map[string]float64, len(unresolved))
	fmt.Fprintf(repl.out, "\nI need %d more value(s):\n", len(unresolved))

	for _, u := range unresolved {
		prompt := u.Name
		if u.Description != "" {
			prompt += " (" + u.Description + ")"
		}
		if u.Min != nil && u.Max != nil {
			prompt += fmt.Sprintf(" [%g..%g]", *u.Min, *u.Max)
		}
		fmt.Fprintf(repl.out, "  %s: ", prompt)

		line, err := repl.in.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("failed to read input: %w", err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		value, err := strconv.ParseFloat(line, 64)
		if err != nil {
			fmt.Fprintf(repl.out, "  not a number, skipping %s\n", u.Name)
			continue
		}
		supplied[u.Name] = value
	}
	return supplied, nil
}

func (repl *REPL) listWorkflows() error {
	workflows := repl.catalog.List()
	if len(workflows) == 0 {
		return fmt.Errorf("the catalog is empty")
	}

	fmt.Fprintf(repl.out, "\nWorkflows (%d):\n\n", len(workflows))
	for _, wf := range workflows {
		fmt.Fprintf(repl.out, "• %s\n", wf.ID)
		fmt.Fprintf(repl.out, "  %s\n", wf.Description)
		if len(wf.Tags) > 0 {
			fmt.Fprintf(repl.out, "  Tags: %s\n", strings.Join(wf.Tags, ", "))
		}
		fmt.Fprintln(repl.out)
	}
	return nil
}

func (repl *REPL) showWorkflow(id string) error {
	wf, ok := repl.catalog.Get(id)
	if !ok {
		return fmt.Errorf("unknown workflow: %s", id)
	}

	fmt.Fprintf(repl.out, "\n%s — %s\n", wf.ID, wf.Name)
	fmt.Fprintf(repl.out, "%s\n\n", wf.Description)

	if len(wf.Parameters) > 0 {
		fmt.Fprintln(repl.out, "Parameters:")
		for name, schema := range wf.Parameters {
			line := fmt.Sprintf("  %s (%s)", name, schema.Type)
			if schema.Computed != "" {
				line += " = " + schema.Computed
			} else if schema.Default != nil {
				line += fmt.Sprintf(", default %g", *schema.Default)
			}
			if schema.Min != nil && schema.Max != nil {
				line += fmt.Sprintf(", range %g..%g", *schema.Min, *schema.Max)
			}
			fmt.Fprintln(repl.out, line)
		}
		fmt.Fprintln(repl.out)
	}

	fmt.Fprintf(repl.out, "Steps (%d):\n", len(wf.Steps))
	for i, step := range wf.Steps {
		line := fmt.Sprintf("  %2d. %s", i+1, step.Tool)
		if step.Condition != "" {
			line += " [if " + step.Condition + "]"
		}
		if step.Optional {
			line += " (optional)"
		}
		fmt.Fprintln(repl.out, line)
	}
	fmt.Fprintln(repl.out)
	return nil
}

func (repl *REPL) showLogs() error {
	rows, err := repl.db.Query(`
		SELECT goal, COALESCE(workflow_id, ''), COALESCE(confidence, 0), status, COALESCE(duration_ms, 0)
		FROM logs
		ORDER BY created_at DESC, id DESC
		LIMIT 20
	`)
	if err != nil {
		return fmt.Errorf("failed to query logs: %w", err)
	}
	defer rows.Close()

	fmt.Fprintln(repl.out, "\nRecent goals:")
	for rows.Next() {
		var goal, workflowID, status string
		var confidence float64
		var durationMs int64
		if err := rows.Scan(&goal, &workflowID, &confidence, &status, &durationMs); err != nil {
			continue
		}
		if workflowID == "" {
			workflowID = "-"
		}
		fmt.Fprintf(repl.out, "• %q → %s | %s | %.2f | %dms\n",
			goal, workflowID, status, confidence, durationMs)
	}
	fmt.Fprintln(repl.out)
	return rows.Err()
}
