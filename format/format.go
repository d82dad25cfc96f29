// Package format implements the dual representation of a workflow: a
// human-readable procedure document whose fenced blocks are the sole
// machine-readable source of truth. Heading text is cosmetic; reparsing a
// hand-edited document reconstructs every step exclusively from its fenced
// block.
package format

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/blksails/e2e-agents/types"
)

var (
	// ErrEmptyDocument indicates the document has no workflow title.
	ErrEmptyDocument = errors.New("document has no workflow title")
	// ErrNoWorkflows indicates a merge was requested over an empty list.
	ErrNoWorkflows = errors.New("no workflows to merge")
)

// NewWorkflowID mints a workflow identity.
func NewWorkflowID() string {
	return "wf-" + uuid.NewString()
}

// Write renders a workflow as a procedure document. Each step is emitted as
// a heading (for humans) plus a fenced JSON block carrying the complete step
// object (for machines).
func Write(wf types.Workflow) (string, error) {
	var b strings.Builder

	fmt.Fprintf(&b, "# Workflow: %s\n\n", wf.Name)

	generated := wf.GeneratedAt
	if generated.IsZero() {
		generated = time.Now().UTC()
	}
	fmt.Fprintf(&b, "> **Generated**: %s\n", generated.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "> **ID**: %s\n", wf.ID)
	fmt.Fprintf(&b, "> **Description**: %s\n", wf.Description)
	fmt.Fprintf(&b, "> **Complexity**: %s\n", wf.Complexity)
	b.WriteString("\n")

	b.WriteString("## Required Inputs\n\n")
	b.WriteString("| Field | Type | Required | Default |\n")
	b.WriteString("|-------|------|----------|---------|\n")
	for _, in := range wf.RequiredInputs {
		required := "no"
		if in.Required {
			required = "yes"
		}
		def := in.Default
		switch def {
		case "":
			def = "-"
		case "-":
			// Escaped so a literal dash default is distinguishable from the
			// no-default sentinel.
			def = `\-`
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", in.Name, in.Type, required, def)
	}
	b.WriteString("\n")

	b.WriteString("## Workflow Steps\n\n")
	for _, step := range wf.Steps {
		label := step.Description
		if label == "" {
			label = string(step.Action)
		}
		fmt.Fprintf(&b, "### Step %d: %s\n\n", step.Position, label)
		data, err := json.MarshalIndent(step, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to encode step %d: %w", step.Position, err)
		}
		b.WriteString("```json\n")
		b.Write(data)
		b.WriteString("\n```\n\n")
	}

	b.WriteString("## Success Criteria\n\n")
	for i, sc := range wf.SuccessCriteria {
		fmt.Fprintf(&b, "%d. %s\n", i+1, sc.Description)
		fmt.Fprintf(&b, "   Validation: %s\n", sc.Validation)
	}

	return b.String(), nil
}

// Parse reconstructs a workflow from a procedure document. Only the fenced
// blocks are authoritative for steps; heading labels are discarded.
func Parse(doc string) (types.Workflow, error) {
	var wf types.Workflow
	lines := strings.Split(doc, "\n")

	section := ""
	inFence := false
	var fence strings.Builder
	var pendingCriterion *types.SuccessCriterion

	flushCriterion := func() {
		if pendingCriterion != nil {
			wf.SuccessCriteria = append(wf.SuccessCriteria, *pendingCriterion)
			pendingCriterion = nil
		}
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)

		if inFence {
			if strings.HasPrefix(trimmed, "```") {
				inFence = false
				var step types.Step
				if err := json.Unmarshal([]byte(fence.String()), &step); err != nil {
					return types.Workflow{}, fmt.Errorf("failed to decode step block: %w", err)
				}
				wf.Steps = append(wf.Steps, step)
				fence.Reset()
				continue
			}
			fence.WriteString(line)
			fence.WriteString("\n")
			continue
		}

		switch {
		case strings.HasPrefix(trimmed, "# Workflow: "):
			wf.Name = strings.TrimSpace(strings.TrimPrefix(trimmed, "# Workflow: "))

		case strings.HasPrefix(trimmed, "> **"):
			key, value, ok := parseMetadata(trimmed)
			if !ok {
				continue
			}
			switch key {
			case "Generated":
				if ts, err := time.Parse(time.RFC3339, value); err == nil {
					wf.GeneratedAt = ts
				}
			case "ID":
				wf.ID = value
			case "Description":
				wf.Description = value
			case "Complexity":
				wf.Complexity = types.Complexity(value)
			}

		case strings.HasPrefix(trimmed, "## "):
			flushCriterion()
			section = strings.TrimSpace(strings.TrimPrefix(trimmed, "## "))

		case section == "Required Inputs" && strings.HasPrefix(trimmed, "|"):
			if in, ok := parseInputRow(trimmed); ok {
				wf.RequiredInputs = append(wf.RequiredInputs, in)
			}

		case section == "Workflow Steps" && strings.HasPrefix(trimmed, "```"):
			inFence = true
			fence.Reset()

		case section == "Success Criteria":
			if idx := strings.Index(trimmed, ". "); idx > 0 && isNumber(trimmed[:idx]) {
				flushCriterion()
				pendingCriterion = &types.SuccessCriterion{
					Description: strings.TrimSpace(trimmed[idx+2:]),
				}
			} else if strings.HasPrefix(trimmed, "Validation: ") && pendingCriterion != nil {
				pendingCriterion.Validation = strings.TrimSpace(strings.TrimPrefix(trimmed, "Validation: "))
			}
		}
	}
	flushCriterion()

	if wf.Name == "" {
		return types.Workflow{}, ErrEmptyDocument
	}

	sort.SliceStable(wf.Steps, func(i, j int) bool {
		return wf.Steps[i].Position < wf.Steps[j].Position
	})

	return wf, nil
}

// parseMetadata splits a "> **Key**: value" line.
func parseMetadata(line string) (key, value string, ok bool) {
	rest := strings.TrimPrefix(line, "> **")
	idx := strings.Index(rest, "**: ")
	if idx < 0 {
		return "", "", false
	}
	return rest[:idx], strings.TrimSpace(rest[idx+len("**: "):]), true
}

// parseInputRow parses one required-inputs table row, skipping the header
// and separator rows.
func parseInputRow(line string) (types.RequiredInput, bool) {
	cells := strings.Split(strings.Trim(line, "|"), "|")
	if len(cells) != 4 {
		return types.RequiredInput{}, false
	}
	for i := range cells {
		cells[i] = strings.TrimSpace(cells[i])
	}
	if cells[0] == "Field" || strings.HasPrefix(cells[0], "---") {
		return types.RequiredInput{}, false
	}
	in := types.RequiredInput{
		Name:     cells[0],
		Type:     cells[1],
		Required: cells[2] == "yes",
	}
	switch cells[3] {
	case "-":
	case `\-`:
		in.Default = "-"
	default:
		in.Default = cells[3]
	}
	return in, true
}

func isNumber(s string) bool {
	_, err := strconv.Atoi(s)
	return err == nil
}

// Validate reports structural errors in a workflow: missing name, empty step
// list, the first position gap, and per-step missing action or description.
func Validate(wf types.Workflow) []string {
	var problems []string

	if wf.Name == "" {
		problems = append(problems, "workflow name is missing")
	}
	if len(wf.Steps) == 0 {
		problems = append(problems, "workflow has no steps")
	}

	for i, step := range wf.Steps {
		if step.Position != i+1 {
			problems = append(problems, fmt.Sprintf("step numbering gap: expected %d, found %d", i+1, step.Position))
			break
		}
	}

	for _, step := range wf.Steps {
		if step.Action == "" {
			problems = append(problems, fmt.Sprintf("step %d is missing an action", step.Position))
		}
		if step.Description == "" {
			problems = append(problems, fmt.Sprintf("step %d is missing a description", step.Position))
		}
	}

	return problems
}

// Merge combines workflows in input order into one workflow: steps are
// renumbered contiguously, inputs and criteria concatenated, tags
// deduplicated, and complexity forced to the highest tier present.
func Merge(name string, wfs []types.Workflow) (types.Workflow, error) {
	if len(wfs) == 0 {
		return types.Workflow{}, ErrNoWorkflows
	}

	merged := types.Workflow{
		ID:          NewWorkflowID(),
		Name:        name,
		GeneratedAt: time.Now().UTC(),
		Complexity:  types.ComplexitySimple,
	}

	var descriptions []string
	seenTags := make(map[string]bool)
	position := 0

	for _, wf := range wfs {
		if wf.Description != "" {
			descriptions = append(descriptions, wf.Description)
		}
		for _, step := range wf.Steps {
			position++
			s := step.Clone()
			s.Position = position
			merged.Steps = append(merged.Steps, s)
		}
		merged.RequiredInputs = append(merged.RequiredInputs, wf.RequiredInputs...)
		merged.SuccessCriteria = append(merged.SuccessCriteria, wf.SuccessCriteria...)
		for _, tag := range wf.Tags {
			if !seenTags[tag] {
				seenTags[tag] = true
				merged.Tags = append(merged.Tags, tag)
			}
		}
		if wf.Complexity.Rank() > merged.Complexity.Rank() {
			merged.Complexity = wf.Complexity
		}
	}

	merged.Description = strings.Join(descriptions, "; ")
	return merged, nil
}
