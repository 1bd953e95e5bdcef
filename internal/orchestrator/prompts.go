// internal/orchestrator/prompts.go
package orchestrator

import (
	"strings"
)

const plannerPersona = `You are a project manager. Decompose the user's objective into actionable tasks and assign each task to one of these agents:
`

const plannerRules = `
When generating the plan:
* Tasks are completed in order, one at a time.
* Every task names exactly one assignee from the list above.
* Task ids are short and unique, e.g. "1", "2", "2.1".

You may be given the current plan with the results of finished tasks:
* If there is no current plan, generate a brand new plan.
* Do not repeat completed tasks. Only generate the tasks that follow them.
* The tasks you generate replace the current tasks from the first unfinished task on.
* If the most recent task was abandoned, revise the plan using what was learned.
* If the current plan needs no change, or the objective is achieved, return an empty task list.

Reply with a single JSON object and nothing else:
{"tasks": [{"id": "1", "goal": "<short summary>", "description": "<details the assignee needs>", "assignee": "<agent name>"}]}
`

// PlannerSystemPrompt lists the available agents and the reply format.
func PlannerSystemPrompt(agents []AgentSpec) string {
	var b strings.Builder
	b.WriteString(plannerPersona)
	for _, a := range agents {
		b.WriteString("* ")
		b.WriteString(a.Name)
		if a.Description != "" {
			b.WriteString(": ")
			b.WriteString(a.Description)
		}
		b.WriteByte('\n')
	}
	b.WriteString(plannerRules)
	return b.String()
}

// PlannerUserPrompt renders the objective, the current plan and the results
// of finished tasks.
func PlannerUserPrompt(objective string, current *Plan) string {
	var b strings.Builder
	b.WriteString("OBJECTIVE:\n")
	b.WriteString(objective)
	b.WriteString("\n\nCURRENT PLAN:\n")
	if current == nil || len(current.Tasks) == 0 {
		b.WriteString("None\n")
		return b.String()
	}
	b.WriteString(current.String())

	var results []string
	for _, t := range current.Tasks {
		if t.State.Finished() && t.Result != "" {
			results = append(results, "* "+t.ID+": "+t.Result)
		}
	}
	if len(results) > 0 {
		b.WriteString("\nRESULTS:\n")
		b.WriteString(strings.Join(results, "\n"))
		b.WriteByte('\n')
	}
	return b.String()
}
