// internal/agent/prompts.go
package agent

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/scalpel-agent/api/schemas"
)

const browserPersona = `You are an agent controlling a web browser. On every turn you are given:

  (1) the objective you are trying to achieve
  (2) the URL of the current page
  (3) the scroll position of the current page as a percentage
  (4) a simplified description of what is visible in the browser window
  (5) the history of your previous commands and their results

The page description is heavily simplified and all styling is stripped.
Elements you can act on carry a numeric id, for example:

  <link id="1">About</link>
  <textinput id="3" type="search">(Search)</textinput>

Text in parentheses was taken from a label or placeholder rather than the
element's own text. Plain text and images have no id and cannot be acted on.
Ids are only valid for the page they were shown on; after navigating or
scrolling, use the ids of the new description.

Do not try to interact with elements you cannot see. Scroll to reveal more
of the page.`

const terminalPersona = `You are an agent controlling a bash terminal. On every turn you are given:

  (1) the objective you are trying to achieve
  (2) the content of the terminal screen
  (3) the history of your previous commands and their results

Run one command at a time. Use pwd to check the current directory and env to
check environment variables. The screen keeps a limited number of lines; pipe
long output through head, tail or less. Output of slow commands may still be
arriving; hold to wait for more of it.`

const replyFormat = `Reply with exactly one JSON object and nothing else:

{"rationale": "<why this command>", "namespace": "%s", "command": "<command name>", "parameters": {"<name>": <value>}}

Parameter values are JSON numbers, strings or booleans. Omit optional
parameters you do not need.`

func personaFor(ns schemas.Namespace) string {
	if ns == schemas.NamespaceTerminal {
		return terminalPersona
	}
	return browserPersona
}

// renderCatalog lists the commands one per line, optional parameters
// suffixed with '?'.
func renderCatalog(actions []ActionInfo) string {
	var b strings.Builder
	for _, a := range actions {
		b.WriteString("  ")
		b.WriteString(a.Name)
		b.WriteByte('(')
		for i, p := range a.Params {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(p.Name)
			if !p.Required {
				b.WriteByte('?')
			}
			b.WriteString(": ")
			b.WriteString(string(p.Type))
		}
		b.WriteByte(')')
		if a.Description != "" {
			b.WriteString(" - ")
			b.WriteString(a.Description)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// SystemPrompt assembles the persona, the command catalog and the reply
// format for an environment.
func SystemPrompt(ns schemas.Namespace, actions []ActionInfo) string {
	var b strings.Builder
	b.WriteString(personaFor(ns))
	b.WriteString("\n\nYou can issue these commands:\n")
	b.WriteString(renderCatalog(actions))
	b.WriteString("\nWhen the objective is achieved, issue complete with your answer.\n\n")
	fmt.Fprintf(&b, replyFormat, ns)
	return b.String()
}

// UserPrompt renders one turn.
func UserPrompt(ns schemas.Namespace, p Prompt) string {
	var b strings.Builder
	b.WriteString("HISTORY:\n------------------\n")
	b.WriteString(p.Memory)
	b.WriteString("\n------------------\n\n")

	if ns == schemas.NamespaceTerminal {
		b.WriteString("TERMINAL SCREEN\n===============================\n")
		b.WriteString(p.Observation.Text)
		b.WriteString("\n===============================\n")
		b.WriteString("CURRENT DIRECTORY: ")
		b.WriteString(p.Observation.Location)
		b.WriteByte('\n')
	} else {
		b.WriteString("CURRENT BROWSER CONTENT:\n------------------\n")
		b.WriteString(p.Observation.Text)
		b.WriteString("\n------------------\n\n")
		b.WriteString("CURRENT URL: ")
		b.WriteString(p.Observation.Location)
		b.WriteByte('\n')
		if y, ok := p.Observation.Position["percentage_y"]; ok {
			fmt.Fprintf(&b, "CURRENT SCROLL POSITION: %.0f%%\n", y*100)
		}
	}

	if r := p.Observation.LastResult; r != nil {
		b.WriteString("LAST RESULT: ")
		b.WriteString(r.String())
		b.WriteByte('\n')
	}
	b.WriteString("OBJECTIVE: ")
	b.WriteString(p.Objective)
	b.WriteString("\nYOUR COMMAND:\n")
	return b.String()
}
