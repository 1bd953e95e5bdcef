// internal/agent/reply.go
package agent

import (
	"fmt"
	"regexp"
	"strings"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/scalpel-agent/api/schemas"
)

// jsonBlockRegex pulls the body out of a fenced ```json block.
var jsonBlockRegex = regexp.MustCompile(fmt.Sprintf("(?s)%s(?:json)?\\s*(.*?)\\s*%s", "```", "```"))

// ExtractJSON finds the JSON object in a model response. It prefers a fenced
// block and falls back to the span from the first '{' to the last '}'.
func ExtractJSON(raw string) (string, bool) {
	if m := jsonBlockRegex.FindStringSubmatch(raw); len(m) > 1 && strings.HasPrefix(strings.TrimSpace(m[1]), "{") {
		return m[1], true
	}
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end <= start {
		return "", false
	}
	return raw[start : end+1], true
}

// ParseReply decodes and validates a model response. expected is the
// namespace of the environment being driven; an empty expected accepts any
// known namespace. Every failure is a *ValidationError.
func ParseReply(raw string, expected schemas.Namespace) (schemas.Reply, error) {
	body, ok := ExtractJSON(raw)
	if !ok {
		return schemas.Reply{}, &ValidationError{Reason: "could not find any JSON in the LLM response", Raw: raw}
	}

	var reply schemas.Reply
	if err := json.Unmarshal([]byte(body), &reply); err != nil {
		return schemas.Reply{}, &ValidationError{Reason: "reply is not a valid reply object", Raw: raw, Err: err}
	}

	reply.Command = strings.TrimSpace(reply.Command)
	switch {
	case reply.Command == "":
		return schemas.Reply{}, &ValidationError{Reason: "reply has no command", Raw: raw}
	case !reply.Namespace.Valid():
		return schemas.Reply{}, &ValidationError{Reason: fmt.Sprintf("unknown namespace %q", reply.Namespace), Raw: raw}
	case expected != "" && reply.Namespace != expected:
		return schemas.Reply{}, &ValidationError{
			Reason: fmt.Sprintf("namespace %q does not match environment %q", reply.Namespace, expected),
			Raw:    raw,
		}
	}
	if reply.Parameters == nil {
		reply.Parameters = map[string]schemas.Value{}
	}
	return reply, nil
}
