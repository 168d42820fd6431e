package trigger

import (
	"fmt"
	"regexp"

	"github.com/stackpilot/stackpilot/pkg/config"
)

// Event is a simulated repository event.
type Event struct {
	// Branch set means a branch push
	Branch string

	// Tag set means a tag push and takes precedence over Branch
	Tag string

	// PullRequest marks a pull request event, which never deploys
	PullRequest bool
	PRTitle     string
}

// Outcome reports whether one trigger would fire for an event.
type Outcome struct {
	Trigger     string
	Environment config.Environment
	Fires       bool
	Reason      string
}

// Simulate evaluates an event against the trigger definitions without
// touching the platform. The dev definition inverts its branch match, so the
// semantics here are branch != main, mirroring what Cloud Build computes
// from InvertRegex.
func Simulate(defs []Definition, ev Event) []Outcome {
	outcomes := make([]Outcome, 0, len(defs))
	for _, def := range defs {
		outcomes = append(outcomes, evaluate(def, ev))
	}
	return outcomes
}

func evaluate(def Definition, ev Event) Outcome {
	out := Outcome{Trigger: def.Name, Environment: def.Environment}

	switch {
	case ev.PullRequest:
		out.Reason = "pull requests run checks only and never deploy"

	case ev.Tag != "":
		if def.TagPattern == "" {
			out.Reason = "tag pushes do not match branch triggers"
			return out
		}
		if regexp.MustCompile(def.TagPattern).MatchString(ev.Tag) {
			out.Fires = true
			out.Reason = fmt.Sprintf("tag %q matches %s", ev.Tag, def.TagPattern)
		} else {
			out.Reason = fmt.Sprintf("tag %q does not match %s", ev.Tag, def.TagPattern)
		}

	case ev.Branch != "":
		if def.BranchPattern == "" {
			out.Reason = "branch pushes do not match tag triggers"
			return out
		}
		matched := regexp.MustCompile(def.BranchPattern).MatchString(ev.Branch)
		if def.InvertBranch {
			matched = !matched
		}
		out.Fires = matched
		if matched {
			out.Reason = fmt.Sprintf("branch %q selects the %s environment", ev.Branch, def.Environment)
		} else {
			out.Reason = fmt.Sprintf("branch %q does not select %s", ev.Branch, def.Environment)
		}

	default:
		out.Reason = "empty event"
	}

	return out
}
