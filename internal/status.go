package internal

// StatusDecision is the outcome of running a status event through the
// policy state machine. The repository state has already been updated for
// every reported branch by the time a decision is returned.
type StatusDecision struct {
	Rule           StatusRule
	NotifyBranches []string
	AllBranches    []string
}

// EvaluateStatus runs the status state machine: allow-list check, first
// matching rule, policy evaluation per branch. The new status is written
// for every reported branch in all non-ignore cases, before any channel
// target is computed; the whole read-modify-write runs under the
// repository's lock.
func EvaluateStatus(rs *RuleSet, allowedPipelines []string, ev *StatusEvent, state *RepoState) (StatusDecision, bool) {
	if !pipelineAllowed(allowedPipelines, ev.Context) {
		return StatusDecision{}, false
	}
	rule, ok := rs.StatusRuleFor(ev.Context)
	if !ok || rule.Policy == PolicyIgnore {
		return StatusDecision{}, false
	}

	var notify []string
	all := make([]string, 0, len(ev.Branches))
	state.mu.Lock()
	for _, branch := range ev.Branches {
		all = append(all, branch.Name)
		prev, seen := state.lastStatus(ev.Context, branch.Name)
		changed := !seen || prev != ev.State
		state.setStatus(ev.Context, branch.Name, ev.State)
		if rule.Policy == PolicyAllow || changed {
			notify = append(notify, branch.Name)
		}
	}
	state.mu.Unlock()

	if len(notify) == 0 {
		return StatusDecision{}, false
	}
	return StatusDecision{Rule: rule, NotifyBranches: notify, AllBranches: all}, true
}

func pipelineAllowed(allowed []string, pipeline string) bool {
	for _, name := range allowed {
		if name == pipeline {
			return true
		}
	}
	return false
}
