// Package policy decides whether an agent may execute a proposed action
// directly or whether the action has to be held for human approval.
//
// The decision is driven by a rule table keyed by action type and by the
// permission strings on the agent profile.  An optional declarative overlay
// (Policy) can only tighten the result: it never drops an action and never
// lifts an approval requirement.
package policy
