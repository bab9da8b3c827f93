// Package orchestrator drives the governance flows: the single demo commit,
// the batch test audit and the batch instruction queue. Every proposed action
// is evaluated by the policy; allowed actions are dispatched at once and the
// rest become pending permission requests resolved through Resolve.
package orchestrator
