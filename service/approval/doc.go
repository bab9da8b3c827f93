// Package approval implements the human-in-the-loop layer: actions the policy
// holds back become pending permission requests, and an operator (or an
// AutoDecider) approves or denies them. Approving a request runs its stored
// action exactly once.
package approval
