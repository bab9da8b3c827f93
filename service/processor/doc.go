// Package processor runs dispatches on a pool of workers fed by a message
// queue, so callers that must stay responsive can submit an action and wait
// for its outcome separately.
package processor
