// Package messaging defines the queue contract shared by the async processor
// (dispatch jobs) and the approval service (request and decision events).
package messaging
