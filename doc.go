// Package exegol provides a governed action pipeline for coding agents.
//
// Agents propose actions (git commits, test runs, editor instructions). A
// policy evaluator decides whether each action may run outright or must wait
// for human approval; approved actions are dispatched to runners and every
// step is recorded in a persistent state document and a JSONL diagnostic log.
//
// The root package exposes a Service façade wiring the layers together:
//
//	srv, _ := exegol.New(ctx, exegol.WithConfig(exegol.DefaultConfig(baseDir)))
//	defer srv.Shutdown(ctx)
//	orc, _ := srv.Orchestrator(ctx)
//	report, _ := orc.AuditTests(ctx)
//	_, _ = srv.Resolve(ctx, report.RequestIDs()[0], model.StatusApproved, "")
//
// See cmd/exegol for the command line front end.
package exegol
