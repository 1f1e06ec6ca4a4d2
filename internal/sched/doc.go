// Package sched runs named, recurring jobs across a fleet of independent
// processes that share one run ledger.
//
// # Overview
//
// Every process computes and fires its own timers, uncoordinated. What makes
// each scheduled occurrence run at most once fleet-wide is the ledger's
// uniqueness constraint on (job name, intended time): whichever process
// inserts the claim row first runs the job; the rest observe the duplicate
// and back off. There is no leader election, no locks, no heartbeats.
//
// # Lifecycle
//
// A Scheduler is an explicit instance owned by the embedding process:
//
//	s := sched.New(cfg, led, log)
//	_ = s.Add(def)
//	s.Start()
//	...
//	s.Stop()
//
// Add while running starts the job's timer immediately. Pause cancels all
// timers but keeps registrations; Start resumes them. Stop cancels and
// clears everything.
//
// # Guarantees and non-guarantees
//
// Admission to run is at-most-once per occurrence. Side effects are not:
// a job that crashes mid-run leaves a claimed, unfinished record behind.
// Within one process a job's occurrences never overlap (the timer waits for
// the in-flight run); across processes the same occurrence may be attempted
// concurrently and the ledger resolves the race.
package sched
