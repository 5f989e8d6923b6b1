// Package graph runs state graphs: named nodes that read a typed state and
// return updates to it, connected by static and conditional edges.
//
// Execution proceeds in supersteps. Every node of the current frontier runs in
// parallel against the same state snapshot; their updates are applied in node
// name order once all of them have finished, and the next frontier is derived
// from the edges of the nodes that ran. A node reached from several parallel
// branches in the same step therefore runs once.
//
// With a checkpoint store attached, every superstep is persisted per thread,
// and execution can be paused before selected nodes so a human can inspect
// and amend the state before the thread is resumed.
//
// Run, Resume and ResumeStale execute in the caller's goroutine. Their Begin
// counterparts save the starting checkpoint and return a Pending run, which
// lets a caller acknowledge the thread before executing it elsewhere.
package graph
