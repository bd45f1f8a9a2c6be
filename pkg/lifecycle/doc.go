// Package lifecycle runs a long-lived process between a startup and a
// shutdown routine.
//
// A Loop owns every task of the process. Tasks are goroutines with their own
// cancellable context; the goroutine calling Run is the loop goroutine and
// is the only place where signal handlers and Call callbacks execute.
//
// An Orchestrator drives one run of a Loop:
//
//  1. the startup op is scheduled as the "startup" task;
//  2. the loop runs until it is stopped;
//  3. the first termination signal schedules the "shutdown" task, which
//     runs the shutdown op, snapshots every other live task, cancels them,
//     waits for all of them, and finally stops the loop.
//
// Startup and shutdown failures are logged and never returned. Further
// signals after the first are ignored.
//
//	loop := lifecycle.NewLoop()
//	orch := lifecycle.New(loop, lifecycle.WithShutdownTimeout(30*time.Second))
//	if err := orch.Run(app.Start, app.Stop); err != nil {
//		return err
//	}
package lifecycle
