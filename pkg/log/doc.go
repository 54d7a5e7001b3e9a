// Package log provides structured, zerolog-backed logging with
// component-scoped child loggers (WithComponent, WithServerID, WithBackupID,
// WithScheduleID) for correlating log lines across the pipeline, scheduler,
// reaper and prober.
package log
