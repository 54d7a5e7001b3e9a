/*
Package scheduler drives Guardian's cron tick loop: the component that
decides *when* a backup runs, as distinct from pkg/pipeline (which decides
*how* the bytes flow once admitted).

# Tick loop

A single ticker fires every 60 seconds. Each tick:

	1. Snapshot all enabled schedules.
	2. For each schedule whose next_run has arrived:
	   a. Insert a PENDING Backup row and advance last_run/next_run,
	      computing the next firing strictly after "now" rather than
	      replaying every firing that elapsed since the last tick.
	   b. Submit the backup to the shared worker pool.
	3. One schedule's failure is logged and skipped; it never aborts the
	   rest of the tick.

# Missed firings

If the process was down across several would-be firings, exactly one
PENDING row is created per schedule per tick and next_run advances past
every intermediate firing. This is a deliberate at-most-one-per-tick
policy, not a replay queue: a schedule that missed ten nightly dumps gets
one backup on the next tick, not ten queued ones.
*/
package scheduler
