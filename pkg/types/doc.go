/*
Package types defines the durable entities of the backup control plane:
Server, Backup, Schedule, RetentionPolicy, and the value types exchanged
between the executor, engine, pipeline, scheduler, reaper and events
packages.

Ownership: a Server owns its Backups and Schedules. A Schedule references a
RetentionPolicy by id, nullable, no cascade. Incremental Backups hold weak
references to their parent via ParentID.
*/
package types
