/*
Package catalog is the durable job catalog: a bbolt-backed, bucket-per-entity
store for Servers, Schedules, RetentionPolicies and Backups.

The only contested write path is the Backup pending->in_progress transition.
UpdateBackupStatus implements it as a compare-and-set inside a single bbolt
write transaction, so concurrent workers draining the same PENDING row never
both proceed (see boltcatalog_test.go for the race exercised directly).
*/
package catalog
