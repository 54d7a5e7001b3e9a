/*
Package reaper implements Guardian's retention sweep: the component that
decides which completed backups survive and which get soft-deleted.

Every 3600 seconds, for each Schedule carrying a RetentionPolicy, the
reaper loads that schedule's completed, non-deleted backups ordered
newest-first and computes the union of every active rule:

  - keep_last_n: the first N in the ordering.
  - keep_days: everything created within the last N*24h.
  - keep_daily / keep_weekly / keep_monthly: the newest backup in each of
    the K most recent distinct calendar-day / ISO-week / year-month
    buckets (UTC).

Anything completed but outside that union is soft-deleted: status moves
to deleted and deleted_at is stamped. The underlying blob is never
touched here — blob garbage collection is an external collaborator's
job, driven off the soft-delete flag this package sets.
*/
package reaper
