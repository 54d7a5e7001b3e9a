// Package crypto groups the on-disk encryption, key derivation and
// compression codecs the pipeline threads a backup's bytes through: dump ->
// compress -> encrypt -> checksum, and the inverse on restore.
package crypto
