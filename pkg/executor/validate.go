package executor

import (
	"fmt"
	"strings"
)

// allowedPrefixes is the whitelist of command binaries the executor will
// run. Anything else, including a prefix match on an unrelated binary name
// (e.g. "catfish" matching "cat"), is rejected.
var allowedPrefixes = []string{
	"pg_dump", "pg_restore", "pg_basebackup", "psql",
	"mysqldump", "mysql",
	"mongodump", "mongorestore",
	"redis-cli",
	"tar", "gzip", "gunzip", "zstd", "lz4",
	"cat", "ls", "mkdir", "rm", "cp", "mv",
	"du", "df", "which", "echo", "test",
	"sh", "bash", // shell entry points; the list is shared by all transports
}

// compressionTools is the subset of allowedPrefixes permitted to appear on
// the right-hand side of a pipe.
var compressionTools = map[string]bool{
	"gzip": true, "gunzip": true, "zstd": true, "lz4": true,
}

// dangerousPatterns are shell metacharacters that would let a command
// escape the allow-list via chaining or substitution.
var dangerousPatterns = []string{";", "&", "\n", "\r", "$(", "`"}

// ValidateCommand exposes the allow-list check Execute runs internally, so
// callers (engine-level tests, dry-run tooling) can confirm a generated
// command clears validation without standing up a real transport.
func ValidateCommand(command string) error {
	return validateCommand(command)
}

// validateCommand enforces the allow-list and metacharacter rejection
// described in SPEC_FULL.md 4.1. It is called as the first step of every
// Executor.Execute implementation.
func validateCommand(command string) error {
	trimmed := strings.TrimSpace(command)
	if trimmed == "" {
		return fmt.Errorf("command cannot be empty")
	}

	fields := strings.Fields(trimmed)
	head := fields[0]
	if !hasAllowedPrefix(head) {
		return fmt.Errorf("command not allowed: %s", head)
	}

	if strings.Contains(trimmed, "|") {
		parts := strings.Split(trimmed, "|")
		if len(parts) > 2 {
			return fmt.Errorf("command contains more than one pipe")
		}
		for _, part := range parts[1:] {
			pipedFields := strings.Fields(strings.TrimSpace(part))
			if len(pipedFields) == 0 {
				return fmt.Errorf("empty piped command")
			}
			piped := pipedFields[0]
			if !compressionTools[piped] {
				return fmt.Errorf("unsafe pipe command: %s", piped)
			}
		}
	}

	for _, pattern := range dangerousPatterns {
		if strings.Contains(trimmed, pattern) {
			return fmt.Errorf("command contains dangerous pattern: %q", pattern)
		}
	}

	return nil
}

func hasAllowedPrefix(head string) bool {
	for _, prefix := range allowedPrefixes {
		if head == prefix {
			return true
		}
	}
	return false
}
