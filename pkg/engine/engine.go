// Package engine implements the per-database-family backup/restore command
// dialects. Each dialect builds a dump/restore command string and runs it
// through an executor.Executor; ListDatabases instead dials the engine
// directly with a native driver, since database enumeration is metadata
// discovery, not the dump/restore path the executor's allow-list guards.
package engine

import (
	"context"
	"fmt"

	"github.com/nexusdb/guardian/pkg/executor"
	"github.com/nexusdb/guardian/pkg/types"
)

// Engine is the uniform dump/restore/list contract every database family
// implements.
type Engine interface {
	// CreateBackup runs the family's dump tool, writing to outputPath.
	CreateBackup(ctx context.Context, kind types.BackupKind, outputPath string) (*types.ExecutionResult, error)
	// RestoreBackup runs the family's restore tool against backupPath, then
	// applies any SQL-expressible mask rules. targetDatabase overrides the
	// engine's configured database when non-empty.
	RestoreBackup(ctx context.Context, backupPath, targetDatabase string, maskRules []types.MaskRule) (*types.ExecutionResult, error)
	// ListDatabases enumerates the non-system databases/schemas visible on
	// the server, dialed directly rather than through the executor.
	ListDatabases(ctx context.Context) ([]string, error)
}

// unsupportedMaskStrategies lists the original implementation's row-level
// masking strategies that require application-layer dump decoding Guardian
// does not perform. A rule naming one of these is a validation-time error.
var unsupportedMaskStrategies = map[types.MaskStrategy]bool{
	"phone":      true,
	"ssn":        true,
	"credit_card": true,
	"name":       true,
	"address":    true,
	"randomize":  true,
}

// validateMaskRules rejects masking rules this engine cannot express in SQL.
func validateMaskRules(rules []types.MaskRule, sqlCapable bool) error {
	if len(rules) == 0 {
		return nil
	}
	if !sqlCapable {
		return fmt.Errorf("masking rules are not supported for this database family: dump format is not table/column shaped")
	}
	for _, r := range rules {
		if unsupportedMaskStrategies[r.Strategy] {
			return fmt.Errorf("mask strategy %q requires row-level decoding Guardian does not perform", r.Strategy)
		}
		switch r.Strategy {
		case types.MaskNull, types.MaskHash, types.MaskEmail:
		default:
			return fmt.Errorf("unknown mask strategy %q", r.Strategy)
		}
	}
	return nil
}

// NewEngine builds the dialect matching family.
func NewEngine(family types.DatabaseFamily, exec executor.Executor, creds executor.Credentials, host string, port int, database string) (Engine, error) {
	switch family {
	case types.FamilyPostgreSQL:
		return &postgresEngine{exec: exec, creds: creds, host: host, port: port, database: database}, nil
	case types.FamilyMySQL:
		return &mysqlEngine{exec: exec, creds: creds, host: host, port: port, database: database}, nil
	case types.FamilyMongoDB:
		return &mongoEngine{exec: exec, creds: creds, host: host, port: port, database: database}, nil
	case types.FamilyRedis:
		return &redisEngine{exec: exec, creds: creds, host: host, port: port}, nil
	default:
		return nil, fmt.Errorf("unsupported database family: %s", family)
	}
}
