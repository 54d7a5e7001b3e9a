package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/nexusdb/guardian/pkg/executor"
	"github.com/nexusdb/guardian/pkg/types"
)

type postgresEngine struct {
	exec     executor.Executor
	creds    executor.Credentials
	host     string
	port     int
	database string
}

func (e *postgresEngine) username() string {
	if e.creds.Username != "" {
		return e.creds.Username
	}
	return "postgres"
}

func (e *postgresEngine) CreateBackup(ctx context.Context, kind types.BackupKind, outputPath string) (*types.ExecutionResult, error) {
	var command string
	switch kind {
	case types.BackupFull, types.BackupDifferential:
		command = fmt.Sprintf(
			"pg_dump -h %s -p %d -U %s -d %s -Fc -f %s",
			e.host, e.port, e.username(), e.database, outputPath,
		)
	case types.BackupIncremental:
		command = fmt.Sprintf(
			"pg_basebackup -h %s -p %d -U %s -D %s -Fp -Xs -P",
			e.host, e.port, e.username(), outputPath,
		)
	default:
		return nil, fmt.Errorf("unsupported backup kind for postgresql: %s", kind)
	}

	return e.exec.Execute(ctx, command, e.passwordEnv(), 0)
}

func (e *postgresEngine) RestoreBackup(ctx context.Context, backupPath, targetDatabase string, maskRules []types.MaskRule) (*types.ExecutionResult, error) {
	if err := validateMaskRules(maskRules, true); err != nil {
		return nil, err
	}

	dbName := targetDatabase
	if dbName == "" {
		dbName = e.database
	}

	command := fmt.Sprintf(
		"pg_restore -h %s -p %d -U %s -d %s --clean --if-exists --no-owner --no-acl %s",
		e.host, e.port, e.username(), dbName, backupPath,
	)
	result, err := e.exec.Execute(ctx, command, e.passwordEnv(), 0)
	if err != nil || !result.Success {
		return result, err
	}

	for _, rule := range maskRules {
		stmt := e.maskStatement(rule)
		maskCmd := fmt.Sprintf(
			`psql -h %s -p %d -U %s -d %s -c "%s"`,
			e.host, e.port, e.username(), dbName, stmt,
		)
		maskResult, err := e.exec.Execute(ctx, maskCmd, e.passwordEnv(), 0)
		if err != nil {
			return nil, fmt.Errorf("apply mask rule on %s.%s: %w", rule.Table, rule.Column, err)
		}
		if !maskResult.Success {
			return maskResult, nil
		}
	}

	return result, nil
}

// passwordEnv returns the PGPASSWORD variable set on the executor's
// transport environment, never appended to argv.
func (e *postgresEngine) passwordEnv() map[string]string {
	return map[string]string{"PGPASSWORD": e.creds.Password}
}

func (e *postgresEngine) maskStatement(r types.MaskRule) string {
	switch r.Strategy {
	case types.MaskNull:
		return fmt.Sprintf("UPDATE %s SET %s = NULL", r.Table, r.Column)
	case types.MaskHash:
		return fmt.Sprintf("UPDATE %s SET %s = encode(digest(%s::text, 'sha256'), 'hex')", r.Table, r.Column, r.Column)
	case types.MaskEmail:
		return fmt.Sprintf("UPDATE %s SET %s = concat(substring(encode(digest(%s::text, 'sha256'), 'hex') from 1 for 8), '@example.com')", r.Table, r.Column, r.Column)
	default:
		return ""
	}
}

func (e *postgresEngine) ListDatabases(ctx context.Context) ([]string, error) {
	connString := fmt.Sprintf("postgres://%s:%s@%s:%d/postgres", e.username(), e.creds.Password, e.host, e.port)
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("connect to postgresql %s:%d: %w", e.host, e.port, err)
	}
	defer conn.Close(ctx)

	rows, err := conn.Query(ctx, "SELECT datname FROM pg_database WHERE datistemplate = false")
	if err != nil {
		return nil, fmt.Errorf("list postgresql databases: %w", err)
	}
	defer rows.Close()

	var databases []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan database name: %w", err)
		}
		if name = strings.TrimSpace(name); name != "" {
			databases = append(databases, name)
		}
	}
	return databases, rows.Err()
}
