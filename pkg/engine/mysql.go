package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"

	"github.com/nexusdb/guardian/pkg/executor"
	"github.com/nexusdb/guardian/pkg/types"
)

var mysqlSystemSchemas = map[string]bool{
	"information_schema": true,
	"performance_schema": true,
	"mysql":              true,
	"sys":                true,
}

type mysqlEngine struct {
	exec     executor.Executor
	creds    executor.Credentials
	host     string
	port     int
	database string
}

func (e *mysqlEngine) username() string {
	if e.creds.Username != "" {
		return e.creds.Username
	}
	return "root"
}

func (e *mysqlEngine) CreateBackup(ctx context.Context, kind types.BackupKind, outputPath string) (*types.ExecutionResult, error) {
	if kind != types.BackupFull {
		return nil, fmt.Errorf("only full backups are supported for mysql, got %s", kind)
	}

	command := fmt.Sprintf(
		"mysqldump -h %s -P %d -u %s -p%s --single-transaction --quick --lock-tables=false %s -r %s",
		e.host, e.port, e.username(), e.creds.Password, e.database, outputPath,
	)
	return e.exec.Execute(ctx, command, nil, 0)
}

func (e *mysqlEngine) RestoreBackup(ctx context.Context, backupPath, targetDatabase string, maskRules []types.MaskRule) (*types.ExecutionResult, error) {
	if err := validateMaskRules(maskRules, true); err != nil {
		return nil, err
	}

	dbName := targetDatabase
	if dbName == "" {
		dbName = e.database
	}

	command := fmt.Sprintf(
		"mysql -h %s -P %d -u %s -p%s %s < %s",
		e.host, e.port, e.username(), e.creds.Password, dbName, backupPath,
	)
	result, err := e.exec.Execute(ctx, command, nil, 0)
	if err != nil || !result.Success {
		return result, err
	}

	for _, rule := range maskRules {
		stmt := e.maskStatement(rule)
		maskCmd := fmt.Sprintf(
			`mysql -h %s -P %d -u %s -p%s %s -e "%s"`,
			e.host, e.port, e.username(), e.creds.Password, dbName, stmt,
		)
		maskResult, err := e.exec.Execute(ctx, maskCmd, nil, 0)
		if err != nil {
			return nil, fmt.Errorf("apply mask rule on %s.%s: %w", rule.Table, rule.Column, err)
		}
		if !maskResult.Success {
			return maskResult, nil
		}
	}

	return result, nil
}

func (e *mysqlEngine) maskStatement(r types.MaskRule) string {
	switch r.Strategy {
	case types.MaskNull:
		return fmt.Sprintf("UPDATE %s SET %s = NULL", r.Table, r.Column)
	case types.MaskHash:
		return fmt.Sprintf("UPDATE %s SET %s = SHA2(%s, 256)", r.Table, r.Column, r.Column)
	case types.MaskEmail:
		return fmt.Sprintf("UPDATE %s SET %s = CONCAT(SUBSTRING(SHA2(%s, 256), 1, 8), '@example.com')", r.Table, r.Column, r.Column)
	default:
		return ""
	}
}

func (e *mysqlEngine) ListDatabases(ctx context.Context) ([]string, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/", e.username(), e.creds.Password, e.host, e.port)
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql connection: %w", err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, "SHOW DATABASES")
	if err != nil {
		return nil, fmt.Errorf("list mysql databases: %w", err)
	}
	defer rows.Close()

	var databases []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan database name: %w", err)
		}
		name = strings.TrimSpace(name)
		if name != "" && !mysqlSystemSchemas[name] {
			databases = append(databases, name)
		}
	}
	return databases, rows.Err()
}
