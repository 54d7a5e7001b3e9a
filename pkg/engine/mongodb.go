package engine

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/nexusdb/guardian/pkg/executor"
	"github.com/nexusdb/guardian/pkg/types"
)

type mongoEngine struct {
	exec     executor.Executor
	creds    executor.Credentials
	host     string
	port     int
	database string
}

func (e *mongoEngine) authArgs() string {
	if e.creds.Username != "" && e.creds.Password != "" {
		return fmt.Sprintf("-u %s -p %s --authenticationDatabase admin", e.creds.Username, e.creds.Password)
	}
	return ""
}

func (e *mongoEngine) CreateBackup(ctx context.Context, kind types.BackupKind, outputPath string) (*types.ExecutionResult, error) {
	if kind != types.BackupFull {
		return nil, fmt.Errorf("only full backups are supported for mongodb, got %s", kind)
	}

	command := fmt.Sprintf(
		"mongodump --host %s --port %d %s --db %s --out %s",
		e.host, e.port, e.authArgs(), e.database, outputPath,
	)
	return e.exec.Execute(ctx, command, nil, 0)
}

func (e *mongoEngine) RestoreBackup(ctx context.Context, backupPath, targetDatabase string, maskRules []types.MaskRule) (*types.ExecutionResult, error) {
	if err := validateMaskRules(maskRules, false); err != nil {
		return nil, err
	}

	dbName := targetDatabase
	if dbName == "" {
		dbName = e.database
	}

	command := fmt.Sprintf(
		"mongorestore --host %s --port %d %s --db %s --drop %s/%s",
		e.host, e.port, e.authArgs(), dbName, backupPath, e.database,
	)
	return e.exec.Execute(ctx, command, nil, 0)
}

func (e *mongoEngine) ListDatabases(ctx context.Context) ([]string, error) {
	uri := fmt.Sprintf("mongodb://%s:%d", e.host, e.port)
	if e.creds.Username != "" {
		uri = fmt.Sprintf("mongodb://%s:%s@%s:%d", e.creds.Username, e.creds.Password, e.host, e.port)
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb %s:%d: %w", e.host, e.port, err)
	}
	defer client.Disconnect(ctx)

	result := client.Database("admin").RunCommand(ctx, bson.D{{Key: "listDatabases", Value: 1}})
	var decoded struct {
		Databases []struct {
			Name string `bson:"name"`
		} `bson:"databases"`
	}
	if err := result.Decode(&decoded); err != nil {
		return nil, fmt.Errorf("list mongodb databases: %w", err)
	}

	databases := make([]string, 0, len(decoded.Databases))
	for _, d := range decoded.Databases {
		databases = append(databases, d.Name)
	}
	return databases, nil
}
