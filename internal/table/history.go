package table

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	molerrors "github.com/arkilian/molsystem/internal/errors"
	"github.com/arkilian/molsystem/internal/store"
	"github.com/arkilian/molsystem/pkg/types"
)

// historyTable holds one row per schema version of every tracked table.
const historyTable = store.InternalPrefix + "schema_versions"

const createHistoryTable = `CREATE TABLE IF NOT EXISTS "` + historyTable + `" (
	table_name  TEXT NOT NULL,
	version     INTEGER NOT NULL,
	schema_json TEXT NOT NULL,
	created_at  INTEGER NOT NULL,
	PRIMARY KEY (table_name, version)
)`

// SchemaVersion is one recorded attribute set of a table.
type SchemaVersion struct {
	Version    int                  `json:"version" yaml:"version"`
	Attributes []types.AttributeDef `json:"attributes" yaml:"attributes"`
	CreatedAt  time.Time            `json:"created_at" yaml:"created_at"`
}

// recordSchemaVersion stores the current attribute set as a new version
// when it differs from the latest one. It is a no-op unless the table was
// opened WithSchemaHistory.
func (t *Table) recordSchemaVersion(ctx context.Context) error {
	if !t.history {
		return nil
	}
	defs, err := t.Attributes(ctx)
	if err != nil {
		return err
	}
	schemaJSON, err := json.Marshal(defs)
	if err != nil {
		return molerrors.NewInternalError("table: failed to marshal schema", err)
	}

	if _, err := t.store.Exec(ctx, createHistoryTable); err != nil {
		return err
	}

	res, err := t.store.Query(ctx, `SELECT version, schema_json FROM "`+historyTable+`"
		WHERE table_name = ? ORDER BY version DESC LIMIT 1`, t.name)
	if err != nil {
		return err
	}
	version := 1
	if len(res.Rows) > 0 {
		latest := res.Rows[0]
		if textValue(latest[1]) == string(schemaJSON) {
			return nil
		}
		version = int(latest[0].(int64)) + 1
	}

	_, err = t.store.Exec(ctx,
		`INSERT INTO "`+historyTable+`" (table_name, version, schema_json, created_at) VALUES (?, ?, ?, ?)`,
		t.name, version, string(schemaJSON), time.Now().Unix())
	if err != nil {
		return err
	}
	t.logger.Debug("table: schema version recorded", zap.Int("version", version))
	return nil
}

// SchemaVersions returns the recorded schema versions of the table, oldest
// first. Tables that were never tracked have none.
func (t *Table) SchemaVersions(ctx context.Context) ([]SchemaVersion, error) {
	e, err := t.store.Exists(ctx, historyTable)
	if err != nil || e == store.Absent {
		return nil, err
	}

	res, err := t.store.Query(ctx, `SELECT version, schema_json, created_at FROM "`+historyTable+`"
		WHERE table_name = ? ORDER BY version`, t.name)
	if err != nil {
		return nil, err
	}

	versions := make([]SchemaVersion, 0, len(res.Rows))
	for _, row := range res.Rows {
		var defs []types.AttributeDef
		if err := json.Unmarshal([]byte(textValue(row[1])), &defs); err != nil {
			return nil, molerrors.NewInternalError(
				fmt.Sprintf("table: failed to unmarshal schema version %v", row[0]), err)
		}
		versions = append(versions, SchemaVersion{
			Version:    int(row[0].(int64)),
			Attributes: defs,
			CreatedAt:  time.Unix(row[2].(int64), 0),
		})
	}
	return versions, nil
}

func textValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	}
	return fmt.Sprint(v)
}
