package table

import (
	"context"
	"strings"

	"github.com/arkilian/molsystem/internal/store"
	"github.com/arkilian/molsystem/pkg/types"
)

// ToSnapshot reads the whole table into memory: attribute names in
// definition order and one row per stored row, keyed by row identifier.
// A table that does not exist yields an empty snapshot.
func (t *Table) ToSnapshot(ctx context.Context) (*types.Snapshot, error) {
	names, err := t.Names(ctx)
	if err != nil {
		return nil, err
	}
	snap := &types.Snapshot{Table: t.name, Columns: names}
	if len(names) == 0 {
		return snap, nil
	}

	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = store.Quote(n)
	}
	res, err := t.store.Query(ctx,
		"SELECT rowid, "+strings.Join(quoted, ", ")+" FROM "+store.Quote(t.name)+" ORDER BY rowid")
	if err != nil {
		return nil, err
	}

	snap.Rows = make([]types.SnapshotRow, len(res.Rows))
	for i, row := range res.Rows {
		snap.Rows[i] = types.SnapshotRow{RowID: row[0].(int64), Values: row[1:]}
	}
	return snap, nil
}

// Render returns the snapshot of the table formatted as text.
func (t *Table) Render(ctx context.Context) (string, error) {
	snap, err := t.ToSnapshot(ctx)
	if err != nil {
		return "", err
	}
	return snap.String(), nil
}
