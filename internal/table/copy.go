package table

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	molerrors "github.com/arkilian/molsystem/internal/errors"
	"github.com/arkilian/molsystem/internal/store"
)

// CopyTo copies the table, schema and rows, into a new table name in dst.
// Row identifiers are preserved, so the copy compares equal to the source
// and later changes to either side show up in Diff. dst may be the source
// store. CopyTo must not be called inside a Scope of dst.
func (t *Table) CopyTo(ctx context.Context, dst *store.Store, name string, opts ...Option) (*Table, error) {
	target, err := New(dst, name, opts...)
	if err != nil {
		return nil, err
	}
	exists, err := target.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, molerrors.NewSchemaError(molerrors.CodeTableExists,
			fmt.Sprintf("table %s already exists in %s", name, dst.Identity())).
			WithDetails(map[string]interface{}{"table": name})
	}

	defs, err := t.Attributes(ctx)
	if err != nil {
		return nil, err
	}
	if len(defs) == 0 {
		return target, nil
	}

	att, err := dst.Attach(ctx, t.store)
	if err != nil {
		return nil, err
	}
	defer func() {
		if detachErr := att.Detach(ctx); detachErr != nil {
			target.logger.Warn("table: detach after copy failed", zap.Error(detachErr))
		}
	}()

	names := make([]string, len(defs))
	hasPK := false
	for i, d := range defs {
		names[i] = d.Name
		hasPK = hasPK || d.PrimaryKey
	}
	cols := quoteAll(names)
	if !hasPK {
		cols = "rowid, " + cols
	}
	source := store.Qualified(att.Alias, t.name)

	err = dst.Atomic(ctx, func(ctx context.Context) error {
		for _, d := range defs {
			if err := target.AddAttributeDef(ctx, d); err != nil {
				return err
			}
		}
		_, err := dst.Exec(ctx,
			"INSERT INTO "+store.Qualified(store.MainAlias, name)+" ("+cols+") SELECT "+cols+" FROM "+source)
		return err
	})
	if err != nil {
		return nil, err
	}

	target.logger.Info("table: copied",
		zap.String("source", t.store.Identity()+"/"+t.name),
		zap.Int("attributes", len(defs)))
	return target, nil
}
