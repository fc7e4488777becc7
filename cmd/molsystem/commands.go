package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/arkilian/molsystem/internal/config"
	"github.com/arkilian/molsystem/internal/storage"
	"github.com/arkilian/molsystem/internal/store"
	"github.com/arkilian/molsystem/internal/table"
	"github.com/arkilian/molsystem/pkg/types"
)

// errDifferent is returned by diff and equal when the tables differ. main
// turns it into exit status 1 without printing it.
var errDifferent = errors.New("tables differ")

// Env carries what every command needs.
type Env struct {
	Config *config.Config
	Logger *zap.Logger
	Out    io.Writer
	Format string

	// Storage overrides the archive backend chosen by Config.
	Storage storage.ObjectStorage
}

func (e *Env) openStore(ctx context.Context, name string) (*store.Store, error) {
	path := e.Config.DatabasePath(name)
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("database %s: %w", path, err)
	}
	return store.Open(ctx, path, e.Config.StoreOptions(e.Logger)...)
}

func (e *Env) openTable(ctx context.Context, s *store.Store, name string, mustExist bool) (*table.Table, error) {
	t, err := table.New(s, name, table.WithSchemaHistory(e.Config.Store.TrackSchemaVersions))
	if err != nil {
		return nil, err
	}
	if mustExist {
		ok, err := t.Exists(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("table %s does not exist in %s", name, s.Identity())
		}
	}
	return t, nil
}

func (e *Env) openArchive(ctx context.Context) (*storage.SnapshotArchive, error) {
	if e.Storage != nil {
		return storage.NewSnapshotArchive(e.Storage, e.Logger), nil
	}

	var backend storage.ObjectStorage
	switch e.Config.Archive.Type {
	case "s3":
		s3cfg := storage.DefaultS3Config()
		if e.Config.Archive.S3.Region != "" {
			s3cfg.Region = e.Config.Archive.S3.Region
		}
		s3cfg.Endpoint = e.Config.Archive.S3.Endpoint
		s3cfg.UsePathStyle = e.Config.Archive.S3.UsePathStyle
		s3, err := storage.NewS3Storage(ctx, e.Config.Archive.S3.Bucket, s3cfg)
		if err != nil {
			return nil, err
		}
		backend = s3
	default:
		local, err := storage.NewLocalStorage(e.Config.Archive.Path)
		if err != nil {
			return nil, err
		}
		backend = local
	}
	return storage.NewSnapshotArchive(backend, e.Logger), nil
}

// emit writes v as JSON or YAML, or calls text for the text format.
func (e *Env) emit(v any, text func(w io.Writer) error) error {
	switch e.Format {
	case "json":
		enc := json.NewEncoder(e.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(e.Out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return text(e.Out)
	}
}

// withTable opens database and table, runs fn and closes the store.
func (e *Env) withTable(database, name string, fn func(ctx context.Context, t *table.Table) error) error {
	ctx := context.Background()
	s, err := e.openStore(ctx, database)
	if err != nil {
		return err
	}
	defer s.Close()

	t, err := e.openTable(ctx, s, name, true)
	if err != nil {
		return err
	}
	return fn(ctx, t)
}

// withPair opens two tables, sharing the store when both live in the same
// database.
func (e *Env) withPair(dbA, tableA, dbB, tableB string, fn func(ctx context.Context, a, b *table.Table) error) error {
	ctx := context.Background()
	sa, err := e.openStore(ctx, dbA)
	if err != nil {
		return err
	}
	defer sa.Close()

	sb := sa
	if e.Config.DatabasePath(dbB) != e.Config.DatabasePath(dbA) {
		sb, err = e.openStore(ctx, dbB)
		if err != nil {
			return err
		}
		defer sb.Close()
	}

	a, err := e.openTable(ctx, sa, tableA, false)
	if err != nil {
		return err
	}
	b, err := e.openTable(ctx, sb, tableB, false)
	if err != nil {
		return err
	}
	return fn(ctx, a, b)
}

// ShowCmd prints a table.
type ShowCmd struct {
	Database string `arg:"" help:"Database file (relative names resolve against data-dir)"`
	Table    string `arg:"" help:"Table name"`
}

func (c *ShowCmd) Run(env *Env) error {
	return env.withTable(c.Database, c.Table, func(ctx context.Context, t *table.Table) error {
		snap, err := t.ToSnapshot(ctx)
		if err != nil {
			return err
		}
		return env.emit(snap, func(w io.Writer) error {
			_, err := fmt.Fprintln(w, snap.String())
			return err
		})
	})
}

// ColumnCmd prints the values of one attribute in row order.
type ColumnCmd struct {
	Database  string `arg:"" help:"Database file"`
	Table     string `arg:"" help:"Table name"`
	Attribute string `arg:"" help:"Attribute name"`
}

func (c *ColumnCmd) Run(env *Env) error {
	return env.withTable(c.Database, c.Table, func(ctx context.Context, t *table.Table) error {
		values, err := t.Get(ctx, c.Attribute)
		if err != nil {
			return err
		}
		return env.emit(values, func(w io.Writer) error {
			for _, v := range values {
				if _, err := fmt.Fprintln(w, types.FormatValue(v)); err != nil {
					return err
				}
			}
			return nil
		})
	})
}

// AttributesCmd describes the attributes of a table.
type AttributesCmd struct {
	Database string `arg:"" help:"Database file"`
	Table    string `arg:"" help:"Table name"`
}

func (c *AttributesCmd) Run(env *Env) error {
	return env.withTable(c.Database, c.Table, func(ctx context.Context, t *table.Table) error {
		defs, err := t.Attributes(ctx)
		if err != nil {
			return err
		}
		return env.emit(defs, func(w io.Writer) error {
			return writeAttributes(w, defs)
		})
	})
}

func writeAttributes(w io.Writer, defs []types.AttributeDef) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tTYPE\tNOT NULL\tDEFAULT\tINDEX\tPRIMARY KEY\tREFERENCES")
	for _, d := range defs {
		def := ""
		if d.Default != nil {
			def = types.FormatValue(d.Default)
		}
		fmt.Fprintf(tw, "%s\t%s\t%t\t%s\t%s\t%t\t%s\n",
			d.Name, d.Type, d.NotNull, def, d.Index, d.PrimaryKey, d.References)
	}
	return tw.Flush()
}

// HistoryCmd lists the recorded schema versions of a table.
type HistoryCmd struct {
	Database string `arg:"" help:"Database file"`
	Table    string `arg:"" help:"Table name"`
}

func (c *HistoryCmd) Run(env *Env) error {
	ctx := context.Background()
	s, err := env.openStore(ctx, c.Database)
	if err != nil {
		return err
	}
	defer s.Close()

	t, err := env.openTable(ctx, s, c.Table, false)
	if err != nil {
		return err
	}
	versions, err := t.SchemaVersions(ctx)
	if err != nil {
		return err
	}
	return env.emit(versions, func(w io.Writer) error {
		if len(versions) == 0 {
			_, err := fmt.Fprintf(w, "no schema versions recorded for %s\n", c.Table)
			return err
		}
		for _, v := range versions {
			names := make([]string, len(v.Attributes))
			for i, d := range v.Attributes {
				names[i] = d.Name
			}
			if _, err := fmt.Fprintf(w, "v%d  %s  [%s]\n", v.Version,
				v.CreatedAt.Format("2006-01-02 15:04:05"), strings.Join(names, ", ")); err != nil {
				return err
			}
		}
		return nil
	})
}

// DiffCmd reports how table A differs from table B.
type DiffCmd struct {
	DatabaseA string `arg:"" name:"db-a" help:"Database of table A"`
	TableA    string `arg:"" name:"table-a" help:"Table A"`
	DatabaseB string `arg:"" name:"db-b" help:"Database of table B"`
	TableB    string `arg:"" name:"table-b" help:"Table B"`
}

func (c *DiffCmd) Run(env *Env) error {
	return env.withPair(c.DatabaseA, c.TableA, c.DatabaseB, c.TableB, func(ctx context.Context, a, b *table.Table) error {
		report, err := a.Diff(ctx, b)
		if err != nil {
			return err
		}
		if err := env.emit(report, func(w io.Writer) error {
			return writeDiff(w, report)
		}); err != nil {
			return err
		}
		if !report.IsEmpty() {
			return errDifferent
		}
		return nil
	})
}

func writeDiff(w io.Writer, r *types.DiffReport) error {
	if r.IsEmpty() {
		_, err := fmt.Fprintln(w, "no differences")
		return err
	}
	if len(r.ColumnsAdded) > 0 {
		fmt.Fprintf(w, "+ columns %s\n", strings.Join(r.ColumnsAdded, ", "))
	}
	if len(r.ColumnsRemoved) > 0 {
		fmt.Fprintf(w, "- columns %s\n", strings.Join(r.ColumnsRemoved, ", "))
	}
	for _, id := range r.ChangedRowIDs() {
		for _, ch := range r.Changed[id] {
			fmt.Fprintf(w, "~ row %d %s: %s -> %s\n", id, ch.Column,
				types.FormatValue(ch.Old), types.FormatValue(ch.New))
		}
	}
	for _, id := range r.AddedRowIDs() {
		fmt.Fprintf(w, "+ row %d %s\n", id, formatRow(r.AddedColumns, r.Added[id]))
	}
	for _, id := range r.RemovedRowIDs() {
		fmt.Fprintf(w, "- row %d %s\n", id, formatRow(r.RemovedColumns, r.Removed[id]))
	}
	return nil
}

func formatRow(columns []string, values []any) string {
	parts := make([]string, len(values))
	for i, v := range values {
		name := "?"
		if i < len(columns) {
			name = columns[i]
		}
		parts[i] = name + "=" + types.FormatValue(v)
	}
	return strings.Join(parts, " ")
}

// EqualCmd compares two tables.
type EqualCmd struct {
	DatabaseA string `arg:"" name:"db-a" help:"Database of table A"`
	TableA    string `arg:"" name:"table-a" help:"Table A"`
	DatabaseB string `arg:"" name:"db-b" help:"Database of table B"`
	TableB    string `arg:"" name:"table-b" help:"Table B"`
}

func (c *EqualCmd) Run(env *Env) error {
	return env.withPair(c.DatabaseA, c.TableA, c.DatabaseB, c.TableB, func(ctx context.Context, a, b *table.Table) error {
		equal, err := a.Equal(ctx, b)
		if err != nil {
			return err
		}
		result := map[string]bool{"equal": equal}
		if err := env.emit(result, func(w io.Writer) error {
			word := "different"
			if equal {
				word = "equal"
			}
			_, err := fmt.Fprintln(w, word)
			return err
		}); err != nil {
			return err
		}
		if !equal {
			return errDifferent
		}
		return nil
	})
}

// ArchiveSaveCmd snapshots a table into the archive.
type ArchiveSaveCmd struct {
	Database string `arg:"" help:"Database file"`
	Table    string `arg:"" help:"Table name"`
}

func (c *ArchiveSaveCmd) Run(env *Env) error {
	return env.withTable(c.Database, c.Table, func(ctx context.Context, t *table.Table) error {
		snap, err := t.ToSnapshot(ctx)
		if err != nil {
			return err
		}
		archive, err := env.openArchive(ctx)
		if err != nil {
			return err
		}
		key, err := archive.Save(ctx, snap)
		if err != nil {
			return err
		}
		return env.emit(map[string]string{"key": key}, func(w io.Writer) error {
			_, err := fmt.Fprintln(w, key)
			return err
		})
	})
}

// ArchiveLoadCmd prints an archived snapshot.
type ArchiveLoadCmd struct {
	Key string `arg:"" help:"Snapshot key as printed by archive save or list"`
}

func (c *ArchiveLoadCmd) Run(env *Env) error {
	ctx := context.Background()
	archive, err := env.openArchive(ctx)
	if err != nil {
		return err
	}
	snap, err := archive.Load(ctx, c.Key)
	if err != nil {
		return err
	}
	return env.emit(snap, func(w io.Writer) error {
		_, err := fmt.Fprintln(w, snap.String())
		return err
	})
}

// ArchiveListCmd lists archived snapshots.
type ArchiveListCmd struct {
	Table string `arg:"" optional:"" help:"Only list snapshots of this table"`
}

func (c *ArchiveListCmd) Run(env *Env) error {
	ctx := context.Background()
	archive, err := env.openArchive(ctx)
	if err != nil {
		return err
	}
	entries, err := archive.List(ctx, c.Table)
	if err != nil {
		return err
	}
	return env.emit(entries, func(w io.Writer) error {
		for _, e := range entries {
			if _, err := fmt.Fprintf(w, "%s  %s  %s\n",
				e.Created.Format("2006-01-02 15:04:05"), e.Table, e.Key); err != nil {
				return err
			}
		}
		return nil
	})
}
