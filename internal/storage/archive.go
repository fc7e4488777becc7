package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	molerrors "github.com/arkilian/molsystem/internal/errors"
	"github.com/arkilian/molsystem/internal/snapshot"
	"github.com/arkilian/molsystem/internal/store"
	"github.com/arkilian/molsystem/pkg/types"
)

// snapshotPrefix is the key prefix under which all snapshots are archived.
const snapshotPrefix = "snapshots/"

// ArchiveEntry describes one archived snapshot.
type ArchiveEntry struct {
	Key     string    `json:"key" yaml:"key"`
	Table   string    `json:"table" yaml:"table"`
	Created time.Time `json:"created" yaml:"created"`
}

// SnapshotArchive stores encoded table snapshots in object storage under
// snapshots/<table>/<id>.msnp. Ids are time-ordered UUIDs, so listing a
// table's keys in order lists its snapshots oldest first.
type SnapshotArchive struct {
	storage ObjectStorage
	logger  *zap.Logger
}

// NewSnapshotArchive creates an archive on top of storage.
func NewSnapshotArchive(storage ObjectStorage, logger *zap.Logger) *SnapshotArchive {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SnapshotArchive{storage: storage, logger: logger}
}

// Save encodes and stores a snapshot and returns its key.
func (a *SnapshotArchive) Save(ctx context.Context, s *types.Snapshot) (string, error) {
	if s == nil {
		return "", molerrors.NewInternalError("archive: nil snapshot", nil)
	}
	if err := store.ValidateIdentifier(s.Table); err != nil {
		return "", err
	}
	data, err := snapshot.Encode(s)
	if err != nil {
		return "", err
	}
	id, err := uuid.NewV7()
	if err != nil {
		return "", molerrors.NewInternalError("archive: failed to generate snapshot id", err)
	}

	key := snapshotPrefix + s.Table + "/" + id.String() + snapshot.Extension
	if err := a.storage.Put(ctx, key, data); err != nil {
		return "", molerrors.NewArchiveError(molerrors.CodeArchiveIO,
			fmt.Sprintf("archive: failed to store %s", key), err)
	}

	a.logger.Info("archive: snapshot saved",
		zap.String("key", key),
		zap.Int("rows", s.Len()),
		zap.Int("bytes", len(data)))
	return key, nil
}

// Load fetches and decodes the snapshot stored under key.
func (a *SnapshotArchive) Load(ctx context.Context, key string) (*types.Snapshot, error) {
	data, err := a.storage.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			return nil, molerrors.NewArchiveError(molerrors.CodeSnapshotNotFound,
				fmt.Sprintf("archive: no snapshot at %s", key), err)
		}
		return nil, molerrors.NewArchiveError(molerrors.CodeArchiveIO,
			fmt.Sprintf("archive: failed to fetch %s", key), err)
	}
	return snapshot.Decode(data)
}

// Latest loads the most recent snapshot of table.
func (a *SnapshotArchive) Latest(ctx context.Context, table string) (*types.Snapshot, error) {
	entries, err := a.List(ctx, table)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, molerrors.NewArchiveError(molerrors.CodeSnapshotNotFound,
			fmt.Sprintf("archive: no snapshots of %s", table), ErrObjectNotFound)
	}
	return a.Load(ctx, entries[len(entries)-1].Key)
}

// List returns the archived snapshots of table, oldest first. An empty
// table name lists every table's snapshots.
func (a *SnapshotArchive) List(ctx context.Context, table string) ([]ArchiveEntry, error) {
	prefix := snapshotPrefix
	if table != "" {
		prefix += table + "/"
	}
	keys, err := a.storage.List(ctx, prefix)
	if err != nil {
		return nil, molerrors.NewArchiveError(molerrors.CodeArchiveIO, "archive: failed to list snapshots", err)
	}

	entries := make([]ArchiveEntry, 0, len(keys))
	for _, key := range keys {
		entry, ok := parseKey(key)
		if !ok {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Delete removes an archived snapshot.
func (a *SnapshotArchive) Delete(ctx context.Context, key string) error {
	if err := a.storage.Delete(ctx, key); err != nil {
		return molerrors.NewArchiveError(molerrors.CodeArchiveIO,
			fmt.Sprintf("archive: failed to delete %s", key), err)
	}
	return nil
}

func parseKey(key string) (ArchiveEntry, bool) {
	rest := strings.TrimPrefix(key, snapshotPrefix)
	table, file := path.Split(rest)
	table = strings.TrimSuffix(table, "/")
	if table == "" || strings.Contains(table, "/") || !strings.HasSuffix(file, snapshot.Extension) {
		return ArchiveEntry{}, false
	}
	id, err := uuid.Parse(strings.TrimSuffix(file, snapshot.Extension))
	if err != nil {
		return ArchiveEntry{}, false
	}
	entry := ArchiveEntry{Key: key, Table: table}
	if id.Version() == 7 {
		sec, nsec := id.Time().UnixTime()
		entry.Created = time.Unix(sec, nsec).UTC()
	}
	return entry, true
}
