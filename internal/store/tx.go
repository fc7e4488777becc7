package store

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Atomic runs fn inside a savepoint. The savepoint is released when fn
// succeeds and rolled back when fn fails or panics, so nothing fn wrote is
// visible afterwards unless all of it is. Atomic nests inside Scope and
// inside other Atomic calls; at top level the savepoint is its own
// transaction.
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	name := savepointName()
	if _, err := s.Exec(ctx, "SAVEPOINT "+name); err != nil {
		return err
	}
	s.depth++

	defer func() {
		s.depth--
		cleanup := context.WithoutCancel(ctx)
		if p := recover(); p != nil {
			s.rollbackTo(cleanup, name)
			panic(p)
		}
		if err != nil {
			s.rollbackTo(cleanup, name)
			return
		}
		if _, relErr := s.Exec(cleanup, "RELEASE "+name); relErr != nil {
			s.rollbackTo(cleanup, name)
			err = relErr
		}
	}()

	return fn(ctx)
}

// ExecScript executes statements in order as a single atomic unit. A failure
// in any statement leaves the database as it was before the script.
func (s *Store) ExecScript(ctx context.Context, stmts []string) error {
	return s.Atomic(ctx, func(ctx context.Context) error {
		for _, stmt := range stmts {
			if _, err := s.Exec(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	})
}

// Scope runs fn inside a transaction: BEGIN/COMMIT at the outermost level,
// a savepoint when nested. The transaction is rolled back when fn returns an
// error or panics; the panic is re-raised after the rollback.
func (s *Store) Scope(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if s.depth > 0 {
		return s.Atomic(ctx, fn)
	}

	if _, err := s.Exec(ctx, "BEGIN"); err != nil {
		return err
	}
	s.depth++

	defer func() {
		s.depth--
		cleanup := context.WithoutCancel(ctx)
		if p := recover(); p != nil {
			s.rollback(cleanup)
			panic(p)
		}
		if err != nil {
			s.rollback(cleanup)
			return
		}
		if _, commitErr := s.Exec(cleanup, "COMMIT"); commitErr != nil {
			s.rollback(cleanup)
			err = commitErr
		}
	}()

	return fn(ctx)
}

func (s *Store) rollback(ctx context.Context) {
	if _, err := s.Exec(ctx, "ROLLBACK"); err != nil {
		s.logger.Warn("store: rollback failed", zap.Error(err))
	}
}

func (s *Store) rollbackTo(ctx context.Context, name string) {
	if _, err := s.Exec(ctx, "ROLLBACK TO "+name); err != nil {
		s.logger.Warn("store: rollback to savepoint failed", zap.String("savepoint", name), zap.Error(err))
	}
	if _, err := s.Exec(ctx, "RELEASE "+name); err != nil {
		s.logger.Warn("store: release after rollback failed", zap.String("savepoint", name), zap.Error(err))
	}
}

func savepointName() string {
	return "sp_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
