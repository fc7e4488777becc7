package store

import (
	"context"
	"errors"

	"go.uber.org/zap"

	molerrors "github.com/arkilian/molsystem/internal/errors"
)

// AttachAlias is the schema name another store is bound under. There is only
// one such slot per store.
const AttachAlias = "other"

// MainAlias is the schema name of the store's own database.
const MainAlias = "main"

// Attachment is an exclusive binding of another store into this store's
// connection. It must be released with Detach.
type Attachment struct {
	// Alias is the schema name to qualify the other store's tables with.
	Alias string

	owner    *Store
	identity string
	noop     bool
	done     bool
}

// Attach binds other into this store's connection under AttachAlias so
// statements can reference tables of both. When other is the same instance
// no binding is made and the returned Attachment's Alias is MainAlias.
//
// Only one attachment may be held at a time; a second Attach before Detach
// fails with ErrAttachInUse. SQLite cannot attach inside a transaction, so
// Attach also fails while a Scope or Atomic unit is open.
func (s *Store) Attach(ctx context.Context, other *Store) (*Attachment, error) {
	if other == nil {
		return nil, molerrors.NewInternalError("store: attach of nil store", nil)
	}
	if s.SameInstance(other) {
		return &Attachment{Alias: MainAlias, owner: s, identity: s.identity, noop: true}, nil
	}

	s.attachMu.Lock()
	defer s.attachMu.Unlock()

	if s.attached != nil {
		return nil, molerrors.ErrAttachInUse.WithDetails(map[string]interface{}{
			"store":    s.identity,
			"attached": s.attached.identity,
		})
	}
	if s.depth > 0 {
		return nil, molerrors.NewStoreError("ATTACH DATABASE",
			errors.New("cannot attach a store while a transaction is open"))
	}

	if _, err := s.Exec(ctx, "ATTACH DATABASE ? AS "+AttachAlias, other.identity); err != nil {
		return nil, err
	}

	a := &Attachment{Alias: AttachAlias, owner: s, identity: other.identity}
	s.attached = a
	s.logger.Debug("store: attached", zap.String("store", s.identity), zap.String("other", other.identity))
	return a, nil
}

// Attached reports whether the attach slot is held.
func (s *Store) Attached() bool {
	s.attachMu.Lock()
	defer s.attachMu.Unlock()
	return s.attached != nil
}

// Detach unbinds the attached store. The slot is freed even if the DETACH
// statement fails. Calling Detach more than once is a no-op.
func (a *Attachment) Detach(ctx context.Context) error {
	if a == nil || a.done {
		return nil
	}
	a.done = true
	if a.noop {
		return nil
	}

	s := a.owner
	_, err := s.Exec(context.WithoutCancel(ctx), "DETACH DATABASE "+AttachAlias)

	s.attachMu.Lock()
	if s.attached == a {
		s.attached = nil
	}
	s.attachMu.Unlock()

	if err != nil {
		s.logger.Warn("store: detach failed", zap.String("other", a.identity), zap.Error(err))
		return err
	}
	s.logger.Debug("store: detached", zap.String("store", s.identity), zap.String("other", a.identity))
	return nil
}
