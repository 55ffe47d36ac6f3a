// Package memory is an in-process implementation of the repository ports.
// It backs tests and single-node development runs. Transactions keep an undo
// log per key; isolation between concurrent transactions on the same audit
// relies on the per-audit lock held by the services.
package memory

import (
	"context"
	"sync"

	"github.com/garyjia/site-audit/internal/application/port"
	"github.com/garyjia/site-audit/internal/domain/entity"
)

type contextKey string

const txKey contextKey = "memory-tx"

type tx struct {
	undo []func()
}

type evalKey struct {
	auditID   int64
	sectionID entity.SectionID
}

// Store holds every entity keyed by id in per-type collections
type Store struct {
	mu sync.Mutex

	seq map[string]int64

	audits      map[int64]*entity.Audit
	auditCodes  map[string]int64
	history     map[int64][]*entity.StageHistory
	evaluations map[evalKey]*entity.SectionEvaluation
	validations map[int64][]*entity.ValidationRecord
	visits      map[int64]*entity.Visit
	findings    map[int64]*entity.Finding
	reports     map[int64]*entity.Report
	documents   map[evalKey][]*port.DocumentMeta
	inventory   map[int64]*port.InventoryResult
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		seq:         make(map[string]int64),
		audits:      make(map[int64]*entity.Audit),
		auditCodes:  make(map[string]int64),
		history:     make(map[int64][]*entity.StageHistory),
		evaluations: make(map[evalKey]*entity.SectionEvaluation),
		validations: make(map[int64][]*entity.ValidationRecord),
		visits:      make(map[int64]*entity.Visit),
		findings:    make(map[int64]*entity.Finding),
		reports:     make(map[int64]*entity.Report),
		documents:   make(map[evalKey][]*port.DocumentMeta),
		inventory:   make(map[int64]*port.InventoryResult),
	}
}

// Repositories returns every port backed by this store
func (s *Store) Repositories() port.Repositories {
	return port.Repositories{
		Audits:      &auditRepo{s},
		History:     &historyRepo{s},
		Evaluations: &evaluationRepo{s},
		Validations: &validationRepo{s},
		Visits:      &visitRepo{s},
		Findings:    &findingRepo{s},
		Reports:     &reportRepo{s},
		Documents:   &documentIndex{s},
		Inventory:   &inventoryIndex{s},
	}
}

// WithTransaction implements port.TransactionManager. Nested calls join the
// outer transaction.
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if _, ok := ctx.Value(txKey).(*tx); ok {
		return fn(ctx)
	}

	t := &tx{}
	txCtx := context.WithValue(ctx, txKey, t)

	defer func() {
		if p := recover(); p != nil {
			s.rollback(t)
			panic(p)
		}
	}()

	if err = fn(txCtx); err != nil {
		s.rollback(t)
		return err
	}
	return nil
}

func (s *Store) rollback(t *tx) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

// record registers an undo step; the caller holds s.mu
func (s *Store) record(ctx context.Context, undo func()) {
	if t, ok := ctx.Value(txKey).(*tx); ok {
		t.undo = append(t.undo, undo)
	}
}

// next returns the next id of a collection; ids are never reused
func (s *Store) next(kind string) int64 {
	s.seq[kind]++
	return s.seq[kind]
}

var _ port.TransactionManager = (*Store)(nil)
