package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/garyjia/site-audit/internal/application/port"
	"github.com/garyjia/site-audit/internal/domain/entity"
)

type auditRepo struct{ s *Store }

func (r *auditRepo) Create(ctx context.Context, audit *entity.Audit) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.auditCodes[audit.Code]; taken {
		return fmt.Errorf("%w: audit code %s", entity.ErrConflict, audit.Code)
	}
	audit.ID = s.next("audit")
	s.audits[audit.ID] = cloneAudit(audit)
	s.auditCodes[audit.Code] = audit.ID

	id, code := audit.ID, audit.Code
	s.record(ctx, func() {
		delete(s.audits, id)
		delete(s.auditCodes, code)
	})
	return nil
}

func (r *auditRepo) GetByID(_ context.Context, id int64) (*entity.Audit, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.audits[id]
	if !ok {
		return nil, entity.NewNotFoundError("audit", id)
	}
	return cloneAudit(a), nil
}

func (r *auditRepo) GetByCode(ctx context.Context, code string) (*entity.Audit, error) {
	r.s.mu.Lock()
	id, ok := r.s.auditCodes[code]
	r.s.mu.Unlock()
	if !ok {
		return nil, entity.NewNotFoundError("audit", code)
	}
	return r.GetByID(ctx, id)
}

// List returns the newest audits first
func (r *auditRepo) List(_ context.Context, filter port.AuditFilter) ([]*entity.Audit, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []*entity.Audit
	for _, a := range r.s.audits {
		if filter.Stage != 0 && a.Stage != filter.Stage {
			continue
		}
		if filter.ProviderID != "" && a.ProviderID != filter.ProviderID {
			continue
		}
		if a.Archived && !filter.IncludeArchived {
			continue
		}
		out = append(out, cloneAudit(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })

	if filter.Offset >= len(out) {
		return []*entity.Audit{}, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

// mutate applies fn to the stored audit and bumps its version
func (r *auditRepo) mutate(ctx context.Context, id int64, fn func(a *entity.Audit) error) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.audits[id]
	if !ok {
		return entity.NewNotFoundError("audit", id)
	}
	updated := cloneAudit(stored)
	if err := fn(updated); err != nil {
		return err
	}
	updated.Version++
	updated.UpdatedAt = time.Now().UTC()
	s.audits[id] = updated
	s.record(ctx, func() { s.audits[id] = stored })
	return nil
}

func (r *auditRepo) UpdateStage(ctx context.Context, id, expectedVersion int64, stage entity.Stage, reason string) error {
	return r.mutate(ctx, id, func(a *entity.Audit) error {
		if a.Version != expectedVersion {
			return fmt.Errorf("%w: audit %d version %d, expected %d", entity.ErrConcurrency, id, a.Version, expectedVersion)
		}
		a.Stage = stage
		a.StatusReason = reason
		return nil
	})
}

func (r *auditRepo) MarkNotificationSent(ctx context.Context, id int64, at time.Time) error {
	return r.mutate(ctx, id, func(a *entity.Audit) error {
		a.NotificationSentAt = &at
		return nil
	})
}

func (r *auditRepo) SetArchived(ctx context.Context, id int64, archived bool) error {
	return r.mutate(ctx, id, func(a *entity.Audit) error {
		a.Archived = archived
		return nil
	})
}

type historyRepo struct{ s *Store }

func (r *historyRepo) Create(ctx context.Context, h *entity.StageHistory) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	h.ID = s.next("history")
	prev := s.history[h.AuditID]
	s.history[h.AuditID] = append(slices.Clone(prev), cloneHistory(h))
	auditID := h.AuditID
	s.record(ctx, func() { s.history[auditID] = prev })
	return nil
}

func (r *historyRepo) GetByAuditID(_ context.Context, auditID int64) ([]*entity.StageHistory, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*entity.StageHistory, 0, len(r.s.history[auditID]))
	for _, h := range r.s.history[auditID] {
		out = append(out, cloneHistory(h))
	}
	return out, nil
}

type evaluationRepo struct{ s *Store }

func (r *evaluationRepo) CreateBatch(ctx context.Context, evals []*entity.SectionEvaluation) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range evals {
		key := evalKey{e.AuditID, e.SectionID}
		if existing, ok := s.evaluations[key]; ok {
			e.ID = existing.ID
			continue
		}
		e.ID = s.next("evaluation")
		s.evaluations[key] = cloneEvaluation(e)
		s.record(ctx, func() { delete(s.evaluations, key) })
	}
	return nil
}

func (r *evaluationRepo) Get(_ context.Context, auditID int64, sectionID entity.SectionID) (*entity.SectionEvaluation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.evaluations[evalKey{auditID, sectionID}]
	if !ok {
		return nil, entity.NewNotFoundError("evaluation", fmt.Sprintf("%d/%s", auditID, sectionID))
	}
	return cloneEvaluation(e), nil
}

func (r *evaluationRepo) ListByAudit(_ context.Context, auditID int64) ([]*entity.SectionEvaluation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*entity.SectionEvaluation
	for key, e := range r.s.evaluations {
		if key.auditID == auditID {
			out = append(out, cloneEvaluation(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *evaluationRepo) Update(ctx context.Context, e *entity.SectionEvaluation) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	key := evalKey{e.AuditID, e.SectionID}
	stored, ok := s.evaluations[key]
	if !ok {
		return entity.NewNotFoundError("evaluation", fmt.Sprintf("%d/%s", e.AuditID, e.SectionID))
	}
	if stored.Version != e.Version {
		return fmt.Errorf("%w: evaluation %s version %d, expected %d", entity.ErrConcurrency, e.SectionID, stored.Version, e.Version)
	}
	e.Version++
	s.evaluations[key] = cloneEvaluation(e)
	s.record(ctx, func() { s.evaluations[key] = stored })
	return nil
}

type validationRepo struct{ s *Store }

func (r *validationRepo) Append(ctx context.Context, rec *entity.ValidationRecord) (int64, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	rec.ID = s.next("validation")
	prev := s.validations[rec.AuditID]
	s.validations[rec.AuditID] = append(slices.Clone(prev), cloneValidation(rec))
	auditID := rec.AuditID
	s.record(ctx, func() { s.validations[auditID] = prev })
	return rec.ID, nil
}

func (r *validationRepo) Latest(_ context.Context, auditID int64, filter port.ValidationFilter) (*entity.ValidationRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	records := r.s.validations[auditID]
	for i := len(records) - 1; i >= 0; i-- {
		rec := records[i]
		if filter.Type != "" && rec.Type != filter.Type {
			continue
		}
		if filter.SectionID != "" && rec.SectionID != filter.SectionID {
			continue
		}
		return cloneValidation(rec), nil
	}
	return nil, nil
}

func (r *validationRepo) ListByAudit(_ context.Context, auditID int64) ([]*entity.ValidationRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*entity.ValidationRecord, 0, len(r.s.validations[auditID]))
	for _, rec := range r.s.validations[auditID] {
		out = append(out, cloneValidation(rec))
	}
	return out, nil
}

type visitRepo struct{ s *Store }

func (r *visitRepo) Create(ctx context.Context, v *entity.Visit) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	v.ID = s.next("visit")
	s.visits[v.ID] = cloneVisit(v)
	id := v.ID
	s.record(ctx, func() { delete(s.visits, id) })
	return nil
}

func (r *visitRepo) GetByID(_ context.Context, id int64) (*entity.Visit, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	v, ok := r.s.visits[id]
	if !ok {
		return nil, entity.NewNotFoundError("visit", id)
	}
	return cloneVisit(v), nil
}

func (r *visitRepo) ListByAudit(_ context.Context, auditID int64) ([]*entity.Visit, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*entity.Visit
	for _, v := range r.s.visits {
		if v.AuditID == auditID {
			out = append(out, cloneVisit(v))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *visitRepo) Update(ctx context.Context, v *entity.Visit) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.visits[v.ID]
	if !ok {
		return entity.NewNotFoundError("visit", v.ID)
	}
	if stored.Version != v.Version {
		return fmt.Errorf("%w: visit %d version %d, expected %d", entity.ErrConcurrency, v.ID, stored.Version, v.Version)
	}
	v.Version++
	s.visits[v.ID] = cloneVisit(v)
	id := v.ID
	s.record(ctx, func() { s.visits[id] = stored })
	return nil
}

type findingRepo struct{ s *Store }

func (r *findingRepo) Create(ctx context.Context, f *entity.Finding) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.findings {
		if existing.Code == f.Code {
			return fmt.Errorf("%w: finding code %s", entity.ErrConflict, f.Code)
		}
	}
	f.ID = s.next("finding")
	s.findings[f.ID] = cloneFinding(f)
	id := f.ID
	s.record(ctx, func() { delete(s.findings, id) })
	return nil
}

func (r *findingRepo) GetByID(_ context.Context, id int64) (*entity.Finding, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	f, ok := r.s.findings[id]
	if !ok {
		return nil, entity.NewNotFoundError("finding", id)
	}
	return cloneFinding(f), nil
}

func (r *findingRepo) ListByAudit(_ context.Context, auditID int64) ([]*entity.Finding, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*entity.Finding
	for _, f := range r.s.findings {
		if f.AuditID == auditID {
			out = append(out, cloneFinding(f))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *findingRepo) CountByAudit(_ context.Context, auditID int64) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, f := range r.s.findings {
		if f.AuditID == auditID {
			n++
		}
	}
	return n, nil
}

func (r *findingRepo) Update(ctx context.Context, f *entity.Finding) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.findings[f.ID]
	if !ok {
		return entity.NewNotFoundError("finding", f.ID)
	}
	if stored.Version != f.Version {
		return fmt.Errorf("%w: finding %s version %d, expected %d", entity.ErrConcurrency, f.Code, stored.Version, f.Version)
	}
	f.Version++
	s.findings[f.ID] = cloneFinding(f)
	id := f.ID
	s.record(ctx, func() { s.findings[id] = stored })
	return nil
}

type reportRepo struct{ s *Store }

func (r *reportRepo) Create(ctx context.Context, rep *entity.Report) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.reports[rep.AuditID]; exists {
		return fmt.Errorf("%w: report for audit %d", entity.ErrConflict, rep.AuditID)
	}
	rep.ID = s.next("report")
	s.reports[rep.AuditID] = cloneReport(rep)
	auditID := rep.AuditID
	s.record(ctx, func() { delete(s.reports, auditID) })
	return nil
}

func (r *reportRepo) GetByAuditID(_ context.Context, auditID int64) (*entity.Report, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rep, ok := r.s.reports[auditID]
	if !ok {
		return nil, entity.NewNotFoundError("report", auditID)
	}
	return cloneReport(rep), nil
}

func (r *reportRepo) Update(ctx context.Context, rep *entity.Report) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.reports[rep.AuditID]
	if !ok {
		return entity.NewNotFoundError("report", rep.AuditID)
	}
	s.reports[rep.AuditID] = cloneReport(rep)
	auditID := rep.AuditID
	s.record(ctx, func() { s.reports[auditID] = stored })
	return nil
}

type documentIndex struct{ s *Store }

func (d *documentIndex) Register(ctx context.Context, meta *port.DocumentMeta) error {
	s := d.s
	s.mu.Lock()
	defer s.mu.Unlock()

	key := evalKey{meta.AuditID, meta.SectionID}
	prev := s.documents[key]
	s.documents[key] = append(slices.Clone(prev), cloneDocument(meta))
	s.record(ctx, func() { s.documents[key] = prev })
	return nil
}

func (d *documentIndex) HasDocument(_ context.Context, auditID int64, sectionID entity.SectionID) (bool, error) {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	return len(d.s.documents[evalKey{auditID, sectionID}]) > 0, nil
}

func (d *documentIndex) GetDocumentMeta(_ context.Context, auditID int64, sectionID entity.SectionID) (*port.DocumentMeta, error) {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	docs := d.s.documents[evalKey{auditID, sectionID}]
	if len(docs) == 0 {
		return nil, nil
	}
	return cloneDocument(docs[len(docs)-1]), nil
}

type inventoryIndex struct{ s *Store }

func (i *inventoryIndex) Save(ctx context.Context, result *port.InventoryResult) error {
	s := i.s
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.inventory[result.AuditID]
	s.inventory[result.AuditID] = cloneInventory(result)
	auditID := result.AuditID
	s.record(ctx, func() {
		if had {
			s.inventory[auditID] = prev
		} else {
			delete(s.inventory, auditID)
		}
	})
	return nil
}

func (i *inventoryIndex) GetInventoryResult(_ context.Context, auditID int64) (*port.InventoryResult, error) {
	i.s.mu.Lock()
	defer i.s.mu.Unlock()
	res, ok := i.s.inventory[auditID]
	if !ok {
		return nil, nil
	}
	return cloneInventory(res), nil
}
