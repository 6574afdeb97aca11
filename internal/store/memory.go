package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/deal-engine/internal/model"
)

// MemoryStore is an in-process Store. Nothing survives a restart.
type MemoryStore struct {
	mu           sync.RWMutex
	reports      map[string]model.AuditReport
	batches      map[string]model.BatchReport
	rejections   map[string]model.RejectedItem
	rules        map[string]model.DomainRule
	fingerprints map[string]time.Time
	buyBoxes     map[string]model.BuyBoxCriteria
}

// NewMemory creates an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		reports:      make(map[string]model.AuditReport),
		batches:      make(map[string]model.BatchReport),
		rejections:   make(map[string]model.RejectedItem),
		rules:        make(map[string]model.DomainRule),
		fingerprints: make(map[string]time.Time),
		buyBoxes:     make(map[string]model.BuyBoxCriteria),
	}
}

func (m *MemoryStore) Migrate(context.Context) error { return nil }
func (m *MemoryStore) Close() error                  { return nil }

func (m *MemoryStore) SaveAuditReport(_ context.Context, report *model.AuditReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveReportLocked(report)
	return nil
}

func (m *MemoryStore) saveReportLocked(report *model.AuditReport) {
	if report.ID == "" {
		report.ID = uuid.New().String()
	}
	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now().UTC()
	}
	m.reports[report.ID] = *report
}

func (m *MemoryStore) GetAuditReport(_ context.Context, id string) (*model.AuditReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.reports[id]
	if !ok {
		return nil, notFound("audit report", id)
	}
	return &r, nil
}

func (m *MemoryStore) ListAuditReports(_ context.Context, filter ReportFilter) ([]model.AuditReport, error) {
	m.mu.RLock()
	var out []model.AuditReport
	for _, r := range m.reports {
		if filter.RunID != "" && r.RunID != filter.RunID {
			continue
		}
		if filter.CandidateID != "" && r.CandidateID != filter.CandidateID {
			continue
		}
		if filter.Pass != nil && r.Pass != *filter.Pass {
			continue
		}
		out = append(out, r)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return page(out, filter.Limit, filter.Offset), nil
}

func (m *MemoryStore) SaveBatchReport(_ context.Context, batch *model.BatchReport) error {
	if batch.RunID == "" {
		return eris.New("memory: batch report has no run id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range batch.Entries {
		if e.Report != nil {
			m.saveReportLocked(e.Report)
		}
	}
	m.batches[batch.RunID] = *batch
	return nil
}

func (m *MemoryStore) GetBatchReport(_ context.Context, runID string) (*model.BatchReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.batches[runID]
	if !ok {
		return nil, notFound("batch report", runID)
	}
	return &b, nil
}

func (m *MemoryStore) CreateRejection(_ context.Context, item *model.RejectedItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	if _, exists := m.rejections[item.ID]; exists {
		return eris.Errorf("memory: rejection %s already exists", item.ID)
	}
	m.rejections[item.ID] = *item
	return nil
}

func (m *MemoryStore) GetRejection(_ context.Context, id string) (*model.RejectedItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	item, ok := m.rejections[id]
	if !ok {
		return nil, notFound("rejection", id)
	}
	return &item, nil
}

func (m *MemoryStore) ListRejections(_ context.Context, filter RejectionFilter) ([]model.RejectedItem, error) {
	m.mu.RLock()
	var out []model.RejectedItem
	for _, item := range m.rejections {
		if filter.Status != "" && item.Status() != filter.Status {
			continue
		}
		if filter.Agent != "" && item.RejectionAgent != filter.Agent {
			continue
		}
		if filter.ReportID != "" && item.ReportID != filter.ReportID {
			continue
		}
		out = append(out, item)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return page(out, filter.Limit, filter.Offset), nil
}

func (m *MemoryStore) MarkOverridden(_ context.Context, id, operator string, at time.Time) (*model.RejectedItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.rejections[id]
	if !ok {
		return nil, notFound("rejection", id)
	}
	if !item.CanOverride || item.Overridden {
		return nil, eris.Wrapf(ErrConflict, "rejection %s", id)
	}
	at = at.UTC()
	item.Overridden = true
	item.OverriddenBy = operator
	item.OverriddenAt = &at
	m.rejections[id] = item
	return &item, nil
}

func (m *MemoryStore) AddDomainRule(_ context.Context, rule *model.DomainRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rules {
		if r.Domain == rule.Domain && r.RuleType == rule.RuleType {
			return eris.Errorf("memory: %s rule for %s already exists", rule.RuleType, rule.Domain)
		}
	}
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now().UTC()
	}
	m.rules[rule.ID] = *rule
	return nil
}

func (m *MemoryStore) RemoveDomainRule(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rules[id]; !ok {
		return notFound("domain rule", id)
	}
	delete(m.rules, id)
	return nil
}

func (m *MemoryStore) ListDomainRules(context.Context) ([]model.DomainRule, error) {
	m.mu.RLock()
	out := make([]model.DomainRule, 0, len(m.rules))
	for _, r := range m.rules {
		out = append(out, r)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Domain != out[j].Domain {
			return out[i].Domain < out[j].Domain
		}
		return out[i].RuleType < out[j].RuleType
	})
	return out, nil
}

func (m *MemoryStore) InsertFingerprint(_ context.Context, fp string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.fingerprints[fp]; ok {
		return false, nil
	}
	m.fingerprints[fp] = time.Now().UTC()
	return true, nil
}

func (m *MemoryStore) HasFingerprint(_ context.Context, fp string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.fingerprints[fp]
	return ok, nil
}

func (m *MemoryStore) PurgeFingerprints(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := int64(len(m.fingerprints))
	m.fingerprints = make(map[string]time.Time)
	return n, nil
}

func (m *MemoryStore) CountFingerprints(context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.fingerprints)), nil
}

func (m *MemoryStore) SaveBuyBox(_ context.Context, box *model.BuyBoxCriteria) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	if box.ID == "" {
		box.ID = uuid.New().String()
	}
	if box.CreatedAt.IsZero() {
		box.CreatedAt = now
	}
	box.UpdatedAt = now
	m.buyBoxes[box.ID] = *box
	return nil
}

func (m *MemoryStore) GetBuyBox(_ context.Context, id string) (*model.BuyBoxCriteria, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.buyBoxes[id]
	if !ok {
		return nil, notFound("buy box", id)
	}
	return &b, nil
}

func (m *MemoryStore) ListActiveBuyBoxes(_ context.Context, investorID string) ([]model.BuyBoxCriteria, error) {
	m.mu.RLock()
	var out []model.BuyBoxCriteria
	for _, b := range m.buyBoxes {
		if !b.IsActive || (investorID != "" && b.InvestorID != investorID) {
			continue
		}
		out = append(out, b)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryStore) DeactivateBuyBox(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.buyBoxes[id]
	if !ok {
		return notFound("buy box", id)
	}
	b.IsActive = false
	b.UpdatedAt = time.Now().UTC()
	m.buyBoxes[id] = b
	return nil
}
