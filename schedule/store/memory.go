// Package store provides in-memory implementations of the schedule stores
// for testing and development.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fitdesk/gym-engine/schedule"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory holds the shared state behind the three store views returned by
// Stores(). All views share one mutex, which makes WithTx's snapshot
// rollback coherent.
type Memory struct {
	mu          sync.RWMutex
	records     map[schedule.RecordID]schedule.ClassRecord
	ledgers     map[schedule.LedgerID]schedule.MembershipLedger
	submissions map[subKey]schedule.MonthlySubmission
}

type subKey struct {
	StaffID   schedule.StaffID
	YearMonth schedule.YearMonth
}

func NewMemory() *Memory {
	return &Memory{
		records:     make(map[schedule.RecordID]schedule.ClassRecord),
		ledgers:     make(map[schedule.LedgerID]schedule.MembershipLedger),
		submissions: make(map[subKey]schedule.MonthlySubmission),
	}
}

// Stores returns the bundle view the engine consumes.
func (m *Memory) Stores() schedule.Stores {
	return schedule.Stores{
		Records:     &memoryRecords{m},
		Ledgers:     &memoryLedgers{m},
		Submissions: &memorySubmissions{m},
	}
}

// =============================================================================
// CLASS RECORDS
// =============================================================================

type memoryRecords struct{ *Memory }

func (m *memoryRecords) Get(_ context.Context, id schedule.RecordID) (*schedule.ClassRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *memoryRecords) ListByStaff(_ context.Context, staffID schedule.StaffID) ([]schedule.ClassRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []schedule.ClassRecord
	for _, rec := range m.records {
		if rec.StaffID == staffID {
			result = append(result, rec)
		}
	}
	sortRecords(result)
	return result, nil
}

func (m *memoryRecords) ListByStaffInRange(_ context.Context, staffID schedule.StaffID, from, to time.Time) ([]schedule.ClassRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []schedule.ClassRecord
	for _, rec := range m.records {
		if rec.StaffID != staffID {
			continue
		}
		if rec.StartTime.Before(from) || !rec.StartTime.Before(to) {
			continue
		}
		result = append(result, rec)
	}
	sortRecords(result)
	return result, nil
}

func (m *memoryRecords) Save(_ context.Context, rec *schedule.ClassRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.ID] = *rec
	return nil
}

func (m *memoryRecords) Delete(_ context.Context, id schedule.RecordID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[id]; !ok {
		return schedule.ErrRecordNotFound
	}
	delete(m.records, id)
	return nil
}

func sortRecords(recs []schedule.ClassRecord) {
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].StartTime.Equal(recs[j].StartTime) {
			return recs[i].StartTime.Before(recs[j].StartTime)
		}
		return recs[i].ID < recs[j].ID
	})
}

// =============================================================================
// MEMBERSHIP LEDGERS
// =============================================================================

type memoryLedgers struct{ *Memory }

func (m *memoryLedgers) ActiveForMember(_ context.Context, memberID schedule.MemberID) (*schedule.MembershipLedger, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var current *schedule.MembershipLedger
	for id := range m.ledgers {
		led := m.ledgers[id]
		if led.MemberID != memberID || led.Status != schedule.LedgerActive {
			continue
		}
		if current == nil || led.CreatedAt.After(current.CreatedAt) ||
			(led.CreatedAt.Equal(current.CreatedAt) && led.ID > current.ID) {
			c := led
			current = &c
		}
	}
	return current, nil
}

func (m *memoryLedgers) ListByMember(_ context.Context, memberID schedule.MemberID) ([]schedule.MembershipLedger, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []schedule.MembershipLedger
	for _, led := range m.ledgers {
		if led.MemberID == memberID {
			result = append(result, led)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})
	return result, nil
}

func (m *memoryLedgers) Save(_ context.Context, l *schedule.MembershipLedger) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ledgers[l.ID] = *l
	return nil
}

func (m *memoryLedgers) AdjustUsed(_ context.Context, id schedule.LedgerID, delta int, version int64) (*schedule.MembershipLedger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	led, ok := m.ledgers[id]
	if !ok {
		return nil, schedule.ErrNoActiveMembership
	}
	if led.Version != version {
		return nil, schedule.ErrConcurrentModification
	}

	next := led.UsedSessions + delta
	if next < 0 {
		next = 0 // floor clamp: repeated refunds never go negative
	}
	if next > led.TotalSessions {
		return nil, &schedule.OverconsumptionError{
			LedgerID: id,
			Used:     led.UsedSessions,
			Total:    led.TotalSessions,
			Delta:    delta,
		}
	}

	led.UsedSessions = next
	led.Version++
	m.ledgers[id] = led
	return &led, nil
}

// =============================================================================
// MONTHLY SUBMISSIONS
// =============================================================================

type memorySubmissions struct{ *Memory }

func (m *memorySubmissions) Get(_ context.Context, staffID schedule.StaffID, ym schedule.YearMonth) (*schedule.MonthlySubmission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sub, ok := m.submissions[subKey{StaffID: staffID, YearMonth: ym}]
	if !ok {
		return nil, nil
	}
	return &sub, nil
}

func (m *memorySubmissions) Upsert(_ context.Context, sub *schedule.MonthlySubmission) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := subKey{StaffID: sub.StaffID, YearMonth: sub.YearMonth}
	if existing, ok := m.submissions[k]; ok {
		if existing.Version != sub.Version {
			return schedule.ErrConcurrentModification
		}
	} else if sub.Version != 0 {
		return schedule.ErrConcurrentModification
	}

	sub.Version++
	m.submissions[k] = *sub
	return nil
}

// =============================================================================
// TRANSACTIONS - Simulated with snapshot + rollback on error
// =============================================================================

// WithTx executes fn against the store, restoring a snapshot if fn fails.
// Good enough for tests; the sqlite store provides real transactions.
func (m *Memory) WithTx(_ context.Context, fn func(schedule.Stores) error) error {
	snap := m.snapshot()
	if err := fn(m.Stores()); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

type memorySnapshot struct {
	records     map[schedule.RecordID]schedule.ClassRecord
	ledgers     map[schedule.LedgerID]schedule.MembershipLedger
	submissions map[subKey]schedule.MonthlySubmission
}

func (m *Memory) snapshot() memorySnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := memorySnapshot{
		records:     make(map[schedule.RecordID]schedule.ClassRecord, len(m.records)),
		ledgers:     make(map[schedule.LedgerID]schedule.MembershipLedger, len(m.ledgers)),
		submissions: make(map[subKey]schedule.MonthlySubmission, len(m.submissions)),
	}
	for k, v := range m.records {
		s.records[k] = v
	}
	for k, v := range m.ledgers {
		s.ledgers[k] = v
	}
	for k, v := range m.submissions {
		s.submissions[k] = v
	}
	return s
}

func (m *Memory) restore(s memorySnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = s.records
	m.ledgers = s.ledgers
	m.submissions = s.submissions
}
