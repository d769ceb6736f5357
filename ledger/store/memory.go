// Package store provides an in-memory ledger.TxStore.
package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/warp/leave-engine/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu sync.Mutex
	t  *tables
}

func NewMemory() *Memory {
	return &Memory{t: newTables()}
}

// WithTx executes fn within a transaction.
// Simulated with a snapshot + rollback on error; the store stays locked
// for the whole of fn.
func (m *Memory) WithTx(_ context.Context, fn func(ledger.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.t.clone()
	if err := fn(m.t); err != nil {
		m.t = snapshot
		return err
	}
	return nil
}

func (m *Memory) lock() (*tables, func()) {
	m.mu.Lock()
	return m.t, m.mu.Unlock
}

func (m *Memory) GetUser(ctx context.Context, id string) (*ledger.User, error) {
	t, unlock := m.lock()
	defer unlock()
	return t.GetUser(ctx, id)
}

func (m *Memory) GetUserByEmail(ctx context.Context, tenantID, email string) (*ledger.User, error) {
	t, unlock := m.lock()
	defer unlock()
	return t.GetUserByEmail(ctx, tenantID, email)
}

func (m *Memory) ListUsers(ctx context.Context, tenantID string) ([]ledger.User, error) {
	t, unlock := m.lock()
	defer unlock()
	return t.ListUsers(ctx, tenantID)
}

func (m *Memory) SaveUser(ctx context.Context, u ledger.User) error {
	t, unlock := m.lock()
	defer unlock()
	return t.SaveUser(ctx, u)
}

func (m *Memory) GetLeaveType(ctx context.Context, id string) (*ledger.LeaveType, error) {
	t, unlock := m.lock()
	defer unlock()
	return t.GetLeaveType(ctx, id)
}

func (m *Memory) ListLeaveTypes(ctx context.Context, tenantID string) ([]ledger.LeaveType, error) {
	t, unlock := m.lock()
	defer unlock()
	return t.ListLeaveTypes(ctx, tenantID)
}

func (m *Memory) FindCompOffType(ctx context.Context, tenantID string) (*ledger.LeaveType, error) {
	t, unlock := m.lock()
	defer unlock()
	return t.FindCompOffType(ctx, tenantID)
}

func (m *Memory) SaveLeaveType(ctx context.Context, lt ledger.LeaveType) error {
	t, unlock := m.lock()
	defer unlock()
	return t.SaveLeaveType(ctx, lt)
}

func (m *Memory) GetBalance(ctx context.Context, key ledger.BalanceKey) (*ledger.LeaveBalance, error) {
	t, unlock := m.lock()
	defer unlock()
	return t.GetBalance(ctx, key)
}

func (m *Memory) ListBalances(ctx context.Context, tenantID, userID string, year int) ([]ledger.LeaveBalance, error) {
	t, unlock := m.lock()
	defer unlock()
	return t.ListBalances(ctx, tenantID, userID, year)
}

func (m *Memory) CreateBalance(ctx context.Context, b *ledger.LeaveBalance) error {
	t, unlock := m.lock()
	defer unlock()
	return t.CreateBalance(ctx, b)
}

func (m *Memory) UpdateBalance(ctx context.Context, b *ledger.LeaveBalance) error {
	t, unlock := m.lock()
	defer unlock()
	return t.UpdateBalance(ctx, b)
}

func (m *Memory) GetLeave(ctx context.Context, id string) (*ledger.Leave, error) {
	t, unlock := m.lock()
	defer unlock()
	return t.GetLeave(ctx, id)
}

func (m *Memory) CreateLeave(ctx context.Context, l *ledger.Leave) error {
	t, unlock := m.lock()
	defer unlock()
	return t.CreateLeave(ctx, l)
}

func (m *Memory) UpdateLeaveStatus(ctx context.Context, l *ledger.Leave, from ledger.LeaveStatus) error {
	t, unlock := m.lock()
	defer unlock()
	return t.UpdateLeaveStatus(ctx, l, from)
}

func (m *Memory) ListApprovedLeaves(ctx context.Context, tenantID, userID string, from, to time.Time) ([]ledger.Leave, error) {
	t, unlock := m.lock()
	defer unlock()
	return t.ListApprovedLeaves(ctx, tenantID, userID, from, to)
}

func (m *Memory) CreateCompOffCredit(ctx context.Context, c *ledger.CompOffCredit) error {
	t, unlock := m.lock()
	defer unlock()
	return t.CreateCompOffCredit(ctx, c)
}

func (m *Memory) GetCompOffCreditForWeek(ctx context.Context, tenantID, userID, weekKey string) (*ledger.CompOffCredit, error) {
	t, unlock := m.lock()
	defer unlock()
	return t.GetCompOffCreditForWeek(ctx, tenantID, userID, weekKey)
}

func (m *Memory) ListCompOffCredits(ctx context.Context, tenantID, userID string) ([]ledger.CompOffCredit, error) {
	t, unlock := m.lock()
	defer unlock()
	return t.ListCompOffCredits(ctx, tenantID, userID)
}

func (m *Memory) ListTimesheets(ctx context.Context, tenantID, userEmail string, from, to time.Time) ([]ledger.Timesheet, error) {
	t, unlock := m.lock()
	defer unlock()
	return t.ListTimesheets(ctx, tenantID, userEmail, from, to)
}

func (m *Memory) SaveTimesheet(ctx context.Context, ts ledger.Timesheet) error {
	t, unlock := m.lock()
	defer unlock()
	return t.SaveTimesheet(ctx, ts)
}

func (m *Memory) CreateNotification(ctx context.Context, n ledger.Notification) error {
	t, unlock := m.lock()
	defer unlock()
	return t.CreateNotification(ctx, n)
}

func (m *Memory) ListNotifications(ctx context.Context, tenantID, userID string) ([]ledger.Notification, error) {
	t, unlock := m.lock()
	defer unlock()
	return t.ListNotifications(ctx, tenantID, userID)
}

// =============================================================================
// TABLES - Unlocked state, also the transactional view handed to WithTx
// =============================================================================

type tables struct {
	users         map[string]ledger.User
	leaveTypes    map[string]ledger.LeaveType
	balances      map[ledger.BalanceKey]ledger.LeaveBalance
	leaves        map[string]ledger.Leave
	credits       []ledger.CompOffCredit
	timesheets    []ledger.Timesheet
	notifications []ledger.Notification
}

func newTables() *tables {
	return &tables{
		users:      make(map[string]ledger.User),
		leaveTypes: make(map[string]ledger.LeaveType),
		balances:   make(map[ledger.BalanceKey]ledger.LeaveBalance),
		leaves:     make(map[string]ledger.Leave),
	}
}

func (t *tables) clone() *tables {
	c := newTables()
	for k, v := range t.users {
		c.users[k] = v
	}
	for k, v := range t.leaveTypes {
		c.leaveTypes[k] = v
	}
	for k, v := range t.balances {
		c.balances[k] = v
	}
	for k, v := range t.leaves {
		c.leaves[k] = v
	}
	c.credits = append([]ledger.CompOffCredit(nil), t.credits...)
	c.timesheets = append([]ledger.Timesheet(nil), t.timesheets...)
	c.notifications = append([]ledger.Notification(nil), t.notifications...)
	return c
}

func (t *tables) GetUser(_ context.Context, id string) (*ledger.User, error) {
	u, ok := t.users[id]
	if !ok {
		return nil, ledger.NotFound("user", id)
	}
	return &u, nil
}

func (t *tables) GetUserByEmail(_ context.Context, tenantID, email string) (*ledger.User, error) {
	for _, u := range t.users {
		if u.TenantID == tenantID && strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, ledger.NotFound("user", email)
}

func (t *tables) ListUsers(_ context.Context, tenantID string) ([]ledger.User, error) {
	var out []ledger.User
	for _, u := range t.users {
		if u.TenantID == tenantID {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *tables) SaveUser(_ context.Context, u ledger.User) error {
	if old, ok := t.users[u.ID]; ok && old.TenantID != u.TenantID {
		return &ledger.TenantMismatchError{Kind: "user", ID: u.ID, TenantID: u.TenantID, OwnerID: old.TenantID}
	}
	t.users[u.ID] = u
	return nil
}

func (t *tables) GetLeaveType(_ context.Context, id string) (*ledger.LeaveType, error) {
	lt, ok := t.leaveTypes[id]
	if !ok {
		return nil, ledger.NotFound("leave_type", id)
	}
	return &lt, nil
}

func (t *tables) ListLeaveTypes(_ context.Context, tenantID string) ([]ledger.LeaveType, error) {
	var out []ledger.LeaveType
	for _, lt := range t.leaveTypes {
		if lt.TenantID == tenantID {
			out = append(out, lt)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *tables) FindCompOffType(ctx context.Context, tenantID string) (*ledger.LeaveType, error) {
	types, _ := t.ListLeaveTypes(ctx, tenantID)
	for _, lt := range types {
		if lt.IsCompOff && lt.IsActive {
			return &lt, nil
		}
	}
	return nil, ledger.NotFound("comp_off_leave_type", tenantID)
}

func (t *tables) SaveLeaveType(_ context.Context, lt ledger.LeaveType) error {
	if old, ok := t.leaveTypes[lt.ID]; ok && old.TenantID != lt.TenantID {
		return &ledger.TenantMismatchError{Kind: "leave_type", ID: lt.ID, TenantID: lt.TenantID, OwnerID: old.TenantID}
	}
	t.leaveTypes[lt.ID] = lt
	return nil
}

func (t *tables) GetBalance(_ context.Context, key ledger.BalanceKey) (*ledger.LeaveBalance, error) {
	b, ok := t.balances[key]
	if !ok {
		return nil, ledger.NotFound("balance", key.UserID+"/"+key.LeaveTypeID)
	}
	return &b, nil
}

func (t *tables) ListBalances(_ context.Context, tenantID, userID string, year int) ([]ledger.LeaveBalance, error) {
	var out []ledger.LeaveBalance
	for k, b := range t.balances {
		if k.TenantID == tenantID && k.UserID == userID && (year == 0 || k.Year == year) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year < out[j].Year
		}
		return out[i].LeaveTypeID < out[j].LeaveTypeID
	})
	return out, nil
}

func (t *tables) CreateBalance(_ context.Context, b *ledger.LeaveBalance) error {
	if _, exists := t.balances[b.BalanceKey]; exists {
		return ledger.ErrDuplicate
	}
	if err := b.Validate(); err != nil {
		return err
	}
	b.Version = 1
	t.balances[b.BalanceKey] = *b
	return nil
}

func (t *tables) UpdateBalance(_ context.Context, b *ledger.LeaveBalance) error {
	stored, ok := t.balances[b.BalanceKey]
	if !ok {
		return ledger.NotFound("balance", b.UserID+"/"+b.LeaveTypeID)
	}
	if stored.Version != b.Version {
		return ledger.ErrConcurrentModification
	}
	if err := b.Validate(); err != nil {
		return err
	}
	b.Version++
	b.UpdatedAt = time.Now().UTC()
	t.balances[b.BalanceKey] = *b
	return nil
}

func (t *tables) GetLeave(_ context.Context, id string) (*ledger.Leave, error) {
	l, ok := t.leaves[id]
	if !ok {
		return nil, ledger.NotFound("leave", id)
	}
	return &l, nil
}

func (t *tables) CreateLeave(_ context.Context, l *ledger.Leave) error {
	if _, exists := t.leaves[l.ID]; exists {
		return ledger.ErrDuplicate
	}
	t.leaves[l.ID] = *l
	return nil
}

func (t *tables) UpdateLeaveStatus(_ context.Context, l *ledger.Leave, from ledger.LeaveStatus) error {
	stored, ok := t.leaves[l.ID]
	if !ok {
		return ledger.NotFound("leave", l.ID)
	}
	if stored.Status != from {
		return ledger.ErrConcurrentModification
	}
	stored.Status = l.Status
	stored.ApprovedBy = l.ApprovedBy
	stored.RejectionReason = l.RejectionReason
	stored.UpdatedAt = l.UpdatedAt
	t.leaves[l.ID] = stored
	return nil
}

func (t *tables) ListApprovedLeaves(_ context.Context, tenantID, userID string, from, to time.Time) ([]ledger.Leave, error) {
	var out []ledger.Leave
	for _, l := range t.leaves {
		if l.TenantID != tenantID || l.UserID != userID || l.Status != ledger.StatusApproved {
			continue
		}
		if ledger.Overlaps(l.StartDate, l.EndDate, from, to) {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out, nil
}

func (t *tables) CreateCompOffCredit(_ context.Context, c *ledger.CompOffCredit) error {
	for _, existing := range t.credits {
		if existing.TenantID == c.TenantID && existing.UserID == c.UserID && existing.WeekKey == c.WeekKey {
			return ledger.ErrDuplicate
		}
	}
	t.credits = append(t.credits, *c)
	return nil
}

func (t *tables) GetCompOffCreditForWeek(_ context.Context, tenantID, userID, weekKey string) (*ledger.CompOffCredit, error) {
	for _, c := range t.credits {
		if c.TenantID == tenantID && c.UserID == userID && c.WeekKey == weekKey {
			return &c, nil
		}
	}
	return nil, ledger.NotFound("comp_off_credit", weekKey)
}

func (t *tables) ListCompOffCredits(_ context.Context, tenantID, userID string) ([]ledger.CompOffCredit, error) {
	var out []ledger.CompOffCredit
	for _, c := range t.credits {
		if c.TenantID == tenantID && c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (t *tables) ListTimesheets(_ context.Context, tenantID, userEmail string, from, to time.Time) ([]ledger.Timesheet, error) {
	var out []ledger.Timesheet
	for _, ts := range t.timesheets {
		if ts.TenantID != tenantID || !strings.EqualFold(ts.UserEmail, userEmail) {
			continue
		}
		if ts.Date.Before(from) || ts.Date.After(to) {
			continue
		}
		out = append(out, ts)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (t *tables) SaveTimesheet(_ context.Context, ts ledger.Timesheet) error {
	for i := range t.timesheets {
		if t.timesheets[i].ID == ts.ID {
			if owner := t.timesheets[i].TenantID; owner != ts.TenantID {
				return &ledger.TenantMismatchError{Kind: "timesheet", ID: ts.ID, TenantID: ts.TenantID, OwnerID: owner}
			}
			t.timesheets[i] = ts
			return nil
		}
	}
	t.timesheets = append(t.timesheets, ts)
	return nil
}

func (t *tables) CreateNotification(_ context.Context, n ledger.Notification) error {
	t.notifications = append(t.notifications, n)
	return nil
}

func (t *tables) ListNotifications(_ context.Context, tenantID, userID string) ([]ledger.Notification, error) {
	var out []ledger.Notification
	for _, n := range t.notifications {
		if n.TenantID == tenantID && n.UserID == userID {
			out = append(out, n)
		}
	}
	return out, nil
}

var (
	_ ledger.TxStore = (*Memory)(nil)
	_ ledger.Store   = (*tables)(nil)
)
