package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/spinforge/settlement/internal/domain"
	"github.com/spinforge/settlement/internal/models"
)

// MemStore is an in-memory Store used by service tests. A single mutex
// serializes units of work, preserving the check-then-mutate isolation the
// postgres store gets from row locks; RunInTx rolls back by restoring a
// snapshot of the whole state.
type MemStore struct {
	mu    sync.Mutex
	state *memState
}

type memState struct {
	accounts     map[uuid.UUID]*models.Account
	transactions map[uuid.UUID]*models.Transaction
	byReference  map[string]uuid.UUID
	intents      map[uuid.UUID]*models.DepositIntent
	outbox       []*models.OutboxEvent
	audit        []*models.AuditRecord
	idem         map[string]*models.IdempotencyRecord
	nextOutboxID int64
	nextAuditID  int64
}

func NewMemStore() *MemStore {
	return &MemStore{state: &memState{
		accounts:     make(map[uuid.UUID]*models.Account),
		transactions: make(map[uuid.UUID]*models.Transaction),
		byReference:  make(map[string]uuid.UUID),
		intents:      make(map[uuid.UUID]*models.DepositIntent),
		idem:         make(map[string]*models.IdempotencyRecord),
	}}
}

func (s *MemStore) Queries() Querier {
	return &memSession{store: s, autoLock: true}
}

func (s *MemStore) RunInTx(ctx context.Context, fn func(q Querier) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.state.clone()
	if err := fn(&memSession{store: s}); err != nil {
		s.state = snapshot
		return err
	}
	return nil
}

func (st *memState) clone() *memState {
	out := &memState{
		accounts:     make(map[uuid.UUID]*models.Account, len(st.accounts)),
		transactions: make(map[uuid.UUID]*models.Transaction, len(st.transactions)),
		byReference:  make(map[string]uuid.UUID, len(st.byReference)),
		intents:      make(map[uuid.UUID]*models.DepositIntent, len(st.intents)),
		outbox:       make([]*models.OutboxEvent, len(st.outbox)),
		audit:        make([]*models.AuditRecord, len(st.audit)),
		idem:         make(map[string]*models.IdempotencyRecord, len(st.idem)),
		nextOutboxID: st.nextOutboxID,
		nextAuditID:  st.nextAuditID,
	}
	for id, a := range st.accounts {
		out.accounts[id] = copyAccount(a)
	}
	for id, t := range st.transactions {
		out.transactions[id] = copyTransaction(t)
	}
	for ref, id := range st.byReference {
		out.byReference[ref] = id
	}
	for id, i := range st.intents {
		cp := *i
		out.intents[id] = &cp
	}
	for i, e := range st.outbox {
		cp := *e
		cp.Payload = e.Payload.Clone()
		out.outbox[i] = &cp
	}
	for i, a := range st.audit {
		cp := *a
		cp.Metadata = a.Metadata.Clone()
		out.audit[i] = &cp
	}
	for k, r := range st.idem {
		cp := *r
		out.idem[k] = &cp
	}
	return out
}

func copyAccount(a *models.Account) *models.Account {
	cp := *a
	if a.LockedUntil != nil {
		t := *a.LockedUntil
		cp.LockedUntil = &t
	}
	return &cp
}

func copyTransaction(t *models.Transaction) *models.Transaction {
	cp := *t
	if t.ExternalReference != nil {
		ref := *t.ExternalReference
		cp.ExternalReference = &ref
	}
	cp.Metadata = t.Metadata.Clone()
	return &cp
}

type memSession struct {
	store    *MemStore
	autoLock bool
}

func (s *memSession) begin() func() {
	if s.autoLock {
		s.store.mu.Lock()
		return s.store.mu.Unlock
	}
	return func() {}
}

func (s *memSession) CreateAccount(_ context.Context, account *models.Account) error {
	defer s.begin()()
	st := s.store.state
	for _, existing := range st.accounts {
		if existing.UserID == account.UserID || existing.Username == account.Username {
			return domain.ErrDuplicateReference
		}
	}
	account.CreatedAt = time.Now()
	st.accounts[account.ID] = copyAccount(account)
	return nil
}

func (s *memSession) GetAccount(_ context.Context, id uuid.UUID) (*models.Account, error) {
	defer s.begin()()
	a, ok := s.store.state.accounts[id]
	if !ok {
		return nil, domain.ErrUnknownAccount
	}
	return copyAccount(a), nil
}

func (s *memSession) GetAccountForUpdate(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return s.GetAccount(ctx, id)
}

func (s *memSession) GetAccountByUser(_ context.Context, userID uuid.UUID) (*models.Account, error) {
	defer s.begin()()
	for _, a := range s.store.state.accounts {
		if a.UserID == userID {
			return copyAccount(a), nil
		}
	}
	return nil, domain.ErrUnknownAccount
}

func (s *memSession) FindAccountByIdentifier(ctx context.Context, identifier string) (*models.Account, error) {
	if id, err := uuid.Parse(identifier); err == nil {
		return s.GetAccount(ctx, id)
	}
	defer s.begin()()
	for _, a := range s.store.state.accounts {
		if strings.EqualFold(a.Username, identifier) {
			return copyAccount(a), nil
		}
	}
	return nil, domain.ErrUnknownAccount
}

func (s *memSession) SaveAccountBalances(_ context.Context, id uuid.UUID, cash, locked decimal.Decimal, lockedUntil *time.Time) (int64, error) {
	defer s.begin()()
	a, ok := s.store.state.accounts[id]
	if !ok {
		return 0, nil
	}
	a.CashBalance = cash
	a.LockedFunds = locked
	a.LockedUntil = lockedUntil
	return 1, nil
}

func (s *memSession) SetAccountDestination(_ context.Context, id uuid.UUID, dest domain.PayoutDestination) (int64, error) {
	defer s.begin()()
	a, ok := s.store.state.accounts[id]
	if !ok {
		return 0, nil
	}
	a.Destination = dest
	return 1, nil
}

func (s *memSession) InsertTransaction(_ context.Context, tx *models.Transaction) error {
	defer s.begin()()
	st := s.store.state
	if tx.ExternalReference != nil {
		if _, exists := st.byReference[*tx.ExternalReference]; exists {
			return domain.ErrDuplicateReference
		}
		st.byReference[*tx.ExternalReference] = tx.ID
	}
	now := time.Now()
	tx.CreatedAt = now
	tx.UpdatedAt = now
	st.transactions[tx.ID] = copyTransaction(tx)
	return nil
}

func (s *memSession) GetTransaction(_ context.Context, id uuid.UUID) (*models.Transaction, error) {
	defer s.begin()()
	t, ok := s.store.state.transactions[id]
	if !ok {
		return nil, domain.ErrTransactionMissing
	}
	return copyTransaction(t), nil
}

func (s *memSession) GetTransactionForUpdate(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	return s.GetTransaction(ctx, id)
}

func (s *memSession) GetTransactionByExternalReference(_ context.Context, reference string) (*models.Transaction, error) {
	defer s.begin()()
	st := s.store.state
	id, ok := st.byReference[reference]
	if !ok {
		return nil, domain.ErrTransactionMissing
	}
	return copyTransaction(st.transactions[id]), nil
}

func (s *memSession) UpdateTransactionStatus(_ context.Context, id uuid.UUID, status string, metadata models.Metadata) (int64, error) {
	defer s.begin()()
	t, ok := s.store.state.transactions[id]
	if !ok {
		return 0, nil
	}
	t.Status = status
	t.Metadata = metadata.Clone()
	t.UpdatedAt = time.Now()
	return 1, nil
}

func (s *memSession) ListTransactionsByAccount(_ context.Context, accountID uuid.UUID, limit, offset int32) ([]models.Transaction, error) {
	defer s.begin()()
	var out []models.Transaction
	for _, t := range s.store.state.transactions {
		if t.AccountID == accountID {
			out = append(out, *copyTransaction(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if int(offset) >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if int(limit) < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (s *memSession) ListProcessingOlderThan(_ context.Context, cutoff time.Time, limit int32) ([]models.Transaction, error) {
	defer s.begin()()
	var out []models.Transaction
	for _, t := range s.store.state.transactions {
		if t.Status == domain.TxStatusProcessing && t.UpdatedAt.Before(cutoff) {
			out = append(out, *copyTransaction(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if int(limit) < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (s *memSession) CountJournalDrift(_ context.Context) (int64, error) {
	defer s.begin()()
	var drift int64
	for _, t := range s.store.state.transactions {
		expected := t.BalanceBefore
		switch t.Kind {
		case domain.TxKindDeposit, domain.TxKindUnlockFunds, domain.TxKindTransfer:
			expected = expected.Add(t.Amount)
		case domain.TxKindLockFunds:
			expected = expected.Sub(t.Amount)
		case domain.TxKindWithdrawal:
			expected = expected.Sub(t.Amount).Sub(metadataFee(t.Metadata))
		default:
			continue
		}
		if !t.BalanceAfter.Equal(expected) {
			drift++
		}
	}
	return drift, nil
}

func metadataFee(m models.Metadata) decimal.Decimal {
	raw, ok := m["fee"]
	if !ok {
		return decimal.Zero
	}
	switch v := raw.(type) {
	case string:
		d, err := decimal.NewFromString(v)
		if err != nil {
			return decimal.Zero
		}
		return d
	case float64:
		return decimal.NewFromFloat(v)
	default:
		return decimal.Zero
	}
}

func (s *memSession) InsertDepositIntent(_ context.Context, intent *models.DepositIntent) error {
	defer s.begin()()
	intent.CreatedAt = time.Now()
	cp := *intent
	s.store.state.intents[intent.ID] = &cp
	return nil
}

func (s *memSession) GetDepositIntentForUpdate(_ context.Context, id uuid.UUID) (*models.DepositIntent, error) {
	defer s.begin()()
	i, ok := s.store.state.intents[id]
	if !ok {
		return nil, domain.ErrTransactionMissing
	}
	cp := *i
	return &cp, nil
}

func (s *memSession) UpdateDepositIntentStatus(_ context.Context, id uuid.UUID, status string) (int64, error) {
	defer s.begin()()
	i, ok := s.store.state.intents[id]
	if !ok {
		return 0, nil
	}
	i.Status = status
	return 1, nil
}

func (s *memSession) EnqueueOutboxEvent(_ context.Context, event *models.OutboxEvent) error {
	defer s.begin()()
	st := s.store.state
	st.nextOutboxID++
	event.ID = st.nextOutboxID
	if event.Status == "" {
		event.Status = domain.OutboxStatusPending
	}
	event.CreatedAt = time.Now()
	cp := *event
	cp.Payload = event.Payload.Clone()
	st.outbox = append(st.outbox, &cp)
	return nil
}

func (s *memSession) ListPendingOutboxEvents(_ context.Context, limit int32) ([]models.OutboxEvent, error) {
	defer s.begin()()
	var out []models.OutboxEvent
	for _, e := range s.store.state.outbox {
		if e.Status == domain.OutboxStatusPending {
			cp := *e
			cp.Payload = e.Payload.Clone()
			out = append(out, cp)
			if int32(len(out)) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *memSession) MarkOutboxEventDispatched(_ context.Context, id int64) (int64, error) {
	defer s.begin()()
	for _, e := range s.store.state.outbox {
		if e.ID == id {
			e.Status = domain.OutboxStatusDispatched
			return 1, nil
		}
	}
	return 0, nil
}

func (s *memSession) MarkOutboxEventFailed(_ context.Context, id int64, attempts int32, terminal bool) (int64, error) {
	defer s.begin()()
	for _, e := range s.store.state.outbox {
		if e.ID == id {
			e.Attempts = attempts
			if terminal {
				e.Status = domain.OutboxStatusFailed
			}
			return 1, nil
		}
	}
	return 0, nil
}

func (s *memSession) InsertAuditRecord(_ context.Context, record *models.AuditRecord) error {
	defer s.begin()()
	st := s.store.state
	st.nextAuditID++
	record.ID = st.nextAuditID
	record.CreatedAt = time.Now()
	cp := *record
	cp.Metadata = record.Metadata.Clone()
	st.audit = append(st.audit, &cp)
	return nil
}

// AuditRecords exposes the trail for test assertions.
func (s *MemStore) AuditRecords() []models.AuditRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.AuditRecord, 0, len(s.state.audit))
	for _, a := range s.state.audit {
		out = append(out, *a)
	}
	return out
}

// OutboxEvents exposes enqueued events for test assertions.
func (s *MemStore) OutboxEvents() []models.OutboxEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.OutboxEvent, 0, len(s.state.outbox))
	for _, e := range s.state.outbox {
		out = append(out, *e)
	}
	return out
}

func (s *memSession) GetIdempotencyRecord(_ context.Context, key string) (*models.IdempotencyRecord, error) {
	defer s.begin()()
	r, ok := s.store.state.idem[key]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *r
	return &cp, nil
}

func (s *memSession) ReserveIdempotencyKey(_ context.Context, key, requestHash, method, path string) (bool, error) {
	defer s.begin()()
	st := s.store.state
	if _, exists := st.idem[key]; exists {
		return false, nil
	}
	st.idem[key] = &models.IdempotencyRecord{
		Key:         key,
		RequestHash: requestHash,
		Method:      method,
		Path:        path,
		InProgress:  true,
		CreatedAt:   time.Now(),
	}
	return true, nil
}

func (s *memSession) FinalizeIdempotencyKey(_ context.Context, key, requestHash string, status int32, body []byte, contentType string) (*models.IdempotencyRecord, error) {
	defer s.begin()()
	r, ok := s.store.state.idem[key]
	if !ok || r.RequestHash != requestHash {
		return nil, pgx.ErrNoRows
	}
	r.Status = status
	r.Body = body
	r.ContentType = contentType
	r.InProgress = false
	cp := *r
	return &cp, nil
}
