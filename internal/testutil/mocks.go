package testutil

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cassiomorais/integrations/internal/domain/audit"
	domainErrors "github.com/cassiomorais/integrations/internal/domain/errors"
	"github.com/cassiomorais/integrations/internal/domain/integration"
	"github.com/cassiomorais/integrations/internal/partner"
	"github.com/google/uuid"
)

// Snapshotter is implemented by in-memory stores that can roll back to an earlier state.
// Snapshot returns the function restoring the captured state.
type Snapshotter interface {
	Snapshot() func()
}

// --- Integration Repository Mock ---

// MockIntegrationRepository is an in-memory integration.Repository.
// It stores copies so callers only observe what they explicitly persisted.
type MockIntegrationRepository struct {
	mu      sync.Mutex
	records map[uuid.UUID]*integration.Integration

	CreateFunc       func(ctx context.Context, i *integration.Integration) error
	GetByIDFunc      func(ctx context.Context, id uuid.UUID) (*integration.Integration, error)
	LockFunc         func(ctx context.Context, id uuid.UUID) (*integration.Integration, error)
	UpdateFunc       func(ctx context.Context, i *integration.Integration) error
	DeleteFunc       func(ctx context.Context, id uuid.UUID) error
	UpdateFieldsFunc func(ctx context.Context, id uuid.UUID, patch integration.Patch) (*integration.Integration, error)
}

func NewMockIntegrationRepository() *MockIntegrationRepository {
	return &MockIntegrationRepository{records: make(map[uuid.UUID]*integration.Integration)}
}

// AddIntegration pre-populates the mock.
func (m *MockIntegrationRepository) AddIntegration(i *integration.Integration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[i.ID] = Clone(i)
}

// Stored returns a copy of the persisted record, or nil (test helper, no context needed).
func (m *MockIntegrationRepository) Stored(id uuid.UUID) *integration.Integration {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.records[id]
	if !ok {
		return nil
	}
	return Clone(i)
}

func (m *MockIntegrationRepository) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func (m *MockIntegrationRepository) Snapshot() func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	saved := make(map[uuid.UUID]*integration.Integration, len(m.records))
	for id, i := range m.records {
		saved[id] = Clone(i)
	}
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.records = saved
	}
}

func (m *MockIntegrationRepository) Create(ctx context.Context, i *integration.Integration) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, i)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.records {
		switch {
		case other.Name == i.Name:
			return domainErrors.ErrDuplicateName
		case other.ShortName == i.ShortName:
			return domainErrors.ErrDuplicateShortName
		case other.CredentialFingerprint == i.CredentialFingerprint:
			return domainErrors.ErrDuplicateCredential
		}
	}
	m.records[i.ID] = Clone(i)
	return nil
}

func (m *MockIntegrationRepository) GetByID(ctx context.Context, id uuid.UUID) (*integration.Integration, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return m.get(id)
}

func (m *MockIntegrationRepository) Lock(ctx context.Context, id uuid.UUID) (*integration.Integration, error) {
	if m.LockFunc != nil {
		return m.LockFunc(ctx, id)
	}
	return m.get(id)
}

func (m *MockIntegrationRepository) FindByState(ctx context.Context, state string) (*integration.Integration, error) {
	id, err := uuid.Parse(state)
	if err != nil {
		return nil, domainErrors.ErrIntegrationNotFound
	}
	return m.Lock(ctx, id)
}

func (m *MockIntegrationRepository) get(id uuid.UUID) (*integration.Integration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.records[id]
	if !ok {
		return nil, domainErrors.ErrIntegrationNotFound
	}
	return Clone(i), nil
}

func (m *MockIntegrationRepository) List(ctx context.Context) ([]*integration.Integration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*integration.Integration, 0, len(m.records))
	for _, i := range m.records {
		result = append(result, Clone(i))
	}
	slices.SortFunc(result, func(a, b *integration.Integration) int {
		if a.Order != b.Order {
			return a.Order - b.Order
		}
		return strings.Compare(a.Name, b.Name)
	})
	return result, nil
}

func (m *MockIntegrationRepository) ListPendingDeletion(ctx context.Context, requestedBefore time.Time, limit int) ([]*integration.Integration, error) {
	all, _ := m.List(ctx)
	var result []*integration.Integration
	for _, i := range all {
		if i.Status != integration.StatusPendingDeletion || i.DeletionRequestedAt == nil {
			continue
		}
		if i.DeletionRequestedAt.Before(requestedBefore) && len(result) < limit {
			result = append(result, i)
		}
	}
	return result, nil
}

func (m *MockIntegrationRepository) ExistsByName(ctx context.Context, name string, excludeID *uuid.UUID) (bool, error) {
	return m.exists(excludeID, func(i *integration.Integration) bool { return i.Name == name }), nil
}

func (m *MockIntegrationRepository) ExistsByShortName(ctx context.Context, shortName string, excludeID *uuid.UUID) (bool, error) {
	return m.exists(excludeID, func(i *integration.Integration) bool { return i.ShortName == shortName }), nil
}

func (m *MockIntegrationRepository) ExistsByFingerprint(ctx context.Context, fingerprint string) (bool, error) {
	return m.exists(nil, func(i *integration.Integration) bool { return i.CredentialFingerprint == fingerprint }), nil
}

func (m *MockIntegrationRepository) exists(excludeID *uuid.UUID, match func(*integration.Integration) bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, i := range m.records {
		if excludeID != nil && id == *excludeID {
			continue
		}
		if match(i) {
			return true
		}
	}
	return false
}

func (m *MockIntegrationRepository) NextOrder(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := 1
	for _, i := range m.records {
		if i.Order >= next {
			next = i.Order + 1
		}
	}
	return next, nil
}

func (m *MockIntegrationRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status integration.Status) (*integration.Integration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.records[id]
	if !ok {
		return nil, domainErrors.ErrIntegrationNotFound
	}
	i.Status = status
	i.UpdatedAt = time.Now()
	return Clone(i), nil
}

func (m *MockIntegrationRepository) UpdateFields(ctx context.Context, id uuid.UUID, patch integration.Patch) (*integration.Integration, error) {
	if m.UpdateFieldsFunc != nil {
		return m.UpdateFieldsFunc(ctx, id, patch)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.records[id]
	if !ok {
		return nil, domainErrors.ErrIntegrationNotFound
	}
	i.Apply(patch)
	i.UpdatedAt = time.Now()
	return Clone(i), nil
}

func (m *MockIntegrationRepository) Update(ctx context.Context, i *integration.Integration) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, i)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[i.ID]; !ok {
		return domainErrors.ErrIntegrationNotFound
	}
	m.records[i.ID] = Clone(i)
	return nil
}

func (m *MockIntegrationRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[id]; !ok {
		return domainErrors.ErrIntegrationNotFound
	}
	delete(m.records, id)
	return nil
}

// Clone deep-copies an integration.
func Clone(i *integration.Integration) *integration.Integration {
	c := *i
	if i.LastAccessToken != nil {
		t := *i.LastAccessToken
		c.LastAccessToken = &t
	}
	if i.PreviousStatus != nil {
		s := *i.PreviousStatus
		c.PreviousStatus = &s
	}
	if i.DeletionRequestedAt != nil {
		at := *i.DeletionRequestedAt
		c.DeletionRequestedAt = &at
	}
	return &c
}

// --- Transaction Manager Mock ---

// MockTransactionManager is a mock implementation of TransactionManager.
// When the callback fails, every participant is restored to its state at the start.
type MockTransactionManager struct {
	WithTransactionFunc func(ctx context.Context, fn func(ctx context.Context) error) error
	Participants        []Snapshotter
}

func NewMockTransactionManager(participants ...Snapshotter) *MockTransactionManager {
	return &MockTransactionManager{Participants: participants}
}

func (m *MockTransactionManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.WithTransactionFunc != nil {
		return m.WithTransactionFunc(ctx, fn)
	}
	restores := make([]func(), 0, len(m.Participants))
	for _, p := range m.Participants {
		restores = append(restores, p.Snapshot())
	}
	if err := fn(ctx); err != nil {
		for _, restore := range restores {
			restore()
		}
		return err
	}
	return nil
}

// --- Audit Repository Mock ---

// MockAuditRepository is an in-memory audit.Repository.
type MockAuditRepository struct {
	mu      sync.Mutex
	entries []*audit.Entry

	InsertFunc        func(ctx context.Context, entry *audit.Entry) error
	GetPendingFunc    func(ctx context.Context, limit int) ([]*audit.Entry, error)
	MarkPublishedFunc func(ctx context.Context, id uuid.UUID) error
	MarkFailedFunc    func(ctx context.Context, id uuid.UUID) error
}

func NewMockAuditRepository() *MockAuditRepository {
	return &MockAuditRepository{}
}

func (m *MockAuditRepository) Snapshot() func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	saved := slices.Clone(m.entries)
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.entries = saved
	}
}

func (m *MockAuditRepository) Insert(ctx context.Context, entry *audit.Entry) error {
	if m.InsertFunc != nil {
		return m.InsertFunc(ctx, entry)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

func (m *MockAuditRepository) GetPending(ctx context.Context, limit int) ([]*audit.Entry, error) {
	if m.GetPendingFunc != nil {
		return m.GetPendingFunc(ctx, limit)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var pending []*audit.Entry
	for _, e := range m.entries {
		if e.Status == audit.StatusPending && len(pending) < limit {
			pending = append(pending, e)
		}
	}
	return pending, nil
}

func (m *MockAuditRepository) MarkPublished(ctx context.Context, id uuid.UUID) error {
	if m.MarkPublishedFunc != nil {
		return m.MarkPublishedFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.ID == id {
			now := time.Now()
			e.Status = audit.StatusPublished
			e.PublishedAt = &now
		}
	}
	return nil
}

func (m *MockAuditRepository) MarkFailed(ctx context.Context, id uuid.UUID) error {
	if m.MarkFailedFunc != nil {
		return m.MarkFailedFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.ID == id {
			e.Attempts++
			if e.Attempts >= e.MaxAttempts {
				e.Status = audit.StatusFailed
			}
		}
	}
	return nil
}

// Entries returns the recorded entries in insertion order.
func (m *MockAuditRepository) Entries() []*audit.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.entries)
}

// Actions lists the recorded actions in insertion order.
func (m *MockAuditRepository) Actions() []audit.Action {
	m.mu.Lock()
	defer m.mu.Unlock()
	actions := make([]audit.Action, 0, len(m.entries))
	for _, e := range m.entries {
		actions = append(actions, e.Action)
	}
	return actions
}

// --- Credential Vault Mock ---

// MockCredentialVault tags plaintext with an "enc:" prefix instead of encrypting it.
type MockCredentialVault struct {
	EncryptFunc func(plaintext string) (string, error)
	DecryptFunc func(blob string) (string, error)
}

func (m *MockCredentialVault) Encrypt(plaintext string) (string, error) {
	if m.EncryptFunc != nil {
		return m.EncryptFunc(plaintext)
	}
	return "enc:" + plaintext, nil
}

func (m *MockCredentialVault) Decrypt(blob string) (string, error) {
	if m.DecryptFunc != nil {
		return m.DecryptFunc(blob)
	}
	return strings.TrimPrefix(blob, "enc:"), nil
}

func (m *MockCredentialVault) Fingerprint(parts ...string) string {
	return strings.Join(parts, "|")
}

// --- Partner Client Mock ---

// MockPartnerClient is a mock implementation of the partner token client.
// Without hooks every call succeeds with a fixed grant.
type MockPartnerClient struct {
	mu            sync.Mutex
	ExchangeCalls int
	RefreshCalls  int

	ExchangeTokenFunc      func(ctx context.Context, creds partner.Credentials, code, sellerID string) (*partner.TokenGrant, error)
	RefreshAccessTokenFunc func(ctx context.Context, creds partner.Credentials, refreshToken, sellerID string) (*partner.TokenGrant, error)
}

func (m *MockPartnerClient) ExchangeToken(ctx context.Context, creds partner.Credentials, code, sellerID string) (*partner.TokenGrant, error) {
	m.mu.Lock()
	m.ExchangeCalls++
	m.mu.Unlock()
	if m.ExchangeTokenFunc != nil {
		return m.ExchangeTokenFunc(ctx, creds, code, sellerID)
	}
	return &partner.TokenGrant{AccessToken: "at-1", RefreshToken: "rt-1", ExpiresIn: 14400, SellerID: sellerID}, nil
}

func (m *MockPartnerClient) RefreshAccessToken(ctx context.Context, creds partner.Credentials, refreshToken, sellerID string) (*partner.TokenGrant, error) {
	m.mu.Lock()
	m.RefreshCalls++
	m.mu.Unlock()
	if m.RefreshAccessTokenFunc != nil {
		return m.RefreshAccessTokenFunc(ctx, creds, refreshToken, sellerID)
	}
	return &partner.TokenGrant{AccessToken: "at-2", RefreshToken: "rt-2", ExpiresIn: 14400, SellerID: sellerID}, nil
}

// Calls returns the total number of partner calls made.
func (m *MockPartnerClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ExchangeCalls + m.RefreshCalls
}

// --- Watch List Mock ---

type MockWatchList struct {
	mu  sync.Mutex
	ids []string

	AddFunc    func(ctx context.Context, id string) error
	RemoveFunc func(ctx context.Context, id string) error
}

func (m *MockWatchList) Add(ctx context.Context, id string) error {
	if m.AddFunc != nil {
		return m.AddFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !slices.Contains(m.ids, id) {
		m.ids = append(m.ids, id)
	}
	return nil
}

func (m *MockWatchList) Remove(ctx context.Context, id string) error {
	if m.RemoveFunc != nil {
		return m.RemoveFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids = slices.DeleteFunc(m.ids, func(s string) bool { return s == id })
	return nil
}

func (m *MockWatchList) IDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.ids)
}

// --- Token Source Mock ---

type MockTokenSource struct {
	CurrentTokenFunc func(ctx context.Context, i *integration.Integration, creds partner.Credentials) (*integration.AccessToken, error)
}

func (m *MockTokenSource) CurrentToken(ctx context.Context, i *integration.Integration, creds partner.Credentials) (*integration.AccessToken, error) {
	if m.CurrentTokenFunc != nil {
		return m.CurrentTokenFunc(ctx, i, creds)
	}
	return i.LastAccessToken, nil
}
