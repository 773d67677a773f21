package services

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/tappay/internal/models"
	pkgauth "github.com/BradenHooton/tappay/pkg/auth"
	pkglogger "github.com/BradenHooton/tappay/pkg/logger"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memUserRepo is an in-memory UserRepository with the same atomic counter semantics as Postgres
type memUserRepo struct {
	mu    sync.Mutex
	users map[string]*models.User

	GetByIDErr error
	ResetErr   error
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[string]*models.User)}
}

func (m *memUserRepo) put(u *models.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *u
	m.users[u.ID] = &cp
}

func (m *memUserRepo) get(id string) *models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil
	}
	cp := *u
	return &cp
}

func (m *memUserRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	if m.GetByIDErr != nil {
		return nil, m.GetByIDErr
	}
	if u := m.get(id); u != nil {
		return u, nil
	}
	return nil, models.ErrNotFound
}

func (m *memUserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == strings.ToLower(email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, models.ErrNotFound
}

func (m *memUserRepo) Create(ctx context.Context, user *models.User) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == user.Email {
			return nil, models.ErrConflict
		}
	}
	user.ID = uuid.New().String()
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	cp := *user
	m.users[user.ID] = &cp
	return user, nil
}

func (m *memUserRepo) RecordFailedPIN(ctx context.Context, id string, at time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return 0, models.ErrNotFound
	}
	u.FailedAuthAttempts++
	u.LastFailedAuthAt = &at
	return u.FailedAuthAttempts, nil
}

func (m *memUserRepo) ResetFailedPIN(ctx context.Context, id string) error {
	if m.ResetErr != nil {
		return m.ResetErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return models.ErrNotFound
	}
	u.FailedAuthAttempts = 0
	u.LastFailedAuthAt = nil
	return nil
}

func (m *memUserRepo) UpdateStatus(ctx context.Context, id, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return models.ErrNotFound
	}
	u.Status = status
	return nil
}

func (m *memUserRepo) UpdatePINHash(ctx context.Context, id, pinHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return models.ErrNotFound
	}
	u.PINHash = pinHash
	return nil
}

func (m *memUserRepo) Unlock(ctx context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	u.Status = models.UserStatusActive
	u.FailedAuthAttempts = 0
	u.LastFailedAuthAt = nil
	cp := *u
	return &cp, nil
}

type memDeviceRepo struct {
	mu      sync.Mutex
	devices map[string]*models.Device

	CreateErr error
}

func newMemDeviceRepo() *memDeviceRepo {
	return &memDeviceRepo{devices: make(map[string]*models.Device)}
}

func (m *memDeviceRepo) FindByIdentifier(ctx context.Context, identifier string) (*models.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.devices {
		if d.DeviceIdentifier == identifier {
			cp := *d
			return &cp, nil
		}
	}
	return nil, models.ErrNotFound
}

func (m *memDeviceRepo) GetByID(ctx context.Context, id string) (*models.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *memDeviceRepo) Create(ctx context.Context, device *models.Device) (*models.Device, error) {
	if m.CreateErr != nil {
		return nil, m.CreateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.devices {
		if d.DeviceIdentifier == device.DeviceIdentifier {
			return nil, models.ErrConflict
		}
	}
	device.ID = uuid.New().String()
	device.CreatedAt = time.Now()
	device.IsActive = true
	cp := *device
	m.devices[device.ID] = &cp
	return device, nil
}

func (m *memDeviceRepo) ListByUser(ctx context.Context, userID string) ([]*models.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Device, 0)
	for _, d := range m.devices {
		if d.UserID == userID {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memDeviceRepo) SetActive(ctx context.Context, id string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[id]
	if !ok {
		return models.ErrNotFound
	}
	d.IsActive = active
	return nil
}

func (m *memDeviceRepo) TouchLastUsed(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[id]
	if !ok {
		return models.ErrNotFound
	}
	d.LastUsedAt = &at
	return nil
}

type memLedger struct {
	mu   sync.Mutex
	txns []*models.Transaction

	CreateErr error
}

func (m *memLedger) Create(ctx context.Context, txn *models.Transaction) (*models.Transaction, error) {
	if m.CreateErr != nil {
		return nil, m.CreateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if txn.ID == "" {
		txn.ID = uuid.New().String()
	}
	cp := *txn
	m.txns = append(m.txns, &cp)
	return txn, nil
}

func (m *memLedger) GetByID(ctx context.Context, id string) (*models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.txns {
		if t.ID == id {
			cp := *t
			return &cp, nil
		}
	}
	return nil, models.ErrNotFound
}

func (m *memLedger) FindByUser(ctx context.Context, userID string, filter models.TransactionFilter) ([]*models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Transaction, 0)
	for _, t := range m.txns {
		if t.UserID != userID {
			continue
		}
		if filter.Since != nil && t.CreatedAt.Before(*filter.Since) {
			continue
		}
		if len(filter.Statuses) > 0 && !containsString(filter.Statuses, t.Status) {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *memLedger) SumApprovedSince(ctx context.Context, userID string, since time.Time) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := decimal.Zero
	for _, t := range m.txns {
		if t.UserID == userID && t.IsApproved() && !t.CreatedAt.Before(since) {
			total = total.Add(t.Amount)
		}
	}
	return total, nil
}

func (m *memLedger) all() []*models.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Transaction, len(m.txns))
	copy(out, m.txns)
	return out
}

type memEventRepo struct {
	mu     sync.Mutex
	events []*models.SecurityEvent

	CreateErr error
}

func (m *memEventRepo) Create(ctx context.Context, event *models.SecurityEvent) error {
	if m.CreateErr != nil {
		return m.CreateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *memEventRepo) FindByUser(ctx context.Context, userID string, since time.Time, limit int) ([]*models.SecurityEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.SecurityEvent, 0)
	for i := len(m.events) - 1; i >= 0; i-- {
		e := m.events[i]
		if e.UserID != nil && *e.UserID == userID && !e.CreatedAt.Before(since) {
			out = append(out, e)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memEventRepo) ofType(eventType string) []*models.SecurityEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.SecurityEvent, 0)
	for _, e := range m.events {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

type opsReport struct {
	Component string
	Operation string
	Err       error
}

type recordingOps struct {
	mu      sync.Mutex
	reports []opsReport
}

func (r *recordingOps) Report(ctx context.Context, component, operation string, err error, fields map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, opsReport{Component: component, Operation: operation, Err: err})
}

func (r *recordingOps) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reports)
}

type recordingAlerts struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (r *recordingAlerts) NotifyAccountLocked(ctx context.Context, user *models.User, attempts int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, user.ID)
	return r.err
}

type publishedEvent struct {
	Exchange   string
	RoutingKey string
	Body       interface{}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{Exchange: exchange, RoutingKey: routingKey, Body: body})
	return p.err
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// harness wires every service over in-memory stores
type harness struct {
	users     *memUserRepo
	devices   *memDeviceRepo
	ledger    *memLedger
	eventRepo *memEventRepo
	ops       *recordingOps
	alerts    *recordingAlerts
	publisher *recordingPublisher
	hasher    pkgauth.PINHasher

	events        *SecurityEventService
	credentials   *CredentialService
	deviceService *DeviceService
	authorizer    *AuthorizationService
	accounts      *AccountService
	admin         *AdminService
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		users:     newMemUserRepo(),
		devices:   newMemDeviceRepo(),
		ledger:    &memLedger{},
		eventRepo: &memEventRepo{},
		ops:       &recordingOps{},
		alerts:    &recordingAlerts{},
		publisher: &recordingPublisher{},
		hasher:    pkgauth.SHA256PINHasher{},
	}
	logger := testLogger()

	h.events = NewSecurityEventService(h.eventRepo, h.ops, logger)
	h.credentials = NewCredentialService(CredentialServiceDeps{
		Users:       h.users,
		Hasher:      h.hasher,
		Events:      h.events,
		Alerts:      h.alerts,
		Ops:         h.ops,
		MaxAttempts: models.DefaultMaxFailedPINAttempts,
		Logger:      logger,
	})
	h.deviceService = NewDeviceService(h.devices, h.events, logger)
	h.authorizer = NewAuthorizationService(AuthorizationServiceDeps{
		Users:       h.users,
		Credentials: h.credentials,
		Devices:     h.deviceService,
		Ledger:      h.ledger,
		Events:      h.events,
		Publisher:   h.publisher,
		Ops:         h.ops,
		Location:    time.UTC,
		LockTimeout: time.Second,
		Logger:      logger,
	})
	h.accounts = NewAccountService(h.users, h.devices, h.ledger, h.events, models.DefaultDailyLimit, 50, logger)
	h.accounts.location = time.UTC
	h.admin = NewAdminService(h.users, h.events, pkglogger.NewAuditLogger(logger), logger)
	return h
}

// addUser stores an active user whose PIN is pin
func (h *harness) addUser(t *testing.T, pin string) *models.User {
	t.Helper()
	digest, err := h.hasher.Hash(pin)
	require.NoError(t, err)

	u := &models.User{
		ID:      uuid.New().String(),
		Email:   uuid.New().String() + "@example.com",
		PINHash: digest,
		Role:    models.RoleUser,
		Status:  models.UserStatusActive,
	}
	h.users.put(u)
	return u
}

// setClock pins every service clock to now
func (h *harness) setClock(now time.Time) {
	clock := func() time.Time { return now }
	h.authorizer.now = clock
	h.accounts.now = clock
	h.events.now = clock
	h.credentials.now = clock
}
