package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/acctportal/billingcore/internal/config"
	"github.com/acctportal/billingcore/internal/lock"
	"github.com/acctportal/billingcore/internal/logger"
	"github.com/acctportal/billingcore/internal/types"
	"github.com/acctportal/billingcore/internal/validator"
	"github.com/stretchr/testify/suite"
)

// Stores holds the in-memory repositories used by service tests
type Stores struct {
	SubscriptionRepo *InMemorySubscriptionStore
	PaymentRepo      *InMemoryPaymentStore
	HistoryRepo      *InMemoryHistoryStore
	CardRepo         *InMemoryCardStore
}

// BaseServiceTestSuite provides common functionality for all service test suites
type BaseServiceTestSuite struct {
	suite.Suite
	ctx              context.Context
	stores           Stores
	db               *InMemoryTransactor
	gateway          *MockGateway
	webhookPublisher *InMemoryWebhookPublisher
	locker           *lock.TenantLocker
	logger           *logger.Logger
	config           *config.Configuration

	clockMu sync.Mutex
	now     time.Time
}

// SetupSuite is called once before running the tests in the suite
func (s *BaseServiceTestSuite) SetupSuite() {
	validator.NewValidator()
	s.logger = logger.NewNoopLogger()
}

// SetupTest is called before each test
func (s *BaseServiceTestSuite) SetupTest() {
	s.ctx = SetupContext()

	s.config = config.GetDefaultConfig()
	s.config.Webhook.Enabled = true
	s.config.Lock.WaitTimeout = 2 * time.Second

	s.stores = Stores{
		SubscriptionRepo: NewInMemorySubscriptionStore(),
		PaymentRepo:      NewInMemoryPaymentStore(),
		HistoryRepo:      NewInMemoryHistoryStore(),
		CardRepo:         NewInMemoryCardStore(),
	}
	s.db = NewInMemoryTransactor(
		s.stores.SubscriptionRepo.InMemoryStore,
		s.stores.PaymentRepo.InMemoryStore,
		s.stores.HistoryRepo.InMemoryStore,
		s.stores.CardRepo.InMemoryStore,
	)
	s.gateway = NewMockGateway()
	s.webhookPublisher = NewInMemoryWebhookPublisher()
	s.locker = lock.NewTenantLocker(lock.NewMemoryLocker(), s.config.Lock, s.logger)

	s.SetNow(time.Date(2024, 3, 1, 9, 0, 0, 0, s.config.Billing.Location()))
}

// TearDownTest is called after each test
func (s *BaseServiceTestSuite) TearDownTest() {
	s.stores.SubscriptionRepo.Clear()
	s.stores.PaymentRepo.Clear()
	s.stores.HistoryRepo.Clear()
	s.stores.CardRepo.Clear()
	s.webhookPublisher.Clear()
}

// GetContext returns the test context
func (s *BaseServiceTestSuite) GetContext() context.Context {
	return s.ctx
}

// GetConfig returns the test configuration
func (s *BaseServiceTestSuite) GetConfig() *config.Configuration {
	return s.config
}

// GetStores returns all test repositories
func (s *BaseServiceTestSuite) GetStores() Stores {
	return s.stores
}

// GetDB returns the transactor shared by the test repositories
func (s *BaseServiceTestSuite) GetDB() *InMemoryTransactor {
	return s.db
}

func (s *BaseServiceTestSuite) GetGateway() *MockGateway {
	return s.gateway
}

// GetWebhookPublisher returns the test webhook publisher
func (s *BaseServiceTestSuite) GetWebhookPublisher() *InMemoryWebhookPublisher {
	return s.webhookPublisher
}

func (s *BaseServiceTestSuite) GetLocker() *lock.TenantLocker {
	return s.locker
}

// GetLogger returns the test logger
func (s *BaseServiceTestSuite) GetLogger() *logger.Logger {
	return s.logger
}

// GetNow returns the pinned test time
func (s *BaseServiceTestSuite) GetNow() time.Time {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()
	return s.now
}

// Clock returns a func services can use as their clock
func (s *BaseServiceTestSuite) Clock() func() time.Time {
	return s.GetNow
}

func (s *BaseServiceTestSuite) SetNow(t time.Time) {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()
	s.now = t
}

// Advance moves the pinned clock forward
func (s *BaseServiceTestSuite) Advance(d time.Duration) {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()
	s.now = s.now.Add(d)
}

// Day returns midnight of the given date in the billing zone
func (s *BaseServiceTestSuite) Day(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, s.config.Billing.Location())
}

// GetUUID returns a new UUID string
func (s *BaseServiceTestSuite) GetUUID() string {
	return types.GenerateUUID()
}
