package service

import (
	"time"

	"signalpilot/internal/models"
	"signalpilot/internal/repository"
)

// ============ Mock PositionRepository ============

type MockPositionRepository struct {
	positions map[string]*models.Position
	closed    []*models.ClosedPosition
	totalPnl  float64
	getErr    error
	closedErr error
	pnlErr    error
}

func NewMockPositionRepository() *MockPositionRepository {
	return &MockPositionRepository{positions: make(map[string]*models.Position)}
}

func (m *MockPositionRepository) Get(symbol string) (*models.Position, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	if position, ok := m.positions[symbol]; ok {
		return position, nil
	}
	return nil, repository.ErrPositionNotFound
}

func (m *MockPositionRepository) GetAll() ([]*models.Position, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	result := make([]*models.Position, 0, len(m.positions))
	for _, p := range m.positions {
		result = append(result, p)
	}
	return result, nil
}

func (m *MockPositionRepository) GetClosed(limit int) ([]*models.ClosedPosition, error) {
	if m.closedErr != nil {
		return nil, m.closedErr
	}
	if limit > len(m.closed) {
		limit = len(m.closed)
	}
	return m.closed[:limit], nil
}

func (m *MockPositionRepository) TotalRealizedPnl() (float64, error) {
	if m.pnlErr != nil {
		return 0, m.pnlErr
	}
	return m.totalPnl, nil
}

// ============ Mock OrderRepository ============

type MockOrderRepository struct {
	orders  map[string]*models.Order
	fills   map[string][]*models.Fill
	getErr  error
	listErr error
}

func NewMockOrderRepository() *MockOrderRepository {
	return &MockOrderRepository{
		orders: make(map[string]*models.Order),
		fills:  make(map[string][]*models.Fill),
	}
}

func (m *MockOrderRepository) GetByID(id string) (*models.Order, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	if order, ok := m.orders[id]; ok {
		return order, nil
	}
	return nil, repository.ErrOrderNotFound
}

func (m *MockOrderRepository) GetRecent(limit int) ([]*models.Order, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	result := make([]*models.Order, 0, len(m.orders))
	for _, o := range m.orders {
		result = append(result, o)
	}
	if limit < len(result) {
		result = result[:limit]
	}
	return result, nil
}

func (m *MockOrderRepository) GetBySymbol(symbol string, limit int) ([]*models.Order, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var result []*models.Order
	for _, o := range m.orders {
		if o.Symbol == symbol {
			result = append(result, o)
		}
	}
	if limit < len(result) {
		result = result[:limit]
	}
	return result, nil
}

func (m *MockOrderRepository) GetActive() ([]*models.Order, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var result []*models.Order
	for _, o := range m.orders {
		if !o.IsTerminal() {
			result = append(result, o)
		}
	}
	return result, nil
}

func (m *MockOrderRepository) GetFills(orderID string) ([]*models.Fill, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.fills[orderID], nil
}

func (m *MockOrderRepository) CountByStatus(status string) (int, error) {
	if m.listErr != nil {
		return 0, m.listErr
	}
	count := 0
	for _, o := range m.orders {
		if o.Status == status {
			count++
		}
	}
	return count, nil
}

// ============ Mock ActionRepository ============

type MockActionRepository struct {
	actions map[string]*models.Action
	getErr  error
}

func NewMockActionRepository() *MockActionRepository {
	return &MockActionRepository{actions: make(map[string]*models.Action)}
}

func (m *MockActionRepository) GetByID(id string) (*models.Action, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	if action, ok := m.actions[id]; ok {
		return action, nil
	}
	return nil, repository.ErrActionNotFound
}

func (m *MockActionRepository) GetRecent(limit int) ([]*models.Action, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	result := make([]*models.Action, 0, len(m.actions))
	for _, a := range m.actions {
		result = append(result, a)
	}
	if limit < len(result) {
		result = result[:limit]
	}
	return result, nil
}

func (m *MockActionRepository) CountByStatus(status string) (int, error) {
	if m.getErr != nil {
		return 0, m.getErr
	}
	count := 0
	for _, a := range m.actions {
		if a.Status == status {
			count++
		}
	}
	return count, nil
}

// ============ Mock NotificationRepository ============

type MockNotificationRepository struct {
	notifications []*models.Notification
	getErr        error
	deleteErr     error
}

func NewMockNotificationRepository() *MockNotificationRepository {
	return &MockNotificationRepository{}
}

func (m *MockNotificationRepository) GetRecent(limit int) ([]*models.Notification, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	result := m.notifications
	if limit < len(result) {
		result = result[:limit]
	}
	return result, nil
}

func (m *MockNotificationRepository) GetBySymbol(symbol string, limit int) ([]*models.Notification, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	var result []*models.Notification
	for _, n := range m.notifications {
		if n.Symbol == symbol {
			result = append(result, n)
		}
	}
	if limit < len(result) {
		result = result[:limit]
	}
	return result, nil
}

func (m *MockNotificationRepository) DeleteOlderThan(timestamp time.Time) (int64, error) {
	if m.deleteErr != nil {
		return 0, m.deleteErr
	}
	var kept []*models.Notification
	var deleted int64
	for _, n := range m.notifications {
		if n.Timestamp.Before(timestamp) {
			deleted++
			continue
		}
		kept = append(kept, n)
	}
	m.notifications = kept
	return deleted, nil
}

// ============ Mock EngineControl ============

type MockEngineControl struct {
	submitted []*models.Action
	submitErr error
	halted    map[string]bool
	resumed   []string
}

func NewMockEngineControl() *MockEngineControl {
	return &MockEngineControl{halted: make(map[string]bool)}
}

func (m *MockEngineControl) Submit(action *models.Action) error {
	if m.submitErr != nil {
		return m.submitErr
	}
	m.submitted = append(m.submitted, action)
	return nil
}

func (m *MockEngineControl) ResumeSymbol(symbol string) bool {
	if !m.halted[symbol] {
		return false
	}
	delete(m.halted, symbol)
	m.resumed = append(m.resumed, symbol)
	return true
}
