package handlers

import (
	"errors"
	"sync"
	"time"

	"signalpilot/internal/models"
	"signalpilot/internal/repository"
	"signalpilot/internal/service"

	"github.com/google/uuid"
)

// ErrMockDatabase имитирует отказ хранилища
var ErrMockDatabase = errors.New("mock database error")

// ============ Mock Trade Service ============

// MockTradeService мок для TradeServiceInterface
type MockTradeService struct {
	positions map[string]*models.Position
	closed    []*models.ClosedPosition
	orders    []*models.Order
	fills     map[string][]*models.Fill
	actions   []*models.Action
	halted    map[string]bool
	status    *service.EngineStatus
	getErr    error
	closeErr  error
	submitErr error
	mu        sync.RWMutex
}

// NewMockTradeService создает новый мок торгового сервиса
func NewMockTradeService() *MockTradeService {
	return &MockTradeService{
		positions: make(map[string]*models.Position),
		fills:     make(map[string][]*models.Fill),
		halted:    make(map[string]bool),
		status:    &service.EngineStatus{},
	}
}

// AddPosition добавляет открытую позицию в мок
func (m *MockTradeService) AddPosition(symbol string, quantity, avgEntry float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.positions[symbol] = &models.Position{
		Symbol:        symbol,
		Quantity:      quantity,
		AvgEntryPrice: avgEntry,
		OpenedAt:      time.Now(),
		UpdatedAt:     time.Now(),
	}
}

// SetError устанавливает ошибку для операции ("get", "close" или "submit")
func (m *MockTradeService) SetError(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch op {
	case "get":
		m.getErr = err
	case "close":
		m.closeErr = err
	case "submit":
		m.submitErr = err
	}
}

// HaltSymbol помечает инструмент остановленным в моке
func (m *MockTradeService) HaltSymbol(symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.halted[symbol] = true
}

func (m *MockTradeService) GetPositions() ([]*models.Position, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.getErr != nil {
		return nil, m.getErr
	}

	result := make([]*models.Position, 0, len(m.positions))
	for _, p := range m.positions {
		result = append(result, p)
	}
	return result, nil
}

func (m *MockTradeService) GetPosition(symbol string) (*models.Position, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.getErr != nil {
		return nil, m.getErr
	}

	if p, exists := m.positions[symbol]; exists {
		return p, nil
	}
	return nil, service.ErrPositionNotFound
}

func (m *MockTradeService) GetClosedPositions(limit int) ([]*models.ClosedPosition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.getErr != nil {
		return nil, m.getErr
	}

	if limit > 0 && limit < len(m.closed) {
		return m.closed[:limit], nil
	}
	return m.closed, nil
}

func (m *MockTradeService) GetOrders(symbol string, limit int) ([]*models.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.getErr != nil {
		return nil, m.getErr
	}

	result := make([]*models.Order, 0, len(m.orders))
	for _, o := range m.orders {
		if symbol != "" && o.Symbol != symbol {
			continue
		}
		result = append(result, o)
	}
	if limit > 0 && limit < len(result) {
		result = result[:limit]
	}
	return result, nil
}

func (m *MockTradeService) GetOrderFills(orderID string) ([]*models.Fill, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.getErr != nil {
		return nil, m.getErr
	}

	fills, exists := m.fills[orderID]
	if !exists {
		return nil, repository.ErrOrderNotFound
	}
	return fills, nil
}

func (m *MockTradeService) GetActions(limit int) ([]*models.Action, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.getErr != nil {
		return nil, m.getErr
	}

	if limit > 0 && limit < len(m.actions) {
		return m.actions[:limit], nil
	}
	return m.actions, nil
}

func (m *MockTradeService) ClosePosition(symbol string, fraction float64) (*models.Action, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closeErr != nil {
		return nil, m.closeErr
	}

	if _, exists := m.positions[symbol]; !exists {
		return nil, service.ErrPositionNotFound
	}
	if fraction < 0 || fraction > 1 {
		return nil, service.ErrInvalidFraction
	}
	if fraction == 0 {
		fraction = 1.0
	}

	action := &models.Action{
		ID:        uuid.New().String(),
		Symbol:    symbol,
		Side:      models.ActionSideClose,
		Fraction:  fraction,
		Kind:      models.ActionKindMarket,
		Status:    models.ActionStatusQueued,
		Reason:    models.ActionReasonManual,
		CreatedAt: time.Now(),
	}
	m.actions = append(m.actions, action)
	return action, nil
}

func (m *MockTradeService) SubmitAction(action *models.Action) (*models.Action, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.submitErr != nil {
		return nil, m.submitErr
	}

	// Та же валидация, что в TradeService
	if action.Symbol == "" {
		return nil, service.ErrMissingSymbol
	}
	switch action.Side {
	case models.ActionSideBuy, models.ActionSideSell, models.ActionSideClose:
	default:
		return nil, service.ErrInvalidSide
	}
	if action.Kind == "" {
		action.Kind = models.ActionKindMarket
	}
	if action.Fraction < 0 || action.Fraction > 1 {
		return nil, service.ErrInvalidFraction
	}
	if action.Quantity < 0 {
		return nil, service.ErrInvalidQuantity
	}

	if action.ID == "" {
		action.ID = uuid.New().String()
	}
	if action.Reason == "" {
		action.Reason = models.ActionReasonSignal
	}
	action.Status = models.ActionStatusQueued
	m.actions = append(m.actions, action)
	return action, nil
}

func (m *MockTradeService) ResumeSymbol(symbol string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if symbol == "" {
		return service.ErrMissingSymbol
	}
	if !m.halted[symbol] {
		return service.ErrSymbolNotHalted
	}
	delete(m.halted, symbol)
	return nil
}

func (m *MockTradeService) GetStatus() (*service.EngineStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.status, nil
}

// ============ Mock Audit Service ============

// MockAuditService мок для AuditServiceInterface
type MockAuditService struct {
	notifications []*models.Notification
	getErr        error
	nextID        int
	mu            sync.RWMutex
}

// NewMockAuditService создает новый мок сервиса журнала аудита
func NewMockAuditService() *MockAuditService {
	return &MockAuditService{nextID: 1}
}

// AddNotification добавляет запись в журнал мока
func (m *MockAuditService) AddNotification(notifType, symbol, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.notifications = append(m.notifications, &models.Notification{
		ID:        m.nextID,
		Timestamp: time.Now(),
		Type:      notifType,
		Severity:  models.SeverityInfo,
		Symbol:    symbol,
		Message:   message,
	})
	m.nextID++
}

// SetError устанавливает ошибку чтения журнала
func (m *MockAuditService) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getErr = err
}

func (m *MockAuditService) GetNotifications(symbol string, limit int) ([]*models.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.getErr != nil {
		return nil, m.getErr
	}

	result := make([]*models.Notification, 0, len(m.notifications))
	for _, n := range m.notifications {
		if symbol != "" && n.Symbol != symbol {
			continue
		}
		result = append(result, n)
	}
	if limit > 0 && limit < len(result) {
		result = result[:limit]
	}
	return result, nil
}

func (m *MockAuditService) Cleanup(retention time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.getErr != nil {
		return 0, m.getErr
	}

	cutoff := time.Now().Add(-retention)
	kept := m.notifications[:0]
	var deleted int64
	for _, n := range m.notifications {
		if n.Timestamp.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, n)
	}
	m.notifications = kept
	return deleted, nil
}

// Проверяем, что моки реализуют интерфейсы сервисов
var _ service.TradeServiceInterface = (*MockTradeService)(nil)
var _ service.AuditServiceInterface = (*MockAuditService)(nil)
