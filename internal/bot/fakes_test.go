package bot

import (
	"sort"
	"sync"
	"time"

	"signalpilot/internal/models"
	"signalpilot/internal/repository"
)

// In-memory реализации хранилищ для тестов ядра.
// Семантика повторяет репозитории: те же sentinel ошибки,
// тот же FIFO порядок, та же идемпотентность вставки fill'ов.

type memActionStore struct {
	mu      sync.Mutex
	actions map[string]*models.Action
	order   []string // порядок создания

	// Одноразовые инъекции ошибок
	createErr   error
	completeErr error
}

func newMemActionStore() *memActionStore {
	return &memActionStore{actions: make(map[string]*models.Action)}
}

func (s *memActionStore) failNextCreate(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createErr = err
}

func (s *memActionStore) failNextComplete(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completeErr = err
}

func (s *memActionStore) Create(action *models.Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		err := s.createErr
		s.createErr = nil
		return err
	}
	if action.CreatedAt.IsZero() {
		action.CreatedAt = time.Now()
	}
	copied := *action
	s.actions[action.ID] = &copied
	s.order = append(s.order, action.ID)
	return nil
}

func (s *memActionStore) GetByID(id string) (*models.Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	action, ok := s.actions[id]
	if !ok {
		return nil, repository.ErrActionNotFound
	}
	copied := *action
	return &copied, nil
}

func (s *memActionStore) NextQueued(symbol string) (*models.Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.order {
		action := s.actions[id]
		if action.Symbol == symbol && action.Status == models.ActionStatusQueued {
			copied := *action
			return &copied, nil
		}
	}
	return nil, repository.ErrActionNotFound
}

func (s *memActionStore) Claim(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	action, ok := s.actions[id]
	if !ok || action.Status != models.ActionStatusQueued {
		return repository.ErrActionNotQueued
	}
	action.Status = models.ActionStatusClaimed
	return nil
}

func (s *memActionStore) Requeue(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	action, ok := s.actions[id]
	if !ok || action.Status != models.ActionStatusClaimed {
		return repository.ErrActionNotFound
	}
	action.Status = models.ActionStatusQueued
	return nil
}

func (s *memActionStore) Complete(id string, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.completeErr != nil {
		err := s.completeErr
		s.completeErr = nil
		return err
	}
	action, ok := s.actions[id]
	if !ok {
		return repository.ErrActionNotFound
	}
	action.Status = status
	now := time.Now()
	action.CompletedAt = &now
	return nil
}

func (s *memActionStore) GetClaimed() ([]*models.Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var claimed []*models.Action
	for _, id := range s.order {
		if s.actions[id].Status == models.ActionStatusClaimed {
			copied := *s.actions[id]
			claimed = append(claimed, &copied)
		}
	}
	return claimed, nil
}

func (s *memActionStore) PendingSymbols() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := make(map[string]bool)
	for _, action := range s.actions {
		if action.Status == models.ActionStatusQueued || action.Status == models.ActionStatusClaimed {
			set[action.Symbol] = true
		}
	}
	var symbols []string
	for symbol := range set {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols, nil
}

type memOrderStore struct {
	mu     sync.Mutex
	orders map[string]*models.Order
	fills  map[string]map[int]*models.Fill // orderID -> seq -> fill

	// Одноразовая инъекция ошибки записи прогресса
	updateErr error
}

func (s *memOrderStore) failNextUpdateProgress(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateErr = err
}

func newMemOrderStore() *memOrderStore {
	return &memOrderStore{
		orders: make(map[string]*models.Order),
		fills:  make(map[string]map[int]*models.Fill),
	}
}

func (s *memOrderStore) Create(order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now
	copied := *order
	s.orders[order.ID] = &copied
	return nil
}

func (s *memOrderStore) GetByID(id string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	copied := *order
	return &copied, nil
}

func (s *memOrderStore) GetByActionID(actionID string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, order := range s.orders {
		if order.ActionID == actionID {
			copied := *order
			return &copied, nil
		}
	}
	return nil, repository.ErrOrderNotFound
}

func (s *memOrderStore) GetActive() ([]*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var active []*models.Order
	for _, order := range s.orders {
		if !order.IsTerminal() {
			copied := *order
			active = append(active, &copied)
		}
	}
	return active, nil
}

func (s *memOrderStore) MarkSubmitted(id, brokerOrderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[id]
	if !ok {
		return repository.ErrOrderNotFound
	}
	order.BrokerOrderID = brokerOrderID
	order.Status = models.OrderStatusSubmitted
	order.UpdatedAt = time.Now()
	return nil
}

func (s *memOrderStore) UpdateProgress(id, status string, filledQty, avgFillPrice float64, filledAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		err := s.updateErr
		s.updateErr = nil
		return err
	}
	order, ok := s.orders[id]
	if !ok {
		return repository.ErrOrderNotFound
	}
	order.Status = status
	order.FilledQty = filledQty
	order.AvgFillPrice = avgFillPrice
	if filledAt != nil {
		order.FilledAt = filledAt
	}
	order.UpdatedAt = time.Now()
	return nil
}

func (s *memOrderStore) SetError(id, errorMessage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[id]
	if !ok {
		return repository.ErrOrderNotFound
	}
	order.ErrorMessage = errorMessage
	order.Status = models.OrderStatusRejected
	return nil
}

func (s *memOrderStore) InsertFill(fill *models.Fill) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byOrder, ok := s.fills[fill.OrderID]
	if !ok {
		byOrder = make(map[int]*models.Fill)
		s.fills[fill.OrderID] = byOrder
	}
	if _, exists := byOrder[fill.Seq]; exists {
		return false, nil
	}
	copied := *fill
	byOrder[fill.Seq] = &copied
	return true, nil
}

func (s *memOrderStore) GetFills(orderID string) ([]*models.Fill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var fills []*models.Fill
	for _, fill := range s.fills[orderID] {
		copied := *fill
		fills = append(fills, &copied)
	}
	sort.Slice(fills, func(i, j int) bool { return fills[i].Seq < fills[j].Seq })
	return fills, nil
}

func (s *memOrderStore) NextFillSeq(orderID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	max := 0
	for seq := range s.fills[orderID] {
		if seq > max {
			max = seq
		}
	}
	return max + 1, nil
}

type memPositionStore struct {
	mu        sync.Mutex
	positions map[string]*models.Position
	closed    []*models.ClosedPosition
}

func newMemPositionStore() *memPositionStore {
	return &memPositionStore{positions: make(map[string]*models.Position)}
}

func (s *memPositionStore) Get(symbol string) (*models.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	position, ok := s.positions[symbol]
	if !ok {
		return nil, repository.ErrPositionNotFound
	}
	copied := *position
	return &copied, nil
}

func (s *memPositionStore) GetAll() ([]*models.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []*models.Position
	for _, position := range s.positions {
		copied := *position
		all = append(all, &copied)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Symbol < all[j].Symbol })
	return all, nil
}

func (s *memPositionStore) Upsert(position *models.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	position.UpdatedAt = time.Now()
	if position.OpenedAt.IsZero() {
		position.OpenedAt = position.UpdatedAt
	}
	copied := *position
	s.positions[position.Symbol] = &copied
	return nil
}

func (s *memPositionStore) UpdateExits(symbol string, stopPrice, targetPrice *float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	position, ok := s.positions[symbol]
	if !ok {
		return repository.ErrPositionNotFound
	}
	position.StopPrice = stopPrice
	position.TargetPrice = targetPrice
	return nil
}

func (s *memPositionStore) Delete(symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.positions[symbol]; !ok {
		return repository.ErrPositionNotFound
	}
	delete(s.positions, symbol)
	return nil
}

func (s *memPositionStore) Archive(closed *models.ClosedPosition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	closed.ID = len(s.closed) + 1
	copied := *closed
	s.closed = append(s.closed, &copied)
	return nil
}

func (s *memPositionStore) archived() []*models.ClosedPosition {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.ClosedPosition(nil), s.closed...)
}

type memIdempotencyStore struct {
	mu   sync.Mutex
	keys map[string]time.Time
}

func newMemIdempotencyStore() *memIdempotencyStore {
	return &memIdempotencyStore{keys: make(map[string]time.Time)}
}

func (s *memIdempotencyStore) RecordIfNew(key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[key]; ok {
		return false, nil
	}
	s.keys[key] = time.Now()
	return true, nil
}

func (s *memIdempotencyStore) Release(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, key)
	return nil
}

func (s *memIdempotencyStore) PruneOlderThan(timestamp time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var pruned int64
	for key, seenAt := range s.keys {
		if seenAt.Before(timestamp) {
			delete(s.keys, key)
			pruned++
		}
	}
	return pruned, nil
}

type memNotificationStore struct {
	mu            sync.Mutex
	notifications []*models.Notification
}

func newMemNotificationStore() *memNotificationStore {
	return &memNotificationStore{}
}

func (s *memNotificationStore) Create(n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n.ID = len(s.notifications) + 1
	copied := *n
	s.notifications = append(s.notifications, &copied)
	return nil
}

func (s *memNotificationStore) byType(notificationType string) []*models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	var filtered []*models.Notification
	for _, n := range s.notifications {
		if n.Type == notificationType {
			filtered = append(filtered, n)
		}
	}
	return filtered
}
