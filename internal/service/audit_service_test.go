package service

import (
	"testing"
	"time"

	"signalpilot/internal/models"
)

func TestGetNotificationsFiltersBySymbol(t *testing.T) {
	repo := NewMockNotificationRepository()
	repo.notifications = []*models.Notification{
		{ID: 1, Type: models.NotificationTypeFill, Symbol: "AAPL"},
		{ID: 2, Type: models.NotificationTypeFill, Symbol: "TSLA"},
		{ID: 3, Type: models.NotificationTypeClose, Symbol: "AAPL"},
	}
	svc := NewAuditService(repo)

	result, err := svc.GetNotifications("AAPL", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result) != 2 {
		t.Errorf("expected 2 AAPL notifications, got %d", len(result))
	}

	all, err := svc.GetNotifications("", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected all 3 notifications, got %d", len(all))
	}
}

func TestCleanupDeletesOldEntries(t *testing.T) {
	repo := NewMockNotificationRepository()
	repo.notifications = []*models.Notification{
		{ID: 1, Timestamp: time.Now().Add(-48 * time.Hour)},
		{ID: 2, Timestamp: time.Now()},
	}
	svc := NewAuditService(repo)

	deleted, err := svc.Cleanup(24 * time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 deleted, got %d", deleted)
	}

	if _, err := svc.Cleanup(0); err == nil {
		t.Error("expected error for non-positive retention")
	}
}
