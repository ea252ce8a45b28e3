package repository

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"signalpilot/internal/models"
)

// ============================================================
// ActionRepository Tests
// ============================================================

func actionColumns() []string {
	return []string{"id", "source_message_id", "symbol", "side", "quantity", "fraction", "sizing", "kind", "limit_price", "stop_price", "target_price", "status", "reason", "created_at", "completed_at"}
}

func TestNewActionRepository(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	repo := NewActionRepository(db)
	if repo == nil {
		t.Fatal("NewActionRepository returned nil")
	}
	if repo.db != db {
		t.Error("db not set correctly")
	}
}

func TestActionRepositoryCreate(t *testing.T) {
	tests := []struct {
		name        string
		action      *models.Action
		mockSetup   func(mock sqlmock.Sqlmock)
		expectError bool
	}{
		{
			name: "success",
			action: &models.Action{
				ID:              "a1",
				SourceMessageID: "msg-100",
				Symbol:          "AAPL",
				Side:            models.ActionSideBuy,
				Quantity:        5,
				Kind:            models.ActionKindMarket,
				Status:          models.ActionStatusQueued,
				Reason:          models.ActionReasonSignal,
			},
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`INSERT INTO actions`).
					WithArgs("a1", "msg-100", "AAPL", models.ActionSideBuy, 5.0, 0.0, "", models.ActionKindMarket, (*float64)(nil), (*float64)(nil), (*float64)(nil), models.ActionStatusQueued, models.ActionReasonSignal, sqlmock.AnyArg()).
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
			expectError: false,
		},
		{
			name: "database error",
			action: &models.Action{
				ID:     "a2",
				Symbol: "AAPL",
			},
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`INSERT INTO actions`).
					WillReturnError(errors.New("database error"))
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			if err != nil {
				t.Fatalf("failed to create mock: %v", err)
			}
			defer db.Close()

			tt.mockSetup(mock)

			repo := NewActionRepository(db)
			err = repo.Create(tt.action)

			if tt.expectError {
				if err == nil {
					t.Error("expected error, got nil")
				}
			} else {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
			}

			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unfulfilled expectations: %v", err)
			}
		})
	}
}

func TestActionRepositoryNextQueued(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name        string
		symbol      string
		mockSetup   func(mock sqlmock.Sqlmock)
		expectedID  string
		expectError error
	}{
		{
			name:   "success",
			symbol: "AAPL",
			mockSetup: func(mock sqlmock.Sqlmock) {
				rows := sqlmock.NewRows(actionColumns()).
					AddRow("a1", "msg-1", "AAPL", "buy", 5.0, 0.0, "", "market", nil, nil, nil, "queued", "signal", now, nil)
				mock.ExpectQuery(`SELECT .+ FROM actions WHERE symbol = \$1 AND status = \$2 ORDER BY created_at, id LIMIT 1`).
					WithArgs("AAPL", models.ActionStatusQueued).
					WillReturnRows(rows)
			},
			expectedID:  "a1",
			expectError: nil,
		},
		{
			name:   "empty queue",
			symbol: "TSLA",
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`SELECT .+ FROM actions WHERE symbol = \$1 AND status = \$2`).
					WithArgs("TSLA", models.ActionStatusQueued).
					WillReturnError(sql.ErrNoRows)
			},
			expectError: ErrActionNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			if err != nil {
				t.Fatalf("failed to create mock: %v", err)
			}
			defer db.Close()

			tt.mockSetup(mock)

			repo := NewActionRepository(db)
			result, err := repo.NextQueued(tt.symbol)

			if tt.expectError != nil {
				if !errors.Is(err, tt.expectError) {
					t.Errorf("expected error %v, got %v", tt.expectError, err)
				}
			} else {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				if result.ID != tt.expectedID {
					t.Errorf("expected ID=%s, got %s", tt.expectedID, result.ID)
				}
			}

			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unfulfilled expectations: %v", err)
			}
		})
	}
}

func TestActionRepositoryClaim(t *testing.T) {
	tests := []struct {
		name        string
		id          string
		mockSetup   func(mock sqlmock.Sqlmock)
		expectError error
	}{
		{
			name: "success",
			id:   "a1",
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`UPDATE actions SET status = \$1 WHERE id = \$2 AND status = \$3`).
					WithArgs(models.ActionStatusClaimed, "a1", models.ActionStatusQueued).
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
			expectError: nil,
		},
		{
			name: "already claimed",
			id:   "a1",
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`UPDATE actions SET status = \$1 WHERE id = \$2 AND status = \$3`).
					WithArgs(models.ActionStatusClaimed, "a1", models.ActionStatusQueued).
					WillReturnResult(sqlmock.NewResult(0, 0))
			},
			expectError: ErrActionNotQueued,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			if err != nil {
				t.Fatalf("failed to create mock: %v", err)
			}
			defer db.Close()

			tt.mockSetup(mock)

			repo := NewActionRepository(db)
			err = repo.Claim(tt.id)

			if tt.expectError != nil {
				if !errors.Is(err, tt.expectError) {
					t.Errorf("expected error %v, got %v", tt.expectError, err)
				}
			} else {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
			}

			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unfulfilled expectations: %v", err)
			}
		})
	}
}

func TestActionRepositoryComplete(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`UPDATE actions SET status = \$1, completed_at = \$2 WHERE id = \$3`).
		WithArgs(models.ActionStatusDone, sqlmock.AnyArg(), "a1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewActionRepository(db)
	err = repo.Complete("a1", models.ActionStatusDone)

	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestActionRepositoryGetClaimed(t *testing.T) {
	now := time.Now()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	rows := sqlmock.NewRows(actionColumns()).
		AddRow("a1", "msg-1", "AAPL", "buy", 5.0, 0.0, "", "market", nil, nil, nil, "claimed", "signal", now, nil).
		AddRow("a2", "msg-2", "TSLA", "sell", 2.0, 0.0, "", "market", nil, nil, nil, "claimed", "signal", now, nil)
	mock.ExpectQuery(`SELECT .+ FROM actions WHERE status = \$1 ORDER BY created_at, id`).
		WithArgs(models.ActionStatusClaimed).
		WillReturnRows(rows)

	repo := NewActionRepository(db)
	result, err := repo.GetClaimed()

	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if len(result) != 2 {
		t.Errorf("expected 2 actions, got %d", len(result))
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestActionRepositoryPendingSymbols(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	rows := sqlmock.NewRows([]string{"symbol"}).AddRow("AAPL").AddRow("TSLA")
	mock.ExpectQuery(`SELECT DISTINCT symbol FROM actions WHERE status IN \(\$1, \$2\)`).
		WithArgs(models.ActionStatusQueued, models.ActionStatusClaimed).
		WillReturnRows(rows)

	repo := NewActionRepository(db)
	symbols, err := repo.PendingSymbols()

	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if len(symbols) != 2 {
		t.Errorf("expected 2 symbols, got %d", len(symbols))
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestActionRepositoryCountByStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	rows := sqlmock.NewRows([]string{"count"}).AddRow(3)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM actions WHERE status = \$1`).
		WithArgs(models.ActionStatusQueued).
		WillReturnRows(rows)

	repo := NewActionRepository(db)
	count, err := repo.CountByStatus(models.ActionStatusQueued)

	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if count != 3 {
		t.Errorf("expected count=3, got %d", count)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
