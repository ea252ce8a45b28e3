package broker

import (
	"errors"
	"testing"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
)

func TestAPIHTTPClientHasBoundedTimeout(t *testing.T) {
	client := newAPIHTTPClient()
	if client.Timeout <= 0 {
		t.Fatal("expected bounded request timeout on the API client")
	}
}

func TestAlpacaClassify(t *testing.T) {
	b := NewAlpacaBroker("key", "secret", "https://paper-api.alpaca.markets")

	tests := []struct {
		name          string
		err           error
		wantNotFound  bool
		wantTransient bool
	}{
		{"404 maps to not found", &alpaca.APIError{StatusCode: 404, Message: "order not found"}, true, false},
		{"429 is transient", &alpaca.APIError{StatusCode: 429, Message: "too many requests"}, false, true},
		{"500 is transient", &alpaca.APIError{StatusCode: 500, Message: "internal error"}, false, true},
		{"403 is terminal", &alpaca.APIError{StatusCode: 403, Message: "forbidden"}, false, false},
		{"transport error is transient", errors.New("connection refused"), false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := b.classify("test op", tt.err)
			if errors.Is(got, ErrOrderNotFound) != tt.wantNotFound {
				t.Errorf("not-found mismatch for %v", got)
			}
			if tt.wantNotFound {
				return
			}
			if IsTransient(got) != tt.wantTransient {
				t.Errorf("transient mismatch for %v", got)
			}
		})
	}
}
