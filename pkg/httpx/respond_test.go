package httpx_test

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/dmehra2102/Order-Fulfillment-Saga/pkg/httpx"
)

func TestWriteJSONNumber(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  string
	}{
		{name: "fraction", value: "119.75", want: `{"total":119.75}`},
		{name: "trailing zero trimmed", value: "12.50", want: `{"total":12.5}`},
		{name: "integer", value: "2", want: `{"total":2}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			rec := httptest.NewRecorder()
			body := struct {
				Total any `json:"total"`
			}{httpx.Number(decimal.RequireFromString(tt.value))}

			// Act
			httpx.WriteJSON(rec, 201, body)

			// Assert
			if got := strings.TrimSpace(rec.Body.String()); got != tt.want {
				t.Errorf("body = %s, want %s", got, tt.want)
			}
			if rec.Code != 201 {
				t.Errorf("status = %d", rec.Code)
			}
		})
	}
}
