package utils

import (
	"testing"

	"tg_shop/models"

	"github.com/shopspring/decimal"
)

func TestCallbackCodec(t *testing.T) {
	tests := []struct {
		data    models.CallBackData
		encoded string
	}{
		{models.CallBackData{Command: "0"}, "0"},
		{models.CallBackData{Command: "21", ID: "abc"}, "21|abc"},
		{models.CallBackData{Command: "22", ID: "abc", Arg: "1"}, "22|abc|1"},
		{models.CallBackData{Command: "22", Arg: "1"}, "22||1"},
	}
	for _, tt := range tests {
		if got := Code_request(tt.data); got != tt.encoded {
			t.Errorf("Code_request(%+v) = %q, want %q", tt.data, got, tt.encoded)
		}
		if got := Decode_request(tt.encoded); got != tt.data {
			t.Errorf("Decode_request(%q) = %+v, want %+v", tt.encoded, got, tt.data)
		}
	}
}

func TestCallbackFitsTelegramLimit(t *testing.T) {
	data := models.CallBackData{Command: "22", ID: "123e4567-e89b-12d3-a456-426614174000", Arg: "100"}
	if n := len(Code_request(data)); n > 64 {
		t.Errorf("callback data is %d bytes", n)
	}
}

func TestMoney(t *testing.T) {
	if got := Money(decimal.RequireFromString("12.5")); got != "¥12.50" {
		t.Errorf("Money = %q", got)
	}
}
