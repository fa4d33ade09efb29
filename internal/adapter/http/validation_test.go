package http

import (
	"errors"
	"strings"
	"testing"
)

func containsFieldMsg(list []FieldError, field, substr string) bool {
	for _, e := range list {
		if e.Field == field && strings.Contains(e.Message, substr) {
			return true
		}
	}
	return false
}

func TestU256Validation(t *testing.T) {
	type P struct {
		Amount string `json:"amount" validate:"u256"`
	}
	cv := NewValidator()

	for _, s := range []string{"0", "1", "1000000000000000000", strings.Repeat("9", 77)} {
		if err := cv.Validate(P{Amount: s}); err != nil {
			t.Fatalf("expected u256 OK for %q, got %v", s, err)
		}
	}
	for _, s := range []string{"", "-1", "1.5", "0x10", "abc", strings.Repeat("9", 79)} {
		err := cv.Validate(P{Amount: s})
		if err == nil {
			t.Fatalf("expected u256 error for %q", s)
		}
		if fe := ToFieldErrors(err); !containsFieldMsg(fe, "amount", "unsigned 256-bit") {
			t.Fatalf("expected u256 message keyed by json name for %q, got %+v", s, fe)
		}
	}
}

func TestAddressValidation(t *testing.T) {
	type P struct {
		Lender string `json:"lender" validate:"required,eth_addr"`
	}
	cv := NewValidator()

	if err := cv.Validate(P{Lender: "0x00000000000000000000000000000000000000ab"}); err != nil {
		t.Fatalf("expected valid address, got %v", err)
	}
	tests := []struct {
		in   string
		want string
	}{
		{"", "is required"},
		{"0x1234", "20 byte hex address"},
		{"00000000000000000000000000000000000000ab", "20 byte hex address"},
		{"0xzz000000000000000000000000000000000000ab", "20 byte hex address"},
	}
	for _, tt := range tests {
		err := cv.Validate(P{Lender: tt.in})
		if err == nil {
			t.Fatalf("expected error for %q", tt.in)
		}
		if fe := ToFieldErrors(err); !containsFieldMsg(fe, "lender", tt.want) {
			t.Fatalf("%q: expected %q, got %+v", tt.in, tt.want, fe)
		}
	}
}

func TestInterfaceAndHexDataValidation(t *testing.T) {
	type P struct {
		InterfaceID string `json:"interface_id" validate:"iface"`
		Payload     string `json:"payload" validate:"omitempty,hexdata"`
	}
	cv := NewValidator()

	for _, p := range []P{
		{InterfaceID: "0x80ac58cd"},
		{InterfaceID: "80AC58CD", Payload: "0x"},
		{InterfaceID: "0x150b7a02", Payload: "0xdeadBEEF"},
	} {
		if err := cv.Validate(p); err != nil {
			t.Fatalf("expected OK for %+v, got %v", p, err)
		}
	}

	err := cv.Validate(P{InterfaceID: "0xffffffff", Payload: "0xabc"})
	if err == nil {
		t.Fatal("expected errors")
	}
	fe := ToFieldErrors(err)
	if !containsFieldMsg(fe, "interface_id", "interface id") || !containsFieldMsg(fe, "payload", "hex bytes") {
		t.Fatalf("unexpected field errors: %+v", fe)
	}
}

func TestToFieldErrors_NonValidationError(t *testing.T) {
	fe := ToFieldErrors(errors.New("boom"))
	if len(fe) != 1 || fe[0].Field != "_" || fe[0].Message != "boom" {
		t.Fatalf("unexpected: %+v", fe)
	}
}
