package device

import (
	"errors"
	"testing"
)

func TestValue_String(t *testing.T) {
	tests := []struct {
		name string
		v    Value
		want string
	}{
		{"bool true", BoolValue(true), "1"},
		{"bool false", BoolValue(false), "0"},
		{"temperature", CentiValue(1976), "19.76"},
		{"negative", CentiValue(-97), "-0.97"},
		{"trailing zero trimmed", CentiValue(490), "4.9"},
		{"whole number", CentiValue(2000), "20"},
		{"co2", CentiValue(186518), "1865.18"},
		{"integer", IntValue(42), "42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.v.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDomain_Parse(t *testing.T) {
	tests := []struct {
		name    string
		domain  Domain
		payload string
		want    Value
		wantErr bool
	}{
		{"bool one", Boolean(), "1", BoolValue(true), false},
		{"bool zero", Boolean(), "0", BoolValue(false), false},
		{"bool on", Boolean(), "ON", BoolValue(true), false},
		{"bool false word", Boolean(), "false", BoolValue(false), false},
		{"bool padded", Boolean(), " 1\n", BoolValue(true), false},
		{"bool two rejected", Boolean(), "2", Value{}, true},
		{"bool empty rejected", Boolean(), "", Value{}, true},
		{"float", Float(), "21.94", CentiValue(2194), false},
		{"float rounded", Float(), "5.256", CentiValue(526), false},
		{"float nan rejected", Float(), "NaN", Value{}, true},
		{"float inf rejected", Float(), "+Inf", Value{}, true},
		{"float garbage rejected", Float(), "warm", Value{}, true},
		{"range inside", FloatRange(0, 10), "5.26", CentiValue(526), false},
		{"range upper bound", FloatRange(0, 10), "10", CentiValue(1000), false},
		{"range above", FloatRange(0, 10), "10.01", Value{}, true},
		{"range below", FloatRange(0, 10), "-0.5", Value{}, true},
		{"int", Domain{Type: TypeInt}, "400", IntValue(400), false},
		{"int rejects fraction", Domain{Type: TypeInt}, "4.5", Value{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.domain.Parse(tt.payload)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidValue) {
					t.Fatalf("Parse(%q) error = %v, want ErrInvalidValue", tt.payload, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) unexpected error: %v", tt.payload, err)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %#v, want %#v", tt.payload, got, tt.want)
			}
		})
	}
}

func TestDomain_CheckTypeMismatch(t *testing.T) {
	if err := Boolean().Check(CentiValue(100)); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("Check() error = %v, want ErrInvalidValue", err)
	}
}
