package utils

import (
	"reflect"
	"testing"
)

func TestParseDecimal(t *testing.T) {
	cases := []struct {
		in       string
		expected string
		wantErr  bool
	}{
		{"75.0002", "75.0002", false},
		{"  12.5  ", "12.5", false},
		{"-3.25", "-3.25", false},
		{"0", "0", false},
		{"", "", true},
		{"   ", "", true},
		{"abc", "", true},
	}
	for _, tc := range cases {
		d, err := ParseDecimal(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("ParseDecimal(%q) expected error, got %s", tc.in, d.String())
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseDecimal(%q) error: %v", tc.in, err)
		}
		if d.String() != tc.expected {
			t.Fatalf("ParseDecimal(%q) expected %s, got %s", tc.in, tc.expected, d.String())
		}
	}
}

func TestParseDecimalScale(t *testing.T) {
	cases := []struct {
		in        string
		scale     int32
		maxDigits int
		expected  string
		wantErr   bool
	}{
		{"12.3456", 4, 20, "12.3456", false},
		{"12.34567", 4, 20, "", true},
		{"0.000015", 6, 20, "0.000015", false},
		{"0.0000155", 6, 20, "", true},
		{"99999", 4, 4, "", true},
		{"9999", 4, 4, "9999", false},
		{"-5.25", 2, 20, "-5.25", false},
		{"-5.255", 2, 20, "", true},
	}
	for _, tc := range cases {
		d, err := ParseDecimalScale(tc.in, tc.scale, tc.maxDigits)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("ParseDecimalScale(%q, %d, %d) expected error, got %s", tc.in, tc.scale, tc.maxDigits, d.String())
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseDecimalScale(%q, %d, %d) error: %v", tc.in, tc.scale, tc.maxDigits, err)
		}
		if d.String() != tc.expected {
			t.Fatalf("ParseDecimalScale(%q, %d, %d) expected %s, got %s", tc.in, tc.scale, tc.maxDigits, tc.expected, d.String())
		}
	}
}

func TestUniqueSlice(t *testing.T) {
	got := UniqueSlice([]int{3, 1, 3, 2, 1})
	expected := []int{3, 1, 2}
	if !reflect.DeepEqual(got, expected) {
		t.Fatalf("UniqueSlice expected %v, got %v", expected, got)
	}
	if UniqueSlice([]string{}) != nil {
		t.Fatal("UniqueSlice of empty slice expected nil")
	}
}

func TestNilIfEmpty(t *testing.T) {
	if NilIfEmpty("") != nil {
		t.Fatal("empty string expected nil")
	}
	if p := NilIfEmpty("x"); p == nil || *p != "x" {
		t.Fatal("non-empty string expected pointer to value")
	}
	if NilIfEmpty(0) != nil {
		t.Fatal("zero int expected nil")
	}
}
