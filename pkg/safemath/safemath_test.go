package safemath

import (
	"errors"
	"math"
	"testing"
)

func TestAddSubMul(t *testing.T) {
	tests := []struct {
		name    string
		fn      func(a, b uint64) (uint64, error)
		a, b    uint64
		want    uint64
		wantErr error
	}{
		{name: "add", fn: Add, a: 2, b: 3, want: 5},
		{name: "add overflow", fn: Add, a: math.MaxUint64, b: 1, wantErr: ErrOverflow},
		{name: "sub", fn: Sub, a: 5, b: 3, want: 2},
		{name: "sub underflow", fn: Sub, a: 3, b: 5, wantErr: ErrUnderflow},
		{name: "mul", fn: Mul, a: 1 << 31, b: 4, want: 1 << 33},
		{name: "mul overflow", fn: Mul, a: math.MaxUint64, b: 2, wantErr: ErrOverflow},
		{name: "mul zero", fn: Mul, a: math.MaxUint64, b: 0, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.fn(tt.a, tt.b)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestMulDiv(t *testing.T) {
	tests := []struct {
		name     string
		a, b, c  uint64
		want     uint64
		wantCeil uint64
		wantErr  error
	}{
		{name: "exact", a: 10, b: 10, c: 5, want: 20, wantCeil: 20},
		{name: "rounds", a: 100, b: 9, c: 109, want: 8, wantCeil: 9},
		{name: "wide intermediate", a: math.MaxUint64, b: math.MaxUint64, c: math.MaxUint64, want: math.MaxUint64, wantCeil: math.MaxUint64},
		{name: "quotient overflow", a: math.MaxUint64, b: 2, c: 1, wantErr: ErrOverflow},
		{name: "zero divisor", a: 1, b: 1, c: 0, wantErr: ErrDivisionByZero},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MulDiv(tt.a, tt.b, tt.c)
			gotCeil, errCeil := MulDivCeil(tt.a, tt.b, tt.c)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) || !errors.Is(errCeil, tt.wantErr) {
					t.Fatalf("errors = %v / %v, want %v", err, errCeil, tt.wantErr)
				}
				return
			}
			if err != nil || errCeil != nil {
				t.Fatalf("unexpected errors: %v / %v", err, errCeil)
			}
			if got != tt.want {
				t.Errorf("MulDiv got %d, want %d", got, tt.want)
			}
			if gotCeil != tt.wantCeil {
				t.Errorf("MulDivCeil got %d, want %d", gotCeil, tt.wantCeil)
			}
		})
	}
}

func TestSqrtProduct(t *testing.T) {
	tests := []struct {
		a, b uint64
		want uint64
	}{
		{100, 100, 100},
		{2, 8, 4},
		{10, 11, 10},
		{0, 5, 0},
		{math.MaxUint64, math.MaxUint64, math.MaxUint64},
		{1 << 40, 1 << 40, 1 << 40},
	}
	for _, tt := range tests {
		if got := SqrtProduct(tt.a, tt.b); got != tt.want {
			t.Errorf("SqrtProduct(%d, %d) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestPow10AndSum(t *testing.T) {
	if got, err := Pow10(6); err != nil || got != 1_000_000 {
		t.Fatalf("Pow10(6) = %d, %v", got, err)
	}
	if _, err := Pow10(20); !errors.Is(err, ErrOverflow) {
		t.Fatalf("Pow10(20) error = %v, want overflow", err)
	}
	if got, err := Sum(1, 2, 3); err != nil || got != 6 {
		t.Fatalf("Sum = %d, %v", got, err)
	}
	if _, err := Sum(math.MaxUint64, 1); !errors.Is(err, ErrOverflow) {
		t.Fatalf("Sum overflow error = %v", err)
	}
}
