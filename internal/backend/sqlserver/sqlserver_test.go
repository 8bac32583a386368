package sqlserver

import (
	"errors"
	"fmt"
	"testing"

	mssql "github.com/microsoft/go-mssqldb"
)

func TestClassifyByNumber(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		number         int32
		wantBusy       bool
		wantConstraint bool
	}{
		{"deadlock_victim", 1205, true, false},
		{"lock_timeout", 1222, true, false},
		{"duplicate_key", 2627, false, true},
		{"duplicate_unique_index", 2601, false, true},
		{"null_insert", 515, false, true},
		{"fk_violation", 547, false, true},
		{"login_failed", 18456, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := fmt.Errorf("exec: %w", mssql.Error{Number: tt.number, Message: tt.name})
			if got := isBusy(err); got != tt.wantBusy {
				t.Errorf("isBusy = %v, want %v", got, tt.wantBusy)
			}
			if got := isConstraint(err); got != tt.wantConstraint {
				t.Errorf("isConstraint = %v, want %v", got, tt.wantConstraint)
			}
		})
	}
}

func TestClassifyByMessage(t *testing.T) {
	t.Parallel()

	if !isBusy(errors.New("Transaction was deadlocked on lock resources")) {
		t.Error("deadlock message not classified as busy")
	}
	if !isConstraint(errors.New("violation of CHECK constraint")) {
		t.Error("constraint message not classified as constraint")
	}
	if isBusy(nil) || isConstraint(nil) {
		t.Error("nil error classified")
	}
}
