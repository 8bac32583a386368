package access

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func TestConnString(t *testing.T) {
	t.Parallel()

	got, err := ConnString("data/team.accdb")
	if err != nil {
		t.Fatalf("ConnString: %v", err)
	}
	if !strings.HasPrefix(got, "Driver={Microsoft Access Driver (*.mdb, *.accdb)};Dbq=") {
		t.Errorf("missing driver clause: %q", got)
	}
	if !strings.HasSuffix(got, ";") {
		t.Errorf("missing trailing separator: %q", got)
	}
	if !filepath.IsAbs(got[strings.Index(got, "Dbq=")+4 : len(got)-1]) {
		t.Errorf("Dbq path not absolute: %q", got)
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		err            error
		wantBusy       bool
		wantConstraint bool
	}{
		{"file_lock", errors.New("could not lock file"), true, false},
		{"exclusive_open", errors.New("database has been opened exclusively by another user"), true, false},
		{"duplicate", errors.New("The changes you requested would create duplicate values"), false, true},
		{"sqlstate", errors.New("SQLExecute: [23000] integrity violation"), false, true},
		{"unrelated", errors.New("syntax error in FROM clause"), false, false},
		{"nil", nil, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := isBusy(tt.err); got != tt.wantBusy {
				t.Errorf("isBusy = %v, want %v", got, tt.wantBusy)
			}
			if got := isConstraint(tt.err); got != tt.wantConstraint {
				t.Errorf("isConstraint = %v, want %v", got, tt.wantConstraint)
			}
		})
	}
}
