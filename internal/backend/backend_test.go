package backend

import (
	"os"
	"path/filepath"
	"testing"

	"rowbridge/internal/schema"
)

func TestProfileFor_Capabilities(t *testing.T) {
	t.Parallel()

	lite := ProfileFor(SQLite)
	if !lite.BatchParams || !lite.Catalog || !lite.RowID || !lite.Progress || !lite.KeyColumns {
		t.Fatalf("sqlite profile missing capabilities: %+v", lite)
	}
	acc := ProfileFor(Access)
	if acc.BatchParams || acc.Catalog || acc.KeyColumns || acc.RowID {
		t.Fatalf("access profile claims capabilities it lacks: %+v", acc)
	}
	srv := ProfileFor(SQLServer)
	if !srv.Catalog || !srv.KeyColumns || srv.RowID || srv.MaxParams != 2100 {
		t.Fatalf("sqlserver profile wrong: %+v", srv)
	}
}

func TestQuoteIdent(t *testing.T) {
	t.Parallel()

	if got := ProfileFor(SQLite).QuoteIdent(`we"ird`); got != `"we""ird"` {
		t.Fatalf("sqlite quote = %q", got)
	}
	if got := ProfileFor(Access).QuoteIdent("My Table"); got != "[My Table]" {
		t.Fatalf("access quote = %q", got)
	}
	if got := ProfileFor(SQLServer).QuoteIdent("a]b"); got != "[a]]b]" {
		t.Fatalf("sqlserver quote = %q", got)
	}
}

func TestPlaceholder(t *testing.T) {
	t.Parallel()

	if got := ProfileFor(SQLite).Placeholder(3); got != "?" {
		t.Fatalf("sqlite placeholder = %q", got)
	}
	if got := ProfileFor(SQLServer).Placeholder(3); got != "@p3" {
		t.Fatalf("sqlserver placeholder = %q", got)
	}
}

func TestNativeType_UnmappedReported(t *testing.T) {
	t.Parallel()

	for _, k := range []Kind{SQLite, Access, SQLServer} {
		p := ProfileFor(k)
		if _, ok := p.NativeType(schema.Integer); !ok {
			t.Fatalf("%s: integer must map", k)
		}
		if _, ok := p.NativeType(schema.Unspecified); ok {
			t.Fatalf("%s: unspecified must not map", k)
		}
	}
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func sqliteHeader(padTo int) []byte {
	b := append([]byte(nil), sqliteMagic...)
	for len(b) < padTo {
		b = append(b, 0)
	}
	return b
}

func TestIsSQLiteFile(t *testing.T) {
	t.Parallel()

	good := writeFile(t, "good.db", sqliteHeader(128))
	if !IsSQLiteFile(good) {
		t.Fatalf("file with magic header not recognized")
	}

	// Below the 100-byte header minimum.
	small := writeFile(t, "small.db", sqliteMagic)
	if IsSQLiteFile(small) {
		t.Fatalf("undersized file must not be recognized")
	}

	wrong := writeFile(t, "wrong.db", append([]byte("not a database!!"), sqliteHeader(128)...))
	if IsSQLiteFile(wrong) {
		t.Fatalf("wrong magic must not be recognized")
	}

	if IsSQLiteFile(filepath.Join(t.TempDir(), "missing.db")) {
		t.Fatalf("missing file must not be recognized")
	}
}

func TestDetect_TableDriven(t *testing.T) {
	good := writeFile(t, "data.db", sqliteHeader(128))

	tests := []struct {
		name     string
		location string
		want     Kind
		wantErr  bool
	}{
		{"access_accdb", `C:\data\plant.accdb`, Access, false},
		{"access_mdb", "legacy.mdb", Access, false},
		{"dsn_string", "DSN=warehouse;UID=loader", SQLServer, false},
		{"ado_string", "Server=db01;Database=ops", SQLServer, false},
		{"url_string", "sqlserver://loader@db01?database=ops", SQLServer, false},
		{"sqlite_by_header", good, SQLite, false},
		{"unknown", "nothing-here.xyz", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _, err := Detect(tt.location)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Detect(%q) err=%v wantErr=%v", tt.location, err, tt.wantErr)
			}
			if got != tt.want {
				t.Fatalf("Detect(%q) = %q, want %q", tt.location, got, tt.want)
			}
		})
	}
}

func TestDetect_EnvSubstitution(t *testing.T) {
	good := writeFile(t, "env.db", sqliteHeader(128))
	t.Setenv("ROWBRIDGE_TEST_DB", good)

	kind, resolved, err := Detect("ROWBRIDGE_TEST_DB")
	if err != nil {
		t.Fatalf("Detect(env var): %v", err)
	}
	if kind != SQLite || resolved != good {
		t.Fatalf("env substitution failed: kind=%s resolved=%q", kind, resolved)
	}
}
