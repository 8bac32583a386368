package backend

import (
	"bytes"
	"errors"
	"os"
	"strings"
)

// sqliteMagic is the fixed ASCII signature at the start of every SQLite
// database file. The file header is 100 bytes, so anything smaller cannot
// be a database.
var sqliteMagic = []byte("SQLite format 3\x00")

const sqliteMinFileSize = 100

// ErrUnrecognized is returned when a location string matches no known
// engine.
var ErrUnrecognized = errors.New("backend: database location not recognized")

// Detect classifies a location string into an engine kind.
//
// If the location names an environment variable, its value is substituted
// first (locations are routinely passed around as env vars in deployment
// scripts). Classification is then by extension/keyword: .accdb/.mdb is the
// desktop file engine, a DSN-style string is the network server, and a file
// with the SQLite magic header is the embedded engine.
func Detect(location string) (Kind, string, error) {
	if v, ok := os.LookupEnv(location); ok && v != "" {
		location = v
	}

	lower := strings.ToLower(location)
	switch {
	case strings.Contains(lower, ".accdb") || strings.Contains(lower, ".mdb"):
		return Access, location, nil
	case strings.Contains(lower, "dsn") || strings.Contains(lower, "server=") || strings.HasPrefix(lower, "sqlserver://"):
		return SQLServer, location, nil
	case IsSQLiteFile(location):
		return SQLite, location, nil
	default:
		return "", location, ErrUnrecognized
	}
}

// IsSQLiteFile reports whether path is an existing SQLite database file,
// checked by size and magic header rather than extension.
func IsSQLiteFile(path string) bool {
	fi, err := os.Stat(path)
	if err != nil || fi.IsDir() || fi.Size() < sqliteMinFileSize {
		return false
	}
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	header := make([]byte, len(sqliteMagic))
	if _, err := f.Read(header); err != nil {
		return false
	}
	return bytes.Equal(header, sqliteMagic)
}
