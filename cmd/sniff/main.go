// Command sniff infers the dialect and column types of a delimited text file
// from a bounded sample and prints a report.
//
// Usage:
//
//	sniff [flags] <path|->
//	sniff history [flags] [source]
//
// Settings come from flags, then SNIFF_* environment variables (SNIFF_ROWS,
// SNIFF_DELIMITER, ...), then an optional --config file (YAML, TOML or JSON).
//
// # Report store
//
// With --store (sqlite, postgres or mssql) every report is saved. --cached
// returns the newest stored report for an identical sample instead of
// re-running inference. The store DSN is resolved with strict precedence:
//
//  1. --dsn flag
//  2. SNIFF_DSN env var
//  3. DSN_HOST / DSN_PORT / DSN_USER / DSN_PASSWORD / DSN_DB components,
//     plus DSN_SSLMODE (postgres), DSN_ENCRYPT (mssql), DSN_SQLITE (sqlite)
//     and DSN_PARAMS
//
// # Exit status
//
// 0 on success, 1 on any sniff or store failure, 2 on usage errors.
package main

import (
	"errors"
	"fmt"
	"os"

	_ "github.com/microsoft/go-mssqldb"

	_ "csvsniff/internal/storage/mssql"
	_ "csvsniff/internal/storage/postgres"
	_ "csvsniff/internal/storage/sqlite"
)

func main() {
	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "sniff:", err)
		os.Exit(exitCode(err))
	}
}

// usageError marks failures caused by bad flags or arguments.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func exitCode(err error) int {
	var ue usageError
	if errors.As(err, &ue) {
		return 2
	}
	return 1
}
