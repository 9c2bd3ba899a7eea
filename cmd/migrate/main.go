package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ignite/dispatch/internal/bootstrap"
	"github.com/ignite/dispatch/internal/config"
	"github.com/ignite/dispatch/internal/pkg/logger"
)

var dispatchTables = []string{"dispatched_emails", "mailing_lists", "recipient_lists", "recipients"}

func main() {
	dir := flag.String("dir", "migrations", "directory holding *.sql files")
	listOnly := flag.Bool("list", false, "list dispatch tables and exit")
	flag.Parse()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	ctx := context.Background()
	db, err := bootstrap.OpenDB(ctx, config.DatabaseConfig{URL: dsn, MaxOpenConns: 2, MaxIdleConns: 1})
	if err != nil {
		logger.Error("connect failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if *listOnly {
		if err := listTables(ctx, db); err != nil {
			logger.Error("list tables", "error", err)
			os.Exit(1)
		}
		return
	}

	files, err := migrationFiles(*dir)
	if err != nil {
		logger.Error("read migrations", "dir", *dir, "error", err)
		os.Exit(1)
	}

	var okCount, errCount int
	for _, f := range files {
		if err := apply(ctx, db, f); err != nil {
			logger.Error("migration failed", "file", filepath.Base(f), "error", err)
			errCount++
			continue
		}
		logger.Info("migration applied", "file", filepath.Base(f))
		okCount++
	}
	logger.Info("migrations complete", "ok", okCount, "errors", errCount)
	if errCount > 0 {
		os.Exit(1)
	}
}

// migrationFiles returns the non-empty .sql files in dir in lexical order.
func migrationFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// apply runs one file in its own transaction.
func apply(ctx context.Context, db *sql.DB, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if strings.TrimSpace(string(data)) == "" {
		return nil
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if _, err := tx.ExecContext(ctx, string(data)); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func listTables(ctx context.Context, db *sql.DB) error {
	for _, t := range dispatchTables {
		var exists bool
		err := db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM pg_tables WHERE schemaname = 'public' AND tablename = $1)`, t).Scan(&exists)
		if err != nil {
			return err
		}
		fmt.Printf("  %-20s %v\n", t, exists)
	}
	return nil
}
