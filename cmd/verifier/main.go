// Command verifier runs an offline integrity pass over the audit ledger.
// It connects straight to the database, so a compromised portal binary
// cannot vouch for its own chain. Exit code 0 means the chain verified,
// 1 means a break was found, 2 means the pass could not run.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/quickserve/servegate/internal/config"
	"github.com/quickserve/servegate/internal/ledger"
	"github.com/quickserve/servegate/internal/pkg/logger"
	"github.com/quickserve/servegate/internal/repository"
)

func main() {
	var (
		from     = flag.Uint64("from", 0, "first sequence number to verify (0 = start of chain)")
		to       = flag.Uint64("to", 0, "last sequence number to verify (0 = tail)")
		doExport = flag.Bool("export", false, "print the court-submission export envelope instead of verifying")
	)
	flag.Parse()

	logger.Init("warn")

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(2)
	}
	if cfg.Database.DSN == "" {
		fmt.Fprintln(os.Stderr, "database dsn not configured; nothing to verify")
		os.Exit(2)
	}

	db, err := repository.NewDB(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to connect to database:", err)
		os.Exit(2)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	ledgerSvc := ledger.NewService(repository.NewPostgresEventRepo(db), nil)

	if *doExport {
		envelope, err := ledgerSvc.Export(ctx, *from, *to)
		if err != nil {
			fmt.Fprintln(os.Stderr, "export failed:", err)
			os.Exit(2)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(envelope); err != nil {
			fmt.Fprintln(os.Stderr, "encode failed:", err)
			os.Exit(2)
		}
		return
	}

	result, err := ledgerSvc.Verify(ctx, *from, *to)
	if err != nil {
		fmt.Fprintln(os.Stderr, "verification pass failed:", err)
		os.Exit(2)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		fmt.Fprintln(os.Stderr, "encode failed:", err)
		os.Exit(2)
	}
	if !result.Valid {
		os.Exit(1)
	}
}
