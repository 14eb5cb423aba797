// vaultctl is the operator CLI for the vault core: triggering daily roots
// from cron, running verification reports for compliance review, and reading
// forensic watermarks out of rendered copies.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/nav2424/rift-sub004/internal/flagx"
	"github.com/nav2424/rift-sub004/internal/logging"
	"github.com/nav2424/rift-sub004/internal/server/config"
	"github.com/nav2424/rift-sub004/internal/server/dailyroot"
	"github.com/nav2424/rift-sub004/internal/server/ledger"
	"github.com/nav2424/rift-sub004/internal/server/repositories/repomanager"
	"github.com/nav2424/rift-sub004/internal/server/signing"
	"github.com/nav2424/rift-sub004/internal/server/watermark"
)

func usage() {
	fmt.Fprintln(os.Stderr, `usage: vaultctl <command> [flags]

commands:
  root         generate the daily root for a date (-date YYYY-MM-DD)
  verify       verify one transaction's event chain (-txn ID)
  roots-verify recompute and verify all stored daily roots
  extract      read the embedded watermark from a rendered copy (-file f.png)`)
	os.Exit(2)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	command := os.Args[1]
	// Shift the subcommand out so the shared config flag parsing sees only
	// its own flags.
	os.Args = append(os.Args[:1], os.Args[2:]...)

	switch command {
	case "root":
		runRoot()
	case "verify":
		runVerify()
	case "roots-verify":
		runRootsVerify()
	case "extract":
		runExtract()
	default:
		usage()
	}
}

type services struct {
	ledger *ledger.Service
	roots  *dailyroot.Service
	db     *sql.DB
}

func connect(cfg *config.Config) (*services, error) {
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stderr, nil)))

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	signer, err := signing.New(cfg.SigningPrivateKey, cfg.SigningPublicKey)
	if err != nil {
		return nil, fmt.Errorf("signing key error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	eventRepo := rm.Events(db)

	return &services{
		ledger: ledger.NewService(eventRepo, cfg.IdentifierHashSalt, logger),
		roots:  dailyroot.NewService(eventRepo, rm.Roots(db), signer, dailyroot.NewPostgresDayLocker(db), logger),
		db:     db,
	}, nil
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fatal(err)
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "vaultctl: %v\n", err)
	os.Exit(1)
}

func runRoot() {
	fs := flag.NewFlagSet("root", flag.ExitOnError)
	date := fs.String("date", "", "UTC day to root, YYYY-MM-DD (default: yesterday)")
	fs.Parse(flagx.FilterArgs(os.Args[1:], []string{"-date"}))

	day := time.Now().UTC().AddDate(0, 0, -1)
	if *date != "" {
		parsed, err := time.Parse("2006-01-02", *date)
		if err != nil {
			fatal(fmt.Errorf("bad -date: %w", err))
		}
		day = parsed
	}

	svcs, err := connect(config.LoadConfig())
	if err != nil {
		fatal(err)
	}
	defer svcs.db.Close()

	root, err := svcs.roots.Generate(context.Background(), day)
	if err != nil {
		fatal(err)
	}
	if root == nil {
		fmt.Printf("no events on %s, nothing to root\n", day.Format("2006-01-02"))
		return
	}

	printJSON(map[string]any{
		"day":          root.Day.Format("2006-01-02"),
		"rootHash":     root.RootHash,
		"prevRootHash": root.PrevRootHash,
		"signature":    root.Signature,
		"signatureAlg": root.SignatureAlg,
		"eventCount":   root.EventCount,
	})
}

func runVerify() {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	txn := fs.String("txn", "", "transaction id to verify")
	fs.Parse(flagx.FilterArgs(os.Args[1:], []string{"-txn"}))

	if *txn == "" {
		fatal(fmt.Errorf("-txn is required"))
	}

	svcs, err := connect(config.LoadConfig())
	if err != nil {
		fatal(err)
	}
	defer svcs.db.Close()

	report, err := svcs.ledger.Verify(context.Background(), *txn)
	if err != nil {
		fatal(err)
	}

	printJSON(report)
	if !report.Valid {
		os.Exit(1)
	}
}

func runRootsVerify() {
	fs := flag.NewFlagSet("roots-verify", flag.ExitOnError)
	fs.Parse(flagx.FilterArgs(os.Args[1:], nil))

	svcs, err := connect(config.LoadConfig())
	if err != nil {
		fatal(err)
	}
	defer svcs.db.Close()

	report, err := svcs.roots.VerifyAll(context.Background())
	if err != nil {
		fatal(err)
	}

	printJSON(report)
	if !report.Valid {
		os.Exit(1)
	}
}

func runExtract() {
	fs := flag.NewFlagSet("extract", flag.ExitOnError)
	file := fs.String("file", "", "PNG file to read the watermark from")
	fs.Parse(flagx.FilterArgs(os.Args[1:], []string{"-file"}))

	if *file == "" {
		fatal(fmt.Errorf("-file is required"))
	}

	data, err := os.ReadFile(*file)
	if err != nil {
		fatal(err)
	}

	tag, ok := watermark.Extract(data)
	if !ok {
		fmt.Fprintln(os.Stderr, "no watermark found (rendered copy may have been re-encoded)")
		os.Exit(1)
	}
	fmt.Println(tag)
}
