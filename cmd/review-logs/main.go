package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"syscall"

	"github.com/stemsi/icas-portal/internal/config"
	"github.com/stemsi/icas-portal/internal/database"
	"github.com/stemsi/icas-portal/internal/logger"
	"github.com/stemsi/icas-portal/internal/proctor"
	"github.com/stemsi/icas-portal/internal/service"
	"github.com/stemsi/icas-portal/internal/store"
	"golang.org/x/term"
)

const minPassphraseLength = 6

func main() {
	flag.Usage = printUsage
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		printUsage()
		os.Exit(2)
	}

	switch args[0] {
	case "hash":
		runHash()
	case "list":
		runList()
	case "clear":
		runClear()
	default:
		printUsage()
		os.Exit(2)
	}
}

// runHash prompts for a passphrase and prints the value for
// REVIEWER_PASSWORD_HASH.
func runHash() {
	fmt.Println("=== Create Reviewer Passphrase ===")

	passphrase := readPassphrase("Enter Passphrase: ")
	if len(passphrase) < minPassphraseLength {
		fail("Passphrase must be at least %d characters", minPassphraseLength)
	}
	if confirm := readPassphrase("Repeat Passphrase: "); confirm != passphrase {
		fail("Passphrases do not match")
	}

	hash, err := service.HashPassphrase(passphrase)
	if err != nil {
		fail("Failed to hash passphrase: %v", err)
	}
	fmt.Printf("\nREVIEWER_PASSWORD_HASH=%s\n", hash)
}

func runList() {
	violations, cleanup := openViolations()
	defer cleanup()

	ctx := context.Background()
	out := map[string]interface{}{
		"stats":   violations.Stats(ctx),
		"entries": violations.Entries(ctx),
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fail("Failed to print entries: %v", err)
	}
}

func runClear() {
	violations, cleanup := openViolations()
	defer cleanup()

	passphrase := readPassphrase("Enter Reviewer Passphrase: ")
	if err := violations.Clear(context.Background(), passphrase); err != nil {
		fail("Clear failed: %v", err)
	}
	fmt.Println("Violation log cleared")
}

// openViolations connects to the Redis store the server uses.
func openViolations() (*service.ViolationService, func()) {
	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	if cfg.StoreDriver == config.StoreDriverMemory {
		fail("The memory store is private to the server process; use STORE_DRIVER=redis")
	}

	rdb, err := database.NewRedisClient(context.Background(), cfg, log)
	if err != nil {
		fail("Failed to connect to Redis: %v", err)
	}

	violationLog := proctor.NewLog(store.NewRedis(rdb), log)
	return service.NewViolationService(violationLog, cfg.ReviewerPasswordHash, log), func() { _ = rdb.Close() }
}

func readPassphrase(prompt string) string {
	fmt.Print(prompt)
	b, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println() // Newline after hidden input
	if err != nil {
		fail("Error reading passphrase")
	}
	return string(b)
}

func fail(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

func printUsage() {
	fmt.Println("Usage: review-logs <command>")
	fmt.Println("Commands:")
	fmt.Println("  hash    hash a new reviewer passphrase")
	fmt.Println("  list    print violation statistics and entries")
	fmt.Println("  clear   clear the violation log (asks for the passphrase)")
}
