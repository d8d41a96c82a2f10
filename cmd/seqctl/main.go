// Package main provides the docseq administration CLI.
//
// Usage:
//
//	seqctl migrate
//	seqctl create --name "Customer Invoices" --code INV --prefix "INV/%(year)s/" --padding 4
//	seqctl next --code INV
package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	appctx "docseq/internal/core/context"
	"docseq/internal/core/id"
	"docseq/internal/core/numerator"
	"docseq/internal/domain/auth"
	"docseq/internal/domain/sequence"
	"docseq/internal/infrastructure/storage/postgres"
	"docseq/internal/infrastructure/storage/postgres/sequence_repo"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx := context.Background()
	args := parseArgs(os.Args[2:])

	switch os.Args[1] {
	case "migrate":
		migrate(args)
	case "list":
		listSequences(ctx)
	case "create":
		createSequence(ctx, args)
	case "next":
		nextNumber(ctx, args)
	case "preview":
		previewNumber(ctx, args)
	case "org":
		organizations(ctx, args)
	case "token":
		issueToken(args)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`docseq Sequence Management CLI

Usage:
  seqctl <command> [options]

Commands:
  migrate   Apply database migrations (requires goose)
  list      List all sequences
  create    Create a sequence
  next      Draw the next number
  preview   Show the next number without drawing it
  org       Manage organizations (add, list)
  token     Issue an access token for the API
  help      Show this help

Environment Variables:
  DATABASE_URL   Connection string (required except for token)
  JWT_SECRET     Signing secret for token

Examples:
  seqctl migrate
  seqctl create --name "Customer Invoices" --code INV --prefix "INV/%(year)s/" --padding 4 --no-gap
  seqctl create --name "Receipts" --code RCP --date-range --org <org-uuid>
  seqctl next --code INV --date 2026-01-31
  seqctl next --id <sequence-uuid>
  seqctl preview --id <sequence-uuid>
  seqctl org add --name "ACME Corporation"
  seqctl token --user u1 --perm sequence:read,sequence:write --org <org-uuid>`)
}

// cliArgs holds "--name value" options and bare "--flag" switches.
type cliArgs struct {
	values     map[string]string
	flags      map[string]bool
	positional []string
}

func parseArgs(raw []string) cliArgs {
	a := cliArgs{values: map[string]string{}, flags: map[string]bool{}}
	for i := 0; i < len(raw); i++ {
		name, ok := strings.CutPrefix(raw[i], "--")
		if !ok {
			a.positional = append(a.positional, raw[i])
			continue
		}
		if i+1 < len(raw) && !strings.HasPrefix(raw[i+1], "--") {
			a.values[name] = raw[i+1]
			i++
			continue
		}
		a.flags[name] = true
	}
	return a
}

func (a cliArgs) int64(name string, def int64) int64 {
	v, ok := a.values[name]
	if !ok {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		fail("--%s must be an integer", name)
	}
	return n
}

func (a cliArgs) id(name string) *id.ID {
	v, ok := a.values[name]
	if !ok {
		return nil
	}
	parsed, err := id.Parse(v)
	if err != nil {
		fail("--%s must be a UUID", name)
	}
	return &parsed
}

func fail(format string, args ...any) {
	fmt.Printf("Error: "+format+"\n", args...)
	os.Exit(1)
}

func databaseURL() string {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		fail("DATABASE_URL environment variable is required")
	}
	return dsn
}

// backend is the postgres wiring shared by the data commands.
type backend struct {
	pool    *postgres.Pool
	service *sequence.Service
	orgs    *sequence_repo.OrganizationRepo
}

func connect(ctx context.Context) *backend {
	poolCfg := postgres.DefaultPoolConfig(databaseURL())
	poolCfg.MinConns = 0
	poolCfg.ApplicationName = "seqctl"
	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		fail("connecting to database: %v", err)
	}

	txManager := postgres.NewTxManager(pool, postgres.DefaultTxOptions())
	audit, err := postgres.NewAuditService(txManager)
	if err != nil {
		fail("%v", err)
	}
	orgs := sequence_repo.NewOrganizationRepo(txManager)

	// The CLI is a trusted caller: no access checks.
	service := sequence.NewService(sequence.Config{
		Repo:      sequence_repo.NewSequenceRepo(txManager),
		Counters:  sequence_repo.NewCounterStore(txManager),
		TxManager: txManager,
		Directory: orgs,
		Audit:     audit,
	})
	return &backend{pool: pool, service: service, orgs: orgs}
}

func migrate(args cliArgs) {
	dir := args.values["dir"]
	if dir == "" {
		dir = "db/migrations"
	}
	cmd := exec.Command("goose", "-dir", dir, "postgres", databaseURL(), "up")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		fail("migrations failed: %v", err)
	}
	fmt.Println("✓ Migrations applied")
}

func listSequences(ctx context.Context) {
	b := connect(ctx)
	defer b.pool.Close()

	seqs, err := b.service.List(ctx)
	if err != nil {
		fail("listing sequences: %v", err)
	}
	if len(seqs) == 0 {
		fmt.Println("No sequences found")
		return
	}

	fmt.Printf("%-36s %-12s %-30s %-8s %-12s %-8s\n", "SEQUENCE_ID", "CODE", "NAME", "IMPL", "NEXT", "ACTIVE")
	fmt.Println(strings.Repeat("-", 111))
	for _, s := range seqs {
		next, err := b.service.NumberNextActual(ctx, s.ID)
		if err != nil {
			fail("reading %s: %v", s.ID, err)
		}
		fmt.Printf("%-36s %-12s %-30s %-8s %-12d %-8t\n",
			s.ID,
			truncate(s.Code, 12),
			truncate(s.Name, 30),
			s.Implementation,
			next,
			s.Active,
		)
	}
}

func createSequence(ctx context.Context, args cliArgs) {
	name := args.values["name"]
	if name == "" {
		fmt.Println("Error: --name is required")
		fmt.Println("Usage: seqctl create --name <name> [--code <code>] [--prefix <p>] [--suffix <s>] [--padding <n>] [--next <n>] [--step <n>] [--no-gap] [--date-range] [--org <uuid>]")
		os.Exit(1)
	}

	seq := sequence.NewSequence(name, args.values["code"])
	seq.Prefix = args.values["prefix"]
	seq.Suffix = args.values["suffix"]
	seq.Padding = int(args.int64("padding", 0))
	seq.NumberNext = args.int64("next", 1)
	seq.NumberIncrement = args.int64("step", 1)
	seq.UseDateRange = args.flags["date-range"]
	seq.OrganizationID = args.id("org")
	if args.flags["no-gap"] {
		seq.Implementation = numerator.StrategyNoGap
	}

	b := connect(ctx)
	defer b.pool.Close()

	if err := b.service.Create(ctx, seq); err != nil {
		fail("creating sequence: %v", err)
	}
	fmt.Printf("✓ Sequence '%s' created\n", seq.Name)
	fmt.Printf("  Sequence ID: %s\n", seq.ID)
	fmt.Printf("  Implementation: %s\n", seq.Implementation)
}

func nextNumber(ctx context.Context, args cliArgs) {
	seqID := args.id("id")
	code := args.values["code"]
	if seqID == nil && code == "" {
		fail("specify --id <sequence-uuid> or --code <code>")
	}

	overrides := appctx.SequenceOverrides{
		Date:      args.values["date"],
		DateRange: args.values["range-date"],
		TimeZone:  args.values["tz"],
	}
	ctx = appctx.WithSequenceOverrides(ctx, overrides)

	b := connect(ctx)
	defer b.pool.Close()

	if seqID != nil {
		number, err := b.service.NextByID(ctx, *seqID)
		if err != nil {
			fail("%v", err)
		}
		fmt.Println(number)
		return
	}

	number, found, err := b.service.NextByCode(ctx, code, args.id("org"))
	if err != nil {
		fail("%v", err)
	}
	if !found {
		fail("no active sequence with code '%s'", code)
	}
	fmt.Println(number)
}

func previewNumber(ctx context.Context, args cliArgs) {
	seqID := args.id("id")
	if seqID == nil {
		fail("--id <sequence-uuid> is required")
	}

	b := connect(ctx)
	defer b.pool.Close()

	next, err := b.service.NumberNextActual(ctx, *seqID)
	if err != nil {
		fail("%v", err)
	}
	fmt.Println(next)
}

func organizations(ctx context.Context, args cliArgs) {
	if len(args.positional) == 0 {
		fail("usage: seqctl org add --name <name> | seqctl org list")
	}

	b := connect(ctx)
	defer b.pool.Close()

	switch args.positional[0] {
	case "add":
		name := args.values["name"]
		if name == "" {
			fail("--name is required")
		}
		org, err := b.orgs.Create(ctx, name)
		if err != nil {
			fail("creating organization: %v", err)
		}
		fmt.Printf("✓ Organization '%s' created\n", org.Name)
		fmt.Printf("  Organization ID: %s\n", org.ID)
	case "list":
		orgs, err := b.orgs.List(ctx)
		if err != nil {
			fail("listing organizations: %v", err)
		}
		if len(orgs) == 0 {
			fmt.Println("No organizations found")
			return
		}
		fmt.Printf("%-36s %-30s %-20s\n", "ORGANIZATION_ID", "NAME", "CREATED")
		fmt.Println(strings.Repeat("-", 88))
		for _, o := range orgs {
			fmt.Printf("%-36s %-30s %-20s\n", o.ID, truncate(o.Name, 30), o.CreatedAt.Format(time.DateTime))
		}
	default:
		fail("unknown org command: %s", args.positional[0])
	}
}

func issueToken(args cliArgs) {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		fail("JWT_SECRET environment variable is required")
	}
	user := &appctx.UserContext{
		UserID:   args.values["user"],
		Email:    args.values["email"],
		OrgID:    args.values["org"],
		TimeZone: args.values["tz"],
		IsAdmin:  args.flags["admin"],
	}
	if user.UserID == "" {
		fail("--user is required")
	}
	if perms := args.values["perm"]; perms != "" {
		user.Permissions = strings.Split(perms, ",")
	}
	if orgs := args.values["orgs"]; orgs != "" {
		user.OrgIDs = strings.Split(orgs, ",")
	}

	cfg := auth.DefaultJWTConfig(secret)
	if ttl := args.values["ttl"]; ttl != "" {
		d, err := time.ParseDuration(ttl)
		if err != nil {
			fail("--ttl: %v", err)
		}
		cfg.AccessTokenTTL = d
	}

	token, expiresAt, err := auth.NewJWTService(cfg).GenerateAccessToken(user)
	if err != nil {
		fail("signing token: %v", err)
	}
	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "expires at %s\n", expiresAt.Format(time.RFC3339))
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
