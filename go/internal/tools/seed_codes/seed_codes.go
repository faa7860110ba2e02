package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mcdev12/huroof/go/internal/codes"
	"github.com/mcdev12/huroof/go/internal/dbconfig"
	"github.com/mcdev12/huroof/go/internal/sqlutil"
)

// Registers subscriber codes given as arguments:
//
//	seed_codes [-admin] AB12CD SXY12345 ...
func main() {
	admin := flag.Bool("admin", false, "mark the codes as admin codes")
	flag.Parse()
	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: seed_codes [-admin] CODE...")
		os.Exit(2)
	}

	cfg := dbconfig.NewConfigFromEnv()
	db, err := pgxpool.New(context.Background(), cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	validator := codes.NewValidator(nil, codes.DefaultSpecialPrefix)
	now := sqlutil.ToMillis(time.Now())

	var inserted, skipped, errs int
	for _, raw := range flag.Args() {
		code, err := validator.Normalize(raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "skipping %q: %v\n", strings.TrimSpace(raw), err)
			errs++
			continue
		}
		tag, err := db.Exec(context.Background(), `
			INSERT INTO subscribers (code, is_admin, created_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (code) DO NOTHING`,
			code, *admin, now,
		)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error inserting code %s: %v\n", code, err)
			errs++
			continue
		}
		if tag.RowsAffected() == 1 {
			inserted++
		} else {
			skipped++
		}
	}

	fmt.Printf("Codes seed complete: %d inserted, %d skipped, %d errors\n", inserted, skipped, errs)
}
