package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mcdev12/huroof/go/internal/assets"
	"github.com/mcdev12/huroof/go/internal/dbconfig"
	"github.com/mcdev12/huroof/go/internal/questions"
)

// Loads a general question file shaped {"letter": [["question", "answer"], ...]}
// into Postgres. Without an argument the bundled pool is used.
func main() {
	data := assets.Questions
	if len(os.Args) > 1 {
		var err error
		if data, err = os.ReadFile(os.Args[1]); err != nil {
			fmt.Fprintf(os.Stderr, "read JSON: %v\n", err)
			os.Exit(1)
		}
	}
	pool, err := questions.ParsePool(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "parse questions: %v\n", err)
		os.Exit(1)
	}

	cfg := dbconfig.NewConfigFromEnv()
	db, err := pgxpool.New(context.Background(), cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	var total, inserted, skipped, errs int
	for letter, qs := range pool {
		for _, q := range qs {
			total++
			tag, err := db.Exec(context.Background(), `
				INSERT INTO general_questions (letter, question, answer)
				VALUES ($1, $2, $3)
				ON CONFLICT (letter, question) DO NOTHING`,
				letter, q.Question, q.Answer,
			)
			if err != nil {
				fmt.Fprintf(os.Stderr, "error inserting question for %s: %v\n", letter, err)
				errs++
				continue
			}
			if tag.RowsAffected() == 1 {
				inserted++
			} else {
				skipped++
			}
		}
	}

	fmt.Printf(
		"Questions seed complete: %d total, %d inserted, %d skipped, %d errors\n",
		total, inserted, skipped, errs,
	)
}
