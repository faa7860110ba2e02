package questions

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/mcdev12/huroof/go/internal/assets"
	"github.com/mcdev12/huroof/go/internal/models"
	"github.com/mcdev12/huroof/go/internal/sqlutil"
	"github.com/mcdev12/huroof/go/internal/storage"
)

type countingRepo struct {
	*MemoryRepository
	generalLoads int
}

func (c *countingRepo) ListGeneral(ctx context.Context) (models.QuestionPool, error) {
	c.generalLoads++
	return c.MemoryRepository.ListGeneral(ctx)
}

func TestLoadGeneralIsCached(t *testing.T) {
	repo := &countingRepo{MemoryRepository: NewMemoryRepository(models.QuestionPool{
		"أ": {{Question: "q1", Answer: "a1"}},
	})}
	b := NewBank(repo, nil)

	for i := 0; i < 3; i++ {
		pool, err := b.LoadGeneral(context.Background())
		if err != nil {
			t.Fatalf("LoadGeneral: %v", err)
		}
		if pool.Count() != 1 {
			t.Fatalf("unexpected pool %+v", pool)
		}
	}
	if repo.generalLoads != 1 {
		t.Fatalf("general pool loaded %d times, want 1", repo.generalLoads)
	}
}

func TestAddSessionQuestionSQLite(t *testing.T) {
	ctx := context.Background()
	db, err := storage.Open(ctx, storage.Options{
		Driver:     sqlutil.SQLite,
		SQLitePath: filepath.Join(t.TempDir(), "questions.db"),
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	b := NewBank(NewSQLRepository(db), nil)
	if err := b.AddSessionQuestion(ctx, "AB12CD", "ب", models.Question{Question: "q", Answer: "a"}); err != nil {
		t.Fatalf("AddSessionQuestion: %v", err)
	}
	if err := b.AddSessionQuestion(ctx, "AB12CD", "ب", models.Question{Question: "q2", Answer: "a2"}); err != nil {
		t.Fatalf("AddSessionQuestion: %v", err)
	}
	if err := b.AddSessionQuestion(ctx, "OTHER1", "ت", models.Question{Question: "x", Answer: "y"}); err != nil {
		t.Fatalf("AddSessionQuestion: %v", err)
	}

	pool, err := b.LoadSessionScoped(ctx, "AB12CD")
	if err != nil {
		t.Fatalf("LoadSessionScoped: %v", err)
	}
	if len(pool["ب"]) != 2 || pool["ب"][1].Question != "q2" || len(pool) != 1 {
		t.Fatalf("unexpected session pool %+v", pool)
	}

	general, err := b.LoadGeneral(ctx)
	if err != nil || len(general) != 0 {
		t.Fatalf("general pool = %+v, %v", general, err)
	}
}

func TestAddSessionQuestionValidates(t *testing.T) {
	b := NewBank(NewMemoryRepository(nil), nil)
	bad := []struct {
		letter string
		q      models.Question
	}{
		{"x", models.Question{Question: "q", Answer: "a"}},
		{"ب", models.Question{Question: " ", Answer: "a"}},
		{"ب", models.Question{Question: "q", Answer: ""}},
	}
	for _, c := range bad {
		if err := b.AddSessionQuestion(context.Background(), "AB12CD", c.letter, c.q); !errors.Is(err, ErrInvalidQuestion) {
			t.Fatalf("AddSessionQuestion(%q, %+v) = %v", c.letter, c.q, err)
		}
	}
}

func TestSeedGeneralFillsEmptyTableOnce(t *testing.T) {
	ctx := context.Background()
	db, err := storage.Open(ctx, storage.Options{
		Driver:     sqlutil.SQLite,
		SQLitePath: filepath.Join(t.TempDir(), "seed.db"),
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	pool, err := ParsePool(assets.Questions)
	if err != nil {
		t.Fatalf("ParsePool: %v", err)
	}
	if pool.Count() == 0 {
		t.Fatalf("bundled pool is empty")
	}

	repo := NewSQLRepository(db)
	n, err := repo.SeedGeneral(ctx, pool)
	if err != nil || n != pool.Count() {
		t.Fatalf("SeedGeneral = %d, %v; want %d", n, err, pool.Count())
	}
	if n, err := repo.SeedGeneral(ctx, pool); err != nil || n != 0 {
		t.Fatalf("second SeedGeneral = %d, %v; want 0", n, err)
	}

	general, err := NewBank(repo, nil).LoadGeneral(ctx)
	if err != nil || general.Count() != pool.Count() {
		t.Fatalf("general pool = %d questions, %v", general.Count(), err)
	}
}

func TestParsePoolRejectsUnknownLetters(t *testing.T) {
	if _, err := ParsePool([]byte(`{"x": [["q", "a"]]}`)); !errors.Is(err, ErrInvalidQuestion) {
		t.Fatalf("ParsePool() = %v, want ErrInvalidQuestion", err)
	}
	if _, err := ParsePool([]byte(`{"ب": [["only question"]]}`)); err == nil {
		t.Fatalf("expected error for a malformed pair")
	}
}
