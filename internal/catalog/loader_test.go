package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/terra-clan/codecrafters/internal/models"
	"github.com/terra-clan/codecrafters/internal/storage"
)

func TestLoadCatalogFromDir(t *testing.T) {
	// Use the repository catalog directory
	catalogDir := filepath.Join("..", "..", "catalog")

	if _, err := os.Stat(catalogDir); os.IsNotExist(err) {
		t.Skip("catalog directory not found, skipping")
	}

	loader := NewLoader()
	if err := loader.LoadFromDir(catalogDir); err != nil {
		t.Fatalf("LoadFromDir failed: %v", err)
	}

	challenges := loader.Challenges()
	if len(challenges) < 4 {
		t.Errorf("expected at least 4 challenges, got %d", len(challenges))
	}

	twoSum := loader.Get("two-sum")
	if twoSum == nil {
		t.Fatal("two-sum challenge not found")
	}
	if twoSum.Difficulty != models.DifficultyEasy {
		t.Errorf("expected difficulty Easy, got %s", twoSum.Difficulty)
	}
	if twoSum.Branch != models.BranchGeneral {
		t.Errorf("expected branch General, got %s", twoSum.Branch)
	}
	if !twoSum.StarterCode.Has(models.LanguagePython) {
		t.Error("expected python starter code for two-sum")
	}
	if len(twoSum.TestCases) < 2 {
		t.Errorf("expected at least 2 test cases, got %d", len(twoSum.TestCases))
	}

	// ID falls back to the file name
	reverse := loader.Get("reverse-string")
	if reverse == nil {
		t.Fatal("reverse-string challenge not found")
	}
	if len(reverse.StarterCode.Languages()) != len(models.Languages) {
		t.Errorf("expected starter code for every language, got %v", reverse.StarterCode.Languages())
	}

	achievements := loader.Achievements()
	if len(achievements) < 4 {
		t.Errorf("expected at least 4 achievements, got %d", len(achievements))
	}
	for _, a := range achievements {
		if a.UnlockCriteria == nil {
			t.Errorf("achievement %s has no unlock criteria", a.ID)
		}
	}
}

func TestLoadChallengeFile_Invalid(t *testing.T) {
	dir := t.TempDir()

	cases := map[string]string{
		"no-title.yaml":       "difficulty: Easy\n",
		"bad-difficulty.yaml": "title: X\ndifficulty: Trivial\n",
		"bad-branch.yaml":     "title: X\ndifficulty: Easy\nbranch: MECH\n",
		"bad-language.yaml":   "title: X\ndifficulty: Easy\nstarter_code:\n  rust: fn main() {}\n",
		"broken.yaml":         "title: [unterminated\n",
	}

	for name, content := range cases {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}

		loader := NewLoader()
		if err := loader.LoadChallengeFile(path); err == nil {
			t.Errorf("%s: expected error, got nil", name)
		}
	}
}

func TestLoadFromDir_SkipsInvalidFiles(t *testing.T) {
	dir := t.TempDir()
	challengesDir := filepath.Join(dir, "challenges")
	if err := os.MkdirAll(challengesDir, 0o755); err != nil {
		t.Fatal(err)
	}

	files := map[string]string{
		"good.yaml": "title: Good\ndifficulty: Medium\nbranch: IT\ntopic: Trees\n",
		"bad.yaml":  "title: Bad\ndifficulty: Impossible\n",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(challengesDir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	loader := NewLoader()
	if err := loader.LoadFromDir(dir); err != nil {
		t.Fatalf("LoadFromDir failed: %v", err)
	}

	challenges := loader.Challenges()
	if len(challenges) != 1 {
		t.Fatalf("expected 1 challenge, got %d", len(challenges))
	}
	if challenges[0].ID != "good" {
		t.Errorf("expected id 'good', got '%s'", challenges[0].ID)
	}
	if len(loader.Achievements()) != 0 {
		t.Errorf("expected no achievements without achievements.yaml")
	}
}

func TestLoadFromDir_MissingDir(t *testing.T) {
	loader := NewLoader()
	if err := loader.LoadFromDir(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestSeed(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "challenges"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "challenges", "a.yaml"), []byte("title: A\ndifficulty: Easy\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	achievements := "achievements:\n  - id: first\n    badge_name: First\n  - id: nameless\n"
	if err := os.WriteFile(filepath.Join(dir, "achievements.yaml"), []byte(achievements), 0o644); err != nil {
		t.Fatal(err)
	}

	loader := NewLoader()
	if err := loader.LoadFromDir(dir); err != nil {
		t.Fatalf("LoadFromDir failed: %v", err)
	}

	repo := storage.NewMemoryRepository()
	nc, na, err := loader.Seed(context.Background(), repo)
	if err != nil {
		t.Fatalf("Seed failed: %v", err)
	}
	if nc != 1 || na != 1 {
		t.Errorf("expected 1 challenge and 1 achievement seeded, got %d and %d", nc, na)
	}

	c, err := repo.GetChallenge(context.Background(), "a")
	if err != nil {
		t.Fatalf("GetChallenge failed: %v", err)
	}
	if c.Branch != models.BranchGeneral {
		t.Errorf("expected default branch General, got %s", c.Branch)
	}
}
