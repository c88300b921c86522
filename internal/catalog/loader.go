package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/terra-clan/codecrafters/internal/models"
)

// Seeder is the subset of the repository the loader writes into
type Seeder interface {
	UpsertChallenge(ctx context.Context, c *models.Challenge) error
	UpsertAchievement(ctx context.Context, a *models.Achievement) error
}

// Loader reads the challenge and achievement catalog from YAML files.
//
// Layout:
//
//	<dir>/challenges/*.yaml   one challenge per file
//	<dir>/achievements.yaml   list of achievements
type Loader struct {
	mu           sync.RWMutex
	challenges   map[string]*models.Challenge
	achievements map[string]*models.Achievement
}

// NewLoader creates an empty catalog loader
func NewLoader() *Loader {
	return &Loader{
		challenges:   make(map[string]*models.Challenge),
		achievements: make(map[string]*models.Achievement),
	}
}

// LoadFromDir loads every catalog file under dir. Invalid files are skipped with a warning.
func (l *Loader) LoadFromDir(dir string) error {
	slog.Info("loading catalog from directory", "dir", dir)

	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("failed to read catalog directory: %w", err)
	}

	var files []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, "challenges", pattern))
		if err != nil {
			continue
		}
		files = append(files, matches...)
	}
	sort.Strings(files)

	loaded := 0
	for _, file := range files {
		if err := l.LoadChallengeFile(file); err != nil {
			slog.Warn("failed to load challenge", "file", file, "error", err)
			continue
		}
		loaded++
	}

	slog.Info("challenges loaded", "count", loaded, "total_files", len(files))

	for _, name := range []string{"achievements.yaml", "achievements.yml"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}
		if err := l.LoadAchievementsFile(path); err != nil {
			slog.Warn("failed to load achievements", "file", path, "error", err)
		}
	}

	return nil
}

// LoadChallengeFile loads a single challenge YAML file.
// The challenge ID defaults to the file name without extension.
func (l *Loader) LoadChallengeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	var cf challengeFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	id := cf.ID
	if id == "" {
		base := filepath.Base(path)
		id = strings.TrimSuffix(base, filepath.Ext(base))
	}

	challenge, err := cf.toChallenge(id)
	if err != nil {
		return err
	}

	if prev := l.Get(challenge.ID); prev != nil {
		slog.Warn("duplicate challenge id, later file wins", "id", challenge.ID, "file", path)
	}

	l.mu.Lock()
	l.challenges[challenge.ID] = challenge
	l.mu.Unlock()

	slog.Debug("challenge loaded", "id", challenge.ID, "difficulty", challenge.Difficulty, "branch", challenge.Branch)
	return nil
}

// LoadAchievementsFile loads the achievement catalog
func (l *Loader) LoadAchievementsFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	var af achievementsFile
	if err := yaml.Unmarshal(data, &af); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for _, a := range af.Achievements {
		if a.ID == "" || a.BadgeName == "" {
			slog.Warn("skipping achievement without id or badge_name", "file", path)
			continue
		}
		l.achievements[a.ID] = &models.Achievement{
			ID:             a.ID,
			BadgeName:      a.BadgeName,
			Description:    a.Description,
			IconName:       a.IconName,
			Category:       a.Category,
			UnlockCriteria: a.UnlockCriteria,
		}
	}

	slog.Info("achievements loaded", "count", len(af.Achievements))
	return nil
}

// Challenges returns the loaded challenges sorted by ID
func (l *Loader) Challenges() []*models.Challenge {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]*models.Challenge, 0, len(l.challenges))
	for _, c := range l.challenges {
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// Get returns a loaded challenge by ID
func (l *Loader) Get(id string) *models.Challenge {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.challenges[id]
}

// Achievements returns the loaded achievements sorted by ID
func (l *Loader) Achievements() []*models.Achievement {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]*models.Achievement, 0, len(l.achievements))
	for _, a := range l.achievements {
		result = append(result, a)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// Seed writes the loaded catalog into the repository
func (l *Loader) Seed(ctx context.Context, repo Seeder) (challenges, achievements int, err error) {
	for _, c := range l.Challenges() {
		if err := repo.UpsertChallenge(ctx, c); err != nil {
			return challenges, achievements, fmt.Errorf("failed to seed challenge %s: %w", c.ID, err)
		}
		challenges++
	}

	for _, a := range l.Achievements() {
		if err := repo.UpsertAchievement(ctx, a); err != nil {
			return challenges, achievements, fmt.Errorf("failed to seed achievement %s: %w", a.ID, err)
		}
		achievements++
	}

	slog.Info("catalog seeded", "challenges", challenges, "achievements", achievements)
	return challenges, achievements, nil
}

// --- YAML file structs ---

// challengeFile represents the YAML structure of a challenge file
type challengeFile struct {
	ID           string            `yaml:"id"`
	Title        string            `yaml:"title"`
	Description  string            `yaml:"description"`
	Difficulty   string            `yaml:"difficulty"`
	Branch       string            `yaml:"branch"`
	Topic        string            `yaml:"topic"`
	StarterCode  map[string]string `yaml:"starter_code"`
	TestCases    []models.TestCase `yaml:"test_cases"`
	SolutionCode string            `yaml:"solution_code"`
}

func (cf challengeFile) toChallenge(id string) (*models.Challenge, error) {
	if cf.Title == "" {
		return nil, fmt.Errorf("challenge title is required")
	}

	difficulty := models.Difficulty(cf.Difficulty)
	if !difficulty.Valid() {
		return nil, fmt.Errorf("invalid difficulty %q", cf.Difficulty)
	}

	branch := models.Branch(cf.Branch)
	if branch == "" {
		branch = models.BranchGeneral
	}
	if branch != models.BranchGeneral && !branch.Valid() {
		return nil, fmt.Errorf("invalid branch %q", cf.Branch)
	}

	starter := make(models.StarterCode, len(cf.StarterCode))
	for key, code := range cf.StarterCode {
		lang := models.Language(strings.ToLower(key))
		if !lang.Valid() {
			return nil, fmt.Errorf("unsupported starter code language %q", key)
		}
		starter[lang] = code
	}

	return &models.Challenge{
		ID:           id,
		Title:        cf.Title,
		Description:  strings.TrimSpace(cf.Description),
		Difficulty:   difficulty,
		Branch:       branch,
		Topic:        cf.Topic,
		StarterCode:  starter,
		TestCases:    cf.TestCases,
		SolutionCode: cf.SolutionCode,
	}, nil
}

// achievementsFile represents the YAML structure of achievements.yaml
type achievementsFile struct {
	Achievements []struct {
		ID             string         `yaml:"id"`
		BadgeName      string         `yaml:"badge_name"`
		Description    string         `yaml:"description"`
		IconName       string         `yaml:"icon_name"`
		Category       string         `yaml:"category"`
		UnlockCriteria map[string]any `yaml:"unlock_criteria"`
	} `yaml:"achievements"`
}
