package grader

import (
	"archive/tar"
	"context"
	"errors"
	"io"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/codecrafters/internal/models"
)

func TestStatusForScore(t *testing.T) {
	tests := []struct {
		score int
		want  models.ProgressStatus
	}{
		{100, models.ProgressCompleted},
		{80, models.ProgressCompleted},
		{79, models.ProgressStarted},
		{60, models.ProgressStarted},
		{0, models.ProgressStarted},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusForScore(tt.score), "score %d", tt.score)
	}
}

func TestPlaceholderGrader_ScoreRange(t *testing.T) {
	g := NewPlaceholderGrader(rand.New(rand.NewSource(42)))
	challenge := &models.Challenge{ID: "two-sum", TestCases: []models.TestCase{{Input: "1", Output: "1"}}}

	seen := make(map[int]bool)
	for i := 0; i < 2000; i++ {
		res, err := g.Grade(context.Background(), challenge, models.LanguagePython, "print(1)")
		require.NoError(t, err)
		require.GreaterOrEqual(t, res.Score, 60)
		require.Less(t, res.Score, 100)
		assert.Equal(t, 1, res.Total)
		seen[res.Score] = true
	}

	// Both sides of the passing boundary occur
	assert.True(t, seen[PassingScore-1])
	assert.True(t, seen[PassingScore])
}

func TestPlaceholderGrader_Output(t *testing.T) {
	g := NewPlaceholderGrader(rand.New(rand.NewSource(1)))

	res, err := g.Grade(context.Background(), &models.Challenge{}, models.LanguageJavaScript, "")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.Output, "✓ Test cases passed!\nScore: "))
	assert.True(t, strings.HasSuffix(res.Output, "%"))
}

func TestPlaceholderGrader_CancelledContext(t *testing.T) {
	g := NewPlaceholderGrader(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.Grade(ctx, &models.Challenge{}, models.LanguageJavaScript, "")
	assert.ErrorIs(t, err, context.Canceled)
}

// fakeRunner answers each run with the next scripted result
type fakeRunner struct {
	results []RunResult
	errs    []error
	calls   []RunSpec
}

func (f *fakeRunner) Run(ctx context.Context, spec RunSpec) (RunResult, error) {
	i := len(f.calls)
	f.calls = append(f.calls, spec)

	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	if i < len(f.results) {
		return f.results[i], err
	}
	return RunResult{}, err
}

func threeCases() *models.Challenge {
	return &models.Challenge{
		ID: "reverse",
		TestCases: []models.TestCase{
			{Input: "abc", Output: "cba"},
			{Input: "hello", Output: "olleh"},
			{Input: "x", Output: "x"},
		},
	}
}

func TestDockerGrader_Score(t *testing.T) {
	runner := &fakeRunner{results: []RunResult{
		{Stdout: "cba\n"},
		{Stdout: "wrong\n"},
		{Stdout: "  x  "},
	}}
	g := NewRunnerGrader(runner, nil, time.Second)

	res, err := g.Grade(context.Background(), threeCases(), models.LanguagePython, "print(input()[::-1])")
	require.NoError(t, err)
	assert.Equal(t, 67, res.Score)
	assert.Equal(t, 2, res.Passed)
	assert.Equal(t, 3, res.Total)
	assert.Contains(t, res.Output, "✓ Test 1 passed")
	assert.Contains(t, res.Output, `✗ Test 2: expected "olleh", got "wrong"`)
	assert.Contains(t, res.Output, "Score: 67%")

	require.Len(t, runner.calls, 3)
	py := DefaultRuntimes[models.LanguagePython]
	assert.Equal(t, py.Image, runner.calls[0].Image)
	assert.Equal(t, "(python3 /tmp/main.py) < /tmp/input.txt", runner.calls[1].Script)
	assert.Equal(t, map[string]string{
		py.File:          "print(input()[::-1])",
		"/tmp/input.txt": "hello",
	}, runner.calls[1].Files)
}

func TestDockerGrader_LargeSolutionTravelsAsFile(t *testing.T) {
	runner := &fakeRunner{results: []RunResult{{Stdout: "cba"}, {Stdout: "olleh"}, {Stdout: "x"}}}
	g := NewRunnerGrader(runner, nil, time.Second)
	code := strings.Repeat("# padding\n", 20000) + "print(input()[::-1])"

	res, err := g.Grade(context.Background(), threeCases(), models.LanguagePython, code)
	require.NoError(t, err)
	assert.Equal(t, 100, res.Score)
	for _, call := range runner.calls {
		assert.NotContains(t, call.Script, "padding")
		assert.Equal(t, code, call.Files[DefaultRuntimes[models.LanguagePython].File])
	}
}

func TestArchiveFiles(t *testing.T) {
	big := strings.Repeat("a", 200*1024)
	archive, err := archiveFiles(map[string]string{
		"/tmp/main.py":   big,
		"/tmp/input.txt": "abc",
	})
	require.NoError(t, err)

	got := map[string]string{}
	tr := tar.NewReader(archive)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		data, err := io.ReadAll(tr)
		require.NoError(t, err)
		got[hdr.Name] = string(data)
	}

	assert.Equal(t, map[string]string{"tmp/input.txt": "abc", "tmp/main.py": big}, got)
}

func TestDockerGrader_FailuresDoNotPass(t *testing.T) {
	runner := &fakeRunner{
		results: []RunResult{
			{Stdout: "cba", ExitCode: 1, Stderr: "Traceback"},
			{},
			{Stdout: "x"},
		},
		errs: []error{nil, errors.New("container died")},
	}
	g := NewRunnerGrader(runner, nil, time.Second)

	res, err := g.Grade(context.Background(), threeCases(), models.LanguagePython, "")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Passed)
	assert.Equal(t, 33, res.Score)
	assert.Contains(t, res.Output, "exit code 1")
	assert.Contains(t, res.Output, "Traceback")
	assert.Contains(t, res.Output, "container died")
}

func TestDockerGrader_NoTestCases(t *testing.T) {
	runner := &fakeRunner{}
	g := NewRunnerGrader(runner, nil, time.Second)

	res, err := g.Grade(context.Background(), &models.Challenge{ID: "empty"}, models.LanguageJavaScript, "")
	require.NoError(t, err)
	assert.Zero(t, res.Score)
	assert.Empty(t, runner.calls)
}

func TestDockerGrader_UnsupportedLanguage(t *testing.T) {
	runtimes := map[models.Language]Runtime{
		models.LanguagePython: DefaultRuntimes[models.LanguagePython],
	}
	g := NewRunnerGrader(&fakeRunner{}, runtimes, time.Second)

	_, err := g.Grade(context.Background(), threeCases(), models.LanguageCPP, "")
	assert.ErrorIs(t, err, ErrUnsupportedLanguage)
}
