package grader

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/google/uuid"

	"github.com/terra-clan/codecrafters/internal/models"
)

// ErrUnsupportedLanguage is returned when no runtime is configured for a language
var ErrUnsupportedLanguage = errors.New("language not supported by grader")

// Runtime describes how to run one language inside a container.
// The solution is copied to File and Command is run through sh with the test input on stdin.
type Runtime struct {
	Image   string
	File    string
	Command string
}

// DefaultRuntimes are the container runtimes per language
var DefaultRuntimes = map[models.Language]Runtime{
	models.LanguageJavaScript: {Image: "node:20-alpine", File: "/tmp/main.js", Command: "node /tmp/main.js"},
	models.LanguagePython:     {Image: "python:3.12-alpine", File: "/tmp/main.py", Command: "python3 /tmp/main.py"},
	models.LanguageJava:       {Image: "eclipse-temurin:21-jdk-alpine", File: "/tmp/Main.java", Command: "java /tmp/Main.java"},
	models.LanguageCPP:        {Image: "gcc:13", File: "/tmp/main.cpp", Command: "g++ -O2 -o /tmp/main /tmp/main.cpp && /tmp/main"},
}

// RunResult is the captured output of a single container run
type RunResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// inputFile receives the test case input inside the container
const inputFile = "/tmp/input.txt"

// RunSpec describes one throwaway container run.
// Files are copied into the container before Script starts.
type RunSpec struct {
	Image  string
	Script string
	Files  map[string]string // absolute path -> contents
}

// Runner executes a shell script in a throwaway container
type Runner interface {
	Run(ctx context.Context, spec RunSpec) (RunResult, error)
}

// DockerConfig holds grading container settings
type DockerConfig struct {
	Host        string
	Network     string
	MemoryLimit int64
}

// DockerGrader runs every test case of a challenge in its own container
type DockerGrader struct {
	runner   Runner
	runtimes map[models.Language]Runtime
	timeout  time.Duration
}

// NewRunnerGrader creates a grader on top of any Runner
func NewRunnerGrader(runner Runner, runtimes map[models.Language]Runtime, timeout time.Duration) *DockerGrader {
	if len(runtimes) == 0 {
		runtimes = DefaultRuntimes
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &DockerGrader{
		runner:   runner,
		runtimes: runtimes,
		timeout:  timeout,
	}
}

// Grade runs the test cases and scores round(passed/total*100).
// A challenge without test cases scores 0.
func (g *DockerGrader) Grade(ctx context.Context, challenge *models.Challenge, lang models.Language, code string) (Result, error) {
	rt, ok := g.runtimes[lang]
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, lang)
	}

	total := len(challenge.TestCases)
	if total == 0 {
		return Result{Output: "No test cases defined\nScore: 0%"}, nil
	}

	script := fmt.Sprintf(`(%s) < %s`, rt.Command, inputFile)

	var out strings.Builder
	passed := 0
	for i, tc := range challenge.TestCases {
		caseCtx, cancel := context.WithTimeout(ctx, g.timeout)
		res, err := g.runner.Run(caseCtx, RunSpec{
			Image:  rt.Image,
			Script: script,
			Files: map[string]string{
				rt.File:   code,
				inputFile: tc.Input,
			},
		})
		cancel()

		switch {
		case err != nil && ctx.Err() != nil:
			return Result{}, ctx.Err()
		case err != nil:
			slog.Warn("test case run failed", "challenge_id", challenge.ID, "case", i+1, "error", err)
			fmt.Fprintf(&out, "✗ Test %d: %v\n", i+1, err)
		case res.ExitCode != 0:
			fmt.Fprintf(&out, "✗ Test %d: exit code %d\n", i+1, res.ExitCode)
			if stderr := strings.TrimSpace(res.Stderr); stderr != "" {
				fmt.Fprintf(&out, "%s\n", stderr)
			}
		case strings.TrimSpace(res.Stdout) == strings.TrimSpace(tc.Output):
			passed++
			fmt.Fprintf(&out, "✓ Test %d passed\n", i+1)
		default:
			fmt.Fprintf(&out, "✗ Test %d: expected %q, got %q\n", i+1, strings.TrimSpace(tc.Output), strings.TrimSpace(res.Stdout))
		}
	}

	score := int(math.Round(float64(passed) / float64(total) * 100))
	fmt.Fprintf(&out, "Passed %d/%d\nScore: %d%%", passed, total, score)

	return Result{
		Score:  score,
		Output: out.String(),
		Passed: passed,
		Total:  total,
	}, nil
}

// DockerRunner implements Runner with the Docker Engine API
type DockerRunner struct {
	docker  *client.Client
	network string
	memory  int64
}

// NewDockerRunner connects to the Docker daemon
func NewDockerRunner(cfg DockerConfig) (*DockerRunner, error) {
	opts := []client.Opt{client.WithAPIVersionNegotiation()}
	if cfg.Host != "" {
		opts = append(opts, client.WithHost(cfg.Host))
	} else {
		opts = append(opts, client.FromEnv)
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	netMode := cfg.Network
	if netMode == "" {
		netMode = "none"
	}
	memory := cfg.MemoryLimit
	if memory <= 0 {
		memory = 256 * 1024 * 1024
	}

	return &DockerRunner{docker: cli, network: netMode, memory: memory}, nil
}

// Ping checks Docker connectivity
func (r *DockerRunner) Ping(ctx context.Context) error {
	if _, err := r.docker.Ping(ctx); err != nil {
		return fmt.Errorf("docker ping failed: %w", err)
	}
	return nil
}

// Close releases the Docker client
func (r *DockerRunner) Close() error {
	return r.docker.Close()
}

// Run creates, starts and waits for a container, then collects its output and removes it
func (r *DockerRunner) Run(ctx context.Context, spec RunSpec) (RunResult, error) {
	if err := r.pullImage(ctx, spec.Image); err != nil {
		return RunResult{}, fmt.Errorf("failed to pull image: %w", err)
	}

	containerConfig := &container.Config{
		Image: spec.Image,
		Cmd:   []string{"sh", "-c", spec.Script},
		Labels: map[string]string{
			"codecrafters.grader": "true",
		},
	}

	hostConfig := &container.HostConfig{
		NetworkMode: container.NetworkMode(r.network),
		Resources: container.Resources{
			Memory: r.memory,
		},
		RestartPolicy: container.RestartPolicy{
			Name: container.RestartPolicyDisabled,
		},
	}

	name := fmt.Sprintf("grader-%s", uuid.New().String())
	resp, err := r.docker.ContainerCreate(ctx, containerConfig, hostConfig, &network.NetworkingConfig{}, nil, name)
	if err != nil {
		return RunResult{}, fmt.Errorf("failed to create container: %w", err)
	}

	defer func() {
		// Removal must outlive the case timeout
		rmCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := r.docker.ContainerRemove(rmCtx, resp.ID, container.RemoveOptions{Force: true}); err != nil {
			slog.Warn("failed to remove grader container", "container", resp.ID, "error", err)
		}
	}()

	if len(spec.Files) > 0 {
		archive, err := archiveFiles(spec.Files)
		if err != nil {
			return RunResult{}, err
		}
		if err := r.docker.CopyToContainer(ctx, resp.ID, "/", archive, types.CopyToContainerOptions{}); err != nil {
			return RunResult{}, fmt.Errorf("failed to copy files to container: %w", err)
		}
	}

	if err := r.docker.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return RunResult{}, fmt.Errorf("failed to start container: %w", err)
	}

	var exitCode int
	statusCh, errCh := r.docker.ContainerWait(ctx, resp.ID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		if err != nil {
			return RunResult{}, fmt.Errorf("failed to wait for container: %w", err)
		}
	case status := <-statusCh:
		exitCode = int(status.StatusCode)
	}

	logs, err := r.docker.ContainerLogs(ctx, resp.ID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return RunResult{}, fmt.Errorf("failed to get logs: %w", err)
	}
	defer logs.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, logs); err != nil {
		return RunResult{}, fmt.Errorf("failed to read logs: %w", err)
	}

	return RunResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: exitCode,
	}, nil
}

// pullImage pulls an image when it is not present locally
func (r *DockerRunner) pullImage(ctx context.Context, image string) error {
	if _, _, err := r.docker.ImageInspectWithRaw(ctx, image); err == nil {
		return nil
	}

	slog.Info("pulling image", "image", image)
	out, err := r.docker.ImagePull(ctx, image, types.ImagePullOptions{})
	if err != nil {
		return err
	}
	defer out.Close()

	_, _ = io.Copy(io.Discard, out)
	return nil
}

// archiveFiles packs files into a tar stream rooted at /
func archiveFiles(files map[string]string) (io.Reader, error) {
	paths := make([]string, 0, len(files))
	for path := range files {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, path := range paths {
		content := files[path]
		hdr := &tar.Header{
			Name:    strings.TrimPrefix(path, "/"),
			Mode:    0o644,
			Size:    int64(len(content)),
			ModTime: time.Now(),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return nil, fmt.Errorf("failed to write tar header for %s: %w", path, err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			return nil, fmt.Errorf("failed to write %s to tar: %w", path, err)
		}
	}
	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close tar: %w", err)
	}
	return &buf, nil
}
