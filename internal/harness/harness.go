package harness

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/arvancloud/codearena/internal/languages"
	"github.com/arvancloud/codearena/internal/runtime/docker"
)

const (
	sandboxWorkDir   = "/workspace"
	compileTimeout   = 30 * time.Second
	startupBuffer    = 5 * time.Second
	defaultPidsLimit = 50
	compileMemoryMB  = 512
	oneCPU           = 1_000_000_000
)

// Config tunes the harness independent of any single job.
type Config struct{}

// Harness drives one job through compile and run, per the state
// machine in §4.6: READY -> WORKSPACE_READY -> (CODE_FETCHED|
// FETCH_FAILED) -> (COMPILED|COMPILE_FAILED) -> RUNNING ->
// (FINISHED|TIMED_OUT|CRASHED) -> CLEANED_UP. JUDGED/PERSISTED are
// the caller's responsibility once Execute returns. The workspace
// itself lives inside the sandbox container, copied in via Files on
// each docker.Spec rather than bind-mounted from the host.
type Harness struct {
	runtime *docker.Client
	cfg     Config
	logger  *zap.Logger
}

// New builds a Harness backed by rt for sandbox execution.
func New(rt *docker.Client, cfg Config, logger *zap.Logger) *Harness {
	return &Harness{runtime: rt, cfg: cfg, logger: logger}
}

// Execute runs job end to end: optional compile, and one run per test
// case (or a single bare run when there are none). Interpreted
// languages carry their source into every run container; compiled
// languages carry the artifact the compile step produced instead.
func (h *Harness) Execute(ctx context.Context, job Job) (*Outcome, error) {
	lang, err := languages.Get(job.Language)
	if err != nil {
		return nil, err
	}

	outcome := &Outcome{}
	runFiles := map[string][]byte{lang.SourceFile: job.Code}

	if lang.NeedsCompile() {
		compileRes, err := h.compile(ctx, job, lang)
		if err != nil {
			return nil, err
		}
		outcome.Compile = compileRes
		if !compileRes.Success {
			return outcome, nil
		}
		runFiles = map[string][]byte{lang.BinaryName: compileRes.Artifact}
	}

	if len(job.TestCases) == 0 {
		run, err := h.runOnce(ctx, job, lang, "", "", runFiles)
		if err != nil {
			return nil, err
		}
		outcome.Runs = append(outcome.Runs, run)
		return outcome, nil
	}

	for _, tc := range job.TestCases {
		run, err := h.runOnce(ctx, job, lang, tc.ID, tc.Input, runFiles)
		if err != nil {
			return nil, err
		}
		outcome.Runs = append(outcome.Runs, run)

		if tc.StopOnFailure && run.Status == StatusSuccess && trimmedNotEqual(tc.Expected, run.Stdout) {
			break
		}
		if tc.StopOnFailure && run.Status != StatusSuccess {
			break
		}
	}

	return outcome, nil
}

func trimmedNotEqual(expected, actual string) bool {
	return trimRight(expected) != trimRight(actual)
}

func trimRight(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == ' ' || s[len(s)-1] == '\t' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}

func (h *Harness) compile(ctx context.Context, job Job, lang languages.Spec) (*CompileOutcome, error) {
	res, err := h.runtime.Run(ctx, docker.Spec{
		Image:           lang.Image,
		Cmd:             lang.CompileCmd,
		WorkDir:         sandboxWorkDir,
		Files:           map[string][]byte{lang.SourceFile: job.Code},
		Timeout:         compileTimeout,
		MemoryBytes:     compileMemoryMB * 1024 * 1024,
		NanoCPUs:        oneCPU,
		PidsLimit:       defaultPidsLimit,
		NetworkDisabled: true,
		MaxOutputBytes:  maxRawOutput,
		ArtifactPath:    lang.BinaryName,
	})
	if err != nil {
		return nil, fmt.Errorf("compile phase failed for submission %s: %w", job.SubmissionID, err)
	}
	if res.TimedOut || res.ExitCode != 0 {
		return &CompileOutcome{Success: false, Stderr: truncate(string(res.Stderr), maxProtocolOutput)}, nil
	}
	return &CompileOutcome{Success: true, Artifact: res.Artifact}, nil
}

func (h *Harness) runOnce(ctx context.Context, job Job, lang languages.Spec, testID, stdin string, files map[string][]byte) (CaseExecution, error) {
	timeLimit := time.Duration(job.TimeLimitMs) * time.Millisecond
	wallClock := timeLimit + startupBuffer
	cpuSeconds := (job.TimeLimitMs + 999) / 1000

	res, err := h.runtime.Run(ctx, docker.Spec{
		Image:           lang.Image,
		Cmd:             lang.RunCmd,
		WorkDir:         sandboxWorkDir,
		Files:           files,
		Stdin:           []byte(stdin),
		Timeout:         wallClock,
		MemoryBytes:     int64(job.MemoryLimitKB) * 1024,
		NanoCPUs:        oneCPU,
		PidsLimit:       defaultPidsLimit,
		CPUTimeLimitS:   int64(cpuSeconds),
		NetworkDisabled: true,
		MaxOutputBytes:  maxRawOutput,
		Sandboxed:       true,
	})
	if err != nil {
		return CaseExecution{}, fmt.Errorf("run phase failed for submission %s: %w", job.SubmissionID, err)
	}

	exec := CaseExecution{
		TestID:     testID,
		ExitCode:   res.ExitCode,
		DurationMs: res.DurationMs,
	}

	switch {
	case res.TimedOut:
		exec.Status = StatusTimeLimit
		exec.Stderr = truncate(string(res.Stderr), maxProtocolOutput)
		return exec, nil
	case res.OOMKilled:
		exec.Status = StatusMemoryLimit
		exec.Stderr = truncate(string(res.Stderr), maxProtocolOutput)
		return exec, nil
	}

	if parsed, ok := parseRunnerProtocol(string(res.Stdout)); ok {
		exec.Stdout = truncate(parsed.Stdout, maxProtocolOutput)
		exec.Stderr = truncate(parsed.Stderr, maxProtocolOutput)
		exec.ExitCode = parsed.ExitCode
		exec.DurationMs = parsed.DurationMs
		exec.PeakMemKB = parsed.PeakMemoryKB
		if parsed.ExitCode != 0 || parsed.Error != "" {
			exec.Status = StatusRuntimeError
		} else {
			exec.Status = StatusSuccess
		}
		return exec, nil
	}

	exec.Stdout = truncate(string(res.Stdout), maxProtocolOutput)
	exec.Stderr = truncate(string(res.Stderr), maxProtocolOutput)
	if res.ExitCode != 0 {
		exec.Status = StatusRuntimeError
	} else {
		exec.Status = StatusSuccess
	}
	return exec, nil
}
