// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// MediaQueue - 媒体下载与转码任务管理工具

package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHelperProcess is re-executed as the child process by the tests below.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("MEDIAQUEUE_HELPER") != "1" {
		return
	}
	defer os.Exit(0)

	switch os.Getenv("MEDIAQUEUE_MODE") {
	case "progress":
		fmt.Fprint(os.Stdout, "[download]  10.0% of ~5.00MiB\r[download]  55.5% of ~5.00MiB\r")
		fmt.Fprint(os.Stdout, "[Merger] Merging formats\n")
		fmt.Fprint(os.Stderr, "warning: something\n")
	case "fail":
		for i := 0; i < 60; i++ {
			fmt.Fprintf(os.Stderr, "line %d\n", i)
		}
		fmt.Fprint(os.Stderr, "ERROR: HTTP Error 429: Too Many Requests\n")
		os.Exit(3)
	case "sleep":
		fmt.Fprintln(os.Stdout, "sleeping")
		time.Sleep(30 * time.Second)
	case "orphan":
		// leaves a grandchild holding our stdout and stderr, then exits
		child := exec.Command(os.Args[0], "-test.run=TestHelperProcess")
		child.Env = append(os.Environ(), "MEDIAQUEUE_MODE=linger")
		child.Stdout = os.Stdout
		child.Stderr = os.Stderr
		if err := child.Start(); err != nil {
			os.Exit(4)
		}
		fmt.Fprintln(os.Stdout, "spawned")
	case "linger":
		time.Sleep(8 * time.Second)
	case "long":
		w := bufio.NewWriter(os.Stdout)
		w.WriteString(strings.Repeat("x", 200*1024))
		w.WriteString("\n")
		w.Flush()
	}
}

func helperConfig(mode string) Config {
	return Config{
		Binary: os.Args[0],
		Args:   []string{"-test.run=TestHelperProcess"},
		Env:    []string{"MEDIAQUEUE_HELPER=1", "MEDIAQUEUE_MODE=" + mode},
	}
}

type lineRecorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *lineRecorder) add(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, line)
}

func (r *lineRecorder) get() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

func TestRunSplitsCarriageReturnLines(t *testing.T) {
	var stdout, stderr lineRecorder
	cfg := helperConfig("progress")
	cfg.OnStdoutLine = stdout.add
	cfg.OnStderrLine = stderr.add

	res, err := Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)

	lines := stdout.get()
	assert.Contains(t, lines, "[download]  10.0% of ~5.00MiB")
	assert.Contains(t, lines, "[download]  55.5% of ~5.00MiB")
	assert.Contains(t, lines, "[Merger] Merging formats")
	assert.Contains(t, stderr.get(), "warning: something")
}

func TestRunNonZeroExitCarriesBoundedTail(t *testing.T) {
	cfg := helperConfig("fail")
	cfg.TailLines = 5

	res, err := Run(context.Background(), cfg)
	require.Error(t, err)
	assert.Equal(t, 3, res.ExitCode)

	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 3, exitErr.Code)
	assert.Len(t, exitErr.Tail, 5)
	assert.Equal(t, "ERROR: HTTP Error 429: Too Many Requests", exitErr.LastLine())
	assert.Contains(t, Diagnostic(err), "429")
}

func TestCancelKillsAndReportsCanceled(t *testing.T) {
	started := make(chan struct{}, 1)
	cfg := helperConfig("sleep")
	cfg.OnStdoutLine = func(string) {
		select {
		case started <- struct{}{}:
		default:
		}
	}

	h, err := Start(context.Background(), cfg)
	require.NoError(t, err)
	<-started

	h.Cancel()
	h.Cancel()

	_, err = h.Wait()
	assert.ErrorIs(t, err, ErrCanceled)
	assert.True(t, h.Canceled())
	assert.Equal(t, "killed", h.Status().State)

	// later waits return the same outcome
	_, err = h.Wait()
	assert.ErrorIs(t, err, ErrCanceled)
}

func TestContextCancelIsEquivalentToCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h, err := Start(ctx, helperConfig("sleep"))
	require.NoError(t, err)

	cancel()
	_, err = h.Wait()
	assert.ErrorIs(t, err, ErrCanceled)
}

func TestTimeoutKillsProcess(t *testing.T) {
	cfg := helperConfig("sleep")
	cfg.Timeout = 300 * time.Millisecond

	start := time.Now()
	_, err := Run(context.Background(), cfg)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 20*time.Second)
}

func TestRunReturnsWhenGrandchildHoldsOutput(t *testing.T) {
	var stdout lineRecorder
	cfg := helperConfig("orphan")
	cfg.OnStdoutLine = stdout.add

	start := time.Now()
	res, err := Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Less(t, time.Since(start), 6*time.Second)
	assert.Contains(t, stdout.get(), "spawned")
}

func TestRunHandlesLongLines(t *testing.T) {
	var got int
	cfg := helperConfig("long")
	cfg.OnStdoutLine = func(line string) { got = len(line) }

	_, err := Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 200*1024, got)
}

func TestStartMissingBinary(t *testing.T) {
	_, err := Start(context.Background(), Config{Binary: "/nonexistent/mediaqueue-tool"})
	require.Error(t, err)

	_, err = Start(context.Background(), Config{})
	assert.ErrorIs(t, err, ErrNoBinary)
}

func TestScanLine(t *testing.T) {
	tests := []struct {
		data  string
		atEOF bool
		adv   int
		token string
	}{
		{"abc\ndef", false, 4, "abc"},
		{"abc\rdef", false, 4, "abc"},
		{"\r\nabc\n", false, 6, "abc"},
		{"abc", false, 0, ""},
		{"abc", true, 3, "abc"},
		{"\n\n", true, 2, ""},
	}
	for _, tt := range tests {
		adv, tok, err := scanLine([]byte(tt.data), tt.atEOF)
		require.NoError(t, err)
		assert.Equal(t, tt.adv, adv, tt.data)
		assert.Equal(t, tt.token, string(tok), tt.data)
	}
}

func TestTailKeepsLastLines(t *testing.T) {
	tl := newTail(3)
	assert.Empty(t, tl.Lines())
	for _, s := range []string{"a", "b", "c", "d"} {
		tl.Add(s)
	}
	assert.Equal(t, []string{"b", "c", "d"}, tl.Lines())
}
