package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"swiftlingo/src/hotkey"
	"swiftlingo/src/messages"
)

func TestNewRootCmdDefaults(t *testing.T) {
	opts := &stressOptions{}
	cmd := newRootCmd(opts)
	if err := cmd.ParseFlags([]string{}); err != nil {
		t.Fatalf("ParseFlags failed: %v", err)
	}
	if opts.n != 50 {
		t.Fatalf("Expected default n=50, got %d", opts.n)
	}
	if opts.mode != "std" {
		t.Fatalf("Expected default mode=std, got %q", opts.mode)
	}
	if opts.action != "translate" {
		t.Fatalf("Expected default action=translate, got %q", opts.action)
	}
	if opts.deadline != 5*time.Second {
		t.Fatalf("Expected default deadline=5s, got %v", opts.deadline)
	}
}

func TestNewRootCmdCustomFlags(t *testing.T) {
	opts := &stressOptions{}
	cmd := newRootCmd(opts)
	if err := cmd.ParseFlags([]string{"--n", "3", "--mode", "clip", "--action", "translate-replace", "--deadline", "7s"}); err != nil {
		t.Fatalf("ParseFlags failed: %v", err)
	}
	if opts.n != 3 {
		t.Fatalf("Expected n=3, got %d", opts.n)
	}
	if opts.mode != "clip" {
		t.Fatalf("Expected mode=clip, got %q", opts.mode)
	}
	if opts.action != "translate-replace" {
		t.Fatalf("Expected action=translate-replace, got %q", opts.action)
	}
	if opts.deadline != 7*time.Second {
		t.Fatalf("Expected deadline=7s, got %v", opts.deadline)
	}
}

// scriptedClient answers the first call successfully, the second as busy,
// and every later call as superseded.
type scriptedClient struct {
	calls  int32
	stdout int32
}

func (c *scriptedClient) TryRunOnce(ctx context.Context, action string, outputToStdout bool) (bool, string, error) {
	if outputToStdout {
		atomic.AddInt32(&c.stdout, 1)
	}
	switch atomic.AddInt32(&c.calls, 1) {
	case 1:
		return true, "ok", nil
	case 2:
		return true, "", errors.New("Busy, please retry")
	}
	return true, "", messages.ErrSuperseded
}

func TestRunWithOptionsTallies(t *testing.T) {
	client := &scriptedClient{}
	var out bytes.Buffer
	err := runWithOptions(stressOptions{n: 4, mode: "std", deadline: time.Second}, hotkey.ActionTranslate, client, &out)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if client.stdout != 4 {
		t.Fatalf("Expected 4 stdout requests, got %d", client.stdout)
	}
	if !strings.Contains(out.String(), "launched=4 ok=1 busy=1 superseded=2 no-resident=0 err=0") {
		t.Fatalf("Unexpected summary: %q", out.String())
	}
}

func TestTallyNoResident(t *testing.T) {
	var tl tally
	tl.record(false, nil)
	tl.record(true, errors.New("provider down"))
	if tl.noResident != 1 || tl.err != 1 {
		t.Fatalf("Unexpected tally: %s", tl.String())
	}
}
