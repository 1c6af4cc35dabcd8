package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

func buildTestBinary(t *testing.T) string {
	if testing.Short() {
		t.Skip("builds the binary")
	}
	binName := "cheerily_it_bin"
	if runtime.GOOS == "windows" {
		binName += ".exe"
	}
	bin := filepath.Join(t.TempDir(), binName)
	cmd := exec.Command("go", "build", "-o", bin, ".")
	cmd.Env = os.Environ()
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("failed to build binary: %v\n%s", err, string(out))
	}
	return bin
}

func isolatedEnv(t *testing.T) []string {
	var env []string
	for _, kv := range os.Environ() {
		if !strings.HasPrefix(kv, "CHEERILY_") {
			env = append(env, kv)
		}
	}
	return append(env, "CHEERILY_HOME="+t.TempDir())
}

// TestExitCodes checks that error categories reach the process exit status.
func TestExitCodes(t *testing.T) {
	bin := buildTestBinary(t)

	tests := []struct {
		args []string
		code int
	}{
		{[]string{"version"}, 0},
		{[]string{"next", "--client-id", "abc", "--feed-source", "ftp"}, 2},
		{[]string{"save"}, 3},
		{[]string{"auth", "renew", "--client-id", "abc"}, 4},
	}
	for _, tt := range tests {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			cmd := exec.Command(bin, tt.args...)
			cmd.Env = isolatedEnv(t)
			cmd.Dir = t.TempDir()
			err := cmd.Run()

			code := 0
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				code = exitErr.ExitCode()
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if code != tt.code {
				t.Fatalf("expected exit code %d, got %d", tt.code, code)
			}
		})
	}
}

// TestGracefulInterrupt starts a login that waits for a redirect and sends
// SIGINT, expecting the binary to exit promptly.
func TestGracefulInterrupt(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("SIGINT cannot be sent on windows")
	}
	bin := buildTestBinary(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to find a free port: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	cmd := exec.Command(bin, "auth", "login", "--client-id", "abc",
		"--redirect-uri", fmt.Sprintf("http://127.0.0.1:%d/callback", port))
	cmd.Env = isolatedEnv(t)
	if err := cmd.Start(); err != nil {
		t.Fatalf("failed to start binary: %v", err)
	}
	// Allow startup
	time.Sleep(300 * time.Millisecond)
	if err := cmd.Process.Signal(os.Interrupt); err != nil {
		t.Fatalf("failed to send interrupt: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	select {
	case err := <-done:
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) || exitErr.ExitCode() != 1 {
			t.Fatalf("expected exit code 1 after SIGINT, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("process did not exit within 3s after SIGINT")
	}
}
