package recovery

import (
	"bytes"
	"os"
	"os/exec"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

// TestHandlePanic_NoPanic verifies that HandlePanic does nothing when there's no panic
func TestHandlePanic_NoPanic(t *testing.T) {
	func() {
		defer HandlePanic()
	}()
}

// TestHandlePanicFunc_NoPanic verifies that HandlePanicFunc does nothing when there's no panic
func TestHandlePanicFunc_NoPanic(t *testing.T) {
	cleanupCalled := false

	func() {
		defer HandlePanicFunc(func() {
			cleanupCalled = true
		})
	}()

	if cleanupCalled {
		t.Error("cleanup was called without a panic")
	}
}

// TestHandlePanicFunc_NilCleanup verifies that nil cleanup doesn't cause issues
func TestHandlePanicFunc_NilCleanup(t *testing.T) {
	func() {
		defer HandlePanicFunc(nil)
	}()
}

// withTestLogger swaps the logger and exit hook for the duration of a test
func withTestLogger(t *testing.T) (*test.Hook, *int) {
	t.Helper()

	l, hook := test.NewNullLogger()
	SetLogger(l)

	code := -1
	exit = func(c int) { code = c }

	t.Cleanup(func() {
		SetLogger(nil)
		exit = os.Exit
	})
	return hook, &code
}

func TestHandlePanicFunc_LogsAndCleansUp(t *testing.T) {
	hook, code := withTestLogger(t)

	cleanupCalled := false
	func() {
		defer HandlePanicFunc(func() { cleanupCalled = true })
		panic("analyzer blew up")
	}()

	if !cleanupCalled {
		t.Error("cleanup was not called")
	}
	if *code != 1 {
		t.Errorf("exit code = %d, want 1", *code)
	}

	entry := hook.LastEntry()
	if entry == nil {
		t.Fatal("no log entry recorded")
	}
	if entry.Level != logrus.ErrorLevel {
		t.Errorf("level = %v, want error", entry.Level)
	}
	if entry.Data["panic"] != "analyzer blew up" {
		t.Errorf("panic field = %v, want %q", entry.Data["panic"], "analyzer blew up")
	}
	if stack, _ := entry.Data["stack"].(string); stack == "" {
		t.Error("stack field is empty")
	}
}

func TestHandlePanic_NonStringValue(t *testing.T) {
	hook, code := withTestLogger(t)

	func() {
		defer HandlePanic()
		panic(42)
	}()

	if *code != 1 {
		t.Errorf("exit code = %d, want 1", *code)
	}
	if got := hook.LastEntry().Data["panic"]; got != "42" {
		t.Errorf("panic field = %v, want \"42\"", got)
	}
}

// TestHandlePanic_ExitsOnPanic uses a subprocess to test the real exit path
func TestHandlePanic_ExitsOnPanic(t *testing.T) {
	if os.Getenv("TEST_PANIC_EXIT") == "1" {
		defer HandlePanic()
		panic("test panic")
	}

	cmd := exec.Command(os.Args[0], "-test.run=TestHandlePanic_ExitsOnPanic")
	cmd.Env = append(os.Environ(), "TEST_PANIC_EXIT=1")

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()

	// Should have exited with code 1
	if exitErr, ok := err.(*exec.ExitError); ok {
		if exitErr.ExitCode() != 1 {
			t.Errorf("exit code = %d, want 1", exitErr.ExitCode())
		}
	} else if err == nil {
		t.Error("expected process to exit with error, but it succeeded")
	}

	output := stderr.String()
	for _, want := range []string{"FATAL", "test panic", "stack="} {
		if !bytes.Contains([]byte(output), []byte(want)) {
			t.Errorf("stderr should contain %q, got: %s", want, output)
		}
	}
}

// TestHandlePanicFunc_ExitsOnPanic uses a subprocess to test panic behavior with cleanup
func TestHandlePanicFunc_ExitsOnPanic(t *testing.T) {
	if os.Getenv("TEST_PANIC_FUNC_EXIT") == "1" {
		defer HandlePanicFunc(func() {
			// Write marker to stdout to verify cleanup was called
			_, _ = os.Stdout.WriteString("CLEANUP_CALLED\n")
		})
		panic("test panic func")
	}

	cmd := exec.Command(os.Args[0], "-test.run=TestHandlePanicFunc_ExitsOnPanic")
	cmd.Env = append(os.Environ(), "TEST_PANIC_FUNC_EXIT=1")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	if exitErr, ok := err.(*exec.ExitError); ok {
		if exitErr.ExitCode() != 1 {
			t.Errorf("exit code = %d, want 1", exitErr.ExitCode())
		}
	} else if err == nil {
		t.Error("expected process to exit with error, but it succeeded")
	}

	if !bytes.Contains(stdout.Bytes(), []byte("CLEANUP_CALLED")) {
		t.Errorf("stdout should contain 'CLEANUP_CALLED', got: %s", stdout.String())
	}
	if !bytes.Contains(stderr.Bytes(), []byte("test panic func")) {
		t.Errorf("stderr should contain 'test panic func', got: %s", stderr.String())
	}
}
