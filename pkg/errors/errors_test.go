package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestBuilderFluentChain(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrapf(cause, ErrCodeStorageExec, "insert into %s failed", "orders").
		WithOp("Worker.handleOp").
		WithField("worker", 3).
		WithFields(map[string]interface{}{"kind": "insert"}).
		Critical().
		WithStack().
		Err()

	var e *Error
	if !errors.As(err, &e) {
		t.Fatalf("errors.As failed to extract *Error from %v", err)
	}
	if e.Code != ErrCodeStorageExec {
		t.Fatalf("Code = %v, want %v", e.Code, ErrCodeStorageExec)
	}
	if e.Severity != SeverityCritical {
		t.Fatalf("Severity = %v, want critical", e.Severity)
	}
	if e.OpName != "Worker.handleOp" {
		t.Fatalf("OpName = %q, want Worker.handleOp", e.OpName)
	}
	if e.Fields["worker"] != 3 || e.Fields["kind"] != "insert" {
		t.Fatalf("Fields = %v, missing expected keys", e.Fields)
	}
	if len(e.Stack) == 0 {
		t.Fatal("WithStack produced no frames")
	}
	if !errors.Is(err, cause) {
		t.Fatal("wrapped error does not unwrap to cause")
	}
}

func TestErrorStringIncludesCause(t *testing.T) {
	cause := errors.New("timeout")
	err := Wrap(cause, ErrCodeAsyncTxn, "commit failed").Err()
	got := err.Error()
	if got != "E7003: commit failed: timeout" {
		t.Fatalf("Error() = %q, want E7003: commit failed: timeout", got)
	}
}

func TestFormatVerbs(t *testing.T) {
	err := New(ErrCodeAsyncCursorOpen, "cursor open failed").
		WithOp("Worker.handleOp").
		WithField("uri", "table:orders").
		Build()

	if got := fmt.Sprintf("%s", err); got != err.Error() {
		t.Fatalf("%%s = %q, want %q", got, err.Error())
	}
	detailed := fmt.Sprintf("%+v", err)
	for _, want := range []string{"Operation: Worker.handleOp", "uri: table:orders"} {
		if !strings.Contains(detailed, want) {
			t.Fatalf("%%+v missing %q, got: %q", want, detailed)
		}
	}
}

func TestSeverityHelpers(t *testing.T) {
	w := New(ErrCodeAsyncFlushBusy, "busy").Warning().Err()
	if GetSeverity(w) != SeverityWarning {
		t.Fatalf("Warning() severity = %v, want warning", GetSeverity(w))
	}
	if IsSevere(w) {
		t.Fatal("warning-severity error reported as severe")
	}

	c := New(ErrCodeAsyncInvalidOp, "invalid").Critical().Err()
	if !IsSevere(c) {
		t.Fatal("critical-severity error not reported as severe")
	}

	f := New(ErrCodeInternal, "panic recovered").Fatal().Err()
	if GetSeverity(f) != SeverityFatal {
		t.Fatalf("Fatal() severity = %v, want fatal", GetSeverity(f))
	}
}

func TestCodeCategoryAndString(t *testing.T) {
	cases := map[Code]string{
		ErrCodeConfigInvalid:   "configuration",
		ErrCodeStorageNotFound: "storage",
		ErrCodeAsyncTxn:        "async",
		ErrCodeInternal:        "internal",
	}
	for code, want := range cases {
		if got := code.Category(); got != want {
			t.Fatalf("Code(%d).Category() = %q, want %q", code, got, want)
		}
	}
	if got := ErrCodeAsyncTxn.String(); got != "E7003" {
		t.Fatalf("Code.String() = %q, want E7003", got)
	}
}

func TestInvalidInputHelper(t *testing.T) {
	err := InvalidInput("AsyncWorkers", "must be >= 1").Err()
	if !IsCode(err, ErrCodeConfigInvalid) {
		t.Fatalf("InvalidInput produced code %v, want ErrCodeConfigInvalid", GetCode(err))
	}
	if GetFields(err)["field"] != "AsyncWorkers" {
		t.Fatalf("Fields = %v, missing field=AsyncWorkers", GetFields(err))
	}
}

func TestTimeoutHelper(t *testing.T) {
	err := Timeout("Dispatcher.Flush", 2*time.Second).Err()
	if !IsCode(err, ErrCodeAsyncWait) {
		t.Fatalf("Timeout produced code %v, want ErrCodeAsyncWait", GetCode(err))
	}
	if !IsCategory(err, "async") {
		t.Fatal("Timeout error not categorized as async")
	}
}

func TestInternalHelperIsCriticalWithStack(t *testing.T) {
	err := Internal("unreachable branch hit").Err()
	var e *Error
	if !errors.As(err, &e) {
		t.Fatal("Internal() did not produce *Error")
	}
	if e.Severity != SeverityCritical {
		t.Fatalf("Internal() severity = %v, want critical", e.Severity)
	}
	if len(e.Stack) == 0 {
		t.Fatal("Internal() did not capture a stack")
	}
}

func TestGetCodeFallsBackToInternalForPlainErrors(t *testing.T) {
	plain := errors.New("not a coded error")
	if got := GetCode(plain); got != ErrCodeInternal {
		t.Fatalf("GetCode(plain) = %v, want ErrCodeInternal", got)
	}
}

func TestIsAndJoin(t *testing.T) {
	sentinel := errors.New("sentinel")
	wrapped := Wrap(sentinel, ErrCodeStorageTxn, "wrapped").Err()
	if !Is(wrapped, sentinel) {
		t.Fatal("Is did not find sentinel through wrapped coded error")
	}

	joined := Join(errors.New("a"), errors.New("b"))
	if joined == nil || joined.Error() == "" {
		t.Fatal("Join produced an unusable error")
	}
}

func TestAsExtractsConcreteType(t *testing.T) {
	err := New(ErrCodeStorageConnect, "connect failed").Err()
	var target *Error
	if !As(err, &target) {
		t.Fatal("As failed to extract *Error")
	}
	if target.Code != ErrCodeStorageConnect {
		t.Fatalf("extracted Code = %v, want ErrCodeStorageConnect", target.Code)
	}
}
