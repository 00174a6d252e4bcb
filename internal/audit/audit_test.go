package audit

import (
	"bytes"
	"strings"
	"testing"

	"github.com/windlass-io/windlass/internal/logger"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	buf := new(bytes.Buffer)
	logger.InitWithWriter(buf, "INFO", "text", false)
	return buf
}

func TestServerStart(t *testing.T) {
	buf := capture(t)
	SetEnabled(true)

	ServerStart()

	out := buf.String()
	if !strings.Contains(out, "component=audit") {
		t.Errorf("missing audit component: %s", out)
	}
	if !strings.Contains(out, "operation=serverStart") {
		t.Errorf("missing operation: %s", out)
	}
	if !strings.Contains(out, "result=success") {
		t.Errorf("missing result: %s", out)
	}
}

func TestServerStartFailure(t *testing.T) {
	buf := capture(t)
	SetEnabled(true)

	ServerStartFailure("cannot access data directory")

	out := buf.String()
	if !strings.Contains(out, "result=failure") {
		t.Errorf("missing failure result: %s", out)
	}
	if !strings.Contains(out, "reason=cannot access data directory") {
		t.Errorf("missing reason: %s", out)
	}
}

func TestServerStop(t *testing.T) {
	buf := capture(t)
	SetEnabled(true)

	ServerStop()

	if !strings.Contains(buf.String(), "operation=serverStop") {
		t.Errorf("missing stop operation: %s", buf.String())
	}
}

func TestDisabledDropsEntries(t *testing.T) {
	buf := capture(t)

	SetEnabled(false)
	defer SetEnabled(true)

	ServerStart()
	ServerStop()

	if buf.Len() != 0 {
		t.Errorf("expected no output while disabled, got: %s", buf.String())
	}
	if Enabled() {
		t.Error("Enabled() should report false")
	}
}
