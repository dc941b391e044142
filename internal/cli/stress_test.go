package cli

import (
	"bytes"
	"strings"
	"testing"
)

func TestStressRunWritesAllRows(t *testing.T) {
	cmd := StressCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"--agents", "4", "--rows", "25", "--sheet", "demo"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(out.String(), "wrote 100 rows") {
		t.Fatalf("output = %q", out.String())
	}
}

func TestStressRejectsBadFlags(t *testing.T) {
	cmd := StressCmd()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"--agents", "0"})

	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error for zero agents")
	}
}
