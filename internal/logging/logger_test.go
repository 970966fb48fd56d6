package logging

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewLogger_WritesToLogDir(t *testing.T) {
	dir := t.TempDir()
	lg, err := NewLogger(dir)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	lg.Info("probe_checked")
	_ = lg.Sync()

	b, err := os.ReadFile(filepath.Join(dir, "apiwatch.log"))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if len(b) == 0 {
		t.Fatal("expected log output")
	}
}
