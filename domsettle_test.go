package domsettle

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hazyhaar/domsettle/journal"
)

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settle.yaml")
	data := `
listen: ":9000"
browser:
  stealth: headful
  recycle_interval: 1h
settle:
  global_timeout: 5s
  min_wait: 300ms
journal:
  db_path: /tmp/journal.db
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile: %v", err)
	}
	if cfg.Listen != ":9000" {
		t.Errorf("listen: got %q", cfg.Listen)
	}
	if cfg.Browser.Stealth != "headful" {
		t.Errorf("stealth: got %q", cfg.Browser.Stealth)
	}
	if cfg.Browser.RecycleInterval != time.Hour {
		t.Errorf("recycle_interval: got %v", cfg.Browser.RecycleInterval)
	}
	if cfg.Settle.GlobalTimeout != 5*time.Second {
		t.Errorf("global_timeout: got %v", cfg.Settle.GlobalTimeout)
	}
	if cfg.Settle.MinWait != 300*time.Millisecond {
		t.Errorf("min_wait: got %v", cfg.Settle.MinWait)
	}
	if cfg.Journal.DBPath != "/tmp/journal.db" {
		t.Errorf("db_path: got %q", cfg.Journal.DBPath)
	}
}

func TestLoadConfigFile_Defaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settle.yaml")
	if err := os.WriteFile(path, []byte("{}\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile: %v", err)
	}
	if cfg.Listen == "" {
		t.Error("listen default missing")
	}
	if cfg.Settle.GlobalTimeout != 10*time.Second {
		t.Errorf("global_timeout default: got %v", cfg.Settle.GlobalTimeout)
	}
	if cfg.Settle.MainThreadTimeout != 2*time.Second {
		t.Errorf("main_thread_timeout default: got %v", cfg.Settle.MainThreadTimeout)
	}
	if cfg.Settle.QuietWindow != 500*time.Millisecond {
		t.Errorf("quiet_window default: got %v", cfg.Settle.QuietWindow)
	}
	if cfg.Paint.StableFrames != 3 {
		t.Errorf("stable_frames default: got %d", cfg.Paint.StableFrames)
	}
}

func TestLoadConfigFile_Missing(t *testing.T) {
	if _, err := LoadConfigFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestResolution(t *testing.T) {
	events := []journal.Event{
		{Message: "settle: monitor created"},
		{Message: "settle: state", Attrs: "from=Initial to=MonitorStartDelay"},
		{Message: "settle: state", Attrs: "from=MonitorStartDelay to=WaitForNavigation"},
		{Message: "settle: state", Attrs: "from=MaybeDelayCallback to=InvokeCallback"},
		{Message: "settle: state", Attrs: "from=InvokeCallback to=Done"},
	}
	if got := resolution(events); got != "MaybeDelayCallback" {
		t.Errorf("resolution: got %q", got)
	}
}

func TestResolution_Timeout(t *testing.T) {
	events := []journal.Event{
		{Message: "settle: state", Attrs: "from=TimeoutGlobal to=InvokeCallback"},
		{Message: "settle: state", Attrs: "from=InvokeCallback to=Done"},
	}
	if got := resolution(events); got != "TimeoutGlobal" {
		t.Errorf("resolution: got %q", got)
	}
}

func TestResolution_Empty(t *testing.T) {
	if got := resolution(nil); got != "unknown" {
		t.Errorf("resolution: got %q", got)
	}
}
