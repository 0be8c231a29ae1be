package daemon

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

type recorder struct {
	calls [][]string
	fail  string
}

func (r *recorder) run(name string, args ...string) error {
	call := append([]string{name}, args...)
	r.calls = append(r.calls, call)
	if r.fail != "" && strings.Join(call, " ") == r.fail {
		return errors.New("exit status 1")
	}
	return nil
}

func TestUnit(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want string
	}{
		{"bare", Options{}, "ExecStart=/usr/bin/acuity daemon\n"},
		{"paths", Options{ConfigPath: "/etc/a.json", SocketPath: "/run/a.sock"},
			"ExecStart=/usr/bin/acuity daemon --config /etc/a.json --daemon-socket /run/a.sock\n"},
		{"non-root", Options{AlwaysAllowNonRootAccess: true},
			"ExecStart=/usr/bin/acuity daemon --always-allow-non-root-access\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unit := Unit("/usr/bin/acuity", tt.opts)
			if !strings.Contains(unit, tt.want) {
				t.Fatalf("unit does not contain %q:\n%s", tt.want, unit)
			}
			if !strings.Contains(unit, "WantedBy=multi-user.target") {
				t.Fatalf("unit has no install section:\n%s", unit)
			}
		})
	}
}

func TestInstallAndUninstall(t *testing.T) {
	rec := &recorder{}
	i := &Installer{UnitPath: filepath.Join(t.TempDir(), "systemd", UnitName), Run: rec.run}

	if err := i.Install("/usr/bin/acuity", Options{ConfigPath: "/etc/acuity.json"}); err != nil {
		t.Fatalf("Install failed: %v", err)
	}
	b, err := os.ReadFile(i.UnitPath)
	if err != nil {
		t.Fatalf("unit not written: %v", err)
	}
	if !strings.Contains(string(b), "ExecStart=/usr/bin/acuity daemon --config /etc/acuity.json") {
		t.Fatalf("unexpected unit:\n%s", b)
	}

	if err := i.Uninstall(); err != nil {
		t.Fatalf("Uninstall failed: %v", err)
	}
	if _, err := os.Stat(i.UnitPath); !os.IsNotExist(err) {
		t.Fatalf("unit still present: %v", err)
	}

	want := [][]string{
		{"systemctl", "daemon-reload"},
		{"systemctl", "enable", "--now", UnitName},
		{"systemctl", "disable", "--now", UnitName},
		{"systemctl", "daemon-reload"},
	}
	if !reflect.DeepEqual(rec.calls, want) {
		t.Fatalf("calls = %v, want %v", rec.calls, want)
	}
}

func TestUninstallMissingUnit(t *testing.T) {
	rec := &recorder{}
	i := &Installer{UnitPath: filepath.Join(t.TempDir(), UnitName), Run: rec.run}
	if err := i.Uninstall(); err != nil {
		t.Fatalf("Uninstall failed: %v", err)
	}
	if len(rec.calls) != 0 {
		t.Fatalf("expected no systemctl calls, got %v", rec.calls)
	}
}

func TestInstallEnableFailure(t *testing.T) {
	rec := &recorder{fail: "systemctl enable --now " + UnitName}
	i := &Installer{UnitPath: filepath.Join(t.TempDir(), UnitName), Run: rec.run}
	err := i.Install("/usr/bin/acuity", Options{})
	if err == nil || !strings.Contains(err.Error(), "failed to enable") {
		t.Fatalf("expected enable failure, got %v", err)
	}
}
