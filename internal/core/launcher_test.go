package core

import (
	"path/filepath"
	"testing"
)

func TestLoadEnvironment(t *testing.T) {
	t.Setenv("JAVA_HOME", "/opt/jdk")
	t.Setenv("H2ENV_SERVER_LIBRARY", "/opt/h2/h2.jar")

	e, err := LoadEnvironment()
	if err != nil {
		t.Fatalf("LoadEnvironment: %v", err)
	}
	if got, want := e.Launcher(), filepath.Join("/opt/jdk", "bin", "java"); got != want {
		t.Errorf("Launcher() = %q, want %q", got, want)
	}
	if e.ServerLibrary != "/opt/h2/h2.jar" {
		t.Errorf("ServerLibrary = %q", e.ServerLibrary)
	}
	if e.EntryPoint != DefaultEntryPoint {
		t.Errorf("EntryPoint = %q, want %q", e.EntryPoint, DefaultEntryPoint)
	}
}

func TestEnvironment_LauncherWithoutJavaHome(t *testing.T) {
	t.Setenv("PATH", t.TempDir())

	if got := (Environment{}).Launcher(); got != "java" {
		t.Errorf("Launcher() = %q, want bare java", got)
	}
}
