package agent

import (
	"path/filepath"
	"testing"
)

func TestMemoryRoundTrip(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	dir, err := MemoryDir()
	if err != nil {
		t.Fatalf("MemoryDir: %v", err)
	}
	if filepath.Base(filepath.Dir(dir)) != ".openclaw" || filepath.Base(dir) != "memory" {
		t.Fatalf("unexpected memory dir: %s", dir)
	}

	// Missing file and missing directory read as empty.
	if content, err := ReadMemoryFile("MEMORY.md"); err != nil || content != "" {
		t.Fatalf("missing file: content=%q err=%v", content, err)
	}
	if names, err := ListMemoryFiles(); err != nil || len(names) != 0 {
		t.Fatalf("missing dir: names=%v err=%v", names, err)
	}

	if err := WriteMemoryFile("MEMORY.md", "hello memory"); err != nil {
		t.Fatalf("WriteMemoryFile: %v", err)
	}
	if err := WriteMemoryFile("notes.md", "side notes"); err != nil {
		t.Fatalf("WriteMemoryFile: %v", err)
	}

	content, err := ReadMemoryFile("MEMORY.md")
	if err != nil || content != "hello memory" {
		t.Fatalf("round trip: content=%q err=%v", content, err)
	}

	names, err := ListMemoryFiles()
	if err != nil {
		t.Fatalf("ListMemoryFiles: %v", err)
	}
	if len(names) != 2 || names[0] != "MEMORY.md" || names[1] != "notes.md" {
		t.Fatalf("names = %v", names)
	}
}
