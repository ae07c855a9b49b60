package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// MemoryDir returns the persistent memory directory, ~/.openclaw/memory.
func MemoryDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determining home directory: %w", err)
	}
	return filepath.Join(home, ".openclaw", "memory"), nil
}

// ReadMemoryFile reads a file from the memory directory. A missing file is
// not an error; it reads as empty.
func ReadMemoryFile(name string) (string, error) {
	dir, err := MemoryDir()
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(filepath.Join(dir, name))
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading memory file %s: %w", name, err)
	}
	return string(data), nil
}

// WriteMemoryFile writes content to a file in the memory directory,
// creating the directory if needed.
func WriteMemoryFile(name, content string) error {
	dir, err := MemoryDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating memory directory %s: %w", dir, err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("writing memory file %s: %w", path, err)
	}
	return nil
}

// ListMemoryFiles returns the sorted file names in the memory directory,
// or nil when the directory does not exist.
func ListMemoryFiles() ([]string, error) {
	dir, err := MemoryDir()
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading memory directory %s: %w", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
