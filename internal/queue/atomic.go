package queue

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// saveJSON writes v atomically: marshal to a temp sibling, fsync, keep the
// previous file as .bak, then rename the temp over the target. Readers never
// observe a partially written file.
func saveJSON(path string, v interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open temp: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write temp: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("fsync temp: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		if err := copyFile(path, path+".bak"); err != nil {
			return fmt.Errorf("backup: %w", err)
		}
	}

	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

// loadJSON reads path into out. A parse failure falls back to the .bak
// sibling; if that also fails the caller reinitializes empty.
func loadJSON(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err == nil {
		if jsonErr := json.Unmarshal(data, out); jsonErr == nil {
			return nil
		}
	} else if os.IsNotExist(err) {
		return err
	}

	bak, bakErr := os.ReadFile(path + ".bak")
	if bakErr != nil {
		return fmt.Errorf("load %s: primary unreadable and no backup", filepath.Base(path))
	}
	if err := json.Unmarshal(bak, out); err != nil {
		return fmt.Errorf("load %s: primary and backup both corrupt", filepath.Base(path))
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
