package rfb

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// VerifyZip reads every member of the archive at path, which checks each
// CRC-32.
func VerifyZip(path string) error {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("rfb: open %s: %w", filepath.Base(path), err)
	}
	defer zr.Close()
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("rfb: %s: %s: %w", filepath.Base(path), f.Name, err)
		}
		_, err = io.Copy(io.Discard, rc)
		rc.Close()
		if err != nil {
			return fmt.Errorf("rfb: %s: %s: %w", filepath.Base(path), f.Name, err)
		}
	}
	return nil
}

// Extract unpacks the regular files of the archive at path directly into
// dir, dropping any directory structure, and returns the written paths.
func Extract(path, dir string) ([]string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("rfb: open %s: %w", filepath.Base(path), err)
	}
	defer zr.Close()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("rfb: create %s: %w", dir, err)
	}
	var out []string
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name := filepath.Base(filepath.FromSlash(f.Name))
		if name == "." || name == ".." || strings.ContainsRune(name, os.PathSeparator) {
			return out, fmt.Errorf("rfb: %s: unsafe member name %q", filepath.Base(path), f.Name)
		}
		dest := filepath.Join(dir, name)
		if err := extractOne(f, dest); err != nil {
			return out, fmt.Errorf("rfb: %s: %w", filepath.Base(path), err)
		}
		out = append(out, dest)
	}
	return out, nil
}

func extractOne(f *zip.File, dest string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	tmp := dest + ".part"
	w, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, rc); err != nil {
		w.Close()
		os.Remove(tmp)
		return fmt.Errorf("%s: %w", f.Name, err)
	}
	if err := w.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dest)
}
