package fetcher

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
)

// ExtractZIP extracts the archive entries accepted by keep into destDir,
// flattening directory structure. Entries whose target already exists are left
// alone. A nil keep accepts every file. Returns the paths written.
func ExtractZIP(zipPath, destDir string, keep func(name string) bool) ([]string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, eris.Wrap(err, "zip: open archive")
	}
	defer r.Close() //nolint:errcheck

	var extracted []string
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name := filepath.Base(filepath.FromSlash(f.Name))
		if name == "." || name == ".." {
			return extracted, eris.Errorf("zip: illegal path %q", f.Name)
		}
		if keep != nil && !keep(name) {
			continue
		}
		dest := filepath.Join(destDir, name)
		if _, err := os.Stat(dest); err == nil {
			continue
		}
		if err := extractZIPEntry(f, dest); err != nil {
			return extracted, err
		}
		extracted = append(extracted, dest)
	}

	return extracted, nil
}

func extractZIPEntry(f *zip.File, dest string) error {
	rc, err := f.Open()
	if err != nil {
		return eris.Wrapf(err, "zip: open entry %s", f.Name)
	}
	defer rc.Close() //nolint:errcheck

	if _, err := writeAtomic(dest, io.LimitReader(rc, int64(f.UncompressedSize64))); err != nil {
		return eris.Wrapf(err, "zip: extract %s", f.Name)
	}
	return nil
}
