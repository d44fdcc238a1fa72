package trace

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
)

// WriteFile stores the canonical JSON of t at path on fs. The file is
// written next to its destination first and renamed into place, so readers
// never observe a partial trace.
func WriteFile(fs afero.Fs, path string, t InvalidationTrace) error {
	data, err := t.CanonicalJSON()
	if err != nil {
		return fmt.Errorf("encode trace: %w", err)
	}

	dir := filepath.Dir(path)
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create trace dir: %w", err)
	}
	tmp, err := afero.TempFile(fs, dir, "."+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("create trace file: %w", err)
	}
	name := tmp.Name()

	_, werr := tmp.Write(data)
	cerr := tmp.Close()
	if werr == nil {
		werr = cerr
	}
	if werr == nil {
		werr = fs.Rename(name, path)
	}
	if werr != nil {
		_ = fs.Remove(name)
		return fmt.Errorf("write trace %s: %w", path, werr)
	}
	return nil
}
