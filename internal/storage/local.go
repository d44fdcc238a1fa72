package storage

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/afero"
)

// LocalBackend deletes artifacts from a filesystem.
type LocalBackend struct {
	fs afero.Fs
}

// NewLocalBackend returns a backend over fs. A nil fs means the OS filesystem.
func NewLocalBackend(fs afero.Fs) *LocalBackend {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &LocalBackend{fs: fs}
}

// LocalOpener returns an Opener that always yields a LocalBackend over fs.
func LocalOpener(fs afero.Fs) Opener {
	return func(context.Context) (Backend, error) {
		return NewLocalBackend(fs), nil
	}
}

// Delete removes the file at loc.Path. A missing file is OutcomeAbsent; a
// directory is never removed and fails with ErrDeleteFailed.
func (b *LocalBackend) Delete(ctx context.Context, loc Location) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if loc.Path == "" {
		return 0, malformed(loc.Raw, "empty path")
	}
	info, err := b.fs.Stat(loc.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return OutcomeAbsent, nil
		}
		return 0, deleteFailed(loc.Raw, err)
	}
	if info.IsDir() {
		return 0, deleteFailed(loc.Raw, fmt.Errorf("%s is a directory", loc.Path))
	}
	if err := b.fs.Remove(loc.Path); err != nil {
		if os.IsNotExist(err) {
			return OutcomeAbsent, nil
		}
		return 0, deleteFailed(loc.Raw, err)
	}
	return OutcomeDeleted, nil
}
