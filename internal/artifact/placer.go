package artifact

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

const placedMode fs.FileMode = 0o750

// Target describes where a stored artifact is placed for execution and who
// owns it afterwards.
type Target struct {
	App      string
	Home     string
	Resource string
	UID      int
	GID      int
}

// Placer copies stored artifacts into application home directories.
type Placer struct {
	StorageDir string
}

func NewPlacer(storageDir string) *Placer { return &Placer{StorageDir: storageDir} }

// SourcePath returns the storage path of the given version of t.
func (p *Placer) SourcePath(t Target, v Version) string {
	return filepath.Join(p.StorageDir, Filename(t.Resource, t.App, v.Raw()))
}

// Place copies the stored artifact of version v to Home/Resource, then sets its
// mode and owner. The copy goes through a temporary file in the target
// directory so a failed placement leaves the previous artifact untouched.
// A missing source yields an error wrapping ErrNotFound.
func (p *Placer) Place(t Target, v Version) (string, error) {
	src := p.SourcePath(t, v)
	dst := filepath.Join(t.Home, t.Resource)

	in, err := os.Open(src)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, src)
		}
		return "", err
	}
	defer in.Close()

	if err := os.MkdirAll(t.Home, 0o755); err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(t.Home, "."+t.Resource+".*")
	if err != nil {
		return "", err
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		cleanup()
		return "", fmt.Errorf("copy %s: %w", src, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", err
	}
	if err := os.Chmod(tmpPath, placedMode); err != nil {
		cleanup()
		return "", err
	}
	if err := chown(tmpPath, t.UID, t.GID); err != nil {
		cleanup()
		return "", err
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		cleanup()
		return "", err
	}
	log.Info().Str("app", t.App).Str("from", src).Str("to", dst).Msg("artifact placed")
	return dst, nil
}

// chown changes ownership; an unprivileged agent cannot hand files to other
// users, so a permission error is only logged when not running as root.
func chown(path string, uid, gid int) error {
	err := os.Chown(path, uid, gid)
	if err == nil {
		return nil
	}
	if errors.Is(err, fs.ErrPermission) && os.Geteuid() != 0 {
		log.Warn().Str("path", path).Int("uid", uid).Int("gid", gid).Err(err).Msg("cannot change artifact owner")
		return nil
	}
	return fmt.Errorf("chown %s: %w", path, err)
}
