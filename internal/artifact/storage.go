package artifact

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

const (
	filenamePrefix   = "executable-"
	defaultExtension = "bin"
)

// ErrNotFound reports a stored artifact that does not exist.
var ErrNotFound = errors.New("artifact not found")

// Filename builds the storage name of an uploaded artifact:
// executable-<app>-v<version>.<ext>, where ext is taken from the resource name.
func Filename(resource, app, version string) string {
	ext := strings.TrimPrefix(filepath.Ext(resource), ".")
	if ext == "" {
		ext = defaultExtension
	}
	return fmt.Sprintf("%s%s-v%s.%s", filenamePrefix, app, version, ext)
}

func storedPattern(app string) *regexp.Regexp {
	return regexp.MustCompile(`^` + regexp.QuoteMeta(filenamePrefix+app) + `-v([0-9a-zA-Z.\-_]+)\.[a-zA-Z0-9]+$`)
}

type storedFile struct {
	name    string
	version Version
}

func listStored(storageDir, app string) ([]storedFile, error) {
	entries, err := os.ReadDir(storageDir)
	if err != nil {
		return nil, err
	}
	pat := storedPattern(app)
	var out []storedFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := pat.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		out = append(out, storedFile{name: e.Name(), version: ParseVersion(m[1])})
	}
	// newest first
	sort.SliceStable(out, func(i, j int) bool { return Compare(out[i].version, out[j].version) > 0 })
	return out, nil
}

// FindLatest scans storageDir for artifacts of app and returns the highest
// version. ok is false when no artifact of the app is stored.
func FindLatest(storageDir, app string) (v Version, ok bool, err error) {
	files, err := listStored(storageDir, app)
	if err != nil {
		if os.IsNotExist(err) {
			return Version{}, false, nil
		}
		return Version{}, false, err
	}
	if len(files) == 0 {
		return Version{}, false, nil
	}
	return files[0].version, true, nil
}

// Prune removes stored artifacts of app except the keep highest versions.
// keep <= 0 disables pruning.
func Prune(storageDir, app string, keep int) error {
	if keep <= 0 {
		return nil
	}
	files, err := listStored(storageDir, app)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if len(files) <= keep {
		return nil
	}
	var errs []error
	for _, f := range files[keep:] {
		path := filepath.Join(storageDir, f.name)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
			continue
		}
		log.Info().Str("app", app).Str("file", f.name).Msg("pruned stored artifact")
	}
	return errors.Join(errs...)
}
