package config

import (
	"bufio"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// LoadDotEnv reads KEY=VALUE lines from path into the process environment.
// Blank lines and '#' comments are skipped, an "export " prefix is allowed,
// and matching single or double quotes around the value are removed.
// Variables already set are kept unless override is true.
func LoadDotEnv(path string, override bool) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	n := 0
	s := bufio.NewScanner(f)
	for s.Scan() {
		key, val, ok := parseDotEnvLine(s.Text())
		if !ok {
			continue
		}
		if _, set := os.LookupEnv(key); set && !override {
			continue
		}
		if err := os.Setenv(key, val); err != nil {
			return err
		}
		n++
	}
	if err := s.Err(); err != nil {
		return err
	}
	log.Debug().Str("path", path).Int("vars", n).Msg("loaded environment file")
	return nil
}

func parseDotEnvLine(line string) (key, val string, ok bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", "", false
	}
	line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
	key, val, found := strings.Cut(line, "=")
	key = strings.TrimSpace(key)
	if !found || key == "" {
		return "", "", false
	}
	val = strings.TrimSpace(val)
	if len(val) >= 2 && (val[0] == '"' || val[0] == '\'') && val[len(val)-1] == val[0] {
		val = val[1 : len(val)-1]
	}
	return key, val, true
}

// LoadDotEnvDefault loads .env from the working directory and from the
// directory of the running binary, in that order. Missing files are ignored.
func LoadDotEnvDefault() {
	var dirs []string
	if cwd, err := os.Getwd(); err == nil {
		dirs = append(dirs, cwd)
	}
	if exe, err := os.Executable(); err == nil {
		dirs = append(dirs, filepath.Dir(exe))
	}
	for _, dir := range dirs {
		p := filepath.Join(dir, ".env")
		if err := LoadDotEnv(p, false); err != nil && !errors.Is(err, fs.ErrNotExist) {
			log.Warn().Str("path", p).Err(err).Msg("ignoring environment file")
		}
	}
}
