package scanner

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"

	"photo-library/internal/filesystem"
)

// IgnoreFile lists glob patterns of entries to skip, one per line, matched
// against paths relative to the directory holding the file.
const IgnoreFile = ".photoignore"

type ignoreRule struct {
	base    string
	pattern string
	g       glob.Glob
}

// ignoreRules are the rules in effect for one directory, inherited ones
// first.
type ignoreRules []ignoreRule

// parseIgnore compiles the patterns of an ignore file located in base.
// Blank lines and lines starting with '#' are skipped.
func parseIgnore(base string, data []byte) (ignoreRules, error) {
	var rules ignoreRules
	sc := bufio.NewScanner(bytes.NewReader(data))
	for line := 1; sc.Scan(); line++ {
		pattern := strings.TrimSpace(sc.Text())
		if pattern == "" || strings.HasPrefix(pattern, "#") {
			continue
		}
		pattern = strings.TrimSuffix(strings.TrimPrefix(pattern, "/"), "/")
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return rules, fmt.Errorf("%s line %d: failed to compile glob pattern '%s': %w",
				filepath.Join(base, IgnoreFile), line, pattern, err)
		}
		rules = append(rules, ignoreRule{base: base, pattern: pattern, g: g})
	}
	return rules, sc.Err()
}

// loadIgnore extends inherited with the ignore file of dir, if any. An
// ignore file that exists but cannot be read leaves inherited in effect and
// is reported.
func loadIgnore(ctx context.Context, dir string, cfg filesystem.RetryConfig, inherited ignoreRules) (ignoreRules, error) {
	data, err := filesystem.ReadFileWithRetry(ctx, filepath.Join(dir, IgnoreFile), cfg)
	if errors.Is(err, fs.ErrNotExist) {
		return inherited, nil
	}
	if err != nil {
		return inherited, fmt.Errorf("failed to read ignore file: %w", err)
	}
	own, err := parseIgnore(dir, data)
	if len(own) == 0 {
		return inherited, err
	}
	rules := make(ignoreRules, 0, len(inherited)+len(own))
	rules = append(rules, inherited...)
	return append(rules, own...), err
}

// Match reports whether path is excluded by any rule.
func (r ignoreRules) Match(path string) bool {
	for _, rule := range r {
		rel, err := filepath.Rel(rule.base, path)
		if err != nil || strings.HasPrefix(rel, "..") {
			continue
		}
		if rule.g.Match(filepath.ToSlash(rel)) {
			return true
		}
	}
	return false
}
