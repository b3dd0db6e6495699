package input

import (
	"errors"
	"strings"

	"github.com/duke-git/lancet/v2/fileutil"
	"github.com/duke-git/lancet/v2/slice"

	"github.com/screa/king-claimer/pkg/types"
)

// ErrNotRegularFile is returned for an input path that names a directory
var ErrNotRegularFile = errors.New("not a regular file")

// ReadLines returns the trimmed, non-blank lines of a file. A missing file
// yields an empty result rather than an error; callers decide whether that
// is fatal.
func ReadLines(path string) ([]string, error) {
	if !fileutil.IsExist(path) {
		return nil, nil
	}
	if fileutil.IsDir(path) {
		return nil, ErrNotRegularFile
	}
	lines, err := fileutil.ReadFileByLine(path)
	if err != nil {
		return nil, err
	}
	lines = slice.Map(lines, func(_ int, line string) string {
		return strings.TrimSpace(line)
	})
	return slice.Filter(lines, func(_ int, line string) bool {
		return line != ""
	}), nil
}

// LoadWorkItems reads one secret key per line
func LoadWorkItems(path string) ([]types.WorkItem, error) {
	lines, err := ReadLines(path)
	if err != nil {
		return nil, &types.ConfigurationError{Op: "load " + path, Err: err}
	}
	if len(lines) == 0 {
		return nil, &types.ConfigurationError{Op: "load " + path, Err: types.ErrNoWorkItems}
	}
	return slice.Map(lines, func(i int, key string) types.WorkItem {
		return types.WorkItem{Index: i, SecretKey: key}
	}), nil
}

// LoadProxies reads one proxy address per line
func LoadProxies(path string) ([]types.Proxy, error) {
	lines, err := ReadLines(path)
	if err != nil {
		return nil, &types.ConfigurationError{Op: "load " + path, Err: err}
	}
	if len(lines) == 0 {
		return nil, &types.ConfigurationError{Op: "load " + path, Err: types.ErrNoProxies}
	}
	return slice.Map(lines, func(_ int, addr string) types.Proxy {
		return types.Proxy{Address: addr}
	}), nil
}
