package utils

import (
	"path/filepath"
	"strings"
)

// SwapExt returns path with its extension replaced by ext, or ext appended
// when path has none.
func SwapExt(path, ext string) string {
	old := filepath.Ext(path)
	if old == "" {
		return path + ext
	}
	return strings.TrimSuffix(path, old) + ext
}

// GetPathInfo resolves relPath and returns it with its directory.
func GetPathInfo(relPath string) (fullPath string, parentDir string, err error) {
	fullPath, err = filepath.Abs(relPath)
	if err != nil {
		return "", "", err
	}
	return fullPath, filepath.Dir(fullPath), nil
}
