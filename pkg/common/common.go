package common

import (
	"context"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

var reWrongFileChars = regexp.MustCompile(`[\x{1}-\x{6}\x{e}-\x{19}\x{1b}-\x{1f}"<>\|\a\t\n\v\f\r\:\*\?\\\/]`)

// ReplaceWrongFileChars sanitizes a title for use as a filename stem.
func ReplaceWrongFileChars(stem string) string {
	stem = strings.ReplaceAll(strings.ReplaceAll(stem, "\\", "_"), "/", "_")
	return reWrongFileChars.ReplaceAllString(stem, "_")
}

// SafeJoin joins sub under base, rejecting anything that resolves outside
// base (the item "folder" field is client-supplied).
func SafeJoin(base, sub string) (string, error) {
	if sub == "" {
		return base, nil
	}
	joined := filepath.Join(base, sub)
	rel, err := filepath.Rel(base, joined)
	if err != nil {
		return "", errors.Wrapf(err, "bad folder: %s", sub)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errors.Errorf("folder escapes the download directory: %s", sub)
	}
	return joined, nil
}

func IsCtxDone(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}
