//go:build !unix

package archiver

import "os"

func flock(f *os.File) error   { return nil }
func funlock(f *os.File) error { return nil }
