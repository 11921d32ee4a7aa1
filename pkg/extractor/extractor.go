package extractor

import (
	"context"
	"errors"

	"github.com/yinyajiang/ytq/model"
)

// Extractor resolves a URL into metadata without downloading anything.
// What happens behind Extract is opaque to the queue: it may be a
// subprocess, an API client, or a test fake.
type Extractor interface {
	Extract(ctx context.Context, url string, params map[string]any) (*model.MediaInfo, error)
	IsMatched(url string) bool
	Name() string
}

var (
	_extractors = make(map[string]Extractor)
)

func Regist(e Extractor) {
	_extractors[e.Name()] = e
}

func Get(hints ...string) (Extractor, error) {
	for _, name := range hints {
		if name == "" {
			continue
		}
		e, ok := _extractors[name]
		if ok {
			return e, nil
		}
	}
	for _, url := range hints {
		if url == "" {
			continue
		}
		for _, e := range _extractors {
			if e.IsMatched(url) {
				return e, nil
			}
		}
	}
	return nil, errors.New("no matched extractor")
}
