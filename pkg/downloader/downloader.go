package downloader

import (
	"context"

	"github.com/pkg/errors"
)

// Progress is one update relayed out of a running download. Status uses
// the model.Status* values that make sense mid-transfer (downloading,
// postprocessing).
type Progress struct {
	Status string

	TotalBytes      int64
	DownloadedBytes int64
	Speed           int64
	ETA             int64
	Percent         float64

	Filename    string
	TmpFilename string
}

type ProgressSink func(p Progress)

type DownloadOptions struct {
	URL      string
	Dir      string
	Template string

	// Resolved yt-dlp parameters (format, download_archive, cookiefile...).
	Params map[string]any
}

type Downloader interface {
	Name() string
	SupportedURL(url string) bool
	Download(ctx context.Context, opt DownloadOptions, sink ProgressSink) error
}

var _downloaders = make(map[string]Downloader)

func Regist(d Downloader) {
	_downloaders[d.Name()] = d
}

func GetByName(name string) (Downloader, error) {
	if name == "" {
		return nil, errors.New("downloader name is empty")
	}
	if d, ok := _downloaders[name]; ok {
		return d, nil
	}
	return nil, errors.Errorf("downloader %s not found", name)
}

func GetByURL(url string) (Downloader, error) {
	for _, d := range _downloaders {
		if d.SupportedURL(url) {
			return d, nil
		}
	}
	return nil, errors.Errorf("no downloader for %s", url)
}

func Names() []string {
	names := make([]string, 0, len(_downloaders))
	for name := range _downloaders {
		names = append(names, name)
	}
	return names
}
