package queue

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/yinyajiang/ytq/model"
	"github.com/yinyajiang/ytq/pkg/common"
	"github.com/yinyajiang/ytq/pkg/downloader"
)

const (
	overrideNone = iota
	overrideStarted
	overridePaused
)

// Download pairs one Item with its live process state. The process
// handle never reaches the store: after a restart every Download comes
// back not-started.
type Download struct {
	Info *model.Item

	mu       sync.Mutex
	started  bool
	canceled bool
	override int
	cancel   context.CancelFunc
}

func NewDownload(info *model.Item) *Download {
	return &Download{Info: info}
}

func (d *Download) Started() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.started
}

func (d *Download) Canceled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.canceled
}

// Cancel kills the running process if there is one, and always marks the
// download canceled. Not-yet-started items are removed one layer up, by
// the queue.
func (d *Download) Cancel() {
	d.mu.Lock()
	d.canceled = true
	cancel := d.cancel
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (d *Download) setOverride(o int) {
	d.mu.Lock()
	d.override = o
	d.mu.Unlock()
}

// eligible reports whether the dispatch loop may pick this download.
// A per-item override beats the global pause flag either way.
func (d *Download) eligible(globalPaused bool) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.canceled {
		return false
	}
	switch d.override {
	case overrideStarted:
		return true
	case overridePaused:
		return false
	}
	return !globalPaused
}

// Snapshot copies the item for handing to notifiers, so relays never
// observe a half-applied progress update.
func (d *Download) Snapshot() *model.Item {
	d.mu.Lock()
	defer d.mu.Unlock()
	item := *d.Info
	return &item
}

// Start drives the item through one yt-dlp invocation and always leaves
// a terminal status on the item. It never returns an error to the
// dispatch loop: one bad item must not take the loop down.
func (d *Download) Start(ctx context.Context, params map[string]any, notifier Notifier) {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return
	}
	d.started = true
	if d.canceled {
		d.Info.Status = model.StatusCanceled
		d.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.Info.Status = model.StatusPreparing
	d.mu.Unlock()
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			log.Printf("download %s: panic: %v", d.Info.ID, r)
			d.terminate(model.StatusError, fmt.Sprintf("internal error: %v", r), notifier)
		}
	}()

	if notifier != nil {
		notifier.Updated(d.Snapshot())
	}

	downer, err := d.resolveDownloader()
	if err != nil {
		d.terminate(model.StatusError, err.Error(), notifier)
		return
	}

	sink := func(p downloader.Progress) {
		d.mu.Lock()
		d.Info.Status = p.Status
		d.Info.DownloadedBytes = p.DownloadedBytes
		if p.TotalBytes > 0 {
			d.Info.TotalBytes = p.TotalBytes
		}
		d.Info.Speed = p.Speed
		d.Info.ETA = p.ETA
		d.Info.Percent = p.Percent
		if p.Filename != "" {
			d.Info.Filename = p.Filename
		}
		if p.TmpFilename != "" {
			d.Info.TmpFilename = p.TmpFilename
		}
		d.mu.Unlock()
		if notifier != nil {
			notifier.Updated(d.Snapshot())
		}
	}

	err = downer.Download(ctx, downloader.DownloadOptions{
		URL:      d.Info.URL,
		Dir:      d.Info.DownloadDir,
		Template: d.Info.Template,
		Params:   params,
	}, sink)

	switch {
	case common.IsCtxDone(ctx) || d.Canceled():
		d.terminate(model.StatusCanceled, "", notifier)
	case err != nil:
		d.terminate(model.StatusError, err.Error(), notifier)
	default:
		d.mu.Lock()
		d.Info.Status = model.StatusFinished
		d.Info.Percent = 100
		d.Info.Speed = 0
		d.Info.ETA = 0
		d.Info.Msg = ""
		d.mu.Unlock()
		if notifier != nil {
			notifier.Updated(d.Snapshot())
		}
	}
}

func (d *Download) resolveDownloader() (downloader.Downloader, error) {
	if d.Info.Downloader != "" {
		return downloader.GetByName(d.Info.Downloader)
	}
	return downloader.GetByURL(d.Info.URL)
}

func (d *Download) terminate(status, msg string, notifier Notifier) {
	d.mu.Lock()
	d.Info.Status = status
	d.Info.Msg = msg
	d.Info.Speed = 0
	d.Info.ETA = 0
	d.mu.Unlock()
	if notifier != nil {
		notifier.Updated(d.Snapshot())
	}
}
