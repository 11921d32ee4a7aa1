package queue

import (
	"context"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/yinyajiang/ytq/model"
	"github.com/yinyajiang/ytq/pkg/archiver"
	"github.com/yinyajiang/ytq/pkg/common"
	"github.com/yinyajiang/ytq/pkg/db"
	"github.com/yinyajiang/ytq/pkg/extractor"
	"gorm.io/gorm"
)

const (
	StatusOK    = "ok"
	StatusError = "error"
)

type AddRequest struct {
	URL      string
	Preset   string
	Folder   string
	Template string

	// Per-item yt-dlp parameter overrides, merged over the preset.
	Params map[string]any

	// Free-form metadata carried on the item (thumbnail, uploader,
	// playlist parentage is filled in during expansion).
	Extras map[string]any
}

type AddResult struct {
	Status string
	Msg    string
}

type Option struct {
	DBOption    db.Option
	Verbose     bool
	DownloadDir string

	DefaultDownloader string
	MaxExtractWorkers int
	ExtractTimeout    time.Duration

	Archiver       *archiver.Archiver
	Notifier       Notifier
	ResolveOptions OptionsBuilder
}

// Queue is the single coordinator for admission, ordering and completion
// of downloads. One background loop drives one item at a time; admission
// and control calls come from any goroutine.
type Queue struct {
	opt     Option
	storage *db.Storage
	archive *archiver.Archiver
	notify  Notifier
	resolve OptionsBuilder

	mu     sync.Mutex
	queue  *Store
	done   *Store
	paused bool

	wake       chan struct{}
	extractSem chan struct{}
	loopDone   chan struct{}
}

func New(opt Option) (*Queue, error) {
	if opt.DownloadDir == "" {
		return nil, errors.New("download dir is required")
	}
	if opt.MaxExtractWorkers <= 0 {
		opt.MaxExtractWorkers = 4
	}
	if opt.ExtractTimeout <= 0 {
		opt.ExtractTimeout = 70 * time.Second
	}
	if opt.Archiver == nil {
		opt.Archiver = archiver.New()
	}
	if opt.Notifier == nil {
		opt.Notifier = NewRelay()
	}
	if opt.ResolveOptions == nil {
		opt.ResolveOptions = DefaultOptionsBuilder("")
	}

	storage, err := db.NewStorage(opt.DBOption, opt.Verbose, &model.ItemRecord{})
	if err != nil {
		return nil, err
	}

	q := &Queue{
		opt:        opt,
		storage:    storage,
		archive:    opt.Archiver,
		notify:     opt.Notifier,
		resolve:    opt.ResolveOptions,
		queue:      NewStore(storage.GormDB(), model.StoreTypeQueue, opt.DownloadDir),
		done:       NewStore(storage.GormDB(), model.StoreTypeDone, opt.DownloadDir),
		wake:       make(chan struct{}, 1),
		extractSem: make(chan struct{}, opt.MaxExtractWorkers),
		loopDone:   make(chan struct{}),
	}
	if err := q.queue.Load(); err != nil {
		storage.Close()
		return nil, err
	}
	if err := q.done.Load(); err != nil {
		storage.Close()
		return nil, err
	}
	return q, nil
}

func (q *Queue) GormDB() *gorm.DB {
	return q.storage.GormDB()
}

// Start launches the dispatch loop. It runs until ctx is canceled.
func (q *Queue) Start(ctx context.Context) {
	go q.loop(ctx)
}

// Done is closed once the dispatch loop has exited.
func (q *Queue) Done() <-chan struct{} {
	return q.loopDone
}

func (q *Queue) Close() {
	q.storage.Close()
}

// Add resolves the URL into metadata and enqueues every leaf it expands
// to. Failures come back as an error-status result, never a panic; a
// playlist where only some entries fail reports error with the messages
// joined, while the good entries are still enqueued.
func (q *Queue) Add(ctx context.Context, req AddRequest) AddResult {
	if req.URL == "" {
		return AddResult{Status: StatusError, Msg: "url is required"}
	}
	params, err := q.resolve(req.Preset, req.Params)
	if err != nil {
		return AddResult{Status: StatusError, Msg: err.Error()}
	}
	seen := make(map[string]struct{})
	return q.add(ctx, req, params, seen)
}

func (q *Queue) add(ctx context.Context, req AddRequest, params map[string]any, seen map[string]struct{}) AddResult {
	if _, ok := seen[req.URL]; ok {
		// self-referencing playlists otherwise recurse forever
		return AddResult{Status: StatusOK, Msg: "already processed"}
	}
	seen[req.URL] = struct{}{}

	info, err := q.extract(ctx, req.URL, params)
	if err != nil {
		return AddResult{Status: StatusError, Msg: err.Error()}
	}

	switch info.InfoType {
	case model.InfoTypePlaylist:
		return q.addPlaylist(ctx, req, params, info, seen)
	case model.InfoTypeURL:
		sub := req
		sub.URL = info.URL
		return q.add(ctx, sub, params, seen)
	default:
		return q.addLeaf(req, params, info)
	}
}

func (q *Queue) addPlaylist(ctx context.Context, req AddRequest, params map[string]any, info *model.MediaInfo, seen map[string]struct{}) AddResult {
	msgs := make([]string, 0)
	for i, entry := range info.Entries {
		sub := req
		sub.URL = entry.URL
		sub.Extras = inheritExtras(req.Extras, info, entry, i)

		var res AddResult
		if entry.InfoType == model.InfoTypeMedia && entry.MediaID != "" {
			res = q.addLeaf(sub, params, entry)
		} else {
			res = q.add(ctx, sub, params, seen)
		}
		if res.Status == StatusError {
			msgs = append(msgs, res.Msg)
		}
	}
	if len(msgs) > 0 {
		return AddResult{Status: StatusError, Msg: strings.Join(msgs, "; ")}
	}
	return AddResult{Status: StatusOK}
}

func (q *Queue) addLeaf(req AddRequest, params map[string]any, info *model.MediaInfo) AddResult {
	id := itemID(info)
	archiveID := info.ArchiveID()

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.queue.Exists(id) || q.queue.ExistsURL(info.URL) {
		return AddResult{Status: StatusOK, Msg: "item already queued"}
	}
	if archiveFile, ok := params["download_archive"].(string); ok && archiveFile != "" && archiveID != "" {
		if len(q.archive.Read(archiveFile, []string{archiveID})) > 0 {
			return AddResult{Status: StatusOK, Msg: "item already archived"}
		}
	}

	dir, err := common.SafeJoin(q.opt.DownloadDir, req.Folder)
	if err != nil {
		return AddResult{Status: StatusError, Msg: err.Error()}
	}

	title := info.Title
	if title == "" {
		title = info.URL
	}
	template := req.Template
	if template == "" && info.Title != "" {
		template = common.ReplaceWrongFileChars(info.Title) + ".%(ext)s"
	}
	item := &model.Item{
		ID:           id,
		URL:          info.URL,
		Title:        title,
		Status:       model.StatusPending,
		Preset:       req.Preset,
		Folder:       req.Folder,
		Template:     template,
		Downloader:   q.opt.DefaultDownloader,
		IsLive:       info.IsLive,
		LiveIn:       info.LiveIn,
		ArchiveID:    archiveID,
		IsArchivable: archiveID != "",
		Params:       req.Params,
		Extras:       mediaExtras(req.Extras, info),
		DownloadDir:  dir,
	}

	d := NewDownload(item)
	if err := q.queue.Put(d); err != nil {
		return AddResult{Status: StatusError, Msg: err.Error()}
	}
	q.notify.Added(d.Snapshot())
	q.wakeLoop()
	return AddResult{Status: StatusOK}
}

// extract runs the opaque metadata call under the worker semaphore with
// a hard wall-clock timeout.
func (q *Queue) extract(ctx context.Context, url string, params map[string]any) (*model.MediaInfo, error) {
	select {
	case q.extractSem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-q.extractSem }()

	ctx, cancel := context.WithTimeout(ctx, q.opt.ExtractTimeout)
	defer cancel()

	e, err := extractor.Get(url)
	if err != nil {
		return nil, err
	}
	return e.Extract(ctx, url, params)
}

// Cancel stops the listed queue items. Started ones get their process
// killed and are reaped by the dispatch loop; not-started ones are
// removed here directly, there is no process to kill.
func (q *Queue) Cancel(ids []string) map[string]string {
	out := make(map[string]string, len(ids))
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, id := range ids {
		d, err := q.queue.Get(id)
		if err != nil {
			out[id] = "not found"
			continue
		}
		if d.Started() {
			d.Cancel()
			out[id] = "canceled"
			continue
		}
		if err := q.queue.Delete(id); err != nil {
			log.Printf("queue: cancel %s: %v", id, err)
			out[id] = err.Error()
			continue
		}
		d.Cancel()
		q.notify.Canceled(id)
		out[id] = "removed"
	}
	return out
}

// Clear removes completed items from history, optionally deleting the
// downloaded file from disk.
func (q *Queue) Clear(ids []string, removeFile bool) map[string]string {
	out := make(map[string]string, len(ids))
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, id := range ids {
		d, err := q.done.Get(id)
		if err != nil {
			out[id] = "not found"
			continue
		}
		if removeFile {
			if path := d.Info.FilePath(); path != "" {
				if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
					log.Printf("queue: remove file %s: %v", path, err)
				}
			}
		}
		if err := q.done.Delete(id); err != nil {
			log.Printf("queue: clear %s: %v", id, err)
			out[id] = err.Error()
			continue
		}
		q.notify.Cleared(id)
		out[id] = "cleared"
	}
	return out
}

func (q *Queue) Pause() {
	q.mu.Lock()
	q.paused = true
	q.mu.Unlock()
}

func (q *Queue) Resume() {
	q.mu.Lock()
	q.paused = false
	q.mu.Unlock()
	q.wakeLoop()
}

func (q *Queue) IsPaused() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.paused
}

// StartItems marks the listed items eligible regardless of the global
// pause flag.
func (q *Queue) StartItems(ids []string) {
	q.mu.Lock()
	for _, id := range ids {
		if d, err := q.queue.Get(id); err == nil {
			d.setOverride(overrideStarted)
		}
	}
	q.mu.Unlock()
	q.wakeLoop()
}

// PauseItems marks the listed items ineligible regardless of the global
// pause flag. A running download is not interrupted.
func (q *Queue) PauseItems(ids []string) {
	q.mu.Lock()
	for _, id := range ids {
		if d, err := q.queue.Get(id); err == nil {
			d.setOverride(overridePaused)
		}
	}
	q.mu.Unlock()
}

// Items returns a point-in-time copy of the active partition, oldest
// first.
func (q *Queue) Items() []*model.Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	downloads := q.queue.All()
	items := make([]*model.Item, 0, len(downloads))
	for _, d := range downloads {
		items = append(items, d.Snapshot())
	}
	return items
}

// History pages through the done partition straight off the table.
func (q *Queue) History(page, perPage int, status string) ([]*model.Item, int64, int, int, error) {
	return q.done.Paginated(page, perPage, status)
}

// WaitIdle blocks until the active partition is empty or ctx ends.
// Intended for CLI use and tests.
func (q *Queue) WaitIdle(ctx context.Context) error {
	for {
		q.mu.Lock()
		empty := q.queue.Empty()
		q.mu.Unlock()
		if empty {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// loop is the single consumer: pick the oldest eligible item, drive it
// to a terminal status, move it out of the active partition, repeat.
func (q *Queue) loop(ctx context.Context) {
	defer close(q.loopDone)
	for {
		q.mu.Lock()
		d := q.queue.NextDownload(q.paused)
		q.mu.Unlock()

		if d == nil {
			select {
			case <-ctx.Done():
				return
			case <-q.wake:
			}
			continue
		}
		q.runOne(ctx, d)

		if common.IsCtxDone(ctx) {
			return
		}
	}
}

func (q *Queue) runOne(ctx context.Context, d *Download) {
	params, err := q.resolve(d.Info.Preset, d.Info.Params)
	if err != nil {
		log.Printf("queue: resolve options for %s: %v", d.Info.ID, err)
		params = map[string]any{}
	}

	d.Start(ctx, params, q.notify)

	status := d.Snapshot().Status
	if status != model.StatusFinished {
		q.cleanupPartial(d)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if d.Canceled() {
		// Cancel may have removed and notified a not-yet-started item
		// already; notify only if the item is still ours to reap.
		if q.queue.Exists(d.Info.ID) {
			if err := q.queue.Delete(d.Info.ID); err != nil {
				log.Printf("queue: drop canceled %s: %v", d.Info.ID, err)
			}
			q.notify.Canceled(d.Info.ID)
		}
		return
	}

	if err := q.queue.MoveTo(q.done, d); err != nil {
		log.Printf("queue: move %s to history: %v", d.Info.ID, err)
		return
	}
	if status == model.StatusFinished {
		q.recordArchive(d, params)
	}
	q.notify.Completed(d.Snapshot())
}

// recordArchive keeps the archiver cache in line with the archive entry
// yt-dlp itself wrote for the finished item.
func (q *Queue) recordArchive(d *Download, params map[string]any) {
	archiveFile, ok := params["download_archive"].(string)
	if !ok || archiveFile == "" {
		return
	}
	if !d.Info.IsArchivable || d.Info.ArchiveID == "" {
		return
	}
	q.archive.Add(archiveFile, []string{d.Info.ArchiveID}, false)
}

// cleanupPartial removes the temp file a non-finished download left
// behind. Best effort.
func (q *Queue) cleanupPartial(d *Download) {
	path := d.Snapshot().TmpFilePath()
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Printf("queue: cleanup %s: %v", path, err)
	}
}

func (q *Queue) wakeLoop() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func itemID(info *model.MediaInfo) string {
	if info.MediaID != "" && info.ExtractorKey != "" {
		return strings.ToLower(info.ExtractorKey) + "." + info.MediaID
	}
	return uuid.New().String()
}

func inheritExtras(base map[string]any, playlist, entry *model.MediaInfo, index int) map[string]any {
	extras := make(map[string]any, len(base)+4)
	for k, v := range base {
		extras[k] = v
	}
	extras["playlist_id"] = playlist.MediaID
	extras["playlist_title"] = playlist.Title
	if entry.PlaylistIndex > 0 {
		extras["playlist_index"] = entry.PlaylistIndex
	} else {
		extras["playlist_index"] = int64(index + 1)
	}
	if playlist.Uploader != "" {
		extras["playlist_uploader"] = playlist.Uploader
	}
	return extras
}

func mediaExtras(base map[string]any, info *model.MediaInfo) map[string]any {
	extras := make(map[string]any, len(base)+2)
	for k, v := range base {
		extras[k] = v
	}
	if info.Thumbnail != "" {
		extras["thumbnail"] = info.Thumbnail
	}
	if info.Uploader != "" {
		extras["uploader"] = info.Uploader
	}
	if len(extras) == 0 {
		return nil
	}
	return extras
}
