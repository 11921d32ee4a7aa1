package model

import (
	"encoding/json"
	"path/filepath"
	"time"
)

const (
	StatusPending        = "pending"
	StatusPreparing      = "preparing"
	StatusDownloading    = "downloading"
	StatusPostprocessing = "postprocessing"
	StatusFinished       = "finished"
	StatusError          = "error"
	StatusCanceled       = "canceled"
)

func IsTerminalStatus(status string) bool {
	return status == StatusFinished || status == StatusError || status == StatusCanceled
}

func IsInProgressStatus(status string) bool {
	return status == StatusPreparing || status == StatusDownloading || status == StatusPostprocessing
}

/* 一个下载项的元数据 */
type Item struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	Title    string `json:"title"`
	Status   string `json:"status"`
	Preset   string `json:"preset,omitempty"`
	Folder   string `json:"folder,omitempty"`
	Template string `json:"template,omitempty"`
	Msg      string `json:"msg,omitempty"`

	Downloader string `json:"downloader,omitempty"`

	IsLive bool  `json:"is_live,omitempty"`
	LiveIn int64 `json:"live_in,omitempty"`

	FileSize        int64   `json:"file_size,omitempty"`
	DownloadedBytes int64   `json:"downloaded_bytes,omitempty"`
	TotalBytes      int64   `json:"total_bytes,omitempty"`
	Percent         float64 `json:"percent,omitempty"`
	Speed           int64   `json:"speed,omitempty"`
	ETA             int64   `json:"eta,omitempty"`

	Filename    string `json:"filename,omitempty"`
	TmpFilename string `json:"tmp_filename,omitempty"`

	ArchiveID    string `json:"archive_id,omitempty"`
	IsArchivable bool   `json:"is_archivable,omitempty"`

	// Per-item parameter overrides (cookies, proxy, rate limit...),
	// re-applied over the preset on every attempt.
	Params map[string]any `json:"params,omitempty"`

	// RFC-2822 creation time, derived from the row's created_at on read.
	// Never persisted inside the data column.
	Datetime string `json:"datetime,omitempty"`

	Extras map[string]any `json:"extras,omitempty"`

	// Resolved absolute destination dir, computed on load. Not persisted.
	DownloadDir string `json:"-"`
}

func (i *Item) FilePath() string {
	if i.Filename == "" {
		return ""
	}
	return filepath.Join(i.DownloadDir, i.Filename)
}

func (i *Item) TmpFilePath() string {
	if i.TmpFilename == "" {
		return ""
	}
	return filepath.Join(i.DownloadDir, i.TmpFilename)
}

// storedItem is the persisted view of Item: only fields meant to survive
// serialization appear here. Datetime is always derived on read, LiveIn is
// meaningless once the item finished.
type storedItem struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	Title    string `json:"title"`
	Status   string `json:"status"`
	Preset   string `json:"preset,omitempty"`
	Folder   string `json:"folder,omitempty"`
	Template string `json:"template,omitempty"`
	Msg      string `json:"msg,omitempty"`

	Downloader string `json:"downloader,omitempty"`

	IsLive bool  `json:"is_live,omitempty"`
	LiveIn int64 `json:"live_in,omitempty"`

	FileSize        int64   `json:"file_size,omitempty"`
	DownloadedBytes int64   `json:"downloaded_bytes,omitempty"`
	TotalBytes      int64   `json:"total_bytes,omitempty"`
	Percent         float64 `json:"percent,omitempty"`
	Speed           int64   `json:"speed,omitempty"`
	ETA             int64   `json:"eta,omitempty"`

	Filename    string `json:"filename,omitempty"`
	TmpFilename string `json:"tmp_filename,omitempty"`

	ArchiveID    string `json:"archive_id,omitempty"`
	IsArchivable bool   `json:"is_archivable,omitempty"`

	Params map[string]any `json:"params,omitempty"`
	Extras map[string]any `json:"extras,omitempty"`
}

func (i *Item) MarshalStored() ([]byte, error) {
	s := storedItem{
		ID:              i.ID,
		URL:             i.URL,
		Title:           i.Title,
		Status:          i.Status,
		Preset:          i.Preset,
		Folder:          i.Folder,
		Template:        i.Template,
		Msg:             i.Msg,
		Downloader:      i.Downloader,
		IsLive:          i.IsLive,
		LiveIn:          i.LiveIn,
		FileSize:        i.FileSize,
		DownloadedBytes: i.DownloadedBytes,
		TotalBytes:      i.TotalBytes,
		Percent:         i.Percent,
		Speed:           i.Speed,
		ETA:             i.ETA,
		Filename:        i.Filename,
		TmpFilename:     i.TmpFilename,
		ArchiveID:       i.ArchiveID,
		IsArchivable:    i.IsArchivable,
		Params:          i.Params,
		Extras:          i.Extras,
	}
	if s.Status == StatusFinished {
		s.LiveIn = 0
	}
	return json.Marshal(s)
}

func UnmarshalStored(data []byte, createdAt time.Time) (*Item, error) {
	var item Item
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, err
	}
	item.Datetime = createdAt.Format(time.RFC1123Z)
	return &item, nil
}
