package model

import "strings"

const (
	InfoTypeMedia = iota + 1
	InfoTypePlaylist
	InfoTypeURL
)

/* 单个视频，或playlist，或重定向 */
type MediaInfo struct {
	InfoType int

	MediaID      string
	ExtractorKey string

	Title     string
	URL       string
	Thumbnail string
	Uploader  string
	Duration  int64

	IsLive bool
	LiveIn int64

	PlaylistIndex int64
	EntryCount    int64
	Entries       []*MediaInfo
}

// ArchiveID is the key yt-dlp records in its download-archive file,
// "<extractor-key-lowercased> <media-id>".
func (m *MediaInfo) ArchiveID() string {
	if m.MediaID == "" || m.ExtractorKey == "" {
		return ""
	}
	return strings.ToLower(m.ExtractorKey) + " " + m.MediaID
}
