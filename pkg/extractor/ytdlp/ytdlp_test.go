package ytdlp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yinyajiang/ytq/model"
)

func TestParseInfoSingleVideo(t *testing.T) {
	data := []byte(`{
		"id": "dQw4w9WgXcQ",
		"extractor_key": "Youtube",
		"title": "a video",
		"webpage_url": "https://youtube.com/watch?v=dQw4w9WgXcQ",
		"thumbnail": "https://i.ytimg.com/vi/dQw4w9WgXcQ/hq.jpg",
		"uploader": "someone",
		"duration": 212,
		"is_live": false
	}`)
	info := ParseInfo(data)
	require.NotNil(t, info)
	assert.Equal(t, model.InfoTypeMedia, info.InfoType)
	assert.Equal(t, "dQw4w9WgXcQ", info.MediaID)
	assert.Equal(t, "https://youtube.com/watch?v=dQw4w9WgXcQ", info.URL)
	assert.Equal(t, int64(212), info.Duration)
	assert.Equal(t, "youtube dQw4w9WgXcQ", info.ArchiveID())
}

func TestParseInfoPlaylist(t *testing.T) {
	data := []byte(`{
		"_type": "playlist",
		"id": "PL123",
		"extractor_key": "YoutubeTab",
		"title": "a playlist",
		"webpage_url": "https://youtube.com/playlist?list=PL123",
		"uploader": "someone",
		"entries": [
			{"_type": "url", "id": "v1", "url": "https://youtube.com/watch?v=v1", "title": "one"},
			{"id": "v2", "extractor_key": "Youtube", "webpage_url": "https://youtube.com/watch?v=v2", "title": "two", "playlist_index": 2}
		]
	}`)
	info := ParseInfo(data)
	require.NotNil(t, info)
	assert.Equal(t, model.InfoTypePlaylist, info.InfoType)
	assert.Equal(t, int64(2), info.EntryCount)
	require.Len(t, info.Entries, 2)
	assert.Equal(t, model.InfoTypeURL, info.Entries[0].InfoType)
	assert.Equal(t, "https://youtube.com/watch?v=v1", info.Entries[0].URL)
	assert.Equal(t, model.InfoTypeMedia, info.Entries[1].InfoType)
	assert.Equal(t, int64(2), info.Entries[1].PlaylistIndex)
}

func TestParseInfoRedirect(t *testing.T) {
	data := []byte(`{"_type": "url", "url": "https://example.com/real", "title": "redir"}`)
	info := ParseInfo(data)
	require.NotNil(t, info)
	assert.Equal(t, model.InfoTypeURL, info.InfoType)
	assert.Equal(t, "https://example.com/real", info.URL)
}

func TestParseInfoGarbage(t *testing.T) {
	assert.Nil(t, ParseInfo([]byte("not json")))
	assert.Nil(t, ParseInfo([]byte(`{"title": "no url, no id"}`)))
}

func TestIsMatched(t *testing.T) {
	e := &YtdlpExtractor{}
	assert.True(t, e.IsMatched("https://youtube.com/watch?v=x"))
	assert.True(t, e.IsMatched("http://example.com/a"))
	assert.False(t, e.IsMatched("ftp://example.com/a"))
}
