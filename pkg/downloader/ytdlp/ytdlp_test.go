package ytdlp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yinyajiang/ytq/model"
	"github.com/yinyajiang/ytq/pkg/downloader"
)

func TestParseProgressLineDownloading(t *testing.T) {
	line := `{"status":"downloading","downloaded_bytes":"512","total_bytes":"2048","total_bytes_estimate":"0","speed":"128.5","eta":"12","filename":"clip.mp4","tmpfilename":"clip.mp4.part"}`
	p, ok := ParseProgressLine(line)
	require.True(t, ok)
	assert.Equal(t, model.StatusDownloading, p.Status)
	assert.Equal(t, int64(512), p.DownloadedBytes)
	assert.Equal(t, int64(2048), p.TotalBytes)
	assert.Equal(t, int64(128), p.Speed)
	assert.Equal(t, int64(12), p.ETA)
	assert.InDelta(t, 25.0, p.Percent, 0.01)
	assert.Equal(t, "clip.mp4", p.Filename)
	assert.Equal(t, "clip.mp4.part", p.TmpFilename)
}

func TestParseProgressLineEstimatedTotal(t *testing.T) {
	line := `{"status":"downloading","downloaded_bytes":"100","total_bytes":"0","total_bytes_estimate":"400","speed":"0","eta":"0","filename":"","tmpfilename":""}`
	p, ok := ParseProgressLine(line)
	require.True(t, ok)
	assert.Equal(t, int64(400), p.TotalBytes)
	assert.InDelta(t, 25.0, p.Percent, 0.01)
	assert.Empty(t, p.Filename)
}

func TestParseProgressLineFinished(t *testing.T) {
	line := `{"status":"finished","downloaded_bytes":"2048","total_bytes":"2048","total_bytes_estimate":"0","speed":"0","eta":"0","filename":"clip.mp4","tmpfilename":""}`
	p, ok := ParseProgressLine(line)
	require.True(t, ok)
	assert.Equal(t, model.StatusPostprocessing, p.Status)
	assert.InDelta(t, 100.0, p.Percent, 0.01)
}

func TestParseProgressLineChatter(t *testing.T) {
	_, ok := ParseProgressLine("[youtube] dQw4w9WgXcQ: Downloading webpage")
	assert.False(t, ok)
	_, ok = ParseProgressLine("")
	assert.False(t, ok)
}

func TestBuildArgs(t *testing.T) {
	args := buildArgs(downloader.DownloadOptions{
		URL:      "https://youtube.com/watch?v=x",
		Template: "%(title)s.%(ext)s",
		Params: map[string]any{
			"format":           "bestaudio/best",
			"download_archive": "/data/archive.txt",
			"proxy":            "socks5://127.0.0.1:9050",
		},
	})
	assert.Contains(t, args, "-f")
	assert.Contains(t, args, "bestaudio/best")
	assert.Contains(t, args, "--download-archive")
	assert.Contains(t, args, "/data/archive.txt")
	assert.Contains(t, args, "--proxy")
	assert.Equal(t, "https://youtube.com/watch?v=x", args[len(args)-1])
	assert.NotContains(t, args, "--cookies")
}
