package ytdlp

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
	"github.com/yinyajiang/ytq/model"
	"github.com/yinyajiang/ytq/pkg/extractor"
)

func Name() string {
	return "ytdlp"
}

func init() {
	extractor.Regist(&YtdlpExtractor{})
}

// YtdlpExtractor shells out "yt-dlp -J" and maps the dumped JSON into
// MediaInfo. It is the catch-all extractor: yt-dlp itself decides which
// site handler applies.
type YtdlpExtractor struct {
	Bin string
}

func (e *YtdlpExtractor) Name() string {
	return Name()
}

func (e *YtdlpExtractor) IsMatched(url string) bool {
	return strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://")
}

func (e *YtdlpExtractor) Extract(ctx context.Context, url string, params map[string]any) (*model.MediaInfo, error) {
	bin := e.Bin
	if bin == "" {
		bin = "yt-dlp"
	}
	args := []string{
		"-J",
		"--flat-playlist",
		"--no-warnings",
		"--no-progress",
	}
	if v, ok := params["cookiefile"].(string); ok && v != "" {
		args = append(args, "--cookies", v)
	}
	if v, ok := params["proxy"].(string); ok && v != "" {
		args = append(args, "--proxy", v)
	}
	args = append(args, url)

	cmd := exec.CommandContext(ctx, bin, args...)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, errors.Errorf("extract %s: %s", url, lastLine(msg))
		}
		return nil, errors.Wrapf(err, "extract %s", url)
	}
	info := ParseInfo(out.Bytes())
	if info == nil {
		return nil, errors.Errorf("extract %s: no usable metadata", url)
	}
	return info, nil
}

// ParseInfo maps a yt-dlp info dump into MediaInfo. A "_type" of
// "playlist"/"multi_video" carries entries, "url" is a redirect, anything
// else is treated as a single media item.
func ParseInfo(data []byte) *model.MediaInfo {
	js := gjson.ParseBytes(data)
	if !js.IsObject() {
		return nil
	}
	return parseEntry(js)
}

func parseEntry(js gjson.Result) *model.MediaInfo {
	info := &model.MediaInfo{
		MediaID:       js.Get("id").String(),
		ExtractorKey:  js.Get("extractor_key").String(),
		Title:         js.Get("title").String(),
		Thumbnail:     js.Get("thumbnail").String(),
		Uploader:      js.Get("uploader").String(),
		Duration:      js.Get("duration").Int(),
		IsLive:        js.Get("is_live").Bool(),
		PlaylistIndex: js.Get("playlist_index").Int(),
	}
	info.URL = js.Get("webpage_url").String()
	if info.URL == "" {
		info.URL = js.Get("url").String()
	}
	if ts := js.Get("release_timestamp").Int(); ts > 0 {
		info.LiveIn = ts
	}

	switch js.Get("_type").String() {
	case "playlist", "multi_video":
		info.InfoType = model.InfoTypePlaylist
		entries := js.Get("entries").Array()
		info.Entries = make([]*model.MediaInfo, 0, len(entries))
		for _, e := range entries {
			if sub := parseEntry(e); sub != nil {
				info.Entries = append(info.Entries, sub)
			}
		}
		info.EntryCount = int64(len(info.Entries))
	case "url", "url_transparent":
		info.InfoType = model.InfoTypeURL
	default:
		info.InfoType = model.InfoTypeMedia
	}
	if info.URL == "" && info.InfoType != model.InfoTypePlaylist {
		return nil
	}
	return info
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
