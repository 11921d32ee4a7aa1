package queue

import (
	"fmt"

	"github.com/yinyajiang/ytq/pkg/common"
)

// OptionsBuilder resolves a preset name plus per-item overrides into the
// opaque yt-dlp parameter map. What a preset means lives outside the
// queue; this is the one seam it reaches through.
type OptionsBuilder func(preset string, overrides map[string]any) (map[string]any, error)

// DefaultOptionsBuilder understands quality presets ("1080p", "720p60",
// "hd"...) as height-bounded format selectors and "audio"/"mp3" as
// audio-only. With archiveFile set, every item dedups against that
// download archive.
func DefaultOptionsBuilder(archiveFile string) OptionsBuilder {
	return func(preset string, overrides map[string]any) (map[string]any, error) {
		params := make(map[string]any)
		switch preset {
		case "", "default", "best":
		case "audio", "mp3":
			params["format"] = "bestaudio/best"
		default:
			r, ok := common.ParseResolutionInfo(preset)
			if !ok {
				return nil, fmt.Errorf("unknown preset: %s", preset)
			}
			params["format"] = fmt.Sprintf(
				"bestvideo[height<=%d]+bestaudio/best[height<=%d]",
				r.ResolutionNum, r.ResolutionNum)
		}
		if archiveFile != "" {
			params["download_archive"] = archiveFile
		}
		for k, v := range overrides {
			params[k] = v
		}
		return params, nil
	}
}
