package common

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/duke-git/lancet/v2/convertor"
)

type ResolutionInfo struct {
	Resolution    string
	ResolutionNum int64
	FPS           int64
}

var regexpWH = regexp.MustCompile(`(\d+)[xX](\d+)`)
var regexpPFPS = regexp.MustCompile(`(\d+)[pP](\d*)`)

// ParseResolutionInfo understands "1080p", "1080p60", "1920x1080" and the
// usual named tiers. Used to turn a quality preset into a yt-dlp
// height-bounded format selector.
func ParseResolutionInfo(s string) (ret ResolutionInfo, ok bool) {
	if s == "" {
		return
	}

	if matchs := regexpPFPS.FindStringSubmatch(s); len(matchs) >= 2 {
		ret.Resolution = matchs[0]
		if matchs[1] != "" {
			ret.ResolutionNum, _ = convertor.ToInt(matchs[1])
		}
		if len(matchs) == 3 && matchs[2] != "" {
			ret.FPS, _ = convertor.ToInt(matchs[2])
		}
	} else if wh := regexpWH.FindStringSubmatch(s); len(wh) == 3 {
		w, _ := strconv.ParseInt(wh[1], 0, 64)
		h, _ := strconv.ParseInt(wh[2], 0, 64)
		ret.ResolutionNum = WHToP(w, h)
		if ret.ResolutionNum == 0 {
			return
		}
		ret.Resolution = strconv.FormatInt(ret.ResolutionNum, 10) + "p"
	}

	if ret.ResolutionNum == 0 {
		switch strings.ToLower(s) {
		case "uhd":
			ret.ResolutionNum = 2160
		case "qhd":
			ret.ResolutionNum = 1440
		case "fhd":
			ret.ResolutionNum = 1080
		case "hd":
			ret.ResolutionNum = 720
		case "sd":
			ret.ResolutionNum = 480
		case "ld":
			ret.ResolutionNum = 360
		default:
			return ret, false
		}
		ret.Resolution = strings.ToLower(s)
	}
	ok = true
	return
}

func WHToP(w, h int64) int64 {
	if h == 0 {
		return 0
	}
	if w < h {
		w, h = h, w
	}
	switch {
	case h >= 4000:
		return 4320
	case h >= 2000:
		return 2160
	case h >= 1440:
		return 1440
	case h >= 1080:
		return 1080
	case h >= 720:
		return 720
	case h >= 480:
		return 480
	case h >= 360:
		return 360
	case h >= 240:
		return 240
	}
	return 144
}
