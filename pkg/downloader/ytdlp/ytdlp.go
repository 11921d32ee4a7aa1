package ytdlp

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
	"github.com/yinyajiang/ytq/model"
	"github.com/yinyajiang/ytq/pkg/common"
	"github.com/yinyajiang/ytq/pkg/downloader"
)

// One JSON object per progress line; numbers rendered as strings since
// yt-dlp may emit floats or "NA".
const progressTemplate = `{"status":"%(progress.status)s",` +
	`"downloaded_bytes":"%(progress.downloaded_bytes|0)s",` +
	`"total_bytes":"%(progress.total_bytes|0)s",` +
	`"total_bytes_estimate":"%(progress.total_bytes_estimate|0)s",` +
	`"speed":"%(progress.speed|0)s",` +
	`"eta":"%(progress.eta|0)s",` +
	`"filename":"%(progress.filename|)s",` +
	`"tmpfilename":"%(progress.tmpfilename|)s"}`

const postprocessTemplate = `postprocess:{"status":"postprocessing","pp":"%(progress._default_template|)s"}`

func Name() string {
	return "ytdlp"
}

func init() {
	downloader.Regist(&YtdlpDownloader{})
}

// YtdlpDownloader runs the actual transfer in a separate yt-dlp process.
// Cancellation is a process kill through the context; the stdout reader
// tolerates the stream just stopping.
type YtdlpDownloader struct {
	Bin string
}

func (d *YtdlpDownloader) Name() string {
	return Name()
}

func (d *YtdlpDownloader) SupportedURL(url string) bool {
	return strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://")
}

func (d *YtdlpDownloader) Download(ctx context.Context, opt downloader.DownloadOptions, sink downloader.ProgressSink) error {
	bin := d.Bin
	if bin == "" {
		bin = "yt-dlp"
	}
	if opt.Dir != "" {
		if err := os.MkdirAll(opt.Dir, os.ModePerm); err != nil {
			return errors.Wrapf(err, "create download dir %s", opt.Dir)
		}
	}

	args := buildArgs(opt)
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = opt.Dir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return errors.Wrap(err, "stdout pipe")
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return errors.Wrapf(err, "start %s", bin)
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		p, ok := ParseProgressLine(scanner.Text())
		if !ok {
			continue
		}
		if sink != nil {
			sink(p)
		}
	}
	// a killed process just closes the pipe, scanner errors are not fatal

	err = cmd.Wait()
	if err != nil {
		if common.IsCtxDone(ctx) {
			return ctx.Err()
		}
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return errors.Errorf("yt-dlp: %s", lastLine(msg))
		}
		return errors.Wrap(err, "yt-dlp")
	}
	return nil
}

func buildArgs(opt downloader.DownloadOptions) []string {
	args := []string{
		"--newline",
		"--no-warnings",
		"--no-playlist",
		"--progress-template", progressTemplate,
		"--progress-template", postprocessTemplate,
	}
	if opt.Template != "" {
		args = append(args, "-o", opt.Template)
	}
	p := opt.Params
	if v, ok := p["format"].(string); ok && v != "" {
		args = append(args, "-f", v)
	}
	if v, ok := p["download_archive"].(string); ok && v != "" {
		args = append(args, "--download-archive", v)
	}
	if v, ok := p["cookiefile"].(string); ok && v != "" {
		args = append(args, "--cookies", v)
	}
	if v, ok := p["proxy"].(string); ok && v != "" {
		args = append(args, "--proxy", v)
	}
	if v, ok := p["ratelimit"].(string); ok && v != "" {
		args = append(args, "--limit-rate", v)
	}
	if v, ok := p["live_from_start"].(bool); ok && v {
		args = append(args, "--live-from-start")
	}
	args = append(args, opt.URL)
	return args
}

// ParseProgressLine maps one progress-template line to a Progress. Lines
// that aren't the JSON we asked for (yt-dlp chatter) are skipped.
func ParseProgressLine(line string) (downloader.Progress, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "{") {
		return downloader.Progress{}, false
	}
	js := gjson.Parse(line)
	if !js.IsObject() {
		return downloader.Progress{}, false
	}
	p := downloader.Progress{
		DownloadedBytes: js.Get("downloaded_bytes").Int(),
		TotalBytes:      js.Get("total_bytes").Int(),
		Speed:           int64(js.Get("speed").Float()),
		ETA:             int64(js.Get("eta").Float()),
		Filename:        filepath.Base(js.Get("filename").String()),
		TmpFilename:     filepath.Base(js.Get("tmpfilename").String()),
	}
	if p.TotalBytes == 0 {
		p.TotalBytes = js.Get("total_bytes_estimate").Int()
	}
	if p.TotalBytes > 0 {
		p.Percent = float64(p.DownloadedBytes) / float64(p.TotalBytes) * 100
	}
	switch js.Get("status").String() {
	case "downloading":
		p.Status = model.StatusDownloading
	case "finished", "postprocessing":
		// the transfer is done, yt-dlp is merging/remuxing
		p.Status = model.StatusPostprocessing
		if p.Percent == 0 {
			p.Percent = 100
		}
	default:
		p.Status = model.StatusDownloading
	}
	if p.Filename == "." {
		p.Filename = ""
	}
	if p.TmpFilename == "." {
		p.TmpFilename = ""
	}
	return p, true
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
