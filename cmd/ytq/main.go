package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/yinyajiang/ytq/model"
	"github.com/yinyajiang/ytq/pkg/archiver"
	"github.com/yinyajiang/ytq/pkg/db"
	_ "github.com/yinyajiang/ytq/pkg/downloader/ytdlp"
	_ "github.com/yinyajiang/ytq/pkg/extractor/ytdlp"
	"github.com/yinyajiang/ytq/service/queue"
)

func main() {
	var (
		dbPath      = flag.String("db", "ytq.sqlite3", "path of the items database")
		downloadDir = flag.String("dir", ".", "download directory")
		archiveFile = flag.String("archive", "", "yt-dlp download-archive file for dedup")
		preset      = flag.String("preset", "", "quality preset (1080p, 720p, audio, ...)")
		folder      = flag.String("folder", "", "destination subfolder")
		verbose     = flag.Bool("verbose", false, "verbose db logging")
	)
	flag.Parse()
	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: ytq [flags] URL...")
		os.Exit(2)
	}

	relay := queue.NewRelay()
	q, err := queue.New(queue.Option{
		DBOption:       db.Option{DBPath: *dbPath},
		Verbose:        *verbose,
		DownloadDir:    *downloadDir,
		Archiver:       archiver.New(),
		Notifier:       relay,
		ResolveOptions: queue.DefaultOptionsBuilder(*archiveFile),
	})
	if err != nil {
		log.Fatal(err)
	}
	defer q.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	events, unsubscribe := relay.Subscribe(256)
	defer unsubscribe()
	go func() {
		for ev := range events {
			switch ev.Type {
			case queue.EventUpdated:
				if ev.Item.Status == model.StatusDownloading {
					fmt.Printf("\r%s  %6.2f%%", ev.Item.Title, ev.Item.Percent)
				}
			case queue.EventCompleted:
				fmt.Printf("\n%s: %s", ev.Item.Title, ev.Item.Status)
				if ev.Item.Msg != "" {
					fmt.Printf(" (%s)", ev.Item.Msg)
				}
				fmt.Println()
			case queue.EventCanceled:
				fmt.Printf("\ncanceled: %s\n", ev.ID)
			}
		}
	}()

	q.Start(ctx)
	for _, url := range flag.Args() {
		res := q.Add(ctx, queue.AddRequest{
			URL:    url,
			Preset: *preset,
			Folder: *folder,
		})
		if res.Status != queue.StatusOK {
			log.Printf("add %s: %s", url, res.Msg)
		}
	}

	if err := q.WaitIdle(ctx); err != nil {
		log.Printf("interrupted: %v", err)
	}
}
