// Command pacing-report renders a frame pacing report for a recorded
// capture session: an HTML interval chart and a PNG histogram, plus a
// summary on stdout.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/linto-ai/fisheye-recorder/internal/report"
	"github.com/linto-ai/fisheye-recorder/internal/sessiondb"
)

var (
	dbPath    = flag.String("stats-db", "recorder_stats.db", "Session stats database")
	sessionID = flag.String("session", "", "Session to report on (default: most recent)")
	htmlPath  = flag.String("html", "pacing.html", "Output HTML chart path (empty to skip)")
	histPath  = flag.String("hist", "", "Output PNG histogram path (empty to skip)")
	list      = flag.Bool("list", false, "List stored sessions and exit")
)

func main() {
	flag.Parse()

	db, err := sessiondb.Open(*dbPath)
	if err != nil {
		log.Fatalf("failed to open stats database: %v", err)
	}
	defer db.Close()

	if *list {
		listSessions(db)
		return
	}

	id := *sessionID
	if id == "" {
		id, err = db.LatestSessionID()
		if err != nil {
			log.Fatalf("%v", err)
		}
	}

	sessions, err := db.Sessions()
	if err != nil {
		log.Fatalf("failed to load sessions: %v", err)
	}
	var target time.Duration
	for _, s := range sessions {
		if s.ID == id && s.Framerate > 0 {
			target = time.Duration(float64(time.Second) / s.Framerate)
		}
	}

	timestamps, err := db.FrameTimestamps(id)
	if err != nil {
		log.Fatalf("failed to load frame timestamps: %v", err)
	}
	intervals := report.Intervals(timestamps)
	if len(intervals) == 0 {
		log.Fatalf("session %s holds fewer than two frames; nothing to report", id)
	}

	summary, err := report.Summarise(intervals, target)
	if err != nil {
		log.Fatalf("%v", err)
	}

	fmt.Printf("session %s: %d frames\n", id, summary.Frames)
	fmt.Printf("  target   %8.1f ms\n", summary.TargetMs)
	fmt.Printf("  mean     %8.1f ms (stddev %.1f)\n", summary.MeanMs, summary.StdDevMs)
	fmt.Printf("  min/max  %8.1f / %.1f ms\n", summary.MinMs, summary.MaxMs)
	fmt.Printf("  p50/p95  %8.1f / %.1f ms\n", summary.P50Ms, summary.P95Ms)

	if *htmlPath != "" {
		f, err := os.Create(*htmlPath)
		if err != nil {
			log.Fatalf("failed to create %s: %v", *htmlPath, err)
		}
		if err := report.WriteHTML(f, id, intervals, summary); err != nil {
			f.Close()
			log.Fatalf("failed to render HTML report: %v", err)
		}
		if err := f.Close(); err != nil {
			log.Fatalf("failed to write %s: %v", *htmlPath, err)
		}
		log.Printf("wrote %s", *htmlPath)
	}
	if *histPath != "" {
		if err := report.SaveHistogram(*histPath, intervals, summary); err != nil {
			log.Fatalf("%v", err)
		}
		log.Printf("wrote %s", *histPath)
	}
}

func listSessions(db *sessiondb.DB) {
	sessions, err := db.Sessions()
	if err != nil {
		log.Fatalf("failed to list sessions: %v", err)
	}
	for _, s := range sessions {
		fmt.Printf("%s  %s  %6.2f fps  %5d frames  %s -> %s  %s\n",
			s.StartedAt.Format(time.RFC3339), s.ID, s.Framerate,
			s.TotalFrames, s.Source, s.OutputPath, s.StopReason)
	}
}
