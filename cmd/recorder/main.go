// Command recorder captures a dual-fisheye video stream and writes it
// to a video file, optionally re-projecting each frame into an
// equirectangular panorama.
//
// Usage:
//
//	recorder [flags] src target_video framerate
//
// src is a capture device index (0 is the system default camera) or a
// stream identifier. framerate is frames per second: 10 captures ten
// frames a second, 0.1 one frame every ten seconds. Press q in the
// preview window (or send SIGINT) to stop recording.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/linto-ai/fisheye-recorder/internal/capture"
	"github.com/linto-ai/fisheye-recorder/internal/equirect"
	"github.com/linto-ai/fisheye-recorder/internal/fisheye"
	"github.com/linto-ai/fisheye-recorder/internal/frame"
	"github.com/linto-ai/fisheye-recorder/internal/recorder"
	"github.com/linto-ai/fisheye-recorder/internal/sessiondb"
	"github.com/linto-ai/fisheye-recorder/internal/version"
)

var (
	profil      = flag.String("profil", "color", "Color profile: color, gray or grey")
	show        = flag.Bool("show", false, "Display captured frames while recording")
	convert     = flag.Bool("convert", false, "Convert dual-fisheye frames to equirectangular")
	outWidth    = flag.Int("out-width", 1280, "Equirectangular output width (with --convert)")
	outHeight   = flag.Int("out-height", 640, "Equirectangular output height (with --convert)")
	nearest     = flag.Bool("nearest", false, "Use nearest-neighbour sampling instead of bilinear (faster, lower quality)")
	rigConfig   = flag.String("rig-config", "", "Optional JSON lens tuning file")
	statsDB     = flag.String("stats-db", "", "Optional sqlite database recording session and frame timing stats")
	readTimeout = flag.Duration("read-timeout", 5*time.Second, "Frame read timeout")
	showVersion = flag.Bool("version", false, "Print version information and exit")
)

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(),
		"Usage: %s [flags] src target_video framerate\n\n"+
			"  src           Camera index (0 is the system default) or stream identifier\n"+
			"  target_video  Output video file, e.g. capture.avi\n"+
			"  framerate     Frames per second (10 = ten per second, 0.1 = one every 10s)\n\nFlags:\n",
		os.Args[0])
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Printf("recorder %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	if flag.NArg() != 3 {
		usage()
		os.Exit(2)
	}

	framerate, err := strconv.ParseFloat(flag.Arg(2), 64)
	if err != nil {
		log.Fatalf("invalid framerate %q: %v", flag.Arg(2), err)
	}
	profile, err := recorder.ParseProfile(*profil)
	if err != nil {
		log.Fatalf("%v", err)
	}

	cfg := recorder.Config{
		Source:     flag.Arg(0),
		OutputPath: flag.Arg(1),
		Framerate:  framerate,
		Profile:    profile,
		Preview:    *show,
		Convert:    *convert,
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("%v", err)
	}
}

func run(ctx context.Context, cfg recorder.Config) error {
	// The source must open before anything touches the output path: a
	// failed camera leaves no file behind.
	source, err := capture.OpenVideoSource(cfg.Source, *readTimeout)
	if err != nil {
		return err
	}

	srcW, srcH := source.Dimensions()
	log.Printf("camera FPS: %v, input %dx%d", source.ReportedFPS(), srcW, srcH)
	log.Printf("capturing %v frames per second (interval %v)", cfg.Framerate, cfg.Interval())

	deps := recorder.Deps{Source: source}

	outW, outH := srcW, srcH
	if cfg.Convert {
		rig := fisheye.ThetaS()
		if *rigConfig != "" {
			tuning, err := fisheye.LoadRigTuning(*rigConfig)
			if err != nil {
				source.Close()
				return err
			}
			if err := tuning.Apply(rig); err != nil {
				source.Close()
				return err
			}
		}
		if srcW != rig.InputWidth || srcH != rig.InputHeight {
			source.Close()
			return fmt.Errorf("%w: only %dx%d dual-fisheye input is supported for conversion, camera delivers %dx%d",
				recorder.ErrConfigInvalid, rig.InputWidth, rig.InputHeight, srcW, srcH)
		}

		sampling := equirect.Bilinear
		if *nearest {
			sampling = equirect.Nearest
		}
		mapper, err := equirect.NewMapper(rig, *outWidth, *outHeight, sampling)
		if err != nil {
			source.Close()
			return err
		}
		deps.Conv = mapper
		outW, outH = mapper.OutputWidth(), mapper.OutputHeight()
	}

	channels := frame.ChannelsColor
	if cfg.Profile == recorder.ProfileGray {
		channels = frame.ChannelsGray
	}

	log.Printf("output file: %s (%dx%d)", cfg.OutputPath, outW, outH)
	sink, err := capture.OpenVideoSink(cfg.OutputPath, cfg.Framerate, outW, outH, channels)
	if err != nil {
		source.Close()
		return err
	}
	deps.Sink = sink

	if cfg.Preview {
		deps.Preview = capture.NewWindowPreview("Capture (press q to stop recording)")
	}

	var session *sessiondb.Session
	if *statsDB != "" {
		db, err := sessiondb.Open(*statsDB)
		if err != nil {
			log.Printf("session stats disabled: %v", err)
		} else {
			defer db.Close()
			session, err = db.StartSession(cfg.Source, cfg.OutputPath, string(cfg.Profile),
				cfg.Framerate, cfg.Convert, cfg.Preview)
			if err != nil {
				log.Printf("session stats disabled: %v", err)
			} else {
				deps.Stats = session
			}
		}
	}

	loop, err := recorder.NewLoop(cfg, deps)
	if err != nil {
		// The loop never took ownership; release the handles here.
		if deps.Preview != nil {
			deps.Preview.Close()
		}
		sink.Close()
		source.Close()
		return err
	}

	runErr := loop.Run(ctx)

	if session != nil {
		reason := "stopped"
		if runErr != nil {
			reason = "error: " + runErr.Error()
		}
		if err := session.Finish(loop.Frames(), reason); err != nil {
			log.Printf("failed to finalise session stats: %v", err)
		}
	}

	log.Printf("--> %d frames", loop.Frames())
	return runErr
}
