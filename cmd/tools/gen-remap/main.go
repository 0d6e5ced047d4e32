// Command gen-remap precomputes the dual-fisheye to equirectangular
// remap tables and writes them as a pair of ASCII PGM (P2) xmap/ymap
// files, usable by any remap-based converter.
package main

import (
	"flag"
	"io"
	"log"
	"os"

	"github.com/linto-ai/fisheye-recorder/internal/equirect"
	"github.com/linto-ai/fisheye-recorder/internal/fisheye"
)

var (
	outWidth  = flag.Int("out-width", 1280, "Equirectangular output width")
	outHeight = flag.Int("out-height", 640, "Equirectangular output height")
	xmapPath  = flag.String("xmap", "xmap.pgm", "Output path for the x-coordinate map")
	ymapPath  = flag.String("ymap", "ymap.pgm", "Output path for the y-coordinate map")
	rigConfig = flag.String("rig-config", "", "Optional JSON lens tuning file")
)

func main() {
	flag.Parse()

	rig := fisheye.ThetaS()
	if *rigConfig != "" {
		tuning, err := fisheye.LoadRigTuning(*rigConfig)
		if err != nil {
			log.Fatalf("failed to load rig tuning: %v", err)
		}
		if err := tuning.Apply(rig); err != nil {
			log.Fatalf("failed to apply rig tuning: %v", err)
		}
	}

	mapper, err := equirect.NewMapper(rig, *outWidth, *outHeight, equirect.Nearest)
	if err != nil {
		log.Fatalf("failed to build mapper: %v", err)
	}
	table := mapper.RemapTable()

	if err := writeMap(*xmapPath, table.WriteXMap); err != nil {
		log.Fatalf("failed to write xmap: %v", err)
	}
	if err := writeMap(*ymapPath, table.WriteYMap); err != nil {
		log.Fatalf("failed to write ymap: %v", err)
	}
	log.Printf("wrote %s and %s (%dx%d)", *xmapPath, *ymapPath, table.Width, table.Height)
}

func writeMap(path string, write func(w io.Writer, name string) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f, path); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
