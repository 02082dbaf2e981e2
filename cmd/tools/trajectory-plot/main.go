// Command trajectory-plot renders recorded marker tracks from the coordinator
// database as PNG plots: a top-down X/Y view and a side X/Z view.
//
// Usage:
//
//	go run ./cmd/tools/trajectory-plot -db mocap.db -out plots/
//
// Flags:
//
//	-db      Path to the coordinator sqlite database (default mocap.db)
//	-out     Output directory for PNG files (default .)
//	-marker  Plot a single marker id (default: all recorded markers)
//	-limit   Maximum positions per marker, newest first (default 5000)
package main

import (
	"flag"
	"fmt"
	"image/color"
	"log"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/openmocap/mocap/internal/db"
	"github.com/openmocap/mocap/internal/track"
)

func main() {
	dbPath := flag.String("db", "mocap.db", "Path to coordinator database")
	outDir := flag.String("out", ".", "Output directory for PNG files")
	marker := flag.Int("marker", -1, "Marker id to plot (-1 for all)")
	limit := flag.Int("limit", 5000, "Maximum positions per marker")
	flag.Parse()

	database, err := db.Open(*dbPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()

	store := track.NewStore(database)

	markers, err := store.Markers()
	if err != nil {
		log.Fatalf("failed to list markers: %v", err)
	}
	if *marker >= 0 {
		markers = []int{*marker}
	}
	if len(markers) == 0 {
		log.Fatal("no recorded positions to plot")
	}

	if err := os.MkdirAll(*outDir, 0755); err != nil {
		log.Fatalf("failed to create output dir: %v", err)
	}

	tracks := make(map[int][]track.PositionRecord, len(markers))
	total := 0
	for _, id := range markers {
		recs, err := store.RecentPositions(id, *limit)
		if err != nil {
			log.Fatalf("failed to load marker %d: %v", id, err)
		}
		if len(recs) == 0 {
			continue
		}
		// RecentPositions returns newest first; plot in time order.
		for i, j := 0, len(recs)-1; i < j; i, j = i+1, j-1 {
			recs[i], recs[j] = recs[j], recs[i]
		}
		tracks[id] = recs
		total += len(recs)
	}
	if total == 0 {
		log.Fatal("no recorded positions to plot")
	}

	topFile := filepath.Join(*outDir, "trajectory_xy.png")
	if err := renderView(tracks, markers, "Top-down (X/Y)", "Y (cm)", pickXY, topFile); err != nil {
		log.Fatalf("failed to render top-down view: %v", err)
	}
	sideFile := filepath.Join(*outDir, "trajectory_xz.png")
	if err := renderView(tracks, markers, "Side (X/Z)", "Z (cm)", pickXZ, sideFile); err != nil {
		log.Fatalf("failed to render side view: %v", err)
	}

	log.Printf("plotted %d positions across %d markers", total, len(tracks))
	log.Printf("wrote %s and %s", topFile, sideFile)
}

func pickXY(r track.PositionRecord) plotter.XY { return plotter.XY{X: r.X, Y: r.Y} }
func pickXZ(r track.PositionRecord) plotter.XY { return plotter.XY{X: r.X, Y: r.Z} }

func renderView(tracks map[int][]track.PositionRecord, order []int, title, yLabel string, pick func(track.PositionRecord) plotter.XY, file string) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "X (cm)"
	p.Y.Label.Text = yLabel

	colors := generateColors(len(order))
	for i, id := range order {
		recs := tracks[id]
		if len(recs) == 0 {
			continue
		}
		pts := make(plotter.XYs, 0, len(recs))
		for _, r := range recs {
			pts = append(pts, pick(r))
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return err
		}
		line.Color = colors[i]
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("marker %d", id), line)
	}

	p.Legend.Top = true
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	if err := p.Save(10*vg.Inch, 10*vg.Inch, file); err != nil {
		return fmt.Errorf("save plot: %w", err)
	}
	return nil
}

// generateColors spreads hues evenly so neighbouring marker ids stay
// distinguishable.
func generateColors(n int) []color.Color {
	if n <= 0 {
		return nil
	}
	colors := make([]color.Color, n)
	for i := 0; i < n; i++ {
		hue := float64(i) / float64(n)
		r, g, b := hslToRGB(hue, 0.7, 0.5)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

func hslToRGB(h, s, l float64) (r, g, b uint8) {
	var rf, gf, bf float64
	if s == 0 {
		rf, gf, bf = l, l, l
	} else {
		var q float64
		if l < 0.5 {
			q = l * (1 + s)
		} else {
			q = l + s - l*s
		}
		p := 2*l - q
		rf = hueToRGB(p, q, h+1.0/3.0)
		gf = hueToRGB(p, q, h)
		bf = hueToRGB(p, q, h-1.0/3.0)
	}
	return uint8(rf * 255), uint8(gf * 255), uint8(bf * 255)
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t += 1
	}
	if t > 1 {
		t -= 1
	}
	if t < 1.0/6.0 {
		return p + (q-p)*6*t
	}
	if t < 1.0/2.0 {
		return q
	}
	if t < 2.0/3.0 {
		return p + (q-p)*(2.0/3.0-t)*6
	}
	return p
}
