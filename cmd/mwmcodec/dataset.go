package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cheggaaa/pb/v3"
	"github.com/paulmach/orb/geojson"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dyuri/mwmcodec/internal/config"
	"github.com/dyuri/mwmcodec/internal/feature"
	"github.com/dyuri/mwmcodec/internal/generator"
	"github.com/dyuri/mwmcodec/internal/geometry"
	"github.com/dyuri/mwmcodec/internal/index"
	"github.com/dyuri/mwmcodec/internal/source"
	"github.com/dyuri/mwmcodec/internal/store"
	"github.com/dyuri/mwmcodec/pkg/mwmcodec"
)

// build command
var buildCmd = &cobra.Command{
	Use:   "build <input.geojson>",
	Short: "Build a multi-scale dataset from GeoJSON",
	Long: `Build simplifies every feature for each detail level of the scale table
and writes a dataset directory: the header, the feature records and one
geometry and triangle store per level.

Example:
  mwmcodec build city.geojson -d city
  mwmcodec build city.geojson -d city --base 19.04,47.49`,
	Args: cobra.ExactArgs(1),
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().StringP("dir", "d", "", "Dataset directory (default: dataset.dir from config)")
	buildCmd.Flags().String("base", "", "Base point as lon,lat (default: dataset.base from config)")
	buildCmd.Flags().Bool("no-progress", false, "Do not show a progress bar")
	bindFlag(config.KeyDatasetDir, buildCmd.Flags().Lookup("dir"))
}

func runBuild(cmd *cobra.Command, args []string) error {
	baseFlag, _ := cmd.Flags().GetString("base")
	noProgress, _ := cmd.Flags().GetBool("no-progress")

	// Header from config, base point from the flag when given
	h := cfg.Header()
	if baseFlag != "" {
		f, err := parseFloats(baseFlag, 2)
		if err != nil {
			return fmt.Errorf("invalid base: %w", err)
		}
		h.Base = geometry.PointUToUint64(geometry.ToPointU(geometry.Point{f[0], f[1]}))
	}

	// Read input features
	features, err := importFile(args[0])
	if err != nil {
		return err
	}

	// Generator settings and progress bar
	opts := mwmcodec.BuildOptions{
		Generator: generator.Options{
			Epsilons:        cfg.SimplifyEps,
			InlineMaxPoints: cfg.InlineMaxPoints,
			InlineMaxStrip:  cfg.InlineMaxStrip,
			Log:             log.StandardLogger(),
		},
	}
	if !noProgress {
		bar := pb.New(len(features)).SetWriter(os.Stderr).Set("prefix", "Features: ")
		bar.Start()
		defer bar.Finish()
		opts.OnFeature = func(int, bool) { bar.Increment() }
	}

	// Write the dataset
	stats, err := mwmcodec.BuildDataset(cfg.DatasetDir, h, features, opts)
	if err != nil {
		return err
	}

	log.WithField("dir", cfg.DatasetDir).Infof("wrote %d features, skipped %d", stats.Features, stats.Skipped)
	log.Debugf("lines: %d inline, %d external; areas: %d inline, %d external",
		stats.InlinePoints, stats.ExternalPoints, stats.InlineStrips, stats.ExternalStrips)
	return nil
}

// inspect command
var inspectCmd = &cobra.Command{
	Use:   "inspect <dataset-dir>",
	Short: "Show the records of a dataset",
	Long: `Inspect prints the dataset header, every feature record with its geometry
resolved at a scale, and a size summary of the stores.

Example:
  mwmcodec inspect city
  mwmcodec inspect city --scale 10
  mwmcodec inspect city --json`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

func init() {
	inspectCmd.Flags().IntP("scale", "s", -1, "Scale to resolve geometry at (-1: most detailed)")
	inspectCmd.Flags().Bool("json", false, "Print one JSON object per feature")
}

type featureInfo struct {
	Offset    uint32   `json:"offset"`
	Kind      string   `json:"kind"`
	Types     []uint32 `json:"types"`
	Name      string   `json:"name,omitempty"`
	Layer     int32    `json:"layer,omitempty"`
	Points    int      `json:"points"`
	PtsBytes  uint32   `json:"points_bytes"`
	Triangles int      `json:"triangles"`
	TrgBytes  uint32   `json:"triangles_bytes"`
	Inline    uint32   `json:"inline_bytes"`
	Size      int      `json:"size"`
}

func describe(r *feature.Reader, scale int) (*featureInfo, error) {
	if err := r.Parse(scale); err != nil {
		return nil, err
	}
	pts, err := r.GeometrySize(scale)
	if err != nil {
		return nil, err
	}
	trg, err := r.TrianglesSize(scale)
	if err != nil {
		return nil, err
	}
	inner, err := r.InnerStats()
	if err != nil {
		return nil, err
	}
	return &featureInfo{
		Offset:    r.Offset(),
		Kind:      r.Kind().String(),
		Types:     r.Types(),
		Name:      r.Name(),
		Layer:     r.Layer(),
		Points:    pts.Count,
		PtsBytes:  pts.Bytes,
		Triangles: trg.Count,
		TrgBytes:  trg.Bytes,
		Inline:    inner.Points + inner.Strips,
		Size:      len(r.Data()),
	}, nil
}

func runInspect(cmd *cobra.Command, args []string) error {
	scale, _ := cmd.Flags().GetInt("scale")
	asJSON, _ := cmd.Flags().GetBool("json")

	ds, err := mwmcodec.OpenDataset(args[0])
	if err != nil {
		return err
	}
	defer ds.Close()

	if !asJSON {
		fmt.Printf("Dataset: %s\n", args[0])
		fmt.Printf("Base: %v\n", ds.Header.BasePoint())
		fmt.Printf("Scales: %v\n\n", ds.Header.Scales)
	}

	enc := json.NewEncoder(os.Stdout)
	kinds := map[string]int{}
	var records int64
	err = ds.ForEach(func(r *feature.Reader) error {
		info, err := describe(r, scale)
		if err != nil {
			return fmt.Errorf("feature at %d: %w", r.Offset(), err)
		}
		kinds[info.Kind]++
		records += int64(info.Size)

		if asJSON {
			return enc.Encode(info)
		}
		fmt.Printf("%8d  %-5s %-12s %-20q pts %d (%s)  trg %d (%s)\n",
			info.Offset, info.Kind, formatTypes(info.Types), info.Name,
			info.Points, formatBytes(int64(info.PtsBytes)),
			info.Triangles/3, formatBytes(int64(info.TrgBytes)))
		return nil
	})
	if err != nil {
		return err
	}
	if asJSON {
		return nil
	}

	fmt.Printf("\nFeatures: %d points, %d lines, %d areas\n",
		kinds[feature.KindPoint.String()], kinds[feature.KindLine.String()], kinds[feature.KindArea.String()])
	fmt.Printf("Records: %s\n", formatBytes(records))
	for i := range ds.Header.Scales {
		for _, tag := range []string{feature.GeometryTag(i), feature.TrianglesTag(i)} {
			if fi, err := os.Stat(filepath.Join(args[0], tag)); err == nil {
				fmt.Printf("  %-5s %s\n", tag, formatBytes(fi.Size()))
			}
		}
	}
	return nil
}

func formatTypes(types []uint32) string {
	parts := make([]string, len(types))
	for i, t := range types {
		parts[i] = fmt.Sprint(t)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// query command
var queryCmd = &cobra.Command{
	Use:   "query <dataset-dir>",
	Short: "Find the features visible at a scale inside a bounding box",
	Long: `Query indexes the features that have geometry at the given scale and
lists those whose bounding rectangle intersects the box.

Example:
  mwmcodec query city --scale 14 --bbox 19.0,47.4,19.2,47.6
  mwmcodec query city --scale 14 --bbox 19.0,47.4,19.2,47.6 --geojson`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().IntP("scale", "s", -1, "Scale of the query (-1: most detailed)")
	queryCmd.Flags().String("bbox", "", "Bounding box as minlon,minlat,maxlon,maxlat (required)")
	queryCmd.Flags().Bool("geojson", false, "Print the matches as GeoJSON at the query scale")
	queryCmd.MarkFlagRequired("bbox")
}

func runQuery(cmd *cobra.Command, args []string) error {
	scale, _ := cmd.Flags().GetInt("scale")
	bboxFlag, _ := cmd.Flags().GetString("bbox")
	asGeoJSON, _ := cmd.Flags().GetBool("geojson")

	bbox, err := parseRect(bboxFlag)
	if err != nil {
		return fmt.Errorf("invalid bbox: %w", err)
	}

	ds, err := mwmcodec.OpenDataset(args[0])
	if err != nil {
		return err
	}
	defer ds.Close()

	idx, err := index.Build(ds, scale, log.StandardLogger())
	if err != nil {
		return fmt.Errorf("build index: %w", err)
	}
	matches := idx.Query(bbox)
	log.Debugf("%d of %d indexed features match", len(matches), idx.Len())

	if !asGeoJSON {
		for _, e := range matches {
			fmt.Printf("%8d  %-5s %-12s %-20q %v\n", e.Offset, e.Kind, formatTypes(e.Types), e.Name, e.Rect)
		}
		return nil
	}
	return exportMatches(ds, matches, scale)
}

func exportMatches(ds *store.Dataset, matches []*index.Entry, scale int) error {
	var collected []*geojson.Feature
	for _, e := range matches {
		r, err := ds.Feature(e.Offset)
		if err != nil {
			return err
		}
		f, err := source.FromReader(r, scale)
		if err != nil {
			return fmt.Errorf("feature at %d: %w", e.Offset, err)
		}
		if f != nil {
			collected = append(collected, f)
		}
	}
	return source.Export(os.Stdout, collected)
}
