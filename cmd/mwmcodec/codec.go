package main

import (
	"fmt"
	"os"

	"github.com/paulmach/orb/geojson"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dyuri/mwmcodec/internal/feature"
	"github.com/dyuri/mwmcodec/internal/geometry"
	"github.com/dyuri/mwmcodec/internal/source"
	"github.com/dyuri/mwmcodec/internal/store"
	"github.com/dyuri/mwmcodec/pkg/mwmcodec"
)

// encode command
var encodeCmd = &cobra.Command{
	Use:   "encode <input.geojson>",
	Short: "Encode GeoJSON features into single-scale records",
	Long: `Encode reads a GeoJSON FeatureCollection and writes every feature as a
length prefixed single-scale record.

Example:
  mwmcodec encode city.geojson -o city.dat
  mwmcodec encode legacy.geojson --codepage 1250 -o legacy.dat`,
	Args: cobra.ExactArgs(1),
	RunE: runEncode,
}

func init() {
	encodeCmd.Flags().StringP("output", "o", "", "Output file (required)")
	encodeCmd.MarkFlagRequired("output")
}

func importFile(path string) ([]*feature.Builder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input file: %w", err)
	}
	defer f.Close()

	features, err := source.Import(f, source.Options{CodePage: cfg.CodePage, Log: log.StandardLogger()})
	if err != nil {
		return nil, fmt.Errorf("import %s: %w", path, err)
	}
	return features, nil
}

func runEncode(cmd *cobra.Command, args []string) error {
	outputPath, _ := cmd.Flags().GetString("output")

	features, err := importFile(args[0])
	if err != nil {
		return err
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer out.Close()

	rw := store.NewRecordWriter(out)
	for i, b := range features {
		data, err := mwmcodec.EncodeFeature(b)
		if err != nil {
			return fmt.Errorf("feature %d: %w", i, err)
		}
		if _, err := rw.Append(data); err != nil {
			return fmt.Errorf("write feature %d: %w", i, err)
		}
	}
	if err := rw.Flush(); err != nil {
		return fmt.Errorf("write output file: %w", err)
	}

	log.WithField("file", outputPath).Infof("encoded %d features (%s)", len(features), formatBytes(rw.Size()))
	return nil
}

// decode command
var decodeCmd = &cobra.Command{
	Use:   "decode <input.dat>",
	Short: "Decode single-scale records into GeoJSON",
	Long: `Decode reads records written by encode and prints them as a GeoJSON
FeatureCollection. Coordinates come back snapped to the coordinate grid.

Example:
  mwmcodec decode city.dat
  mwmcodec decode city.dat -o city.geojson`,
	Args: cobra.ExactArgs(1),
	RunE: runDecode,
}

func init() {
	decodeCmd.Flags().StringP("output", "o", "", "Output file (default: stdout)")
}

func runDecode(cmd *cobra.Command, args []string) error {
	outputPath, _ := cmd.Flags().GetString("output")

	in, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open input file: %w", err)
	}
	defer in.Close()

	var collected []*geojson.Feature
	err = store.ReadRecords(in, func(offset uint32, rec []byte) error {
		b, err := mwmcodec.DecodeFeature(rec)
		if err != nil {
			return fmt.Errorf("record at %d: %w", offset, err)
		}
		collected = append(collected, source.FromBuilder(b))
		return nil
	})
	if err != nil {
		return err
	}

	out, done, err := openOutput(outputPath)
	if err != nil {
		return err
	}
	defer done()

	if err := source.Export(out, collected); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	log.Debugf("decoded %d features", len(collected))
	return nil
}

// validate command
var validateCmd = &cobra.Command{
	Use:   "validate <input.geojson>",
	Short: "Check GeoJSON features before encoding",
	Long: `Validate imports a GeoJSON file and reports features that cannot be
encoded, along with features that will encode but lose information.

Example:
  mwmcodec validate city.geojson`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	features, err := importFile(args[0])
	if err != nil {
		return err
	}

	val := &validator{}
	for _, e := range mwmcodec.Validate(features) {
		val.errors = append(val.errors, fmt.Sprintf("feature %d: %s", e.Index, e.Message))
	}
	for i, b := range features {
		val.check(i, b)
	}

	val.printResults(args[0], len(features))
	if len(val.errors) > 0 {
		return fmt.Errorf("validation failed with %d error(s)", len(val.errors))
	}
	return nil
}

type validator struct {
	errors   []string
	warnings []string
}

func (v *validator) check(i int, b *feature.Builder) {
	pts := b.Geometry()
	if b.IsLinear() && b.IsGeometryClosed() {
		v.warnings = append(v.warnings, fmt.Sprintf("feature %d: closed line %q might be meant as an area", i, b.Name()))
	}
	if n := countDuplicates(pts); n > 0 {
		v.warnings = append(v.warnings, fmt.Sprintf("feature %d: %d point(s) collapse onto their predecessor on the grid", i, n))
	}
	if b.IsLinear() && len(pts) > feature.MaxInlinePoints {
		v.warnings = append(v.warnings, fmt.Sprintf("feature %d: %d points only fit the external geometry store", i, len(pts)))
	}
}

func countDuplicates(pts []geometry.Point) int {
	n := 0
	for i := 1; i < len(pts); i++ {
		if geometry.ToPointU(pts[i]) == geometry.ToPointU(pts[i-1]) {
			n++
		}
	}
	return n
}

func (v *validator) printResults(path string, count int) {
	fmt.Printf("Validating: %s (%d features)\n\n", path, count)

	if len(v.errors) == 0 && len(v.warnings) == 0 {
		fmt.Println("✓ No issues found")
		return
	}

	if len(v.errors) > 0 {
		fmt.Printf("Errors (%d):\n", len(v.errors))
		for _, err := range v.errors {
			fmt.Printf("  ✗ %s\n", err)
		}
		fmt.Println()
	}

	if len(v.warnings) > 0 {
		fmt.Printf("Warnings (%d):\n", len(v.warnings))
		for _, warn := range v.warnings {
			fmt.Printf("  ⚠ %s\n", warn)
		}
		fmt.Println()
	}
}
