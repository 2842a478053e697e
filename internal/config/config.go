// Package config holds the options that control repeat-detection
// elimination. Options load from an optional YAML file, are validated
// once up front, and are then treated as immutable for the run.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SortMode selects how suspicious locations are ordered for review.
type SortMode string

const (
	// SortNone keeps first-occurrence order.
	SortNone SortMode = "none"
	// SortX orders locations left-to-right by box center.
	SortX SortMode = "xsort"
	// SortCluster groups nearby locations and orders by cluster.
	SortCluster SortMode = "clustersort"
)

// MissingImagePolicy controls what happens when a review image is absent.
type MissingImagePolicy string

const (
	WarnOnce     MissingImagePolicy = "once"
	WarnAlways   MissingImagePolicy = "all"
	MissingFatal MissingImagePolicy = "fatal"
)

// Options controls a repeat-detection run. The JSON tags define the
// "options" block of detectionIndex.json, so a reconciliation pass can
// reproduce the configuration that produced an index.
type Options struct {
	// ImageBase is the root the table's relative image paths resolve
	// against; OutputBase is where the filtering folder is created.
	ImageBase  string `yaml:"image_base" json:"imageBase"`
	OutputBase string `yaml:"output_base" json:"outputBase"`

	// Confidence bounds for a detection to count toward a location.
	ConfidenceMin float64 `yaml:"confidence_min" json:"confidenceMin"`
	ConfidenceMax float64 `yaml:"confidence_max" json:"confidenceMax"`

	// IoUThreshold is the overlap ratio at or above which two boxes are
	// considered the same location.
	IoUThreshold float64 `yaml:"iou_threshold" json:"iouThreshold"`

	// OccurrenceThreshold is how many instances a location needs before
	// it is declared suspicious.
	OccurrenceThreshold int `yaml:"occurrence_threshold" json:"occurrenceThreshold"`

	// Relative-area bounds for a detection to be considered suspicious.
	// Boxes near full-frame are usually animals filling the image, not
	// static artifacts.
	MaxSuspiciousDetectionSize float64 `yaml:"max_suspicious_detection_size" json:"maxSuspiciousDetectionSize"`
	MinSuspiciousDetectionSize float64 `yaml:"min_suspicious_detection_size" json:"minSuspiciousDetectionSize"`

	// MaxImagesPerDir skips directories with more rows than this.
	// Zero means unlimited.
	MaxImagesPerDir int `yaml:"max_images_per_dir" json:"maxImagesPerDir"`

	// ExcludeCategories lists category IDs never treated as suspicious.
	ExcludeCategories []string `yaml:"exclude_categories" json:"excludeCategories"`

	Workers                int  `yaml:"workers" json:"workers"`
	ParallelizeComparisons bool `yaml:"parallelize_comparisons" json:"parallelizeComparisons"`
	ParallelizeRendering   bool `yaml:"parallelize_rendering" json:"parallelizeRendering"`

	// IndexPath switches the run into reconciliation mode: instead of
	// finding repeat detections, load this detectionIndex.json and
	// reconcile it against reviewer feedback.
	IndexPath string `yaml:"index_path" json:"indexPath"`

	// AcceptedListPath is an optional flat file of artifact filenames the
	// reviewer kept; when empty, reconciliation checks which artifact
	// files still exist on disk.
	AcceptedListPath string `yaml:"accepted_list_path" json:"acceptedListPath"`

	// WriteFilteringDir controls whether a review folder (rendered
	// artifacts plus detectionIndex.json) is written.
	WriteFilteringDir bool `yaml:"write_filtering_dir" json:"writeFilteringDir"`

	FailOnRenderError   bool               `yaml:"fail_on_render_error" json:"failOnRenderError"`
	MissingImageWarning MissingImagePolicy `yaml:"missing_image_warning" json:"missingImageWarning"`

	// FilenameReplacements rewrites path fragments after loading, for
	// when the directory layout changed since the detector ran.
	FilenameReplacements map[string]string `yaml:"filename_replacements" json:"filenameReplacements"`

	// DirLevelsFromLeaf groups images N levels above their parent
	// directory. Mutually exclusive with CustomDirFunc.
	DirLevelsFromLeaf int `yaml:"dir_levels_from_leaf" json:"dirLevelsFromLeaf"`

	// CustomDirFunc maps an image path to its directory key, for
	// manufacturer-specific layouts where several folders are really one
	// camera. API-only; not loadable from YAML and never serialized.
	CustomDirFunc func(string) string `yaml:"-" json:"-"`

	// IncludeDirs/ExcludeDirs restrict which directories are searched.
	// Mutually exclusive.
	IncludeDirs []string `yaml:"include_dirs" json:"includeDirs"`
	ExcludeDirs []string `yaml:"exclude_dirs" json:"excludeDirs"`

	SortMode            SortMode `yaml:"sort_mode" json:"sortMode"`
	ClusterSortDistance float64  `yaml:"cluster_sort_distance" json:"clusterSortDistance"`

	// Rendering knobs for review artifacts.
	LineThickness            int     `yaml:"line_thickness" json:"lineThickness"`
	BoxExpansion             int     `yaml:"box_expansion" json:"boxExpansion"`
	MaxOutputImageWidth      int     `yaml:"max_output_image_width" json:"maxOutputImageWidth"`
	RenderOtherDetections    bool    `yaml:"render_other_detections" json:"renderOtherDetections"`
	OtherDetectionsThreshold float64 `yaml:"other_detections_threshold" json:"otherDetectionsThreshold"`
	OtherDetectionsLineWidth int     `yaml:"other_detections_line_width" json:"otherDetectionsLineWidth"`
	RenderDetectionTiles     bool    `yaml:"render_detection_tiles" json:"renderDetectionTiles"`
	TilesPrimaryWidth        int     `yaml:"tiles_primary_width" json:"tilesPrimaryWidth"`
	TilesGridWidth           float64 `yaml:"tiles_grid_width" json:"tilesGridWidth"`
	TilesMaxCrops            int     `yaml:"tiles_max_crops" json:"tilesMaxCrops"`
}

// Default returns the options used when nothing is overridden.
func Default() *Options {
	return &Options{
		ConfidenceMin:              0.1,
		ConfidenceMax:              1.0,
		IoUThreshold:               0.9,
		OccurrenceThreshold:        20,
		MaxSuspiciousDetectionSize: 0.2,
		MinSuspiciousDetectionSize: 0.0,
		Workers:                    10,
		ParallelizeComparisons:     true,
		ParallelizeRendering:       true,
		WriteFilteringDir:          true,
		MissingImageWarning:        WarnOnce,
		SortMode:                   SortX,
		ClusterSortDistance:        0.1,
		LineThickness:              10,
		BoxExpansion:               2,
		OtherDetectionsThreshold:   0.2,
		OtherDetectionsLineWidth:   1,
		TilesGridWidth:             0.6,
	}
}

// Load reads a YAML options file over the defaults and validates it.
func Load(path string) (*Options, error) {
	opts := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read options file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, opts); err != nil {
		return nil, fmt.Errorf("invalid options YAML %s: %w", path, err)
	}
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return opts, nil
}

// Validate checks option consistency. Conflicting settings are fatal here,
// before any matching work starts.
func (o *Options) Validate() error {
	if len(o.IncludeDirs) > 0 && len(o.ExcludeDirs) > 0 {
		return fmt.Errorf("cannot specify both include and exclude directory lists")
	}
	if o.CustomDirFunc != nil && o.DirLevelsFromLeaf != 0 {
		return fmt.Errorf("cannot combine a custom directory function with dir_levels_from_leaf")
	}
	if o.DirLevelsFromLeaf < 0 {
		return fmt.Errorf("dir_levels_from_leaf must be >= 0, got %d", o.DirLevelsFromLeaf)
	}
	if o.ConfidenceMin > o.ConfidenceMax {
		return fmt.Errorf("confidence_min %v exceeds confidence_max %v", o.ConfidenceMin, o.ConfidenceMax)
	}
	if o.IoUThreshold <= 0 || o.IoUThreshold > 1 {
		return fmt.Errorf("iou_threshold must be in (0,1], got %v", o.IoUThreshold)
	}
	if o.OccurrenceThreshold < 1 {
		return fmt.Errorf("occurrence_threshold must be >= 1, got %d", o.OccurrenceThreshold)
	}
	if o.MinSuspiciousDetectionSize < 0 || o.MaxSuspiciousDetectionSize > 1 ||
		o.MinSuspiciousDetectionSize > o.MaxSuspiciousDetectionSize {
		return fmt.Errorf("suspicious detection size bounds [%v,%v] invalid",
			o.MinSuspiciousDetectionSize, o.MaxSuspiciousDetectionSize)
	}
	if o.MaxImagesPerDir < 0 {
		return fmt.Errorf("max_images_per_dir must be >= 0, got %d", o.MaxImagesPerDir)
	}
	if o.Workers < 1 {
		return fmt.Errorf("workers must be >= 1, got %d", o.Workers)
	}
	switch o.SortMode {
	case SortNone, SortX, SortCluster, "":
	default:
		return fmt.Errorf("unrecognized sort mode %q", o.SortMode)
	}
	switch o.MissingImageWarning {
	case WarnOnce, WarnAlways, MissingFatal, "":
	default:
		return fmt.Errorf("unrecognized missing-image policy %q", o.MissingImageWarning)
	}
	return nil
}

// ExcludesCategory reports whether category is on the exclusion list.
func (o *Options) ExcludesCategory(category string) bool {
	for _, c := range o.ExcludeCategories {
		if c == category {
			return true
		}
	}
	return false
}

// Grouping returns the validated directory-grouping variant for these
// options.
func (o *Options) Grouping() (Grouping, error) {
	if o.CustomDirFunc != nil {
		return GroupByFunc(o.CustomDirFunc)
	}
	return GroupByLeafLevels(o.DirLevelsFromLeaf)
}
