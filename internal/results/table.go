// Package results loads and writes MegaDetector-style batch output files:
// a JSON document with an "images" array, where each image carries a list
// of detections in relative coordinates.
package results

import (
	"encoding/json"
	"fmt"
	"math"
	"path"
	"sort"
	"strings"

	"github.com/trailtools/rde/internal/geometry"
)

// Detection is one detector output on one image.
type Detection struct {
	Category string       `json:"category"`
	Conf     float64      `json:"conf"`
	Box      geometry.Box `json:"bbox"`
}

// ImageEntry is one row of the detection table.
//
// A nil Detections slice together with a non-empty Failure string marks an
// image the detector could not read.
type ImageEntry struct {
	File             string      `json:"file"`
	MaxDetectionConf float64     `json:"max_detection_conf"`
	Detections       []Detection `json:"detections"`
	Failure          string      `json:"failure,omitempty"`
}

// Failed reports whether this row represents an unreadable image.
func (e *ImageEntry) Failed() bool {
	return e.Detections == nil && e.Failure != ""
}

// Table is a loaded detection-results file. Top-level fields other than
// "images" and "detection_categories" round-trip through Extra untouched.
type Table struct {
	Images     []*ImageEntry
	Categories map[string]string
	Extra      map[string]json.RawMessage
}

// imageEntryJSON distinguishes an absent max_detection_conf (recomputed on
// load) from an explicit zero.
type imageEntryJSON struct {
	File             string      `json:"file"`
	MaxDetectionConf *float64    `json:"max_detection_conf,omitempty"`
	Detections       []Detection `json:"detections"`
	Failure          string      `json:"failure,omitempty"`
}

// Load reads a detection-results file. Paths are normalized to forward
// slashes and the replacements map is applied as substring substitutions
// (in sorted-key order, so results don't depend on map iteration).
// max_detection_conf is populated from the detection list when the input
// omits it.
func Load(filename string, replacements map[string]string) (*Table, error) {
	raw, err := readRaw(filename)
	if err != nil {
		return nil, err
	}
	return Parse(raw, replacements)
}

// Parse builds a Table from raw top-level JSON fields.
func Parse(raw map[string]json.RawMessage, replacements map[string]string) (*Table, error) {
	imagesRaw, ok := raw["images"]
	if !ok {
		return nil, fmt.Errorf("detection results missing \"images\" field")
	}

	var entries []imageEntryJSON
	if err := json.Unmarshal(imagesRaw, &entries); err != nil {
		return nil, fmt.Errorf("invalid \"images\" array: %w", err)
	}

	t := &Table{
		Images: make([]*ImageEntry, 0, len(entries)),
		Extra:  map[string]json.RawMessage{},
	}
	if catsRaw, ok := raw["detection_categories"]; ok {
		if err := json.Unmarshal(catsRaw, &t.Categories); err != nil {
			return nil, fmt.Errorf("invalid \"detection_categories\": %w", err)
		}
	}
	for k, v := range raw {
		if k == "images" || k == "detection_categories" {
			continue
		}
		t.Extra[k] = v
	}

	replKeys := make([]string, 0, len(replacements))
	for k := range replacements {
		replKeys = append(replKeys, k)
	}
	sort.Strings(replKeys)

	for i := range entries {
		in := &entries[i]
		e := &ImageEntry{
			File:       strings.ReplaceAll(in.File, `\`, "/"),
			Detections: in.Detections,
			Failure:    in.Failure,
		}
		for _, k := range replKeys {
			e.File = strings.ReplaceAll(e.File, k, replacements[k])
		}

		if in.MaxDetectionConf != nil {
			e.MaxDetectionConf = *in.MaxDetectionConf
		} else {
			e.MaxDetectionConf = maxConf(e.Detections)
		}
		t.Images = append(t.Images, e)
	}

	return t, nil
}

// maxConf recomputes a row's max confidence. Confidences may all be
// negative when the input is the output of a prior suppression pass, so
// the accumulator cannot start at zero.
func maxConf(dets []Detection) float64 {
	if len(dets) == 0 {
		return 0
	}
	m := math.Inf(-1)
	for _, d := range dets {
		if d.Conf > m {
			m = d.Conf
		}
	}
	return m
}

// MarshalJSON assembles the table back into its on-disk shape.
func (t *Table) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"images": t.Images,
	}
	if t.Categories != nil {
		out["detection_categories"] = t.Categories
	}
	for k, v := range t.Extra {
		out[k] = v
	}
	return json.Marshal(out)
}

// IsImagePath reports whether filename has a recognized image extension.
func IsImagePath(filename string) bool {
	switch strings.ToLower(path.Ext(filename)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".bmp", ".webp", ".tif", ".tiff":
		return true
	}
	return false
}
