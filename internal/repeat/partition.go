// Package repeat drives repeat-detection elimination: it partitions the
// detection table by directory, runs the matcher over each partition,
// selects suspicious locations, suppresses their confidences in the
// table, and persists or reconciles the review index.
package repeat

import (
	"fmt"
	"log/slog"

	"github.com/trailtools/rde/internal/config"
	"github.com/trailtools/rde/internal/results"
)

// Partition groups the table's rows by directory key. Dirs preserves
// first-seen order; suspicious-detection lists produced later stay
// index-aligned with it.
type Partition struct {
	Dirs          []string
	RowsByDir     map[string][]*results.ImageEntry
	FilenameToRow map[string]int
}

// PartitionByDirectory splits the table into per-directory row groups
// using the configured grouping mode. A duplicate filename is input
// corruption: the filename-to-row map would silently lose a row, so it is
// fatal.
func PartitionByDirectory(t *results.Table, opts *config.Options, log *slog.Logger) (*Partition, error) {
	grouping, err := opts.Grouping()
	if err != nil {
		return nil, err
	}

	p := &Partition{
		RowsByDir:     map[string][]*results.ImageEntry{},
		FilenameToRow: map[string]int{},
	}

	customReplacements := 0
	for i, row := range t.Images {
		key, err := grouping.Key(row.File)
		if err != nil {
			return nil, err
		}
		if grouping.Custom() && key != defaultKey(row.File) {
			customReplacements++
		}

		if _, ok := p.RowsByDir[key]; !ok {
			p.Dirs = append(p.Dirs, key)
		}
		p.RowsByDir[key] = append(p.RowsByDir[key], row)

		if _, dup := p.FilenameToRow[row.File]; dup {
			return nil, fmt.Errorf("duplicate filename in detection table: %s", row.File)
		}
		p.FilenameToRow[row.File] = i
	}

	if grouping.Custom() {
		log.Info("custom directory function applied",
			"replacements", customReplacements, "images", len(t.Images))
	}
	log.Info("separated files into directories",
		"files", len(t.Images), "directories", len(p.Dirs))
	return p, nil
}

func defaultKey(relPath string) string {
	g, _ := config.GroupByLeafLevels(0)
	k, _ := g.Key(relPath)
	return k
}
