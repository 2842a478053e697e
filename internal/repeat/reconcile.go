package repeat

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/trailtools/rde/internal/match"
)

// ReadAcceptedList loads a flat text file of artifact filenames, one per
// line, the format `rde list-images` produces. The result is non-nil
// even when the file names nothing: an empty list means the reviewer
// kept zero artifacts, which is a valid review outcome, not the absence
// of a list.
func ReadAcceptedList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open accepted list %s: %w", path, err)
	}
	defer f.Close()

	names := []string{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			names = append(names, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("cannot read accepted list %s: %w", path, err)
	}
	return names, nil
}

// Reconcile drops suspicious locations the reviewer judged to be true
// positives. With an accepted list, a location survives iff its artifact
// filename is on the list; otherwise it survives iff its artifact file
// still exists under baseDir (a reviewer deletes the artifact of a true
// positive). Filtering is in place per directory and order-preserving.
// A missing artifact is the review signal, never an error.
func Reconcile(suspicious [][]*match.DetectionLocation, baseDir string,
	accepted []string, log *slog.Logger) (removed int) {

	var acceptedSet map[string]bool
	if accepted != nil {
		acceptedSet = make(map[string]bool, len(accepted))
		for _, name := range accepted {
			acceptedSet[name] = true
		}
		total := 0
		for _, locs := range suspicious {
			total += len(locs)
		}
		log.Info("reconciling against accepted-filename list",
			"accepted", len(accepted), "suspicious", total)
	}

	for iDir, locs := range suspicious {
		kept := locs[:0]
		removedThisDir := 0
		for _, location := range locs {
			valid := false
			if acceptedSet != nil {
				valid = acceptedSet[location.SampleImageRelName]
			} else {
				_, err := os.Stat(filepath.Join(baseDir, location.SampleImageRelName))
				valid = err == nil
			}
			if valid {
				kept = append(kept, location)
			} else {
				removedThisDir++
			}
		}
		suspicious[iDir] = kept
		if removedThisDir > 0 {
			log.Info("removed reviewed detections from directory",
				"dir_index", iDir, "removed", removedThisDir, "of", len(locs))
			removed += removedThisDir
		}
	}
	return removed
}
