package repeat

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/trailtools/rde/internal/config"
	"github.com/trailtools/rde/internal/geometry"
	"github.com/trailtools/rde/internal/results"
)

func writeJPEG(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := jpeg.Encode(f, image.NewRGBA(image.Rect(0, 0, 64, 48)), nil); err != nil {
		t.Fatal(err)
	}
}

// stageRun lays out an image tree and detection table with one repeat
// location (20 instances) and 5 unrelated detections, and returns the
// input path plus options pointed at fresh temp dirs.
func stageRun(t *testing.T) (inputPath string, opts *config.Options) {
	t.Helper()
	base := t.TempDir()
	imageBase := filepath.Join(base, "images")
	repeatBox := geometry.Box{0.1, 0.1, 0.1, 0.1}

	table := &results.Table{
		Categories: map[string]string{"1": "animal"},
	}
	for i := 0; i < 20; i++ {
		file := fmt.Sprintf("A/img_%03d.jpg", i)
		writeJPEG(t, filepath.Join(imageBase, file))
		table.Images = append(table.Images, &results.ImageEntry{
			File:             file,
			MaxDetectionConf: 0.8,
			Detections:       []results.Detection{{Category: "1", Conf: 0.8, Box: repeatBox}},
		})
	}
	for i := 0; i < 5; i++ {
		file := fmt.Sprintf("A/other_%03d.jpg", i)
		writeJPEG(t, filepath.Join(imageBase, file))
		b := geometry.Box{0.3 + 0.12*float64(i), 0.6, 0.05, 0.05}
		table.Images = append(table.Images, &results.ImageEntry{
			File:             file,
			MaxDetectionConf: 0.5,
			Detections:       []results.Detection{{Category: "1", Conf: 0.5, Box: b}},
		})
	}

	inputPath = filepath.Join(base, "detections.json")
	if err := table.Write(inputPath); err != nil {
		t.Fatal(err)
	}

	opts = config.Default()
	opts.ImageBase = imageBase
	opts.OutputBase = filepath.Join(base, "out")
	opts.Workers = 3
	return inputPath, opts
}

func TestRun_ComputeThenReconcile(t *testing.T) {
	inputPath, opts := stageRun(t)
	log := discardLogger()
	outputPath := filepath.Join(filepath.Dir(inputPath), "detections_filtered.json")

	res, err := Run(context.Background(), inputPath, outputPath, opts, log, nil)
	if err != nil {
		t.Fatalf("compute pass: %v", err)
	}
	if res.NSuspicious != 1 || res.NSuspiciousInstances != 20 {
		t.Fatalf("suspicious = %d locations, %d instances", res.NSuspicious, res.NSuspiciousInstances)
	}
	if res.Stats.BoxChanges != 20 {
		t.Fatalf("BoxChanges = %d, want 20", res.Stats.BoxChanges)
	}
	if res.FilteringDir == "" || res.IndexPath == "" {
		t.Fatal("filtering folder not written")
	}

	artifact := filepath.Join(res.FilteringDir, "dir0000_det0000_n0020.jpg")
	if _, err := os.Stat(artifact); err != nil {
		t.Fatalf("review artifact not rendered: %v", err)
	}

	// Suppressed table on disk has the repeats negated.
	filtered, err := results.Load(outputPath, nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, row := range filtered.Images {
		want := 0.5
		if filepath.Base(row.File)[:3] == "img" {
			want = -0.8
		}
		if row.MaxDetectionConf != want {
			t.Fatalf("%s max conf = %v, want %v", row.File, row.MaxDetectionConf, want)
		}
	}

	// Reviewer keeps the artifact: reconciliation removes nothing and
	// re-applies the same suppression to the original table.
	applyOpts := config.Default()
	applyOpts.IndexPath = res.IndexPath
	res2, err := Run(context.Background(), inputPath, "", applyOpts, log, nil)
	if err != nil {
		t.Fatalf("reconcile pass: %v", err)
	}
	if res2.RemovedByReview != 0 || res2.NSuspicious != 1 {
		t.Fatalf("reconcile kept %d, removed %d", res2.NSuspicious, res2.RemovedByReview)
	}
	if res2.Stats.BoxChanges != 20 {
		t.Fatalf("reconcile BoxChanges = %d, want 20", res2.Stats.BoxChanges)
	}

	// Reviewer deletes the artifact: the location is a true positive and
	// the original table passes through unsuppressed.
	if err := os.Remove(artifact); err != nil {
		t.Fatal(err)
	}
	res3, err := Run(context.Background(), inputPath, "", applyOpts, log, nil)
	if err != nil {
		t.Fatalf("reconcile after deletion: %v", err)
	}
	if res3.RemovedByReview != 1 || res3.NSuspicious != 0 {
		t.Fatalf("after deletion kept %d, removed %d", res3.NSuspicious, res3.RemovedByReview)
	}
	if res3.Stats.BoxChanges != 0 {
		t.Fatalf("after deletion BoxChanges = %d, want 0", res3.Stats.BoxChanges)
	}

	// An accepted list naming the artifact overrides its absence on disk.
	listPath := filepath.Join(filepath.Dir(inputPath), "accepted.txt")
	if err := os.WriteFile(listPath, []byte("dir0000_det0000_n0020.jpg\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	applyOpts.AcceptedListPath = listPath
	res4, err := Run(context.Background(), inputPath, "", applyOpts, log, nil)
	if err != nil {
		t.Fatalf("reconcile with accepted list: %v", err)
	}
	if res4.RemovedByReview != 0 || res4.Stats.BoxChanges != 20 {
		t.Fatalf("accepted list: removed %d, BoxChanges %d", res4.RemovedByReview, res4.Stats.BoxChanges)
	}
}

// The suspicious set and suppressed table must not depend on worker
// count or scheduling.
func TestRun_SerialParallelEquivalence(t *testing.T) {
	inputPath, opts := stageRun(t)
	log := discardLogger()

	runOnce := func(parallel bool, workers int) ([]byte, []byte) {
		o := *opts
		o.ParallelizeComparisons = parallel
		o.Workers = workers
		o.WriteFilteringDir = false
		out := filepath.Join(t.TempDir(), "out.json")
		res, err := Run(context.Background(), inputPath, out, &o, log, nil)
		if err != nil {
			t.Fatal(err)
		}
		suspicious, err := json.Marshal(res.Suspicious)
		if err != nil {
			t.Fatal(err)
		}
		table, err := os.ReadFile(out)
		if err != nil {
			t.Fatal(err)
		}
		return suspicious, table
	}

	serialSusp, serialTable := runOnce(false, 1)
	for _, workers := range []int{2, 8} {
		susp, table := runOnce(true, workers)
		if string(susp) != string(serialSusp) {
			t.Fatalf("suspicious set differs with %d workers", workers)
		}
		if string(table) != string(serialTable) {
			t.Fatalf("output table differs with %d workers", workers)
		}
	}
}

func TestRun_ProgressTicks(t *testing.T) {
	inputPath, opts := stageRun(t)
	opts.WriteFilteringDir = false

	matched := 0
	res, err := Run(context.Background(), inputPath, "", opts, discardLogger(), func(phase string, done, total int) {
		if phase == "matching" {
			matched++
			if total != 1 {
				t.Errorf("matching total = %d, want 1", total)
			}
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	if matched != 1 {
		t.Fatalf("matching ticks = %d, want 1", matched)
	}
	if res.Stats == nil {
		t.Fatal("missing suppression stats")
	}
}

func TestRun_MissingFirstImageFatal(t *testing.T) {
	inputPath, opts := stageRun(t)
	opts.ImageBase = t.TempDir()

	if _, err := Run(context.Background(), inputPath, "", opts, discardLogger(), nil); err == nil {
		t.Fatal("unreadable image base should fail before matching")
	}
}
