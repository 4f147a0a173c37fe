package qc

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/banshee-data/matchup/internal/matchup"
)

// ErrPathEscape is returned for artefact paths that resolve outside the
// output directory.
var ErrPathEscape = errors.New("path escapes output directory")

// Artifacts lists the files written for one run.
type Artifacts struct {
	Summary   string
	Chart     string
	Locations string
}

// WriteArtifacts writes the text summary, the daily chart and, when there is
// anything to plot, the location plot of a run into dir.
func WriteArtifacts(dir, runID string, c *matchup.Collection) (Artifacts, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Artifacts{}, err
	}
	rep := Summarize(c)
	base := SanitizeFilename(runID)

	var out Artifacts
	var err error
	if out.Summary, err = ArtifactPath(dir, base+"-summary.txt"); err != nil {
		return Artifacts{}, err
	}
	if err := writeFile(out.Summary, func(f *os.File) error { return WriteText(f, rep) }); err != nil {
		return Artifacts{}, err
	}

	if out.Chart, err = ArtifactPath(dir, base+"-daily.html"); err != nil {
		return Artifacts{}, err
	}
	if err := writeFile(out.Chart, func(f *os.File) error { return WriteDailyChart(f, "Matchups "+runID, rep) }); err != nil {
		return Artifacts{}, err
	}

	if rep.TotalMatchups == 0 {
		return out, nil
	}
	if out.Locations, err = ArtifactPath(dir, base+"-locations.png"); err != nil {
		return Artifacts{}, err
	}
	if err := PlotLocations(c, out.Locations); err != nil {
		return Artifacts{}, err
	}
	return out, nil
}

func writeFile(path string, fn func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	diagf("wrote %s", path)
	return f.Close()
}

// ArtifactPath joins name onto dir and checks that the result, with symlinks
// resolved, stays inside dir. dir must exist.
func ArtifactPath(dir, name string) (string, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	root, err := filepath.EvalSymlinks(absDir)
	if err != nil {
		return "", fmt.Errorf("resolve output directory: %w", err)
	}
	path := filepath.Join(absDir, name)

	// Resolve the deepest existing ancestor so a symlinked parent cannot
	// point elsewhere.
	resolved := path
	for p := path; ; {
		if r, err := filepath.EvalSymlinks(p); err == nil {
			rest, _ := filepath.Rel(p, path)
			resolved = filepath.Join(r, rest)
			break
		}
		parent := filepath.Dir(p)
		if parent == p {
			break
		}
		p = parent
	}

	rel, err := filepath.Rel(root, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return "", fmt.Errorf("%w: %s", ErrPathEscape, name)
	}
	return path, nil
}

// SanitizeFilename keeps ASCII letters, digits, dot, underscore and dash and
// collapses every other run of characters into one underscore. The result is
// capped at 128 bytes and never empty.
func SanitizeFilename(s string) string {
	const maxLen = 128
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		if b.Len() >= maxLen {
			break
		}
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'),
			r == '.' || r == '_' || r == '-':
			b.WriteRune(r)
			lastUnderscore = r == '_'
		case !lastUnderscore:
			b.WriteRune('_')
			lastUnderscore = true
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}
