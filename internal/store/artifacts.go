package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/ancestra/internal/model"
)

type manifest struct {
	SourceIDs []string          `json:"sourceIds"`
	Files     map[string]string `json:"files"`
	WrittenAt time.Time         `json:"writtenAt"`
}

// SaveNormalized writes one file per normalized source into a fresh
// directory, then swaps it in for the previous one. A failure before the
// swap leaves the previous result untouched.
func (s *Store) SaveNormalized(ref RunRef, entries []model.NormalizedSource) error {
	stages := s.stagesDir(ref)
	if err := os.MkdirAll(stages, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", stages, err)
	}

	tmp := filepath.Join(stages, ".normalized-"+uuid.NewString())
	if err := os.Mkdir(tmp, 0o755); err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = os.RemoveAll(tmp)
		}
	}()

	m := manifest{SourceIDs: make([]string, 0, len(entries)), Files: make(map[string]string, len(entries)), WrittenAt: s.now().UTC()}
	used := make(map[string]bool, len(entries))
	for _, e := range entries {
		name := SanitizeID(e.SourceID)
		for base, n := name, 2; used[name]; n++ {
			name = fmt.Sprintf("%s-%d", base, n)
		}
		used[name] = true
		file := name + ".json"
		if err := writeJSON(filepath.Join(tmp, file), e); err != nil {
			return err
		}
		m.SourceIDs = append(m.SourceIDs, e.SourceID)
		m.Files[e.SourceID] = file
	}
	if err := writeJSON(filepath.Join(tmp, normalizedManifest), m); err != nil {
		return err
	}

	final := filepath.Join(stages, NormalizedDir)
	old := filepath.Join(stages, ".normalized-old-"+uuid.NewString())
	hadPrevious := true
	if err := os.Rename(final, old); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("move previous normalized output aside: %w", err)
		}
		hadPrevious = false
	}
	if err := os.Rename(tmp, final); err != nil {
		if hadPrevious {
			_ = os.Rename(old, final)
		}
		return fmt.Errorf("install normalized output: %w", err)
	}
	committed = true
	if hadPrevious {
		_ = os.RemoveAll(old)
	}
	return nil
}

// LoadNormalized reads the normalized output in manifest order.
func (s *Store) LoadNormalized(ref RunRef) ([]model.NormalizedSource, error) {
	dir := filepath.Join(s.stagesDir(ref), NormalizedDir)
	var m manifest
	if err := readJSON(filepath.Join(dir, normalizedManifest), &m); err != nil {
		return nil, err
	}
	out := make([]model.NormalizedSource, 0, len(m.SourceIDs))
	for _, id := range m.SourceIDs {
		var e model.NormalizedSource
		if err := readJSON(filepath.Join(dir, m.Files[id]), &e); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// SaveClusters replaces clustered.json.
func (s *Store) SaveClusters(ref RunRef, c *model.ClusterResult) error {
	return writeJSON(filepath.Join(s.stagesDir(ref), ClusteredFile), c)
}

// LoadClusters reads clustered.json.
func (s *Store) LoadClusters(ref RunRef) (*model.ClusterResult, error) {
	var c model.ClusterResult
	if err := readJSON(filepath.Join(s.stagesDir(ref), ClusteredFile), &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// SaveSynthesis replaces synthesis.json.
func (s *Store) SaveSynthesis(ref RunRef, syn *model.Synthesis) error {
	return writeJSON(filepath.Join(s.stagesDir(ref), SynthesisFile), syn)
}

// LoadSynthesis reads synthesis.json.
func (s *Store) LoadSynthesis(ref RunRef) (*model.Synthesis, error) {
	var syn model.Synthesis
	if err := readJSON(filepath.Join(s.stagesDir(ref), SynthesisFile), &syn); err != nil {
		return nil, err
	}
	return &syn, nil
}

// HasArtifact reports whether a stage's output exists on disk.
func (s *Store) HasArtifact(ref RunRef, stage model.Stage) bool {
	var path string
	switch stage {
	case model.StageNormalize:
		path = filepath.Join(s.stagesDir(ref), NormalizedDir, normalizedManifest)
	case model.StageCluster:
		path = filepath.Join(s.stagesDir(ref), ClusteredFile)
	case model.StageSynthesize:
		path = filepath.Join(s.stagesDir(ref), SynthesisFile)
	default:
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

// SaveExport keeps the prompt handed out for an export so it can be
// reprinted while the stage awaits import.
func (s *Store) SaveExport(ref RunRef, stage model.Stage, text string) (string, error) {
	path := filepath.Join(s.stagesDir(ref), "exports", string(stage)+"-prompt.txt")
	if err := writeFileAtomic(path, []byte(text)); err != nil {
		return "", err
	}
	return path, nil
}
