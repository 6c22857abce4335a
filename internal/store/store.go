// Package store persists runs and their stage artifacts under a people/
// directory tree, plus a sqlite ledger of stage states.
//
// Layout:
//
//	people/{personId}/person.json
//	people/{personId}/latest.json
//	people/{personId}/runs/{runId}/evidence-pack.json
//	people/{personId}/runs/{runId}/redacted-pack.json
//	people/{personId}/runs/{runId}/raw-document.md
//	people/{personId}/runs/{runId}/ai-stages/normalized/{sourceId}.json
//	people/{personId}/runs/{runId}/ai-stages/clustered.json
//	people/{personId}/runs/{runId}/ai-stages/synthesis.json
//	people/{personId}/runs/{runId}/contextualized.md
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ppiankov/ancestra/internal/model"
)

// ErrNotFound is returned when a person, run or artifact does not exist.
var ErrNotFound = errors.New("not found")

// File names within a run directory.
const (
	EvidencePackFile   = "evidence-pack.json"
	RedactedPackFile   = "redacted-pack.json"
	RawDocumentFile    = "raw-document.md"
	DossierFile        = "contextualized.md"
	StagesDir          = "ai-stages"
	NormalizedDir      = "normalized"
	ClusteredFile      = "clustered.json"
	SynthesisFile      = "synthesis.json"
	normalizedManifest = "_manifest.json"
)

// RunRef addresses one run of one person.
type RunRef struct {
	PersonID string `json:"personId"`
	RunID    string `json:"runId"`
}

func (r RunRef) String() string { return r.PersonID + "/" + r.RunID }

// PersonRecord is the person.json snapshot, refreshed on every capture.
type PersonRecord struct {
	PersonID   string    `json:"personId"`
	ExternalID string    `json:"externalId,omitempty"`
	Name       string    `json:"name"`
	BirthDate  string    `json:"birthDate,omitempty"`
	DeathDate  string    `json:"deathDate,omitempty"`
	SourceURL  string    `json:"sourceUrl,omitempty"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Latest is latest.json.
type Latest struct {
	RunID   string `json:"runId"`
	RunPath string `json:"runPath"`
}

// Store is the filesystem run store.
type Store struct {
	root string
	now  func() time.Time
}

// New creates a store rooted at root. The directory is created on first write.
func New(root string) *Store {
	return &Store{root: root, now: time.Now}
}

// Root returns the store's root directory.
func (s *Store) Root() string { return s.root }

// PersonIDFor derives the storage id for a captured person: the external id
// when present, otherwise the name.
func PersonIDFor(p model.Person) string {
	if strings.TrimSpace(p.ExternalID) != "" {
		return SanitizeID(p.ExternalID)
	}
	return SanitizeID(p.Name)
}

// SanitizeID maps an id to a single safe path component.
func SanitizeID(id string) string {
	id = strings.TrimSpace(id)
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.Trim(b.String(), "_")
	if out == "" {
		return "unknown"
	}
	return out
}

func (s *Store) personDir(personID string) string {
	return filepath.Join(s.root, "people", personID)
}

// RunDir returns the directory of a run.
func (s *Store) RunDir(ref RunRef) string {
	return filepath.Join(s.personDir(ref.PersonID), "runs", ref.RunID)
}

func (s *Store) stagesDir(ref RunRef) string {
	return filepath.Join(s.RunDir(ref), StagesDir)
}

// SaveEvidencePack stores a new run for the pack's person. Saving the same
// capture again writes to the same run path. latest.json only moves forward,
// and never to a pack whose extraction was cancelled.
func (s *Store) SaveEvidencePack(pack *model.EvidencePack) (RunRef, error) {
	if err := pack.Validate(); err != nil {
		return RunRef{}, fmt.Errorf("invalid evidence pack: %w", err)
	}
	ref := RunRef{PersonID: PersonIDFor(pack.Person), RunID: pack.RunID}

	if err := writeJSON(filepath.Join(s.RunDir(ref), EvidencePackFile), pack); err != nil {
		return RunRef{}, err
	}

	record := PersonRecord{
		PersonID:   ref.PersonID,
		ExternalID: pack.Person.ExternalID,
		Name:       pack.Person.Name,
		BirthDate:  pack.Person.BirthDate,
		DeathDate:  pack.Person.DeathDate,
		SourceURL:  pack.SourceURL,
		UpdatedAt:  s.now().UTC(),
	}
	if err := writeJSON(filepath.Join(s.personDir(ref.PersonID), "person.json"), record); err != nil {
		return RunRef{}, err
	}

	if pack.Diagnostics.Cancelled {
		return ref, nil
	}
	latest, err := s.Latest(ref.PersonID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return RunRef{}, err
	}
	if errors.Is(err, ErrNotFound) || ref.RunID >= latest.RunID {
		l := Latest{RunID: ref.RunID, RunPath: filepath.ToSlash(filepath.Join("runs", ref.RunID))}
		if err := writeJSON(filepath.Join(s.personDir(ref.PersonID), "latest.json"), l); err != nil {
			return RunRef{}, err
		}
	}
	return ref, nil
}

// LoadEvidencePack reads a run's original pack.
func (s *Store) LoadEvidencePack(ref RunRef) (*model.EvidencePack, error) {
	var pack model.EvidencePack
	if err := readJSON(filepath.Join(s.RunDir(ref), EvidencePackFile), &pack); err != nil {
		return nil, err
	}
	return &pack, nil
}

// SaveRedactedPack stores the redacted copy of a run's pack.
func (s *Store) SaveRedactedPack(ref RunRef, pack *model.EvidencePack) error {
	return writeJSON(filepath.Join(s.RunDir(ref), RedactedPackFile), pack)
}

// LoadRedactedPack reads a run's redacted pack.
func (s *Store) LoadRedactedPack(ref RunRef) (*model.EvidencePack, error) {
	var pack model.EvidencePack
	if err := readJSON(filepath.Join(s.RunDir(ref), RedactedPackFile), &pack); err != nil {
		return nil, err
	}
	return &pack, nil
}

// SaveRawDocument replaces the run's raw document.
func (s *Store) SaveRawDocument(ref RunRef, text string) error {
	return writeFileAtomic(filepath.Join(s.RunDir(ref), RawDocumentFile), []byte(text))
}

// SaveDossier replaces the run's contextualized document.
func (s *Store) SaveDossier(ref RunRef, text string) error {
	return writeFileAtomic(filepath.Join(s.RunDir(ref), DossierFile), []byte(text))
}

// ReadFile reads a file of a run by name.
func (s *Store) ReadFile(ref RunRef, name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.RunDir(ref), name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s %s: %w", ref, name, ErrNotFound)
	}
	return data, err
}

// LoadPerson reads person.json.
func (s *Store) LoadPerson(personID string) (*PersonRecord, error) {
	var p PersonRecord
	if err := readJSON(filepath.Join(s.personDir(personID), "person.json"), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Latest reads latest.json.
func (s *Store) Latest(personID string) (Latest, error) {
	var l Latest
	err := readJSON(filepath.Join(s.personDir(personID), "latest.json"), &l)
	return l, err
}

// Resolve fills in the latest run id when ref.RunID is empty.
func (s *Store) Resolve(ref RunRef) (RunRef, error) {
	if ref.PersonID == "" {
		return RunRef{}, errors.New("person id is required")
	}
	ref.PersonID = SanitizeID(ref.PersonID)
	if ref.RunID != "" {
		if _, err := os.Stat(filepath.Join(s.RunDir(ref), EvidencePackFile)); err != nil {
			return RunRef{}, fmt.Errorf("run %s: %w", ref, ErrNotFound)
		}
		return ref, nil
	}
	l, err := s.Latest(ref.PersonID)
	if err != nil {
		return RunRef{}, fmt.Errorf("person %s has no runs: %w", ref.PersonID, err)
	}
	ref.RunID = l.RunID
	return ref, nil
}

// ListPeople returns every person id, sorted.
func (s *Store) ListPeople() ([]string, error) {
	return listDirs(filepath.Join(s.root, "people"))
}

// ListRuns returns a person's run ids, oldest first.
func (s *Store) ListRuns(personID string) ([]string, error) {
	return listDirs(filepath.Join(s.personDir(personID), "runs"))
}

func listDirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	return writeFileAtomic(path, append(data, '\n'))
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// writeFileAtomic writes via a temp file in the same directory and renames
// it into place, so readers never see a partial file.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename %s: %w", filepath.Base(path), err)
	}
	return nil
}
