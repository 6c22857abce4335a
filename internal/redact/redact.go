// Package redact scrubs likely identifying details about living people from an
// Evidence Pack before it is shown to any model.
package redact

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ppiankov/ancestra/internal/model"
)

// Placeholder replaces every redacted span.
const Placeholder = "[REDACTED]"

// livingWindow is how recent a birth year must be, relative to the capture
// year, to count as a living signal when no death is recorded.
const livingWindow = 110

type pattern struct {
	kind model.RedactionKind
	re   *regexp.Regexp
}

// patterns run in order; earlier kinds claim their spans first. None of them
// match Placeholder, which keeps Redact idempotent.
var patterns = []pattern{
	{model.RedactionEmail, regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)},
	{model.RedactionPhone, regexp.MustCompile(`(?:\+\d{1,3}[\s.\-]?)?(?:\(\d{3}\)\s?|\b\d{3}[\s.\-])\d{3}[\s.\-]\d{4}\b`)},
	{model.RedactionStreetAddress, regexp.MustCompile(
		`\b\d{1,5}\s+(?:[A-Z][A-Za-z'\-]*\s+){1,4}(?:Street|St|Avenue|Ave|Road|Rd|Lane|Ln|Drive|Dr|Boulevard|Blvd|Court|Ct|Way|Place|Pl|Terrace|Circle|Cir|Parkway|Pkwy)\b\.?`)},
	{model.RedactionLivingMarker, regexp.MustCompile(
		`(?im)\((?:living|private)\)|\b(?:living|private) person\b|\bstill living\b|\bis living\b|\bpresumed living\b|^\s*living\s*$`)},
}

var yearPattern = regexp.MustCompile(`\b(1[0-9]{3}|20[0-9]{2})\b`)

// Redact returns a scrubbed deep copy of pack. The input is never modified.
// Contributor names are removed outright; free text is scanned for e-mail
// addresses, phone numbers, street addresses and explicit living markers.
func Redact(pack *model.EvidencePack) model.RedactionResult {
	out := pack.Clone()
	out.Redacted = true
	r := &redactor{}

	p := &out.Person
	p.Name = r.scan(p.Name, "person.name", "")
	p.BirthDate = r.scan(p.BirthDate, "person.birthDate", "")
	p.DeathDate = r.scan(p.DeathDate, "person.deathDate", "")
	out.PageTitle = r.scan(out.PageTitle, "pageTitle", "")

	for i := range out.Sources {
		s := &out.Sources[i]
		at := func(field string) string { return fmt.Sprintf("sources[%d].%s", i, field) }

		if s.AttachedBy != "" && s.AttachedBy != Placeholder {
			s.AttachedBy = Placeholder
			r.record(model.RedactionContributor, at("attachedBy"), s.ID)
		}
		s.Title = r.scan(s.Title, at("title"), s.ID)
		s.Date = r.scan(s.Date, at("date"), s.ID)
		s.Citation = r.scan(s.Citation, at("citation"), s.ID)
		s.ReasonAttached = r.scan(s.ReasonAttached, at("reasonAttached"), s.ID)
		for j := range s.Tags {
			s.Tags[j] = r.scan(s.Tags[j], at(fmt.Sprintf("tags[%d]", j)), s.ID)
		}
		for j := range s.Indexed.Fields {
			s.Indexed.Fields[j].Value = r.scan(s.Indexed.Fields[j].Value,
				at(fmt.Sprintf("indexed.fields[%d].value", j)), s.ID)
		}
		for j := range s.Indexed.TextBlocks {
			s.Indexed.TextBlocks[j] = r.scan(s.Indexed.TextBlocks[j],
				at(fmt.Sprintf("indexed.textBlocks[%d]", j)), s.ID)
		}
		s.RawText = r.scanRaw(s.RawText, at("rawText"), s.ID, s.AttachedBy, pack.Sources[i].AttachedBy)
	}

	signals := livingSignals(pack, r.livingMarkers)
	return model.RedactionResult{
		RedactedPack:        out,
		Redactions:          r.records,
		HasLivingIndicators: len(signals) > 0,
		LivingSignals:       signals,
	}
}

type redactor struct {
	records       []model.RedactionRecord
	livingMarkers []string
}

func (r *redactor) record(kind model.RedactionKind, path, sourceID string) {
	r.records = append(r.records, model.RedactionRecord{Kind: kind, FieldPath: path, SourceID: sourceID})
	if kind == model.RedactionLivingMarker {
		r.livingMarkers = append(r.livingMarkers, path)
	}
}

// scan replaces every pattern match in s, one record per replaced span.
func (r *redactor) scan(s, path, sourceID string) string {
	if s == "" {
		return s
	}
	for _, p := range patterns {
		s = p.re.ReplaceAllStringFunc(s, func(string) string {
			r.record(p.kind, path, sourceID)
			return Placeholder
		})
	}
	return s
}

// scanRaw also removes the contributor name where it appears in the
// flattened text, since rawText repeats the attachedBy line.
func (r *redactor) scanRaw(s, path, sourceID, redactedBy, originalBy string) string {
	s = r.scan(s, path, sourceID)
	if originalBy == "" || originalBy == redactedBy || len(originalBy) < 3 {
		return s
	}
	if n := strings.Count(s, originalBy); n > 0 {
		s = strings.ReplaceAll(s, originalBy, Placeholder)
		for k := 0; k < n; k++ {
			r.record(model.RedactionContributor, path, sourceID)
		}
	}
	return s
}

// livingSignals lists why the subject may be alive. Only explicit death
// evidence clears the default-cautious answer.
func livingSignals(pack *model.EvidencePack, markers []string) []string {
	var signals []string
	for _, path := range markers {
		signals = append(signals, "living marker in "+path)
	}

	death := strings.TrimSpace(pack.Person.DeathDate)
	if death != "" && !isLivingWord(death) {
		return signals
	}

	birthYear, ok := parseYear(pack.Person.BirthDate)
	refYear := pack.CapturedAt.UTC().Year()
	switch {
	case !ok:
		signals = append(signals, "no death date and no readable birth year")
	case pack.CapturedAt.IsZero():
		signals = append(signals, fmt.Sprintf("no death date and birth year %d with unknown capture date", birthYear))
	case refYear-birthYear <= livingWindow:
		signals = append(signals, fmt.Sprintf("no death date and birth year %d is within %d years of %d",
			birthYear, livingWindow, refYear))
	}
	return signals
}

func isLivingWord(s string) bool {
	switch strings.ToLower(strings.Trim(s, " ()")) {
	case "living", "private", "alive":
		return true
	}
	return false
}

func parseYear(s string) (int, bool) {
	m := yearPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	y, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return y, true
}
