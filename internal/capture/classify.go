package capture

import "strings"

// Source types inferred from record text. Best effort only.
const (
	SourceTypeCensus      = "census"
	SourceTypeBirth       = "birth"
	SourceTypeBaptism     = "baptism"
	SourceTypeMarriage    = "marriage"
	SourceTypeDeath       = "death"
	SourceTypeBurial      = "burial"
	SourceTypeMilitary    = "military"
	SourceTypeImmigration = "immigration"
	SourceTypeProbate     = "probate"
	SourceTypeObituary    = "obituary"
	SourceTypeNewspaper   = "newspaper"
	SourceTypeFamilyTree  = "family_tree"
	SourceTypeOther       = "other"
)

// typeRules are checked in order; the first keyword hit wins. Specific record
// kinds come before generic ones ("obituary" before "death").
var typeRules = []struct {
	sourceType string
	keywords   []string
}{
	{SourceTypeCensus, []string{"census", "enumeration district", "household of"}},
	{SourceTypeObituary, []string{"obituary", "obituaries"}},
	{SourceTypeBurial, []string{"burial", "cemetery", "find a grave", "findagrave", "interment", "billiongraves"}},
	{SourceTypeBaptism, []string{"baptism", "christening", "baptisms", "christenings"}},
	{SourceTypeMarriage, []string{"marriage", "marriages", "married", "banns"}},
	{SourceTypeMilitary, []string{"military", "draft registration", "enlistment", "pension", "regiment", "veterans"}},
	{SourceTypeImmigration, []string{"passenger", "immigration", "naturalization", "emigration", "arrival", "ship manifest"}},
	{SourceTypeProbate, []string{"probate", "will and testament", "estate file", "wills"}},
	{SourceTypeBirth, []string{"birth", "births"}},
	{SourceTypeDeath, []string{"death", "deaths", "died"}},
	{SourceTypeNewspaper, []string{"newspaper", "gazette", "herald", "tribune"}},
	{SourceTypeFamilyTree, []string{"family tree", "ancestral file", "pedigree resource", "genealogies", "member trees"}},
}

// ClassifySource infers a coarse source type from title, citation and text.
// The title is checked first because it names the record collection.
func ClassifySource(title, citation, text string) string {
	for _, field := range []string{title, citation, text} {
		lower := strings.ToLower(field)
		if lower == "" {
			continue
		}
		for _, rule := range typeRules {
			for _, kw := range rule.keywords {
				if containsWord(lower, kw) {
					return rule.sourceType
				}
			}
		}
	}
	return SourceTypeOther
}

// containsWord matches kw at word boundaries so "births" does not hit inside
// unrelated words.
func containsWord(s, kw string) bool {
	for start := 0; ; {
		idx := strings.Index(s[start:], kw)
		if idx < 0 {
			return false
		}
		idx += start
		end := idx + len(kw)
		if (idx == 0 || !isWordByte(s[idx-1])) && (end == len(s) || !isWordByte(s[end])) {
			return true
		}
		start = idx + 1
	}
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= '0' && b <= '9'
}
