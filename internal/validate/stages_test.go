package validate

import (
	"fmt"
	"strings"
	"testing"

	"github.com/ppiankov/ancestra/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func normalizedEntry(id, confidence string) string {
	conf := ""
	if confidence != "" {
		conf = fmt.Sprintf(`, "confidence": %q`, confidence)
	}
	return fmt.Sprintf(`{"sourceId": %q, "summary": "record %s", "entities": [], "dates": [], "places": [],
		"relationships": [], "claims": ["claim"]%s}`, id, id, conf)
}

func normalizedResponse(entries ...string) string {
	return "[" + strings.Join(entries, ",") + "]"
}

func normalized(ids ...string) []model.NormalizedSource {
	out := make([]model.NormalizedSource, len(ids))
	for i, id := range ids {
		out[i] = model.NormalizedSource{SourceID: id}
	}
	return out
}

func TestParseNormalized_Valid(t *testing.T) {
	text := "```json\n" + normalizedResponse(normalizedEntry("S2", "low"), normalizedEntry("S1", "high")) + "\n```"
	got, err := ParseNormalized(text, []string{"S1", "S2"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "S1", got[0].SourceID, "entries come back in input order")
	assert.Equal(t, "low", got[1].Confidence)
}

func TestParseNormalized_MissingConfidenceNamesEntry(t *testing.T) {
	text := normalizedResponse(normalizedEntry("S1", "high"), normalizedEntry("S2", "medium"), normalizedEntry("S3", ""))
	_, err := ParseNormalized(text, []string{"S1", "S2", "S3"})

	var serr *SchemaError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, model.StageNormalize, serr.Stage)
	assert.Equal(t, []string{"[2].confidence: is required"}, serr.Problems)
	assert.Contains(t, err.Error(), "[2].confidence")
}

func TestParseNormalized_CrossChecks(t *testing.T) {
	text := normalizedResponse(normalizedEntry("S1", "high"), normalizedEntry("S1", "high"), normalizedEntry("S9", "bogus"))
	_, err := ParseNormalized(text, []string{"S1", "S2"})

	var serr *SchemaError
	require.ErrorAs(t, err, &serr)
	assert.ElementsMatch(t, []string{
		`[2].confidence: must be one of high, medium, low, got "bogus"`,
		`[2].sourceId: "S9" is not an input source`,
		`[1].sourceId: "S1" appears more than once`,
		"missing entry for source S2",
	}, serr.Problems)
}

func TestParseNormalized_WrongShape(t *testing.T) {
	_, err := ParseNormalized(`{"sourceId": "S1"}`, []string{"S1"})
	var serr *SchemaError
	require.ErrorAs(t, err, &serr)
	assert.Contains(t, serr.Problems[0], "expected a JSON array")
}

func TestParseNormalized_WrongFieldType(t *testing.T) {
	_, err := ParseNormalized(`[{"sourceId": "S1", "confidence": 0.9}]`, []string{"S1"})
	var serr *SchemaError
	require.ErrorAs(t, err, &serr)
	assert.Contains(t, serr.Problems[0], "confidence")
}

func TestParseNormalized_NotJSON(t *testing.T) {
	_, err := ParseNormalized("I could not find any sources.", []string{"S1"})
	var ferr *FormatError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, model.StageNormalize, ferr.Stage)
}

const validClusters = `{
  "clusters": [{"id": "C1", "type": "census", "sourceIds": ["S1", "S3"], "reason": "same household", "primarySourceId": "S1"}],
  "standalone": ["S2"]
}`

func TestParseClusters_Valid(t *testing.T) {
	got, warnings, err := ParseClusters(validClusters, normalized("S1", "S2", "S3"), true)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	require.Len(t, got.Clusters, 1)
	assert.Equal(t, []string{"S2"}, got.Standalone)
}

func TestParseClusters_Coverage(t *testing.T) {
	in := normalized("S1", "S2", "S3", "S4")

	_, _, err := ParseClusters(validClusters, in, true)
	var serr *SchemaError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, []string{"source S4 is in no cluster and not standalone"}, serr.Problems)

	got, warnings, err := ParseClusters(validClusters, in, false)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Equal(t, []string{"source S4 is in no cluster and not standalone"}, warnings)
}

func TestParseClusters_AlwaysRejected(t *testing.T) {
	text := `{"clusters": [
		{"id": "C1", "type": "birth", "sourceIds": ["S1", "S7"], "reason": "r", "primarySourceId": "S2"},
		{"id": "C1", "type": "death", "sourceIds": ["S2"], "reason": "r", "primarySourceId": "S2"}
	], "standalone": []}`
	_, _, err := ParseClusters(text, normalized("S1", "S2"), false)

	var serr *SchemaError
	require.ErrorAs(t, err, &serr)
	assert.ElementsMatch(t, []string{
		`clusters[0].sourceIds[1]: "S7" is not a normalized source`,
		`clusters[0].primarySourceId: "S2" is not one of the cluster's sourceIds`,
		`clusters[1].id: "C1" appears more than once`,
	}, serr.Problems)
}

func TestParseClusters_MissingStandalone(t *testing.T) {
	_, _, err := ParseClusters(`{"clusters": []}`, normalized(), true)
	var serr *SchemaError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, []string{"standalone: is required"}, serr.Problems)
}

func TestParseSynthesis_Traceability(t *testing.T) {
	text := `{
	  "summary": "Mary lived in Leeds.",
	  "verifiedFacts": [{"fact": "Born 1850", "sourceIds": ["S1"], "confidence": "high"}],
	  "conflicts": [{"description": "Birth year", "positions": [{"claim": "1850", "sourceIds": ["S1"]}, {"claim": "1851", "sourceIds": ["S9"]}]}],
	  "timeline": [{"date": "1881", "event": "Census", "sourceIds": ["S2", "S8"]}],
	  "researchSuggestions": []
	}`
	_, err := ParseSynthesis(text, normalized("S1", "S2"))

	var serr *SchemaError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, []string{
		`conflicts[0].positions[1].sourceIds[0]: "S9" is not a normalized source`,
		`timeline[0].sourceIds[1]: "S8" is not a normalized source`,
	}, serr.Problems)
}

func TestParseSynthesis_EveryCitationResolves(t *testing.T) {
	text := `{"summary": "s", "verifiedFacts": [{"fact": "f", "sourceIds": ["S1", "S2"], "confidence": "medium"}],
	  "conflicts": [], "timeline": [], "researchSuggestions": ["Check parish records"]}`
	in := normalized("S1", "S2")
	got, err := ParseSynthesis(text, in)
	require.NoError(t, err)

	known := normalizedIDs(in)
	for _, id := range got.ReferencedSourceIDs() {
		assert.True(t, known[id], "citation %s does not resolve", id)
	}
}

func TestParseSynthesis_EmptyCitationList(t *testing.T) {
	text := `{"summary": "s", "verifiedFacts": [{"fact": "f", "sourceIds": [], "confidence": "high"}],
	  "conflicts": [], "timeline": [], "researchSuggestions": []}`
	_, err := ParseSynthesis(text, normalized("S1"))
	var serr *SchemaError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, []string{"verifiedFacts[0].sourceIds: must have at least 1 entry"}, serr.Problems)
}

func TestGate_DispatchesByStage(t *testing.T) {
	up := Upstream{SourceIDs: []string{"S1"}, Normalized: normalized("S1"), StrictClusters: true}

	a, err := Gate(model.StageNormalize, normalizedResponse(normalizedEntry("S1", "high")), up)
	require.NoError(t, err)
	assert.Len(t, a.Normalized, 1)
	assert.Equal(t, a.Normalized, a.Value())

	a, err = Gate(model.StageCluster, `{"clusters": [], "standalone": ["S1"]}`, up)
	require.NoError(t, err)
	assert.NotNil(t, a.Clusters)

	_, err = Gate(model.Stage("bogus"), "{}", up)
	assert.Error(t, err)
}
