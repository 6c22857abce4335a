package prompt

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/ppiankov/ancestra/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild_Normalize(t *testing.T) {
	sources := []model.Source{
		{ID: "S1", Title: "Census <1881>", Tags: []string{}},
		{ID: "S2", Title: "Burial", Tags: []string{}},
	}
	p, err := Build(model.StageNormalize, sources)
	require.NoError(t, err)

	assert.Equal(t, model.StageNormalize, p.Stage)
	assert.Contains(t, p.System, "JSON ARRAY")
	assert.Contains(t, p.System, "Respond with JSON only")
	assert.Contains(t, p.System, `"confidence"`)
	assert.Contains(t, p.User, "Census <1881>", "payload must not be HTML-escaped")

	// The payload is the sources array, verbatim.
	start := strings.Index(p.User, "[")
	var decoded []model.Source
	require.NoError(t, json.Unmarshal([]byte(p.User[start:]), &decoded))
	assert.Equal(t, sources, decoded)
}

func TestBuild_ClusterListsIDs(t *testing.T) {
	normalized := []model.NormalizedSource{{SourceID: "S1"}, {SourceID: "S2"}}
	p, err := Build(model.StageCluster, normalized)
	require.NoError(t, err)
	assert.Contains(t, p.User, "S1, S2")
	assert.Contains(t, p.System, `"standalone"`)
	assert.Contains(t, p.System, "JSON OBJECT")
}

func TestBuild_Synthesize(t *testing.T) {
	in := model.SynthesisInput{
		Person:            model.Person{Name: "Mary Smith"},
		NormalizedSources: []model.NormalizedSource{{SourceID: "S1"}},
		Clusters:          model.ClusterResult{Clusters: []model.Cluster{}, Standalone: []string{"S1"}},
	}
	p, err := Build(model.StageSynthesize, in)
	require.NoError(t, err)
	assert.Contains(t, p.User, `"normalizedSources"`)
	assert.Contains(t, p.User, "may cite are: S1")
	assert.Contains(t, p.System, `"verifiedFacts"`)
}

func TestBuild_WrongInputType(t *testing.T) {
	_, err := Build(model.StageCluster, []model.Source{})
	assert.Error(t, err)
	_, err = Build(model.Stage("bogus"), nil)
	assert.Error(t, err)
}

func TestExport_SelfContained(t *testing.T) {
	p, err := Normalize([]model.Source{{ID: "S1", Title: "Census"}})
	require.NoError(t, err)

	blob := p.Export()
	assert.Contains(t, blob, p.System)
	assert.Contains(t, blob, p.User)
	assert.Contains(t, blob, "ancestra stage import normalize")
	assert.Contains(t, blob, "single JSON array")

	p, err = Cluster(nil)
	require.NoError(t, err)
	assert.Contains(t, p.Export(), "single JSON object")
}
