package parse_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiranshivaraju/imagetagger/internal/parse"
	"github.com/kiranshivaraju/imagetagger/pkg/models"
)

func TestRepairValidJSON(t *testing.T) {
	raw := `{"title":"Sunset over the bay","tags":["sunset","bay"]}`
	got, ok := parse.Repair(raw)
	require.True(t, ok)
	assert.JSONEq(t, raw, string(got))
}

func TestRepairCodeFence(t *testing.T) {
	raw := "```json\n{\"title\":\"Mountain lake\",\"tags\":[\"lake\"]}\n```"
	got, ok := parse.Repair(raw)
	require.True(t, ok)
	assert.JSONEq(t, `{"title":"Mountain lake","tags":["lake"]}`, string(got))
}

func TestRepairBareCodeFence(t *testing.T) {
	raw := "```\n[1, 2, 3]\n```"
	got, ok := parse.Repair(raw)
	require.True(t, ok)
	assert.JSONEq(t, `[1,2,3]`, string(got))
}

func TestRepairSurroundingProse(t *testing.T) {
	raw := `Here is the requested metadata: {"title":"Old barn","tags":["barn","rustic"]} — let me know if you need anything else.`
	got, ok := parse.Repair(raw)
	require.True(t, ok)
	assert.JSONEq(t, `{"title":"Old barn","tags":["barn","rustic"]}`, string(got))
}

func TestRepairTrailingComma(t *testing.T) {
	raw := `{"title":"Pier","tags":["pier","ocean",]}`
	got, ok := parse.Repair(raw)
	require.True(t, ok)
	assert.JSONEq(t, `{"title":"Pier","tags":["pier","ocean"]}`, string(got))
}

func TestRepairTrailingGarbage(t *testing.T) {
	raw := `[{"title":"A","tags":["a"]}] trailing text without brackets`
	got, ok := parse.Repair(raw)
	require.True(t, ok)
	assert.JSONEq(t, `[{"title":"A","tags":["a"]}]`, string(got))
}

func TestRepairUnrecoverable(t *testing.T) {
	cases := map[string]string{
		"empty":            "",
		"whitespace":       "   \n ",
		"no json":          "I could not process these images.",
		"mismatched close": `{"title":"img","tags":["a","b"}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, ok := parse.Repair(raw)
			assert.False(t, ok)
		})
	}
}

func TestDecode(t *testing.T) {
	v, ok := parse.Decode(`{"title":"x","tags":[]}`)
	require.True(t, ok)
	m, isMap := v.(map[string]any)
	require.True(t, isMap)
	assert.Equal(t, "x", m["title"])

	_, ok = parse.Decode("nonsense reply")
	assert.False(t, ok)
}

func TestTagSetsSingleObject(t *testing.T) {
	sets, ok := parse.TagSets(`{"title":"Forest path","tags":["forest","path","green"]}`)
	require.True(t, ok)
	require.Len(t, sets, 1)
	assert.Equal(t, "Forest path", sets[0].Title)
	assert.Equal(t, []string{"forest", "path", "green"}, sets[0].Tags)
}

func TestTagSetsArray(t *testing.T) {
	raw := `[
		{"title":"First","tags":["one"]},
		{"title":"Second","tags":["two"]}
	]`
	sets, ok := parse.TagSets(raw)
	require.True(t, ok)
	require.Len(t, sets, 2)
	assert.Equal(t, "First", sets[0].Title)
	assert.Equal(t, "Second", sets[1].Title)
}

func TestTagSetsMalformedEntryStaysZero(t *testing.T) {
	raw := `[{"title":"Good","tags":["ok"]}, "not an object", {"title":"Also good","tags":["ok"]}]`
	sets, ok := parse.TagSets(raw)
	require.True(t, ok)
	require.Len(t, sets, 3)
	assert.True(t, parse.Valid(sets[0]))
	assert.False(t, parse.Valid(sets[1]))
	assert.True(t, parse.Valid(sets[2]))
}

func TestTagSetsUnrecoverable(t *testing.T) {
	sets, ok := parse.TagSets("no structured data here")
	assert.False(t, ok)
	assert.Nil(t, sets)
}

func TestValid(t *testing.T) {
	assert.True(t, parse.Valid(models.TagSet{Title: "t", Tags: []string{"a"}}))
	assert.False(t, parse.Valid(models.TagSet{Title: "", Tags: []string{"a"}}))
	assert.False(t, parse.Valid(models.TagSet{Title: "t"}))
}
