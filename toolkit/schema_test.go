package toolkit

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

type searchArgs struct {
	Query      string   `json:"query" description:"Search query text"`
	MaxResults int      `json:"max_results,omitempty" description:"Result cap"`
	Tags       []string `json:"tags,omitempty"`
	Deep       *bool    `json:"deep"`
	Internal   string   `json:"-"`
	Region     string   `json:"region" enum:"us,eu,apac"`
}

func TestGenerateSchemaStruct(t *testing.T) {
	raw, err := GenerateSchema(reflect.TypeOf(searchArgs{}))
	require.NoError(t, err)

	var doc struct {
		Type       string                    `json:"type"`
		Properties map[string]map[string]any `json:"properties"`
		Required   []string                  `json:"required"`
	}
	require.NoError(t, json.Unmarshal(raw, &doc))

	assert.Equal(t, "object", doc.Type)
	assert.Equal(t, []string{"query", "region"}, doc.Required)

	assert.Equal(t, "string", doc.Properties["query"]["type"])
	assert.Equal(t, "Search query text", doc.Properties["query"]["description"])
	assert.Equal(t, "integer", doc.Properties["max_results"]["type"])
	assert.Equal(t, "array", doc.Properties["tags"]["type"])
	assert.Equal(t, "boolean", doc.Properties["deep"]["type"])
	assert.Equal(t, []any{"us", "eu", "apac"}, doc.Properties["region"]["enum"])
	assert.NotContains(t, doc.Properties, "Internal")
	assert.NotContains(t, doc.Properties, "-")
}

func TestGenerateSchemaNested(t *testing.T) {
	type inner struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	}
	type outer struct {
		Name      string          `json:"name"`
		Where     inner           `json:"where"`
		Labels    map[string]int  `json:"labels,omitempty"`
		Timestamp time.Time       `json:"timestamp,omitempty"`
		Extra     json.RawMessage `json:"extra,omitempty"`
		Points    []inner         `json:"points,omitempty"`
	}

	raw, err := GenerateSchema(reflect.TypeOf(&outer{}))
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	props := doc["properties"].(map[string]any)

	where := props["where"].(map[string]any)
	assert.Equal(t, "object", where["type"])
	assert.Contains(t, where["properties"], "lat")

	labels := props["labels"].(map[string]any)
	assert.Equal(t, "object", labels["type"])
	assert.Equal(t, "integer", labels["additionalProperties"].(map[string]any)["type"])

	ts := props["timestamp"].(map[string]any)
	assert.Equal(t, "date-time", ts["format"])

	points := props["points"].(map[string]any)
	assert.Equal(t, "array", points["type"])
}

func TestGenerateSchemaEmbedded(t *testing.T) {
	type base struct {
		ID string `json:"id"`
	}
	type derived struct {
		base
		Name string `json:"name"`
	}

	raw, err := GenerateSchema(reflect.TypeOf(derived{}))
	require.NoError(t, err)

	var doc struct {
		Properties map[string]any `json:"properties"`
		Required   []string       `json:"required"`
	}
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Contains(t, doc.Properties, "id")
	assert.Contains(t, doc.Properties, "name")
	assert.ElementsMatch(t, []string{"id", "name"}, doc.Required)
}

func TestGenerateSchemaRejectsNonStruct(t *testing.T) {
	_, err := GenerateSchema(reflect.TypeOf("hello"))
	require.Error(t, err)
}

func TestGenerateSchemaRejectsRecursion(t *testing.T) {
	type node struct {
		Next *node `json:"next,omitempty"`
	}
	_, err := GenerateSchema(reflect.TypeOf(node{}))
	require.ErrorContains(t, err, "recursive")
}

func TestMergeToolSchemas(t *testing.T) {
	merged, err := MergeToolSchemas(map[string]json.RawMessage{
		"search": json.RawMessage(`{"type":"object","properties":{"q":{"type":"string"}}}`),
		"noop":   nil,
	})
	require.NoError(t, err)

	var doc struct {
		Type       string                     `json:"type"`
		Properties map[string]json.RawMessage `json:"properties"`
		Required   []string                   `json:"required"`
	}
	require.NoError(t, json.Unmarshal(merged, &doc))
	assert.Equal(t, "object", doc.Type)
	assert.Equal(t, []string{"noop", "search"}, doc.Required)
	assert.JSONEq(t, `{"type":"object"}`, string(doc.Properties["noop"]))
}

func TestMergeToolSchemasRejectsBadJSON(t *testing.T) {
	_, err := MergeToolSchemas(map[string]json.RawMessage{
		"bad": json.RawMessage(`{"type":`),
	})
	require.Error(t, err)
}

func TestMergeToolSchemasProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		names := rapid.SliceOfNDistinct(
			rapid.StringMatching(`[a-z][a-z0-9_]{0,15}`), 1, 8, rapid.ID[string],
		).Draw(t, "names")

		named := make(map[string]json.RawMessage, len(names))
		for _, name := range names {
			named[name] = json.RawMessage(`{"type":"object"}`)
		}

		merged, err := MergeToolSchemas(named)
		require.NoError(t, err)

		var doc struct {
			Properties map[string]json.RawMessage `json:"properties"`
			Required   []string                   `json:"required"`
		}
		require.NoError(t, json.Unmarshal(merged, &doc))

		// Every tool appears exactly once, and required is sorted.
		require.Len(t, doc.Properties, len(names))
		require.Len(t, doc.Required, len(names))
		for i := 1; i < len(doc.Required); i++ {
			require.Less(t, doc.Required[i-1], doc.Required[i])
		}
		for _, name := range names {
			require.Contains(t, doc.Properties, name)
		}
	})
}
