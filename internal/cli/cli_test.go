package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	syncpkg "github.com/niyaskv/offsync/internal/sync"
)

func TestParseResources(t *testing.T) {
	resources := parseResources("patients, visits,accounts", "accounts")

	assert.Equal(t, []syncpkg.Resource{
		{Table: "patients"},
		{Table: "visits"},
		{Table: "accounts", StatusAuthority: true},
	}, resources)
}

func TestParseResourcesEmpty(t *testing.T) {
	assert.Nil(t, parseResources("", ""))
	assert.Nil(t, parseResources(" , ", ""))
}

func TestBuildSchemas(t *testing.T) {
	reg, err := buildSchemas("patients:name,phone_no=phone", "")
	require.NoError(t, err)
	require.NotNil(t, reg)
	assert.True(t, reg.Declared("patients"))

	out := reg.Normalize("patients", map[string]interface{}{
		"id":       "rec-1",
		"phone_no": "555-0101",
		"extra":    "dropped",
	})
	assert.Equal(t, map[string]interface{}{"id": "rec-1", "phone": "555-0101"}, out)
}

func TestBuildSchemasFlagOverridesConfig(t *testing.T) {
	reg, err := buildSchemas("patients:name", "visits:notes")
	require.NoError(t, err)
	assert.True(t, reg.Declared("patients"))
	assert.False(t, reg.Declared("visits"))
}

func TestBuildSchemasEmpty(t *testing.T) {
	reg, err := buildSchemas("", "")
	require.NoError(t, err)
	assert.Nil(t, reg)
}

func TestBuildSchemasMalformed(t *testing.T) {
	_, err := buildSchemas("patients", "")
	assert.Error(t, err)
}

func TestRootCommandWiring(t *testing.T) {
	root := NewRootCommand()

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Contains(t, names, "run")
	assert.Contains(t, names, "sync")
	assert.Contains(t, names, "status")
	assert.Contains(t, names, "retry")
}
