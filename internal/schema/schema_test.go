package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegistry() *Registry {
	return NewRegistry(Resource{
		Table:   "patients",
		Fields:  []string{"name", "phone"},
		Renames: map[string]string{"fullName": "name", "phoneNumber": "phone"},
	})
}

func TestNormalizeRenamesAndFilters(t *testing.T) {
	out := testRegistry().Normalize("patients", map[string]interface{}{
		"id":          "rec-1",
		"tenant_id":   "tenant-1",
		"fullName":    "Alice",
		"phoneNumber": "555-0101",
		"localOnly":   "dropped",
	})

	assert.Equal(t, map[string]interface{}{
		"id":        "rec-1",
		"tenant_id": "tenant-1",
		"name":      "Alice",
		"phone":     "555-0101",
	}, out)
}

func TestNormalizeKeepsEnvelopeFields(t *testing.T) {
	out := testRegistry().Normalize("patients", map[string]interface{}{
		"id":         "rec-1",
		"created_at": "2026-03-01T12:00:00Z",
		"updated_at": "2026-03-01T12:00:00Z",
	})
	assert.Len(t, out, 3)
}

func TestNormalizeUndeclaredTablePassesThrough(t *testing.T) {
	in := map[string]interface{}{"anything": "goes", "id": "x"}
	out := testRegistry().Normalize("visits", in)
	assert.Equal(t, in, out)
}

func TestNormalizeDoesNotMutateInput(t *testing.T) {
	in := map[string]interface{}{"fullName": "Alice", "localOnly": "keep"}
	_ = testRegistry().Normalize("patients", in)
	assert.Equal(t, map[string]interface{}{"fullName": "Alice", "localOnly": "keep"}, in)
}

func TestParseDeclarations(t *testing.T) {
	resources, err := ParseDeclarations("patients:name,dob,phone_no=phone; visits:visit_date,notes")
	require.NoError(t, err)

	assert.Equal(t, []Resource{
		{
			Table:   "patients",
			Fields:  []string{"name", "dob", "phone"},
			Renames: map[string]string{"phone_no": "phone"},
		},
		{
			Table:  "visits",
			Fields: []string{"visit_date", "notes"},
		},
	}, resources)
}

func TestParseDeclarationsEmpty(t *testing.T) {
	resources, err := ParseDeclarations("")
	require.NoError(t, err)
	assert.Empty(t, resources)

	resources, err = ParseDeclarations(" ; ")
	require.NoError(t, err)
	assert.Empty(t, resources)
}

func TestParseDeclarationsRejectsMalformed(t *testing.T) {
	_, err := ParseDeclarations("patients")
	assert.Error(t, err, "missing field list")

	_, err = ParseDeclarations(":name")
	assert.Error(t, err, "missing table")

	_, err = ParseDeclarations("patients:=phone")
	assert.Error(t, err, "rename with empty local name")
}

func TestParsedDeclarationsNormalize(t *testing.T) {
	resources, err := ParseDeclarations("patients:name,phone_no=phone")
	require.NoError(t, err)

	out := NewRegistry(resources...).Normalize("patients", map[string]interface{}{
		"id":       "rec-1",
		"name":     "Alice",
		"phone_no": "555-0101",
		"internal": "dropped",
	})
	assert.Equal(t, map[string]interface{}{
		"id":    "rec-1",
		"name":  "Alice",
		"phone": "555-0101",
	}, out)
}

func TestDeclared(t *testing.T) {
	reg := testRegistry()
	assert.True(t, reg.Declared("patients"))
	assert.False(t, reg.Declared("visits"))
}
