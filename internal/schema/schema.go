// Package schema declares the per-resource serialization schema used to
// shape local payloads into remote documents. Each resource lists its remote
// columns explicitly and maps renamed local fields, so the wire shape is
// fixed at construction time rather than derived by reflection.
package schema

import (
	"strings"

	"github.com/niyaskv/offsync/internal/errors"
)

// envelope fields every synced document carries regardless of resource.
var envelopeFields = map[string]struct{}{
	"id":         {},
	"tenant_id":  {},
	"created_at": {},
	"updated_at": {},
}

// Resource describes the wire schema of one syncable table.
type Resource struct {
	// Table is the remote table name.
	Table string
	// Fields lists the remote column names this resource syncs. Keys not in
	// this list (and not envelope fields) are dropped at normalization.
	Fields []string
	// Renames maps local field names to remote column names.
	Renames map[string]string
}

// ParseDeclarations parses the compact declaration syntax used by config:
// semicolon-separated table entries of the form "table:field1,field2",
// where a field written as "local=remote" maps the local name onto the
// remote column. Tables not declared here pass through Normalize unchanged.
//
//	patients:name,dob,phone_no=phone;visits:visit_date,notes
func ParseDeclarations(s string) ([]Resource, error) {
	var resources []Resource
	for _, entry := range strings.Split(s, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		table, fieldList, ok := strings.Cut(entry, ":")
		table = strings.TrimSpace(table)
		if !ok || table == "" {
			return nil, errors.Newf(errors.ErrInvalid, "schema entry %q: want table:field,field", entry)
		}
		res := Resource{Table: table}
		for _, f := range strings.Split(fieldList, ",") {
			f = strings.TrimSpace(f)
			if f == "" {
				continue
			}
			if local, remote, renamed := strings.Cut(f, "="); renamed {
				local = strings.TrimSpace(local)
				remote = strings.TrimSpace(remote)
				if local == "" || remote == "" {
					return nil, errors.Newf(errors.ErrInvalid, "schema entry %q: bad rename %q", entry, f)
				}
				if res.Renames == nil {
					res.Renames = make(map[string]string)
				}
				res.Renames[local] = remote
				res.Fields = append(res.Fields, remote)
				continue
			}
			res.Fields = append(res.Fields, f)
		}
		resources = append(resources, res)
	}
	return resources, nil
}

// Registry holds the declared schemas, keyed by table.
type Registry struct {
	resources map[string]resourceSchema
}

type resourceSchema struct {
	fields  map[string]struct{}
	renames map[string]string
}

// NewRegistry builds a Registry from resource declarations.
func NewRegistry(resources ...Resource) *Registry {
	r := &Registry{resources: make(map[string]resourceSchema, len(resources))}
	for _, res := range resources {
		fields := make(map[string]struct{}, len(res.Fields))
		for _, f := range res.Fields {
			fields[f] = struct{}{}
		}
		r.resources[res.Table] = resourceSchema{fields: fields, renames: res.Renames}
	}
	return r
}

// Normalize applies the declared schema of table to payload: local names are
// renamed to remote columns, then undeclared keys are dropped. Envelope
// fields always survive. Tables without a declared schema pass through as a
// copy. The input map is never mutated.
func (r *Registry) Normalize(table string, payload map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(payload))

	res, declared := r.resources[table]
	for key, value := range payload {
		name := key
		if declared {
			if renamed, ok := res.renames[key]; ok {
				name = renamed
			}
		}
		if _, envelope := envelopeFields[name]; !envelope && declared {
			if _, keep := res.fields[name]; !keep {
				continue
			}
		}
		out[name] = value
	}
	return out
}

// Declared reports whether table has a declared schema.
func (r *Registry) Declared(table string) bool {
	_, ok := r.resources[table]
	return ok
}
