// Package validator checks sync requests and reports every missing field by
// its wire name, in declaration order.
package validator

import (
	"net/url"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/content-search-sync/internal/syncer"
)

// Query parameters of the webhook endpoint.
const (
	ParamSlug  = "slug"
	ParamAppID = "appId"
	ParamIndex = "index"
)

// ValidationError lists the fields that are missing or blank.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "missing or empty: " + strings.Join(e.Fields, ", ")
}

// ValidateInitRequest checks that every field of req is set.
func ValidateInitRequest(req *syncer.InitRequest) error {
	return check([]field{
		{"projectId", req.ProjectID},
		{"language", req.Language},
		{"slugCodename", req.SlugCodename},
		{"algoliaAppId", req.AlgoliaAppID},
		{"algoliaIndexName", req.AlgoliaIndexName},
	})
}

// RequireParams checks that every named query parameter is present and
// non-blank.
func RequireParams(q url.Values, names ...string) error {
	fields := make([]field, len(names))
	for i, name := range names {
		fields[i] = field{name, q.Get(name)}
	}
	return check(fields)
}

type field struct {
	name  string
	value string
}

func check(fields []field) error {
	var missing []string
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return &ValidationError{Fields: missing}
	}
	return nil
}
