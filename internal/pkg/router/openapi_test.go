package router

import (
	"net/http"
	"regexp"
	"strings"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const openAPIPath = "../../../public/docs/v1/openapi.yml"

var pathParam = regexp.MustCompile(`:(\w+)`)

func loadOpenAPI(t *testing.T) *openapi3.T {
	t.Helper()
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromFile(openAPIPath)
	require.NoError(t, err)
	require.NoError(t, doc.Validate(loader.Context))
	return doc
}

func TestOpenAPIDocumentsEveryRoute(t *testing.T) {
	doc := loadOpenAPI(t)
	env := newTestEnv(t)

	seen := 0
	for _, route := range env.app.GetRoutes(true) {
		if route.Method == http.MethodHead {
			continue
		}
		if !strings.HasPrefix(route.Path, "/api/v1/") && route.Path != "/healthz" && route.Path != "/readyz" {
			continue
		}

		path := pathParam.ReplaceAllString(strings.TrimSuffix(route.Path, "/"), "{$1}")
		item := doc.Paths.Value(path)
		if !assert.NotNil(t, item, "undocumented path %s", path) {
			continue
		}
		assert.NotNil(t, item.GetOperation(route.Method), "undocumented operation %s %s", route.Method, path)
		seen++
	}
	assert.Equal(t, 22, seen)
}

func TestOpenAPIErrorCodes(t *testing.T) {
	doc := loadOpenAPI(t)

	schema := doc.Components.Schemas["Error"].Value
	codes := schema.Properties["error"].Value.Enum
	assert.Contains(t, codes, "IDEMPOTENCY_CONFLICT")
	assert.Contains(t, codes, "REFUND_EXCEEDS_CAPTURED")
	assert.Contains(t, schema.Required, "correlation_id")
}
