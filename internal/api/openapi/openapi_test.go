package openapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocument(t *testing.T) {
	doc, err := Document()
	require.NoError(t, err)

	for _, path := range []string{
		"/notifications",
		"/notifications/{id}",
		"/notifications/{id}/read",
		"/notifications/ws",
		"/admin/events/disease-detected",
		"/admin/notifications/broadcast",
	} {
		assert.NotNil(t, doc.Paths.Find(path), path)
	}
	assert.NotEmpty(t, Raw())
}
