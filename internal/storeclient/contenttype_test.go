package storeclient

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestContentTypeForUsesInjectedResolver(t *testing.T) {
	c := &Client{contentType: func(key string) string { return "application/x-custom" }}
	require.Equal(t, "application/x-custom", c.contentTypeFor("anything"))
}

func TestContentTypeForFallsBackWithoutResolver(t *testing.T) {
	c := &Client{}
	require.Equal(t, "application/json", c.contentTypeFor("data.json"))
	require.Equal(t, "image/jpeg", c.contentTypeFor("photo.jpg"))
	require.Equal(t, "application/octet-stream", c.contentTypeFor("noext"))
}

func TestRecordOpIsNoOpWithoutCollector(t *testing.T) {
	c := &Client{}
	require.NotPanics(t, func() {
		c.recordOp("GetObject", time.Now(), 0, true)
	})
}
