package rendered

import (
	"testing"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/require"
)

func TestResponseMetaCapturesDocumentResponse(t *testing.T) {
	t.Parallel()

	meta := newResponseMeta()
	meta.captureEvent(&network.EventResponseReceived{
		Type: network.ResourceTypeDocument,
		Response: &network.Response{
			Status: 200,
			Headers: network.Headers{
				"Content-Type": "text/html; charset=utf-8",
			},
		},
	})

	status, headers := meta.snapshot()
	require.Equal(t, 200, status)
	require.Equal(t, "text/html; charset=utf-8", headers.Get("Content-Type"))
}

func TestResponseMetaIgnoresSubresources(t *testing.T) {
	t.Parallel()

	meta := newResponseMeta()
	meta.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeImage,
		Response: &network.Response{Status: 404},
	})
	meta.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeXHR,
		Response: &network.Response{Status: 500},
	})

	status, _ := meta.snapshot()
	require.Zero(t, status, "only the main document response should be recorded")
}

func TestResponseMetaMultiValueHeaders(t *testing.T) {
	t.Parallel()

	meta := newResponseMeta()
	meta.captureEvent(&network.EventResponseReceived{
		Type: network.ResourceTypeDocument,
		Response: &network.Response{
			Status: 200,
			Headers: network.Headers{
				"Set-Cookie": []any{"a=1", "b=2"},
			},
		},
	})

	_, headers := meta.snapshot()
	require.Equal(t, []string{"a=1", "b=2"}, headers.Values("Set-Cookie"))
}
