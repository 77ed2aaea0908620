package mapper_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/musicgrab/engine/internal/constants"
	"github.com/musicgrab/engine/internal/mapper"
	"github.com/musicgrab/engine/internal/videoclient"
)

func TestTitleConfidence(t *testing.T) {
	t.Parallel()

	t.Run("identical titles score 1", func(t *testing.T) {
		t.Parallel()

		assert.InDelta(t, 1.0, mapper.TitleConfidence("Midnight City", "Midnight City"), 0.0001)
	})

	t.Run("cosmetic differences still score 1", func(t *testing.T) {
		t.Parallel()

		assert.InDelta(t, 1.0, mapper.TitleConfidence("Midnight City", "Midnight City (Official Video)"), 0.0001)
	})

	t.Run("partial overlap scores between 0 and 1", func(t *testing.T) {
		t.Parallel()

		score := mapper.TitleConfidence("Midnight City", "Midnight City Live Session")
		assert.Greater(t, score, 0.0)
		assert.Less(t, score, 1.0)
	})

	t.Run("disjoint titles score 0", func(t *testing.T) {
		t.Parallel()

		assert.InDelta(t, 0.0, mapper.TitleConfidence("Midnight City", "Totally Different Song"), 0.0001)
	})

	t.Run("empty candidate scores 0", func(t *testing.T) {
		t.Parallel()

		assert.InDelta(t, 0.0, mapper.TitleConfidence("Midnight City", ""), 0.0001)
	})
}

func newTestServer(t *testing.T, items string) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items": [` + items + `]}`))
	}))
	t.Cleanup(server.Close)

	return server
}

func TestMap_ReturnsFirstSurvivor(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, `
		{"videoId": "short1", "title": "Midnight City SHORTS", "url": "https://v.example/shorts/short1",
		 "durationSeconds": 30, "isShort": true},
		{"videoId": "rejected", "title": "Midnight City trailer", "url": "https://v.example/rejected",
		 "durationSeconds": 200, "isShort": false},
		{"videoId": "good", "title": "Midnight City", "url": "https://v.example/good",
		 "durationSeconds": 244, "isShort": false}
	`)

	client := videoclient.New(server.URL, server.Client(), 1, time.Millisecond)
	m := mapper.New(client, nil)

	result, err := m.Map(context.Background(), "Midnight City", "M83", nil)
	require.NoError(t, err)
	assert.Equal(t, "good", result.SourceVideoID)
	assert.InDelta(t, 1.0, result.Confidence, 0.0001)
}

func TestMap_DurationOverCeilingIsRejected(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, `
		{"videoId": "toolong", "title": "Midnight City", "url": "https://v.example/toolong",
		 "durationSeconds": `+itoa(constants.MapperMaxDurationSeconds+1)+`, "isShort": false}
	`)

	client := videoclient.New(server.URL, server.Client(), 1, time.Millisecond)
	m := mapper.New(client, nil)

	result, err := m.Map(context.Background(), "Midnight City", "M83", nil)
	require.NoError(t, err)
	assert.Empty(t, result.SourceVideoID)
	assert.Equal(t, 0.0, result.Confidence)
}

func TestMap_ExtraRejectPatternFromConfig(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, `
		{"videoId": "custom-reject", "title": "Midnight City livestream", "url": "https://v.example/x",
		 "durationSeconds": 200, "isShort": false}
	`)

	client := videoclient.New(server.URL, server.Client(), 1, time.Millisecond)
	m := mapper.New(client, []string{"livestream"})

	result, err := m.Map(context.Background(), "Midnight City", "M83", nil)
	require.NoError(t, err)
	assert.Empty(t, result.SourceVideoID)
}

func TestMap_NoCandidatesReturnsZeroResult(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, ``)

	client := videoclient.New(server.URL, server.Client(), 1, time.Millisecond)
	m := mapper.New(client, nil)

	result, err := m.Map(context.Background(), "Midnight City", "M83", nil)
	require.NoError(t, err)
	assert.Empty(t, result.SourceVideoID)
	assert.Equal(t, 0.0, result.Confidence)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}

	negative := n < 0
	if negative {
		n = -n
	}

	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}

	if negative {
		return "-" + string(digits)
	}

	return string(digits)
}
