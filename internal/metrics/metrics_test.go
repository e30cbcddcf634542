package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(battles.WithLabelValues("win", "bot"))
	RecordBattle("win", "bot")
	RecordBattle("win", "bot")
	assert.Equal(t, before+2, testutil.ToFloat64(battles.WithLabelValues("win", "bot")))

	saved := testutil.ToFloat64(snapshotsSaved)
	evicted := testutil.ToFloat64(snapshotsEvicted)
	RecordSnapshotSaved(0)
	RecordSnapshotSaved(3)
	assert.Equal(t, saved+2, testutil.ToFloat64(snapshotsSaved))
	assert.Equal(t, evicted+3, testutil.ToFloat64(snapshotsEvicted))

	swept := testutil.ToFloat64(snapshotsSwept)
	RecordSnapshotsSwept(0)
	RecordSnapshotsSwept(4)
	assert.Equal(t, swept+4, testutil.ToFloat64(snapshotsSwept))
}

func TestRegistryGathers(t *testing.T) {
	RecordRunCreated("humans")
	RecordHTTPRequest("/api/v1/runs", "POST", "201", 0.01)

	families, err := Registry().Gather()
	require.NoError(t, err)

	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["runmatch_runs_created_total"])
	assert.True(t, names["runmatch_http_requests_total"])
	assert.True(t, names["runmatch_http_request_duration_seconds"])
}
