package metrics

import (
	"testing"
	"time"

	"salon-billing/internal/domain/subscriptions"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserverCountsByCode(t *testing.T) {
	reg := prometheus.NewRegistry()
	o, err := New(reg)
	require.NoError(t, err)

	o.Observe(subscriptions.OpCancel, "OK", 5*time.Millisecond)
	o.Observe(subscriptions.OpCancel, "OK", 5*time.Millisecond)
	o.Observe(subscriptions.OpCancel, subscriptions.CodeInvalidStatus, time.Millisecond)
	o.Observe(subscriptions.OpPause, "", time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(o.operations.WithLabelValues("cancel", "OK")))
	assert.Equal(t, 1.0, testutil.ToFloat64(o.operations.WithLabelValues("cancel", "INVALID_STATUS")))
	assert.Equal(t, 1.0, testutil.ToFloat64(o.operations.WithLabelValues("pause", "OK")))
	assert.Equal(t, 2, testutil.CollectAndCount(o.duration))
}

func TestNewRejectsDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)

	_, err = New(reg)
	assert.Error(t, err)
}
