package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"connectivity-listener/internal/fakehost"
	"connectivity-listener/internal/subscription"
	"connectivity-listener/internal/watcher"
)

func TestRecorderWiredThroughManager(t *testing.T) {
	r := New()
	h := fakehost.New()
	h.SetBluetoothState(watcher.BluetoothOn, nil)

	bt, err := watcher.NewBluetooth(h, h, watcher.BluetoothPolicy{}, watcher.WithObserver(r))
	require.NoError(t, err)
	m := subscription.New(map[subscription.StreamID]subscription.Watcher{
		subscription.StreamBluetooth: bt,
	}, subscription.WithHooks(r))

	// No capability yet.
	_, err = m.Attach(context.Background(), subscription.StreamBluetooth, &fakehost.Recorder{})
	require.Error(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(r.failures.WithLabelValues("bluetooth_state", "PERMISSION_DENIED")))

	h.Grant(watcher.CapabilityBluetoothConnect, true)
	_, err = m.Attach(context.Background(), subscription.StreamBluetooth, &fakehost.Recorder{})
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(r.active.WithLabelValues("bluetooth_state")))

	h.InjectBluetooth(watcher.BluetoothError)
	h.InjectBluetooth(watcher.BluetoothTurningOff)
	assert.Equal(t, 2.0, testutil.ToFloat64(r.delivered.WithLabelValues("bluetooth")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.dropped.WithLabelValues("bluetooth")))

	require.NoError(t, m.Detach(subscription.StreamBluetooth))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.active.WithLabelValues("bluetooth_state")))
}

func TestHandler(t *testing.T) {
	r := New()
	r.Delivered("wifi")

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `connectivity_events_delivered_total{watcher="wifi"} 1`)
}
