package subscription_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"connectivity-listener/internal/fakehost"
	"connectivity-listener/internal/subscription"
	"connectivity-listener/internal/watcher"
)

type fixture struct {
	host *fakehost.Host
	mgr  *subscription.Manager
	hook *recordingHooks
}

type recordingHooks struct {
	attached, detached []subscription.StreamID
	failed             []string
}

func (r *recordingHooks) Attached(id subscription.StreamID) { r.attached = append(r.attached, id) }
func (r *recordingHooks) Detached(id subscription.StreamID) { r.detached = append(r.detached, id) }
func (r *recordingHooks) AttachFailed(_ subscription.StreamID, kind string) {
	r.failed = append(r.failed, kind)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	h := fakehost.New()
	h.SetVersion(watcher.Version{Major: 6, Minor: 8})
	h.Grant(watcher.CapabilityBluetoothConnect, true)
	h.SetWifiState(watcher.WifiEnabled, nil)
	h.SetBluetoothState(watcher.BluetoothOn, nil)

	wifi, err := watcher.NewWifi(h)
	require.NoError(t, err)
	bt, err := watcher.NewBluetooth(h, h, watcher.BluetoothPolicy{ConnectSince: watcher.Version{Major: 5, Minor: 10}})
	require.NoError(t, err)

	hooks := &recordingHooks{}
	m := subscription.New(map[subscription.StreamID]subscription.Watcher{
		subscription.StreamWifi:      wifi,
		subscription.StreamBluetooth: bt,
	}, subscription.WithHooks(hooks))
	return &fixture{host: h, mgr: m, hook: hooks}
}

func TestAttachDeliversSnapshot(t *testing.T) {
	f := newFixture(t)
	rec := &fakehost.Recorder{}

	ok, err := f.mgr.Attach(context.Background(), subscription.StreamWifi, rec)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []watcher.StateChangeEvent{{Current: watcher.WifiEnabled}}, rec.Events())
	assert.True(t, f.mgr.Active(subscription.StreamWifi))
	assert.False(t, f.mgr.Active(subscription.StreamBluetooth))
}

func TestAttachIsIdempotent(t *testing.T) {
	f := newFixture(t)
	first, second := &fakehost.Recorder{}, &fakehost.Recorder{}

	ok, err := f.mgr.Attach(context.Background(), subscription.StreamWifi, first)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = f.mgr.Attach(context.Background(), subscription.StreamWifi, second)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, 1, f.host.SubscribeCalls())
	assert.Empty(t, second.Events())
}

func TestAttachUnknownStream(t *testing.T) {
	f := newFixture(t)
	_, err := f.mgr.Attach(context.Background(), "nfc_state", &fakehost.Recorder{})
	assert.ErrorIs(t, err, subscription.ErrUnknownStream)
}

func TestDetachThenAttachRedeliversSnapshot(t *testing.T) {
	f := newFixture(t)
	rec := &fakehost.Recorder{}

	_, err := f.mgr.Attach(context.Background(), subscription.StreamBluetooth, rec)
	require.NoError(t, err)
	f.host.InjectBluetooth(watcher.BluetoothTurningOff)
	require.NoError(t, f.mgr.Detach(subscription.StreamBluetooth))

	f.host.InjectBluetooth(watcher.BluetoothOff)
	assert.Len(t, rec.Events(), 2, "nothing after detach")

	f.host.SetBluetoothState(watcher.BluetoothOff, nil)
	rec2 := &fakehost.Recorder{}
	ok, err := f.mgr.Attach(context.Background(), subscription.StreamBluetooth, rec2)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []watcher.StateChangeEvent{{Current: watcher.BluetoothOff}}, rec2.Events())
}

func TestDetachIsIdempotent(t *testing.T) {
	f := newFixture(t)

	assert.NoError(t, f.mgr.Detach(subscription.StreamWifi), "detach without attach")
	assert.NoError(t, f.mgr.Detach("nfc_state"), "detach unknown stream")

	rec := &fakehost.Recorder{}
	_, err := f.mgr.Attach(context.Background(), subscription.StreamWifi, rec)
	require.NoError(t, err)
	assert.NoError(t, f.mgr.Detach(subscription.StreamWifi))
	assert.NoError(t, f.mgr.Detach(subscription.StreamWifi))

	assert.Len(t, rec.Events(), 1)
	assert.Empty(t, rec.Failures())
	assert.Equal(t, []subscription.StreamID{subscription.StreamWifi}, f.hook.detached)
}

func TestDetachSinkIgnoresOtherSubscribers(t *testing.T) {
	f := newFixture(t)
	owner, other := &fakehost.Recorder{}, &fakehost.Recorder{}
	_, err := f.mgr.Attach(context.Background(), subscription.StreamWifi, owner)
	require.NoError(t, err)

	require.NoError(t, f.mgr.DetachSink(subscription.StreamWifi, other))
	assert.True(t, f.mgr.Active(subscription.StreamWifi))

	require.NoError(t, f.mgr.DetachSink(subscription.StreamWifi, owner))
	assert.False(t, f.mgr.Active(subscription.StreamWifi))
}

func TestPermissionDeniedLeavesStreamAttachable(t *testing.T) {
	f := newFixture(t)
	f.host.Grant(watcher.CapabilityBluetoothConnect, false)
	rec := &fakehost.Recorder{}

	ok, err := f.mgr.Attach(context.Background(), subscription.StreamBluetooth, rec)
	assert.False(t, ok)
	var fail *watcher.Failure
	require.ErrorAs(t, err, &fail)
	assert.Equal(t, watcher.PermissionDenied, fail.Kind)
	assert.False(t, f.mgr.Active(subscription.StreamBluetooth))
	assert.Equal(t, []string{string(watcher.PermissionDenied)}, f.hook.failed)

	f.host.InjectBluetooth(watcher.BluetoothOff)
	assert.Empty(t, rec.Events())
	assert.Len(t, rec.Failures(), 1)

	f.host.Grant(watcher.CapabilityBluetoothConnect, true)
	ok, err = f.mgr.Attach(context.Background(), subscription.StreamBluetooth, rec)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, rec.Events(), 1)
}

func TestTeardown(t *testing.T) {
	f := newFixture(t)
	assert.NoError(t, f.mgr.Teardown(), "teardown with nothing attached")

	wifi, bt := &fakehost.Recorder{}, &fakehost.Recorder{}
	_, err := f.mgr.Attach(context.Background(), subscription.StreamWifi, wifi)
	require.NoError(t, err)
	_, err = f.mgr.Attach(context.Background(), subscription.StreamBluetooth, bt)
	require.NoError(t, err)

	require.NoError(t, f.mgr.Teardown())
	assert.False(t, f.mgr.Active(subscription.StreamWifi))
	assert.False(t, f.mgr.Active(subscription.StreamBluetooth))
	assert.Zero(t, f.host.Registrations(watcher.ActionWifiStateChanged))
	assert.Zero(t, f.host.Registrations(watcher.ActionBluetoothStateChanged))

	f.host.InjectWifi(watcher.WifiDisabled)
	f.host.InjectBluetooth(watcher.BluetoothOff)
	assert.Len(t, wifi.Events(), 1)
	assert.Len(t, bt.Events(), 1)

	assert.NoError(t, f.mgr.Teardown())
}

func TestTeardownAggregatesErrors(t *testing.T) {
	f := newFixture(t)
	for _, id := range f.mgr.Streams() {
		_, err := f.mgr.Attach(context.Background(), id, &fakehost.Recorder{})
		require.NoError(t, err)
	}
	f.host.FailUnsubscribe(errors.New("bus closed"))

	err := f.mgr.Teardown()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "detach wifi_state")
	assert.Contains(t, err.Error(), "detach bluetooth_state")
	assert.False(t, f.mgr.Active(subscription.StreamWifi))
}

func TestInvokeNotImplemented(t *testing.T) {
	f := newFixture(t)
	res, err := f.mgr.Invoke(context.Background(), "checkPermission", nil)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, subscription.ErrNotImplemented)
	assert.False(t, f.mgr.Active(subscription.StreamWifi))
	assert.Zero(t, f.host.SubscribeCalls())
}

func TestStreams(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, []subscription.StreamID{subscription.StreamBluetooth, subscription.StreamWifi}, f.mgr.Streams())
}
