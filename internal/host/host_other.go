//go:build !linux

package host

import (
	"context"

	"connectivity-listener/internal/watcher"
)

// New returns a host whose adapter calls fail with ErrUnsupported.
// Capability checks still work through group membership.
func New(opts Options) Host {
	return unsupportedHost{perms: groupChecker{groups: opts.CapabilityGroups}}
}

type unsupportedHost struct {
	perms groupChecker
}

func (unsupportedHost) WifiState(context.Context) (watcher.AdapterState, error) {
	return watcher.WifiUnknown, ErrUnsupported
}

func (unsupportedHost) BluetoothState(context.Context) (watcher.AdapterState, error) {
	return watcher.BluetoothError, ErrUnsupported
}

func (unsupportedHost) HostVersion() (watcher.Version, error) {
	return watcher.Version{}, ErrUnsupported
}

func (u unsupportedHost) HasCapability(c watcher.Capability) (bool, error) {
	return u.perms.HasCapability(c)
}

func (unsupportedHost) Subscribe(string, func(watcher.Notification)) (watcher.Token, error) {
	return 0, ErrUnsupported
}

func (unsupportedHost) Unsubscribe(watcher.Token) error { return nil }

func (unsupportedHost) Close() error { return nil }
