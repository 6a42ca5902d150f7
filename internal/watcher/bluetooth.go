package watcher

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Capability is a host permission required to read Bluetooth adapter state.
type Capability string

const (
	// CapabilityBluetoothConnect is required on hosts at or above
	// BluetoothPolicy.ConnectSince.
	CapabilityBluetoothConnect Capability = "bluetooth_connect"
	// CapabilityBluetooth is required on older hosts.
	CapabilityBluetooth Capability = "bluetooth"
)

// Version is a host OS version (major.minor).
type Version struct {
	Major, Minor int
}

// ParseVersion parses "major[.minor[...]]"; trailing components and
// non-numeric suffixes ("6.8.0-45-generic") are ignored.
func ParseVersion(s string) (Version, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ".", 3)
	if len(parts) == 0 || parts[0] == "" {
		return Version{}, fmt.Errorf("watcher: invalid version %q", s)
	}
	major, err := strconv.Atoi(leadingDigits(parts[0]))
	if err != nil {
		return Version{}, fmt.Errorf("watcher: invalid version %q: %w", s, err)
	}
	v := Version{Major: major}
	if len(parts) > 1 {
		if d := leadingDigits(parts[1]); d != "" {
			v.Minor, _ = strconv.Atoi(d)
		}
	}
	return v, nil
}

func leadingDigits(s string) string {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	return s[:i]
}

// AtLeast reports v >= o.
func (v Version) AtLeast(o Version) bool {
	if v.Major != o.Major {
		return v.Major > o.Major
	}
	return v.Minor >= o.Minor
}

func (v Version) String() string { return fmt.Sprintf("%d.%d", v.Major, v.Minor) }

// PermissionChecker is the host capability-check API.
type PermissionChecker interface {
	HostVersion() (Version, error)
	HasCapability(c Capability) (bool, error)
}

// BluetoothPolicy selects the capability to check.
type BluetoothPolicy struct {
	ConnectSince Version
}

// BluetoothCapability returns the capability a host at version v must hold.
func BluetoothCapability(v Version, p BluetoothPolicy) Capability {
	if v.AtLeast(p.ConnectSince) {
		return CapabilityBluetoothConnect
	}
	return CapabilityBluetooth
}

// NewBluetooth returns the Bluetooth watcher.
//
// Start first checks the version-appropriate capability; a missing
// capability delivers a PermissionDenied failure. A query refused with
// ErrNotAuthorized delivers a PermissionError failure. Notifications
// carrying BluetoothError are dropped and do not update the last known state.
func NewBluetooth(h BluetoothHost, perms PermissionChecker, policy BluetoothPolicy, opts ...Option) (*Watcher, error) {
	if perms == nil {
		return nil, errors.New("watcher: PermissionChecker required")
	}
	o := Options{
		Name:     "bluetooth",
		Action:   ActionBluetoothStateChanged,
		Notifier: h,
		Query:    h.BluetoothState,
		Extract:  extractInt(ExtraBluetoothState, BluetoothError),
		Unknown:  BluetoothError,
		Gate: func(context.Context) *Failure {
			return checkBluetoothPermission(perms, policy)
		},
		ClassifyQueryError: func(err error) *Failure {
			if !errors.Is(err, ErrNotAuthorized) {
				return nil
			}
			return &Failure{
				Kind:    PermissionError,
				Message: "failed to get initial Bluetooth state due to missing permission",
				Details: err.Error(),
			}
		},
		Drop: func(s AdapterState) bool { return s == BluetoothError },
	}
	for _, opt := range opts {
		opt(&o)
	}
	return New(o)
}

func checkBluetoothPermission(perms PermissionChecker, policy BluetoothPolicy) *Failure {
	v, err := perms.HostVersion()
	if err != nil {
		// Unknown version: require the stricter capability.
		v = policy.ConnectSince
	}
	capability := BluetoothCapability(v, policy)
	ok, err := perms.HasCapability(capability)
	if err == nil && ok {
		return nil
	}
	f := &Failure{
		Kind:    PermissionDenied,
		Message: fmt.Sprintf("Bluetooth permission (%s or %s) is required: missing %s", CapabilityBluetoothConnect, CapabilityBluetooth, capability),
	}
	if err != nil {
		f.Details = err.Error()
	}
	return f
}
