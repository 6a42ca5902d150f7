package host

import (
	"errors"
	"fmt"

	dbus "github.com/godbus/dbus/v5"

	"connectivity-listener/internal/watcher"
)

const (
	nmService     = "org.freedesktop.NetworkManager"
	nmIface       = "org.freedesktop.NetworkManager"
	nmPath        = dbus.ObjectPath("/org/freedesktop/NetworkManager")
	nmWireless    = "WirelessEnabled"
	bluezService  = "org.bluez"
	adapterIface  = "org.bluez.Adapter1"
	objManagerIfc = "org.freedesktop.DBus.ObjectManager"
	propsIface    = "org.freedesktop.DBus.Properties"
	propsChanged  = propsIface + ".PropertiesChanged"

	bluezPowerState = "PowerState"
	bluezPowered    = "Powered"
)

// D-Bus error names meaning "the caller may not do this".
var authErrorNames = map[string]bool{
	"org.freedesktop.DBus.Error.AccessDenied": true,
	"org.freedesktop.DBus.Error.AuthFailed":   true,
	"org.bluez.Error.NotAuthorized":           true,
	"org.bluez.Error.NotPermitted":            true,
}

func dbusErrorName(err error) string {
	var e dbus.Error
	if errors.As(err, &e) {
		return e.Name
	}
	var pe *dbus.Error
	if errors.As(err, &pe) && pe != nil {
		return pe.Name
	}
	return ""
}

func isAuthError(err error) bool { return authErrorNames[dbusErrorName(err)] }

// classify tags authorization errors with watcher.ErrNotAuthorized.
func classify(err error) error {
	if isAuthError(err) {
		return fmt.Errorf("%w: %w", watcher.ErrNotAuthorized, err)
	}
	return err
}

func wifiFromEnabled(v any) (watcher.AdapterState, bool) {
	b, ok := v.(bool)
	if !ok {
		return watcher.WifiUnknown, false
	}
	if b {
		return watcher.WifiEnabled, true
	}
	return watcher.WifiDisabled, true
}

// bluetoothFromPowerState maps Adapter1.PowerState. Unknown strings map to
// the error sentinel.
func bluetoothFromPowerState(v any) watcher.AdapterState {
	s, _ := v.(string)
	switch s {
	case "on":
		return watcher.BluetoothOn
	case "off", "off-blocked":
		return watcher.BluetoothOff
	case "off-enabling":
		return watcher.BluetoothTurningOn
	case "on-disabling":
		return watcher.BluetoothTurningOff
	default:
		return watcher.BluetoothError
	}
}

func bluetoothFromPowered(v any) watcher.AdapterState {
	b, ok := v.(bool)
	switch {
	case !ok:
		return watcher.BluetoothError
	case b:
		return watcher.BluetoothOn
	default:
		return watcher.BluetoothOff
	}
}

// translateSignal turns a PropertiesChanged signal into a notification.
// Signals that do not touch the watched properties yield ok=false. A signal
// that does touch them but carries an unreadable value yields a
// notification without extras, so the watcher substitutes its sentinel.
// adapter restricts Bluetooth signals to one adapter path; empty accepts all.
func translateSignal(sig *dbus.Signal, adapter dbus.ObjectPath) (watcher.Notification, bool) {
	if sig == nil || sig.Name != propsChanged || len(sig.Body) < 2 {
		return watcher.Notification{}, false
	}
	iface, ok := sig.Body[0].(string)
	if !ok {
		return watcher.Notification{}, false
	}
	changed, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return watcher.Notification{}, false
	}

	switch {
	case iface == nmIface && sig.Path == nmPath:
		v, ok := changed[nmWireless]
		if !ok {
			return watcher.Notification{}, false
		}
		n := watcher.Notification{Action: watcher.ActionWifiStateChanged}
		if st, ok := wifiFromEnabled(v.Value()); ok {
			n.Extras = map[string]any{watcher.ExtraWifiState: st}
		}
		return n, true

	case iface == adapterIface && (adapter == "" || sig.Path == adapter):
		var st watcher.AdapterState
		if v, ok := changed[bluezPowerState]; ok {
			st = bluetoothFromPowerState(v.Value())
		} else if v, ok := changed[bluezPowered]; ok {
			st = bluetoothFromPowered(v.Value())
		} else {
			return watcher.Notification{}, false
		}
		n := watcher.Notification{Action: watcher.ActionBluetoothStateChanged}
		if st != watcher.BluetoothError {
			n.Extras = map[string]any{watcher.ExtraBluetoothState: st}
		}
		return n, true
	}
	return watcher.Notification{}, false
}

// matchOptions returns the match rule for action.
func matchOptions(action string, adapter dbus.ObjectPath) ([]dbus.MatchOption, bool) {
	switch action {
	case watcher.ActionWifiStateChanged:
		return []dbus.MatchOption{
			dbus.WithMatchObjectPath(nmPath),
			dbus.WithMatchInterface(propsIface),
			dbus.WithMatchMember("PropertiesChanged"),
			dbus.WithMatchArg(0, nmIface),
		}, true
	case watcher.ActionBluetoothStateChanged:
		opts := []dbus.MatchOption{
			dbus.WithMatchInterface(propsIface),
			dbus.WithMatchMember("PropertiesChanged"),
			dbus.WithMatchArg(0, adapterIface),
		}
		if adapter != "" {
			opts = append(opts, dbus.WithMatchObjectPath(adapter))
		}
		return opts, true
	}
	return nil, false
}
