package watcher

import "math"

// Wi-Fi adapter state codes.
const (
	WifiDisabling AdapterState = 0
	WifiDisabled  AdapterState = 1
	WifiEnabling  AdapterState = 2
	WifiEnabled   AdapterState = 3
	WifiUnknown   AdapterState = 4
)

// Bluetooth adapter state codes. BluetoothError marks a notification whose
// payload could not be read; it is never a real adapter state.
const (
	BluetoothOff        AdapterState = 10
	BluetoothTurningOn  AdapterState = 11
	BluetoothOn         AdapterState = 12
	BluetoothTurningOff AdapterState = 13
	BluetoothError      AdapterState = math.MinInt32
)

// Notification actions and the extras key carrying the new state.
const (
	ActionWifiStateChanged      = "wifi.STATE_CHANGED"
	ActionBluetoothStateChanged = "bluetooth.STATE_CHANGED"

	ExtraWifiState      = "wifi_state"
	ExtraBluetoothState = "bluetooth_state"
)

// extractInt returns a state extractor reading key from the notification
// extras, falling back to def when the field is missing or not an integer.
func extractInt(key string, def AdapterState) func(Notification) AdapterState {
	return func(n Notification) AdapterState {
		v, ok := n.Extras[key]
		if !ok {
			return def
		}
		switch x := v.(type) {
		case AdapterState:
			return x
		case int:
			return AdapterState(x)
		case int32:
			return AdapterState(x)
		case int64:
			if x < math.MinInt32 || x > math.MaxInt32 {
				return def
			}
			return AdapterState(x)
		case uint32:
			if x > math.MaxInt32 {
				return def
			}
			return AdapterState(x)
		default:
			return def
		}
	}
}
