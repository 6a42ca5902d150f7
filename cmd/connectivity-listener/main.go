// connectivity-listener bridges Wi-Fi and Bluetooth adapter state changes
// to subscribers.
//
// Prerequisites (Linux)
//   - System D-Bus access; NetworkManager for Wi-Fi and BlueZ (bluetoothd)
//     for Bluetooth.
//   - The Bluetooth stream requires membership in a group configured under
//     bluetooth.capability_groups (default "bluetooth"), or root.
//
// Usage
//
//	connectivity-listener serve --config /etc/connectivity-listener.yaml
//	  ws://127.0.0.1:8765/streams/wifi_state
//	  ws://127.0.0.1:8765/streams/bluetooth_state
//	  POST http://127.0.0.1:8765/method
//	  http://127.0.0.1:8765/metrics
//
//	connectivity-listener watch bluetooth --timeout 60s
//	  prints {"previousState":...,"currentState":...} lines until Ctrl-C.
package main

import "os"

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		// Cobra prints the error, we just exit non-zero
		os.Exit(1)
	}
}
