package watcher

// NewWifi returns the Wi-Fi watcher. Every notification is delivered,
// including repeats of the same state; query failures yield WifiUnknown.
func NewWifi(h WifiHost, opts ...Option) (*Watcher, error) {
	o := Options{
		Name:     "wifi",
		Action:   ActionWifiStateChanged,
		Notifier: h,
		Query:    h.WifiState,
		Extract:  extractInt(ExtraWifiState, WifiUnknown),
		Unknown:  WifiUnknown,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return New(o)
}
