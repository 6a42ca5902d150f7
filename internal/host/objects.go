package host

import (
	"sort"

	dbus "github.com/godbus/dbus/v5"
)

// adaptersFrom picks the Adapter1 objects out of a GetManagedObjects reply,
// sorted by path so that "first adapter" is stable (hci0 before hci1).
func adaptersFrom(objs map[dbus.ObjectPath]map[string]map[string]dbus.Variant) []dbus.ObjectPath {
	var out []dbus.ObjectPath
	for path, ifaces := range objs {
		if _, ok := ifaces[adapterIface]; ok {
			out = append(out, path)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
