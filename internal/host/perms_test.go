package host

import (
	"errors"
	"os/user"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"connectivity-listener/internal/watcher"
)

func stubUsers(t *testing.T, u *user.User, uerr error, groups map[string]string) {
	t.Helper()
	origUser, origGroup, origIDs := currentUser, lookupGroupID, groupIDs
	t.Cleanup(func() { currentUser, lookupGroupID, groupIDs = origUser, origGroup, origIDs })

	currentUser = func() (*user.User, error) { return u, uerr }
	groupIDs = func(*user.User) ([]string, error) {
		ids := make([]string, 0, len(groups)+1)
		for gid := range groups {
			ids = append(ids, gid)
		}
		return append(ids, "999"), nil
	}
	lookupGroupID = func(gid string) (*user.Group, error) {
		name, ok := groups[gid]
		if !ok {
			return nil, user.UnknownGroupIdError(gid)
		}
		return &user.Group{Gid: gid, Name: name}, nil
	}
}

func TestGroupCheckerRoot(t *testing.T) {
	stubUsers(t, &user.User{Uid: "0", Username: "root"}, nil, nil)
	ok, err := groupChecker{}.HasCapability(watcher.CapabilityBluetoothConnect)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGroupCheckerCurrentUserError(t *testing.T) {
	stubUsers(t, nil, errors.New("no passwd entry"), nil)
	ok, err := groupChecker{}.HasCapability(watcher.CapabilityBluetooth)
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestGroupCheckerNoGroupsConfigured(t *testing.T) {
	stubUsers(t, &user.User{Uid: "1000", Username: "alex"}, nil, nil)
	ok, err := groupChecker{groups: map[watcher.Capability][]string{
		watcher.CapabilityBluetooth: {"bluetooth"},
	}}.HasCapability(watcher.CapabilityBluetoothConnect)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGroupCheckerMembership(t *testing.T) {
	stubUsers(t, &user.User{Uid: "1000", Username: "alex"}, nil, map[string]string{
		"100": "users",
		"112": "netdev",
	})
	g := groupChecker{groups: map[watcher.Capability][]string{
		watcher.CapabilityBluetoothConnect: {"bluetooth"},
		watcher.CapabilityBluetooth:        {"bluetooth", "netdev"},
	}}

	ok, err := g.HasCapability(watcher.CapabilityBluetooth)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = g.HasCapability(watcher.CapabilityBluetoothConnect)
	require.NoError(t, err)
	assert.False(t, ok)
}
