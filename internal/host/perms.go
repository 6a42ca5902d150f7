package host

import (
	"fmt"
	"os/user"

	"connectivity-listener/internal/watcher"
)

// For mocking in tests
var (
	currentUser   = user.Current
	lookupGroupID = user.LookupGroupId
	groupIDs      = (*user.User).GroupIds
)

// groupChecker grants a capability to root and to members of the groups
// configured for it.
type groupChecker struct {
	groups map[watcher.Capability][]string
}

func (g groupChecker) HasCapability(c watcher.Capability) (bool, error) {
	u, err := currentUser()
	if err != nil {
		return false, fmt.Errorf("host: current user: %w", err)
	}
	if u.Uid == "0" {
		return true, nil
	}
	want := g.groups[c]
	if len(want) == 0 {
		return false, nil
	}
	gids, err := groupIDs(u)
	if err != nil {
		return false, fmt.Errorf("host: groups of %s: %w", u.Username, err)
	}
	for _, gid := range gids {
		grp, err := lookupGroupID(gid)
		if err != nil {
			continue
		}
		for _, name := range want {
			if grp.Name == name {
				return true, nil
			}
		}
	}
	return false, nil
}
