package backup

import (
	"os"
	"os/user"
	"runtime"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// chown hands every path over to owner, given as "user" or "user:group". A
// bare user name also names the group. Ownership is not changed on Windows.
func chown(owner string, paths ...string) error {
	if owner == "" || runtime.GOOS == "windows" {
		return nil
	}

	uid, gid, err := lookupOwner(owner)
	if err != nil {
		return err
	}

	for _, path := range paths {
		if path == "" {
			continue
		}

		if err := os.Chown(path, uid, gid); err != nil {
			return errors.Wrapf(err, "Failed to change ownership: %s", path)
		}
	}

	return nil
}

func lookupOwner(owner string) (int, int, error) {
	userName, groupName := owner, owner
	if i := strings.IndexByte(owner, ':'); i >= 0 {
		userName, groupName = owner[:i], owner[i+1:]
	}

	u, err := user.Lookup(userName)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "Invalid user %s", userName)
	}

	g, err := user.LookupGroup(groupName)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "Invalid group %s", groupName)
	}

	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "Invalid uid %s", u.Uid)
	}

	gid, err := strconv.Atoi(g.Gid)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "Invalid gid %s", g.Gid)
	}

	return uid, gid, nil
}
