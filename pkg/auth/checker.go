package auth

import (
	"fmt"
	"os/user"

	"github.com/newtron-network/routevnf/pkg/settings"
	"github.com/newtron-network/routevnf/pkg/util"
)

// Checker validates user permissions against the access block of the
// settings file. With no access block every user is allowed.
type Checker struct {
	access      *settings.Access
	currentUser string
}

// NewChecker creates a permission checker
func NewChecker(access *settings.Access) *Checker {
	username := "unknown"
	if u, err := user.Current(); err == nil {
		username = u.Username
	}

	return &Checker{
		access:      access,
		currentUser: username,
	}
}

// SetUser overrides the current user (for testing or sudo)
func (c *Checker) SetUser(username string) {
	c.currentUser = username
}

// CurrentUser returns the current username
func (c *Checker) CurrentUser() string {
	return c.currentUser
}

// Check verifies if the current user has a permission
func (c *Checker) Check(permission Permission) error {
	return c.CheckUser(c.currentUser, permission)
}

// CheckUser verifies if a specific user has a permission
func (c *Checker) CheckUser(username string, permission Permission) error {
	if c.access == nil {
		return nil
	}

	// Superusers can do anything
	if c.isSuperUser(username) {
		return nil
	}

	// Read-only permissions are open unless explicitly restricted
	if permission.IsReadOnly() {
		if _, restricted := c.access.Permissions[string(permission)]; !restricted {
			return nil
		}
	}

	if c.checkPermissionMap(username, permission, c.access.Permissions) {
		return nil
	}

	return &PermissionError{
		User:       username,
		Permission: permission,
	}
}

// IsSuperUser returns true if the current user is a superuser
func (c *Checker) IsSuperUser() bool {
	return c.isSuperUser(c.currentUser)
}

func (c *Checker) isSuperUser(username string) bool {
	if c.access == nil {
		return false
	}
	for _, su := range c.access.SuperUsers {
		if su == username {
			return true
		}
	}
	return false
}

// checkPermissionMap checks whether username has the given permission in permMap.
// It first checks the "all" wildcard key, then the specific permission key.
func (c *Checker) checkPermissionMap(username string, permission Permission, permMap map[string][]string) bool {
	if groups, ok := permMap[string(PermAll)]; ok {
		if c.userInGroups(username, groups) {
			return true
		}
	}

	groups, ok := permMap[string(permission)]
	if !ok {
		return false
	}

	return c.userInGroups(username, groups)
}

func (c *Checker) userInGroups(username string, allowedGroups []string) bool {
	for _, group := range allowedGroups {
		// Direct username match
		if group == username {
			return true
		}

		if members, ok := c.access.UserGroups[group]; ok {
			for _, member := range members {
				if member == username {
					return true
				}
			}
		}
	}
	return false
}

// ListPermissionsForUser returns all permissions a user has been granted
// explicitly.
func (c *Checker) ListPermissionsForUser(username string) []Permission {
	if c.access == nil || c.isSuperUser(username) {
		return []Permission{PermAll}
	}

	var perms []Permission
	for _, cat := range StandardCategories {
		for _, p := range cat.Permissions {
			if c.checkPermissionMap(username, p, c.access.Permissions) {
				perms = append(perms, p)
			}
		}
	}
	return perms
}

// PermissionError represents a permission denial
type PermissionError struct {
	User       string
	Permission Permission
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("permission denied: user '%s' does not have '%s' permission", e.User, e.Permission)
}

func (e *PermissionError) Unwrap() error {
	return util.ErrPermissionDenied
}
