package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrUnauthorized = errors.New("administrator privileges required")

const (
	RoleAdmin    = "admin"
	RoleCustomer = "customer"
)

// Admins is the set of chat user IDs allowed to run administrator commands.
// An empty set grants the role to nobody.
type Admins struct {
	ids map[int64]struct{}
}

func NewAdmins(ids ...int64) *Admins {
	a := &Admins{ids: make(map[int64]struct{}, len(ids))}
	for _, id := range ids {
		a.ids[id] = struct{}{}
	}
	return a
}

// ParseAdmins reads a comma separated list of chat user IDs.
func ParseAdmins(raw string) (*Admins, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid admin id %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return NewAdmins(ids...), nil
}

func (a *Admins) IsAdmin(userID int64) bool {
	if a == nil {
		return false
	}
	_, ok := a.ids[userID]
	return ok
}

func (a *Admins) Role(userID int64) string {
	if a.IsAdmin(userID) {
		return RoleAdmin
	}
	return RoleCustomer
}

// RequireAdmin returns ErrUnauthorized unless userID holds the admin role.
func (a *Admins) RequireAdmin(userID int64) error {
	if !a.IsAdmin(userID) {
		return ErrUnauthorized
	}
	return nil
}

func (a *Admins) Len() int {
	if a == nil {
		return 0
	}
	return len(a.ids)
}
