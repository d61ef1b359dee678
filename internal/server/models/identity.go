// Package models defines the server-side records shared between the
// directory, the token service and the transport boundaries.
package models

// Identity is the user record resolved from the directory. The core never
// mutates it.
type Identity struct {
	ID          int64
	Username    string
	Email       string
	DisplayName string
	Roles       []string
}

// HasRole reports whether the identity carries role.
func (i *Identity) HasRole(role string) bool {
	for _, r := range i.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Public returns the view of the identity that may be sent to clients.
func (i *Identity) Public() *PublicUser {
	roles := make([]string, len(i.Roles))
	copy(roles, i.Roles)
	return &PublicUser{
		ID:          i.ID,
		Email:       i.Email,
		DisplayName: i.DisplayName,
		Roles:       roles,
	}
}

// PublicUser is the identity as it appears in login and validate responses.
type PublicUser struct {
	ID          int64    `json:"id"`
	Email       string   `json:"email"`
	DisplayName string   `json:"display_name"`
	Roles       []string `json:"roles"`
}
