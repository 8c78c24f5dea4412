package chessdto

import "fmt"

// Identity is the authenticated user as reported by /profile.
type Identity struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Rating   int    `json:"rating"`
}

// Header renders the identity the way the client shows it, e.g. "alice (1200)".
func (i *Identity) Header() string {
	if i == nil {
		return ""
	}
	return fmt.Sprintf("%s (%d)", i.Username, i.Rating)
}
