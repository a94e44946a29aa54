package handler

import (
	"net/http"

	"github.com/solemart/storefront/internal/domain/cart"
)

// Identity headers set by the session collaborator in front of this
// service. They are trusted as-is; authentication is not this engine's job.
const (
	headerUserID       = "X-User-ID"
	headerSessionToken = "X-Session-Token"
)

// ownerFromRequest builds the cart owner from the identity headers. A
// signed-in user wins over a session token when both are present.
func ownerFromRequest(r *http.Request) cart.Owner {
	var owner cart.Owner
	if v := r.Header.Get(headerUserID); v != "" {
		owner.UserID = &v
	}
	if v := r.Header.Get(headerSessionToken); v != "" {
		owner.SessionToken = &v
	}
	return owner
}

// userIDFromRequest returns the signed-in user id, or empty when the
// request is anonymous.
func userIDFromRequest(r *http.Request) string {
	return r.Header.Get(headerUserID)
}
