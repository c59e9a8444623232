// Package schema defines the typed shapes of the records kept in the Vitalis Store.
package schema

// User is the identity returned by the auth stub.
type User struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Role     string `json:"role,omitempty"`
}
