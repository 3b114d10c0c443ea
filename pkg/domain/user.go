package domain

// User is the caller on whose behalf an operation runs. It is passed through
// to the aggregate accessor untouched; authorization is the accessor's call.
type User struct {
	ID    string   `json:"id"`
	Name  string   `json:"name,omitempty"`
	Roles []string `json:"roles,omitempty"`
}

// Anonymous is used when a transport carries no credentials.
var Anonymous = User{ID: "anonymous"}

func (u User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}
