package model

import "strings"

// Identity is the lightweight record kept for every connected subject.
// It is created when a connection passes the identity gate and removed
// when the subject's last connection disconnects.
type Identity struct {
	SubjectID SubjectID
	Email     string
}

// DisplayName derives a human-readable name from the identity's email:
// the local part with dots and underscores replaced by spaces.
// An identity without an email falls back to the subject id.
func (i Identity) DisplayName() string {
	local, _, found := strings.Cut(i.Email, "@")
	if !found || local == "" {
		return string(i.SubjectID)
	}
	local = strings.ReplaceAll(local, ".", " ")
	local = strings.ReplaceAll(local, "_", " ")
	return local
}
