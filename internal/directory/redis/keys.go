package redis

import "github.com/openrealms/presenced/internal/model"

// Key patterns:
//   realm:<id>   - realm descriptor JSON
//   profile:<id> - profile JSON

func realmKey(id model.RealmID) string {
	return "realm:" + string(id)
}

func profileKey(id model.SubjectID) string {
	return "profile:" + string(id)
}
