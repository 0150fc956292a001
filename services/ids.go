package services

import (
	"github.com/google/uuid"

	"realestate-ingest/models"
)

// DefaultNamespace seeds entity ids when ID_NAMESPACE is not configured.
var DefaultNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("realestate-ingest"))

func v5(ns uuid.UUID, name string) uuid.UUID {
	return uuid.NewSHA1(ns, []byte(name))
}

// BuildingID is stable for a key, so re-ingesting the same data upserts.
func BuildingID(ns uuid.UUID, key models.EntityKey) uuid.UUID {
	return v5(ns, "building:"+key.Name+"|"+key.Address)
}

func FacilityID(ns uuid.UUID, key models.EntityKey) uuid.UUID {
	return v5(ns, "facility:"+key.Name+"|"+key.Address)
}

// NamespaceFor turns the configured namespace into a UUID. An empty value
// yields DefaultNamespace; anything that is not a UUID is hashed into one.
func NamespaceFor(s string) uuid.UUID {
	if s == "" {
		return DefaultNamespace
	}
	if ns, err := uuid.Parse(s); err == nil {
		return ns
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(s))
}
