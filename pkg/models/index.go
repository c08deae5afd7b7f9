package models

import (
	"fmt"
	"regexp"
	"time"
)

type IndexType string

const (
	IndexTypeOSM           IndexType = "osm"
	IndexTypeCosmogony     IndexType = "cosmogony"
	IndexTypeBANO          IndexType = "bano"
	IndexTypeOpenAddresses IndexType = "openaddresses"
)

func (t IndexType) Valid() bool {
	switch t {
	case IndexTypeOSM, IndexTypeCosmogony, IndexTypeBANO, IndexTypeOpenAddresses:
		return true
	}
	return false
}

// Region names feed into tool argv and search index names, so they stay
// conservative: lowercase alphanumerics with - and _ separators.
var regionRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,62}$`)

func ValidRegion(region string) bool {
	return regionRegex.MatchString(region)
}

// Index is one declared search index. The triple (IndexType, DataSource,
// Region) identifies it; ID is the store-assigned surrogate key.
type Index struct {
	ID         int64     `json:"index_id"`
	IndexType  IndexType `json:"index_type"`
	DataSource string    `json:"data_source"`
	Region     string    `json:"region"`
	Status     Status    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// SearchIndex is the name this index carries in the search engine,
// e.g. "osm_fr" for an OSM build of region fr.
func (i Index) SearchIndex() string {
	return fmt.Sprintf("%s_%s", i.IndexType, i.Region)
}
