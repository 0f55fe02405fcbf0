package memory

import (
	"strings"
	"time"

	"github.com/refinance/ledger/internal/domain"
)

// Fixed identifiers of the seeded system records. The Postgres migration
// seeds the same rows.
const (
	SystemEntityID   = "ent_f0"
	ExchangeEntityID = "ent_exchange"
)

// TagID returns the seeded id of a well-known tag name.
func TagID(name string) string {
	return "tag_" + strings.ReplaceAll(name, "-", "_")
}

var seedTags = []string{
	domain.TagSystem,
	domain.TagResident,
	domain.TagMember,
	domain.TagGuest,
	domain.TagExResident,
	domain.TagHackerspace,
	domain.TagExchange,
	domain.TagAutomatic,
	domain.TagFee,
	domain.TagDeposit,
	domain.TagWithdrawal,
}

// Seed inserts the well-known tags and the system entities.
func (s *Store) Seed() {
	for _, name := range seedTags {
		s.PutTag(&domain.Tag{ID: TagID(name), Name: name})
	}

	now := time.Now().UTC()
	s.PutEntity(&domain.Entity{
		ID:        SystemEntityID,
		Name:      "F0",
		Comment:   "hackerspace",
		Active:    true,
		TagIDs:    []string{TagID(domain.TagSystem), TagID(domain.TagHackerspace)},
		CreatedAt: now,
	})
	s.PutEntity(&domain.Entity{
		ID:        ExchangeEntityID,
		Name:      "Currency exchange",
		Comment:   "clearing counterparty of currency exchanges",
		Active:    true,
		TagIDs:    []string{TagID(domain.TagSystem), TagID(domain.TagExchange)},
		CreatedAt: now,
	})
}
