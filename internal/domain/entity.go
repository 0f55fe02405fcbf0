package domain

import "time"

// Well-known tag names.
const (
	TagSystem      = "system"
	TagResident    = "resident"
	TagMember      = "member"
	TagGuest       = "guest"
	TagExResident  = "ex-resident"
	TagHackerspace = "hackerspace"
	TagExchange    = "exchange"
	TagAutomatic   = "automatic"
	TagFee         = "fee"
	TagDeposit     = "deposit"
	TagWithdrawal  = "withdrawal"
)

// AutoExchangeTags are the entity tags eligible for automatic currency balancing.
var AutoExchangeTags = []string{TagResident, TagMember, TagExResident}

// Entity is a party that can send and receive value. Entities are never deleted.
type Entity struct {
	ID        string
	Name      string
	Comment   string
	Active    bool
	TagIDs    []string
	CreatedAt time.Time
}

// Tag is a label attached to entities, transactions, invoices and splits.
type Tag struct {
	ID      string
	Name    string
	Comment string
}

// Treasury is a named cash pool that transactions may draw from or deposit to.
type Treasury struct {
	ID        string
	Name      string
	Comment   string
	Active    bool
	CreatedAt time.Time
}
