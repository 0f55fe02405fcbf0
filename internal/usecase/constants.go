package usecase

import "time"

// DefaultTransactionTimeout bounds one unit of work so a stuck statement
// cannot hold the treasury and invoice row locks indefinitely.
const DefaultTransactionTimeout = 10 * time.Second

// ExchangeRatesTTL is the default lifetime of a fetched rate table.
const ExchangeRatesTTL = time.Hour
