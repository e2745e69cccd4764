package notification

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// Sink delivers user-facing messages. Delivery is best effort: callers
// fire after their state transition commits, and a lost message never
// rolls the transition back.
type Sink interface {
	Notify(ctx context.Context, userID snowflake.ID, userType, title, body, category string)
}

const (
	UserTypeBrand   = "brand"
	UserTypeCreator = "creator"

	CategoryFunding = "funding"
	CategoryPayout  = "payout"
	CategoryWallet  = "wallet"
)
