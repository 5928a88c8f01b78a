package domain

// Channel is the slice of a live channel the auction engine needs: who hosts
// it, whether it is currently live, and which product is on stage.
type Channel struct {
	ID                   string
	HostID               string
	Live                 bool
	HighlightedProductID string // empty when nothing is on stage
}

// Product is a sellable item owned by a shop. PriceCents doubles as the
// starting price when the product is auctioned.
type Product struct {
	ID         string
	ShopID     string
	Name       string
	PriceCents int64
}

// Shop ties products to the user who controls them.
type Shop struct {
	ID      string
	OwnerID string
}

// User carries the opaque actor identity plus the display name used in event
// payloads.
type User struct {
	ID       string
	Username string
}
