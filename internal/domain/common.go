package domain

// OrderSide represents the side of a trade (BUY or SELL).
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// Valid reports whether the side is one of the known constants.
func (s OrderSide) Valid() bool {
	return s == Buy || s == Sell
}

// Sign returns +1 for a Buy and -1 for a Sell.
func (s OrderSide) Sign() int64 {
	if s == Sell {
		return -1
	}
	return 1
}

// PositionStatus represents the status of a position.
type PositionStatus string

const (
	StatusOpen   PositionStatus = "open"
	StatusClosed PositionStatus = "closed"
)

// PositionSide is the direction of an open position, derived from the sign of its quantity.
type PositionSide string

const (
	Long  PositionSide = "long"
	Short PositionSide = "short"
	Flat  PositionSide = "flat"
)
