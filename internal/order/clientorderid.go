package order

import (
	"crypto/sha256"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Strauch27/trading-bot-professional-sub000/internal/domain"
)

// clientOrderIDPrefix tags generated ids so they're recognizable in logs
// and don't collide with ids a human operator might hand-supply.
const clientOrderIDPrefix = "bot-"

// GenerateClientOrderID derives a stable id from the tuple that defines an
// order's identity: same inputs always hash to the same id, so a retried
// submission of the same logical order is naturally idempotent at the
// exchange.
func GenerateClientOrderID(symbol string, side domain.Side, roundedQty, roundedPrice decimal.Decimal, orderType domain.OrderType) string {
	input := fmt.Sprintf("%s|%s|%s|%s|%s", symbol, side, roundedQty.String(), roundedPrice.String(), orderType)
	sum := sha256.Sum256([]byte(input))
	return clientOrderIDPrefix + fmt.Sprintf("%x", sum)[:20]
}
