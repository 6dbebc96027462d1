package domain

type Gateway string

const (
	GatewayCard        Gateway = "card"
	GatewayMobileMoney Gateway = "mobile_money"
)

// PaymentResult is the normalized outcome of a successful payment.
type PaymentResult struct {
	Gateway Gateway `json:"gateway"`
	ID      string  `json:"id"`
}
