package payment

import (
	"fmt"

	"github.com/emmanuel-nwafor/foremade/domain"
)

// Selector maps a shipping country to its payment strategy.
type Selector struct {
	card   Strategy
	mobile Strategy
}

func NewSelector(card, mobile Strategy) *Selector {
	return &Selector{card: card, mobile: mobile}
}

func (s *Selector) ForCountry(c domain.Country) (Strategy, error) {
	switch c {
	case domain.CountryNigeria:
		return s.mobile, nil
	case domain.CountryUnitedKingdom:
		return s.card, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedCountry, c)
}

func (s *Selector) ForGateway(g domain.Gateway) (Strategy, error) {
	switch g {
	case domain.GatewayMobileMoney:
		return s.mobile, nil
	case domain.GatewayCard:
		return s.card, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownGateway, g)
}
