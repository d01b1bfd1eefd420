package fulfillment

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Carriers assigned by shipping speed.
const (
	CarrierExpress  = "express-courier"
	CarrierStandard = "standard-post"
)

// Delivery estimates from the moment the package is created.
const (
	expressDeliveryDays  = 2
	standardDeliveryDays = 5
)

var (
	ErrMissingOrderID = errors.New("order id required")
	ErrNoSKUs         = errors.New("no skus to fulfill")
)

// Request is everything the fulfillment step needs from a paid order.
type Request struct {
	OrderID      string
	SKUs         []string
	Express      bool
	GiftWrap     bool
	ShippingCost float64
}

// Package is the immutable output of a successful fulfillment.
type Package struct {
	OrderID           string    `json:"orderId"`
	TrackingNumber    string    `json:"trackingNumber"`
	Carrier           string    `json:"carrier"`
	ShippingCost      float64   `json:"shippingCost"`
	GiftWrap          bool      `json:"giftWrap"`
	EstimatedDelivery time.Time `json:"estimatedDelivery"`
	SKUs              []string  `json:"skus"`
	CreatedAt         time.Time `json:"createdAt"`
}

// Service builds fulfillment packages. Deterministic apart from the
// generated tracking number and the clock, both injectable.
type Service struct {
	now         func() time.Time
	newTracking func() string
}

// NewService constructs a fulfillment service with wall-clock time and
// uuid-derived tracking numbers.
func NewService() *Service {
	return &Service{
		now:         time.Now,
		newTracking: defaultTrackingNumber,
	}
}

// Create produces the shipment record for a paid order.
func (s *Service) Create(ctx context.Context, req Request) (Package, error) {
	if err := ctx.Err(); err != nil {
		return Package{}, err
	}
	if req.OrderID == "" {
		return Package{}, ErrMissingOrderID
	}
	if len(req.SKUs) == 0 {
		return Package{}, ErrNoSKUs
	}

	carrier := CarrierStandard
	days := standardDeliveryDays
	if req.Express {
		carrier = CarrierExpress
		days = expressDeliveryDays
	}

	now := s.now().UTC()
	return Package{
		OrderID:           req.OrderID,
		TrackingNumber:    s.newTracking(),
		Carrier:           carrier,
		ShippingCost:      req.ShippingCost,
		GiftWrap:          req.GiftWrap,
		EstimatedDelivery: now.AddDate(0, 0, days),
		SKUs:              append([]string(nil), req.SKUs...),
		CreatedAt:         now,
	}, nil
}

func defaultTrackingNumber() string {
	compact := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return "PF-" + compact[:12]
}
