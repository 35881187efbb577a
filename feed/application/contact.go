package application

import (
	"context"

	"github.com/dfryer1193/cropfeed/feed/domain"
	"github.com/rs/zerolog/log"
)

var _ domain.ContactNotifier = LogNotifier{}

// LogNotifier records contact requests in the service log. It is used when
// no messaging broker is configured.
type LogNotifier struct{}

func (LogNotifier) NotifyContact(_ context.Context, req domain.ContactRequest) error {
	log.Info().
		Str("requestID", req.ID).
		Int64("postID", req.Seller.PostID).
		Str("sellerID", req.SellerID).
		Str("requesterID", req.RequesterID).
		Str("title", req.Seller.Title).
		Msg("Contact requested")
	return nil
}

// NotifierFunc adapts a function to domain.ContactNotifier.
type NotifierFunc func(ctx context.Context, req domain.ContactRequest) error

func (f NotifierFunc) NotifyContact(ctx context.Context, req domain.ContactRequest) error {
	return f(ctx, req)
}
