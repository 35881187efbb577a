package domain

import (
	"context"
	"time"
)

// SellerContact is what a buyer sees after asking to contact a seller.
type SellerContact struct {
	PostID   int64  `json:"postId"`
	Title    string `json:"title"`
	Location string `json:"location"`
	Price    string `json:"price"`
}

// ContactRequest is handed to the messaging collaborator when a buyer asks
// to contact the seller of a post.
type ContactRequest struct {
	ID          string        `json:"id"`
	Seller      SellerContact `json:"seller"`
	SellerID    string        `json:"sellerId"`
	RequesterID string        `json:"requesterId,omitempty"`
	RequestedAt time.Time     `json:"requestedAt"`
}

// ContactNotifier delivers contact requests to whatever channel reaches sellers.
type ContactNotifier interface {
	NotifyContact(ctx context.Context, req ContactRequest) error
}
