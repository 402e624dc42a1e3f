// Package domain models a resident's claim that an electronic transfer was
// made, and its review.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type ClaimStatus string

const (
	ClaimStatusPending  ClaimStatus = "PENDING"
	ClaimStatusApproved ClaimStatus = "APPROVED"
	ClaimStatusRejected ClaimStatus = "REJECTED"
)

type OnlinePayment struct {
	ID                   snowflake.ID    `gorm:"primaryKey" json:"id"`
	Reference            string          `gorm:"type:text;not null;uniqueIndex" json:"reference"`
	UserID               snowflake.ID    `gorm:"not null;index" json:"user_id"`
	InvoiceID            snowflake.ID    `gorm:"not null;index" json:"invoice_id"`
	Amount               decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"amount"`
	SenderReference      string          `gorm:"type:text;not null" json:"sender_reference"`
	TransactionReference string          `gorm:"type:text;not null" json:"transaction_reference"`
	Status               ClaimStatus     `gorm:"type:text;not null" json:"status"`
	SubmittedAt          time.Time       `gorm:"not null" json:"submitted_at"`
	ReviewedAt           *time.Time      `json:"reviewed_at,omitempty"`
	ReviewedBy           *snowflake.ID   `json:"reviewed_by,omitempty"`
	ReviewNotes          *string         `gorm:"type:text" json:"review_notes,omitempty"`
}

func (OnlinePayment) TableName() string { return "online_payments" }

// Review closes a pending claim. Reviewed claims are final.
func (c *OnlinePayment) Review(status ClaimStatus, reviewerID snowflake.ID, notes *string, at time.Time) error {
	if c.Status != ClaimStatusPending {
		return ErrNotPending
	}
	if status != ClaimStatusApproved && status != ClaimStatusRejected {
		return ErrInvalidStatus
	}
	reviewed := at.UTC()
	c.Status = status
	c.ReviewedAt = &reviewed
	c.ReviewedBy = &reviewerID
	c.ReviewNotes = notes
	return nil
}

// PendingClaim is a claim in the review queue with the resident's placement.
type PendingClaim struct {
	OnlinePayment
	ResidentName string `json:"resident_name"`
	Building     string `json:"building"`
	Floor        string `json:"floor"`
	Apartment    string `json:"apartment"`
	Year         int    `json:"year"`
	Month        int    `json:"month"`
}
