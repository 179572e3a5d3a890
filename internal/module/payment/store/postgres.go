package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/blogauto/server/internal/module/payment/domain"
	"github.com/blogauto/server/internal/module/payment/money"
)

// transactionRecord is the gorm row shape. Amounts are stored as exact
// decimal strings, never floats.
type transactionRecord struct {
	ID            uint   `gorm:"primaryKey"`
	Provider      string `gorm:"index;size:32"`
	TransactionID string `gorm:"index;size:255"`
	Status        string `gorm:"size:32"`
	Amount        string `gorm:"size:64"`
	Currency      string `gorm:"size:8"`
	CreatedAt     time.Time
	PaymentURL    string
	ErrorMessage  string
	RawResponse   []byte    `gorm:"type:jsonb"`
	WrittenAt     time.Time `gorm:"index;autoCreateTime"`
}

func (transactionRecord) TableName() string { return "payment_transactions" }

// Postgres is the gorm-backed transaction store, for deployments that
// already run the relational stack.
type Postgres struct {
	db *gorm.DB
}

// NewPostgres migrates the transactions table and returns the store.
func NewPostgres(db *gorm.DB) (*Postgres, error) {
	if err := db.AutoMigrate(&transactionRecord{}); err != nil {
		return nil, fmt.Errorf("migrate transactions table: %w", err)
	}
	return &Postgres{db: db}, nil
}

// Save implements Store.
func (s *Postgres) Save(ctx context.Context, txn *domain.Transaction) error {
	rec := transactionRecord{
		Provider:      string(txn.Provider),
		TransactionID: txn.TransactionID,
		Status:        string(txn.Status),
		Amount:        txn.Amount.String(),
		Currency:      txn.Currency,
		CreatedAt:     txn.CreatedAt,
		PaymentURL:    txn.PaymentURL,
		ErrorMessage:  txn.ErrorMessage,
	}
	if txn.RawResponse != nil {
		raw, err := json.Marshal(txn.RawResponse)
		if err != nil {
			return fmt.Errorf("encode raw response: %w", err)
		}
		rec.RawResponse = raw
	}

	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("save transaction: %w", err)
	}
	return nil
}

// List implements Store.
func (s *Postgres) List(ctx context.Context, limit int) ([]*domain.Transaction, error) {
	if limit <= 0 {
		return nil, nil
	}

	var recs []transactionRecord
	err := s.db.WithContext(ctx).
		Order("written_at DESC").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	txns := make([]*domain.Transaction, 0, len(recs))
	for _, rec := range recs {
		amount, err := money.Infer(rec.Amount)
		if err != nil {
			return nil, fmt.Errorf("decode amount %q: %w", rec.Amount, err)
		}
		txn := &domain.Transaction{
			Provider:      domain.Provider(rec.Provider),
			TransactionID: rec.TransactionID,
			Status:        domain.Status(rec.Status),
			Amount:        amount,
			Currency:      rec.Currency,
			CreatedAt:     rec.CreatedAt,
			PaymentURL:    rec.PaymentURL,
			ErrorMessage:  rec.ErrorMessage,
		}
		if len(rec.RawResponse) > 0 {
			if err := json.Unmarshal(rec.RawResponse, &txn.RawResponse); err != nil {
				return nil, fmt.Errorf("decode raw response: %w", err)
			}
		}
		txns = append(txns, txn)
	}
	return txns, nil
}
