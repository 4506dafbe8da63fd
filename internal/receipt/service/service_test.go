package service

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	entitydomain "github.com/smallbiznis/gymledger/internal/entity/domain"
	entityrepository "github.com/smallbiznis/gymledger/internal/entity/repository"
	memberdomain "github.com/smallbiznis/gymledger/internal/member/domain"
	memberrepository "github.com/smallbiznis/gymledger/internal/member/repository"
	paymentdomain "github.com/smallbiznis/gymledger/internal/payment/domain"
	paymentrepository "github.com/smallbiznis/gymledger/internal/payment/repository"
	"github.com/smallbiznis/gymledger/internal/providers/pdf"
	"github.com/smallbiznis/gymledger/internal/receipt/domain"
	"github.com/smallbiznis/gymledger/internal/testing/sqlitetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var paidAt = time.Date(2025, 3, 1, 8, 30, 0, 0, time.UTC)

func newTestService(db *gorm.DB, provider pdf.Provider) domain.Service {
	return New(Params{
		DB:          db,
		Log:         zap.NewNop(),
		PaymentRepo: paymentrepository.Provide(),
		MemberRepo:  memberrepository.Provide(),
		EntityRepo:  entityrepository.Provide(),
		PDF:         provider,
	})
}

func seedPayment(t *testing.T, db *gorm.DB, id snowflake.ID, status paymentdomain.PaymentStatus) {
	t.Helper()
	require.NoError(t, db.Create(&entitydomain.BusinessEntity{
		ID: 1, Code: "GYM", Name: "Gym Operations Ltd", VatThreshold: 90000, IsActive: true,
		CreatedAt: paidAt, UpdatedAt: paidAt,
	}).Error)
	require.NoError(t, db.Create(&memberdomain.User{
		ID: 2, Email: "ada@example.com", FirstName: "Ada", LastName: "Lovelace",
		CreatedAt: paidAt, UpdatedAt: paidAt,
	}).Error)
	invoice := "in_123"
	require.NoError(t, db.Create(&paymentdomain.Payment{
		ID:               id,
		UserID:           2,
		Amount:           45,
		Currency:         "gbp",
		Status:           status,
		Description:      paymentdomain.BuildDescription("FULL_ADULT membership", paymentdomain.Tags{InvoiceID: invoice}),
		RoutedEntityID:   1,
		GatewayInvoiceID: &invoice,
		ProcessedAt:      &paidAt,
		CreatedAt:        paidAt,
		UpdatedAt:        paidAt,
	}).Error)
}

type capturingPDF struct {
	data pdf.ReceiptData
}

func (c *capturingPDF) GenerateReceipt(_ context.Context, data pdf.ReceiptData) (io.Reader, error) {
	c.data = data
	return bytes.NewReader([]byte("%PDF")), nil
}

func TestRenderBuildsReceiptFromSellerAndMember(t *testing.T) {
	db := sqlitetest.Open(t)
	seedPayment(t, db, 100, paymentdomain.PaymentStatusConfirmed)
	provider := &capturingPDF{}

	receipt, err := newTestService(db, provider).Render(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, "receipt-100.pdf", receipt.Filename)
	assert.Equal(t, []byte("%PDF"), receipt.Content)

	assert.Equal(t, "Gym Operations Ltd", provider.data.SellerName)
	assert.Equal(t, "Ada Lovelace", provider.data.BillToName)
	assert.Equal(t, "1 March 2025", provider.data.DatePaid)
	assert.Equal(t, "in_123", provider.data.Reference)
	assert.Equal(t, "£45.00", provider.data.Total)
	require.Len(t, provider.data.Items, 1)
	assert.Equal(t, "FULL_ADULT membership", provider.data.Items[0].Description)
	assert.Empty(t, provider.data.Status)
}

func TestRenderProducesPDF(t *testing.T) {
	db := sqlitetest.Open(t)
	seedPayment(t, db, 101, paymentdomain.PaymentStatusRefunded)

	receipt, err := newTestService(db, pdf.New()).Render(context.Background(), 101)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(receipt.Content, []byte("%PDF")))
}

func TestRenderRejectsUnsettledAndMissingPayments(t *testing.T) {
	db := sqlitetest.Open(t)
	seedPayment(t, db, 102, paymentdomain.PaymentStatusFailed)
	svc := newTestService(db, &capturingPDF{})

	_, err := svc.Render(context.Background(), 102)
	require.ErrorIs(t, err, domain.ErrNotSettled)

	_, err = svc.Render(context.Background(), 999)
	require.ErrorIs(t, err, paymentdomain.ErrPaymentNotFound)
}

func TestFormatMoney(t *testing.T) {
	assert.Equal(t, "£30.00", formatMoney(30, "GBP"))
	assert.Equal(t, "€12.50", formatMoney(12.5, "eur"))
	assert.Equal(t, "9.99 CHF", formatMoney(9.99, "chf"))
}
