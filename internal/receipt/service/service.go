package service

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	entitydomain "github.com/smallbiznis/gymledger/internal/entity/domain"
	memberdomain "github.com/smallbiznis/gymledger/internal/member/domain"
	paymentdomain "github.com/smallbiznis/gymledger/internal/payment/domain"
	"github.com/smallbiznis/gymledger/internal/providers/pdf"
	"github.com/smallbiznis/gymledger/internal/receipt/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	PaymentRepo paymentdomain.Repository
	MemberRepo  memberdomain.Repository
	EntityRepo  entitydomain.Repository
	PDF         pdf.Provider
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	paymentRepo paymentdomain.Repository
	memberRepo  memberdomain.Repository
	entityRepo  entitydomain.Repository
	pdf         pdf.Provider
}

func New(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("receipt.service"),
		paymentRepo: p.PaymentRepo,
		memberRepo:  p.MemberRepo,
		entityRepo:  p.EntityRepo,
		pdf:         p.PDF,
	}
}

func (s *Service) Render(ctx context.Context, paymentID snowflake.ID) (*domain.Receipt, error) {
	payment, err := s.paymentRepo.FindByID(ctx, s.db, paymentID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, paymentdomain.ErrPaymentNotFound
	}
	if payment.Status != paymentdomain.PaymentStatusConfirmed && payment.Status != paymentdomain.PaymentStatusRefunded {
		return nil, domain.ErrNotSettled
	}

	member, err := s.memberRepo.FindByID(ctx, s.db, payment.UserID)
	if err != nil {
		return nil, err
	}
	seller, err := s.entityRepo.FindByID(ctx, s.db, payment.RoutedEntityID)
	if err != nil {
		return nil, err
	}

	data := buildReceiptData(payment, member, seller)
	reader, err := s.pdf.GenerateReceipt(ctx, data)
	if err != nil {
		s.log.Error("receipt render failed", zap.String("payment_id", payment.ID.String()), zap.Error(err))
		return nil, err
	}

	var buf bytes.Buffer
	if reader != nil {
		if _, err := buf.ReadFrom(reader); err != nil {
			return nil, err
		}
	}

	return &domain.Receipt{
		Filename: "receipt-" + data.ReceiptNumber + ".pdf",
		Content:  buf.Bytes(),
	}, nil
}

func buildReceiptData(payment *paymentdomain.Payment, member *memberdomain.User, seller *entitydomain.BusinessEntity) pdf.ReceiptData {
	paidAt := payment.CreatedAt
	if payment.ProcessedAt != nil {
		paidAt = *payment.ProcessedAt
	}
	amount := formatMoney(payment.Amount, payment.Currency)

	data := pdf.ReceiptData{
		ReceiptNumber: payment.ID.String(),
		DatePaid:      paidAt.UTC().Format("2 January 2006"),
		Reference:     receiptReference(payment),
		Total:         amount,
		Items: []pdf.ReceiptItem{{
			Description: lineDescription(payment.Description),
			Qty:         1,
			UnitPrice:   amount,
			Amount:      amount,
		}},
	}
	if payment.Status == paymentdomain.PaymentStatusRefunded {
		data.Status = "REFUNDED"
	}
	if seller != nil {
		data.SellerName = seller.Name
		data.SellerCode = seller.Code
	}
	if member != nil {
		data.BillToName = member.FullName()
		data.BillToEmail = member.Email
	}
	return data
}

func receiptReference(payment *paymentdomain.Payment) string {
	if payment.GatewayInvoiceID != nil && *payment.GatewayInvoiceID != "" {
		return *payment.GatewayInvoiceID
	}
	if payment.GatewayPaymentIntentID != nil {
		return *payment.GatewayPaymentIntentID
	}
	return "-"
}

// lineDescription drops the forensic tags from the stored description.
func lineDescription(description string) string {
	if i := strings.Index(description, "["); i >= 0 {
		description = description[:i]
	}
	if d := strings.TrimSpace(description); d != "" {
		return d
	}
	return "Membership"
}

func formatMoney(amount float64, currency string) string {
	switch strings.ToLower(currency) {
	case "gbp", "":
		return fmt.Sprintf("£%.2f", amount)
	case "eur":
		return fmt.Sprintf("€%.2f", amount)
	case "usd":
		return fmt.Sprintf("$%.2f", amount)
	default:
		return fmt.Sprintf("%.2f %s", amount, strings.ToUpper(currency))
	}
}
