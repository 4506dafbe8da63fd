package migration

import (
	entitydomain "github.com/smallbiznis/gymledger/internal/entity/domain"
	memberdomain "github.com/smallbiznis/gymledger/internal/member/domain"
	paymentdomain "github.com/smallbiznis/gymledger/internal/payment/domain"
	reconciliationdomain "github.com/smallbiznis/gymledger/internal/reconciliation/domain"
	registrationdomain "github.com/smallbiznis/gymledger/internal/registration/domain"
	routingdomain "github.com/smallbiznis/gymledger/internal/routing/domain"
	settingdomain "github.com/smallbiznis/gymledger/internal/setting/domain"
	subscriptiondomain "github.com/smallbiznis/gymledger/internal/subscription/domain"
	"gorm.io/gorm"
)

// Models lists every table the ledger owns.
func Models() []any {
	return []any{
		&entitydomain.BusinessEntity{},
		&entitydomain.ServiceCatalog{},
		&memberdomain.User{},
		&subscriptiondomain.Subscription{},
		&subscriptiondomain.Membership{},
		&paymentdomain.Invoice{},
		&paymentdomain.Payment{},
		&routingdomain.RoutingDecision{},
		&settingdomain.SystemSetting{},
		&reconciliationdomain.WebhookEvent{},
		&registrationdomain.MembershipPlan{},
	}
}

// AutoMigrate builds the schema from the models for dialects without
// embedded SQL migrations (sqlite, mysql).
func AutoMigrate(conn *gorm.DB) error {
	return conn.AutoMigrate(Models()...)
}
