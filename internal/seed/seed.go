// Package seed bootstraps business entities, their service catalog and the
// membership plans offered at registration.
package seed

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/gymledger/internal/clock"
	entitydomain "github.com/smallbiznis/gymledger/internal/entity/domain"
	registrationdomain "github.com/smallbiznis/gymledger/internal/registration/domain"
	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ukVatThreshold is the registration threshold in force since April 2024.
const ukVatThreshold = 90000

var ErrUnknownEntity = errors.New("seed_unknown_entity")

type EntitySeed struct {
	Name         string  `mapstructure:"name"`
	VatThreshold float64 `mapstructure:"vat_threshold"`
}

// CatalogSeed names its preferred entity by display name.
type CatalogSeed struct {
	ServiceType     string   `mapstructure:"service_type"`
	Name            string   `mapstructure:"name"`
	Entity          string   `mapstructure:"entity"`
	MembershipTypes []string `mapstructure:"membership_types"`
}

type PlanSeed struct {
	Key            string  `mapstructure:"plan_key"`
	Name           string  `mapstructure:"name"`
	MembershipType string  `mapstructure:"membership_type"`
	MonthlyPrice   float64 `mapstructure:"monthly_price"`
	Inactive       bool    `mapstructure:"inactive"`
}

type Manifest struct {
	Entities []EntitySeed  `mapstructure:"entities"`
	Catalog  []CatalogSeed `mapstructure:"catalog"`
	Plans    []PlanSeed    `mapstructure:"plans"`
}

// Report counts what a run created and what was already present.
type Report struct {
	EntitiesCreated int `json:"entities_created"`
	EntitiesExisted int `json:"entities_existed"`
	CatalogCreated  int `json:"catalog_created"`
	CatalogExisted  int `json:"catalog_existed"`
	PlansCreated    int `json:"plans_created"`
	PlansExisted    int `json:"plans_existed"`
}

func DefaultManifest() Manifest {
	return Manifest{
		Entities: []EntitySeed{
			{Name: "Gym Operations Ltd", VatThreshold: ukVatThreshold},
			{Name: "Studio Classes Ltd", VatThreshold: ukVatThreshold},
		},
		Catalog: []CatalogSeed{
			{ServiceType: "GYM_ACCESS", Name: "Gym floor access", Entity: "Gym Operations Ltd", MembershipTypes: []string{"FULL_ADULT", "OFF_PEAK"}},
			{ServiceType: "CLASSES", Name: "Group classes", Entity: "Studio Classes Ltd", MembershipTypes: []string{"CLASSES_ONLY"}},
		},
		Plans: []PlanSeed{
			{Key: "full_adult", Name: "Full adult", MembershipType: "FULL_ADULT", MonthlyPrice: 45},
			{Key: "off_peak", Name: "Off peak", MembershipType: "OFF_PEAK", MonthlyPrice: 30},
			{Key: "classes_only", Name: "Classes only", MembershipType: "CLASSES_ONLY", MonthlyPrice: 25},
		},
	}
}

// LoadManifest reads a yaml or json manifest. An empty path returns the
// defaults.
func LoadManifest(path string) (Manifest, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return DefaultManifest(), nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return Manifest{}, fmt.Errorf("read seed manifest: %w", err)
	}

	var m Manifest
	if err := v.Unmarshal(&m); err != nil {
		return Manifest{}, fmt.Errorf("decode seed manifest: %w", err)
	}
	return m, nil
}

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	EntitySvc  entitydomain.Service
	EntityRepo entitydomain.Repository
	PlanRepo   registrationdomain.Repository
}

type Seeder struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	entitySvc  entitydomain.Service
	entityRepo entitydomain.Repository
	planRepo   registrationdomain.Repository
}

func New(p Params) *Seeder {
	return &Seeder{
		db:         p.DB,
		log:        p.Log.Named("seed"),
		genID:      p.GenID,
		clock:      p.Clock,
		entitySvc:  p.EntitySvc,
		entityRepo: p.EntityRepo,
		planRepo:   p.PlanRepo,
	}
}

// Apply is idempotent: entities match by name, catalog rows by service type
// and entity, plans by key.
func (s *Seeder) Apply(ctx context.Context, m Manifest) (*Report, error) {
	report := &Report{}

	byName, err := s.ensureEntities(ctx, m.Entities, report)
	if err != nil {
		return report, err
	}
	if err := s.ensureCatalog(ctx, m.Catalog, byName, report); err != nil {
		return report, err
	}
	if err := s.ensurePlans(ctx, m.Plans, report); err != nil {
		return report, err
	}

	s.log.Info("seed applied",
		zap.Int("entities_created", report.EntitiesCreated),
		zap.Int("catalog_created", report.CatalogCreated),
		zap.Int("plans_created", report.PlansCreated),
	)
	return report, nil
}

func (s *Seeder) ensureEntities(ctx context.Context, seeds []EntitySeed, report *Report) (map[string]snowflake.ID, error) {
	existing, err := s.entitySvc.List(ctx)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]snowflake.ID, len(existing)+len(seeds))
	for _, e := range existing {
		byName[entityKey(e.Name)] = e.ID
	}

	for _, seed := range seeds {
		if _, ok := byName[entityKey(seed.Name)]; ok {
			report.EntitiesExisted++
			continue
		}
		created, err := s.entitySvc.Create(ctx, entitydomain.CreateEntityRequest{
			Name:         seed.Name,
			VatThreshold: seed.VatThreshold,
		})
		if err != nil {
			return nil, fmt.Errorf("entity %q: %w", seed.Name, err)
		}
		byName[entityKey(created.Name)] = created.ID
		report.EntitiesCreated++
	}
	return byName, nil
}

func (s *Seeder) ensureCatalog(ctx context.Context, seeds []CatalogSeed, byName map[string]snowflake.ID, report *Report) error {
	current, err := s.entityRepo.ListActiveCatalog(ctx, s.db)
	if err != nil {
		return err
	}
	present := make(map[string]struct{}, len(current))
	for _, item := range current {
		if item.PreferredEntityID != nil {
			present[catalogKey(item.ServiceType, *item.PreferredEntityID)] = struct{}{}
		}
	}

	for _, seed := range seeds {
		entityID, ok := byName[entityKey(seed.Entity)]
		if !ok {
			return fmt.Errorf("catalog %q: %w: %s", seed.Name, ErrUnknownEntity, seed.Entity)
		}
		key := catalogKey(seed.ServiceType, entityID)
		if _, ok := present[key]; ok {
			report.CatalogExisted++
			continue
		}
		if _, err := s.entitySvc.AddCatalogEntry(ctx, entitydomain.CreateCatalogRequest{
			ServiceType:       seed.ServiceType,
			Name:              seed.Name,
			PreferredEntityID: entityID,
			MembershipTypes:   seed.MembershipTypes,
		}); err != nil {
			return fmt.Errorf("catalog %q: %w", seed.Name, err)
		}
		present[key] = struct{}{}
		report.CatalogCreated++
	}
	return nil
}

func (s *Seeder) ensurePlans(ctx context.Context, seeds []PlanSeed, report *Report) error {
	for _, seed := range seeds {
		key := strings.ToLower(strings.TrimSpace(seed.Key))
		if key == "" {
			return registrationdomain.ErrInvalidPlanKey
		}
		if seed.MonthlyPrice <= 0 {
			return fmt.Errorf("plan %q: monthly price must be positive", key)
		}
		inserted, err := s.planRepo.InsertPlan(ctx, s.db, &registrationdomain.MembershipPlan{
			ID:             s.genID.Generate(),
			PlanKey:        key,
			Name:           strings.TrimSpace(seed.Name),
			MembershipType: strings.ToUpper(strings.TrimSpace(seed.MembershipType)),
			MonthlyPrice:   seed.MonthlyPrice,
			IsActive:       !seed.Inactive,
			CreatedAt:      s.clock.Now(),
		})
		if err != nil {
			return fmt.Errorf("plan %q: %w", key, err)
		}
		if inserted {
			report.PlansCreated++
		} else {
			report.PlansExisted++
		}
	}
	return nil
}

func entityKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func catalogKey(serviceType string, entityID snowflake.ID) string {
	return strings.ToUpper(strings.TrimSpace(serviceType)) + ":" + entityID.String()
}
