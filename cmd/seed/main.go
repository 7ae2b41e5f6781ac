package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"tableside/internal/reservations"
	"tableside/internal/shared/config"
	"tableside/internal/shared/constants"
	"tableside/internal/shared/database"
	"tableside/internal/subscriptions"
	"tableside/internal/users"
	"tableside/internal/waitlist"
	"tableside/pkg/cache"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type Seeder struct {
	db *database.DB
}

func main() {
	fmt.Println("🌱 Starting Tableside Database Seeder...")

	_ = godotenv.Load()
	cfg := config.Load()

	db, err := database.InitDB(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	seeder := &Seeder{db: db}

	fmt.Println("\n🧹 Cleaning database...")
	if err := seeder.CleanDatabase(); err != nil {
		log.Fatalf("Failed to clean database: %v", err)
	}
	fmt.Println("✅ Database cleaned successfully")

	fmt.Println("\n🌱 Seeding database...")
	if err := seeder.SeedAll(context.Background()); err != nil {
		log.Fatalf("Failed to seed database: %v", err)
	}
	fmt.Println("✅ Database seeded successfully")
}

// CleanDatabase empties every table, children first
func (s *Seeder) CleanDatabase() error {
	models := database.Models()

	return s.db.GetSQL().Transaction(func(tx *gorm.DB) error {
		for i := len(models) - 1; i >= 0; i-- {
			if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(models[i]).Error; err != nil {
				return fmt.Errorf("failed to clean %T: %w", models[i], err)
			}
		}
		return nil
	})
}

func (s *Seeder) SeedAll(ctx context.Context) error {
	if err := s.SeedUsers(); err != nil {
		return fmt.Errorf("failed to seed users: %w", err)
	}
	if err := s.SeedPlans(ctx); err != nil {
		return fmt.Errorf("failed to seed plans: %w", err)
	}
	if err := s.SeedWaitlist(); err != nil {
		return fmt.Errorf("failed to seed waitlist: %w", err)
	}
	return nil
}

// SeedUsers creates the owner and a floor staff account (password "qwerty")
func (s *Seeder) SeedUsers() error {
	fmt.Println("  👤 Seeding users...")

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte("qwerty"), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	usersData := []struct {
		firstName string
		lastName  string
		email     string
		role      users.Role
	}{
		{"Olive", "Owner", "owner@tableside.app", users.RoleOwner},
		{"Sam", "Server", "staff@tableside.app", users.RoleStaff},
	}

	for _, userData := range usersData {
		user := users.User{
			FirstName: userData.firstName,
			LastName:  userData.lastName,
			Email:     userData.email,
			Password:  string(hashedPassword),
			Role:      userData.role,
		}
		if err := s.db.GetSQL().Create(&user).Error; err != nil {
			return fmt.Errorf("failed to create user %s: %w", userData.email, err)
		}
		fmt.Printf("    ✅ Created user: %s (%s)\n", user.Email, user.Role)
	}
	return nil
}

func priceID(env, fallback string) string {
	if v := os.Getenv(env); v != "" {
		return v
	}
	return fallback
}

// SeedPlans upserts the plan catalog; price ids come from the environment
func (s *Seeder) SeedPlans(ctx context.Context) error {
	fmt.Println("  💳 Seeding plans...")
	repo := subscriptions.NewRepository(s.db.GetSQL())

	plans := []subscriptions.Plan{
		{
			Code: "starter", Name: "Starter", Description: "Waitlist and reservations for a single dining room",
			PriceCents: 2900, Currency: "usd", Interval: subscriptions.IntervalMonth,
			ProviderPriceID: priceID("STRIPE_PRICE_STARTER", "price_starter_monthly"),
			Features:        subscriptions.FeatureList{"waitlist", "reservations", "email_notifications"},
			Limits: subscriptions.UsageLimits{
				subscriptions.UsageReservations:    300,
				subscriptions.UsageWaitlistEntries: 500,
				subscriptions.UsageStaffAccounts:   3,
			},
			TrialDays: 14, IsActive: true, SortOrder: 1,
		},
		{
			Code: "pro", Name: "Pro", Description: "Unlimited covers with priority support",
			PriceCents: 7900, Currency: "usd", Interval: subscriptions.IntervalMonth,
			ProviderPriceID: priceID("STRIPE_PRICE_PRO", "price_pro_monthly"),
			Features:        subscriptions.FeatureList{"waitlist", "reservations", "email_notifications", "analytics", "priority_support"},
			Limits: subscriptions.UsageLimits{
				subscriptions.UsageReservations:    subscriptions.Unlimited,
				subscriptions.UsageWaitlistEntries: subscriptions.Unlimited,
				subscriptions.UsageStaffAccounts:   25,
			},
			TrialDays: 14, IsActive: true, SortOrder: 2,
		},
		{
			Code: "pro_yearly", Name: "Pro (yearly)", Description: "Pro billed annually",
			PriceCents: 79000, Currency: "usd", Interval: subscriptions.IntervalYear,
			ProviderPriceID: priceID("STRIPE_PRICE_PRO_YEARLY", "price_pro_yearly"),
			Features:        subscriptions.FeatureList{"waitlist", "reservations", "email_notifications", "analytics", "priority_support"},
			Limits: subscriptions.UsageLimits{
				subscriptions.UsageReservations:    subscriptions.Unlimited,
				subscriptions.UsageWaitlistEntries: subscriptions.Unlimited,
				subscriptions.UsageStaffAccounts:   25,
			},
			IsActive: true, SortOrder: 3,
		},
	}

	for i := range plans {
		if err := repo.UpsertPlan(ctx, &plans[i]); err != nil {
			return err
		}
		fmt.Printf("    ✅ Plan: %s (%s)\n", plans[i].Name, plans[i].ProviderPriceID)
	}

	// drop the cached catalog
	if err := cache.NewService(s.db.GetRedisClient()).DeletePattern(ctx, constants.PATTERN_INVALIDATE_PLANS); err != nil {
		fmt.Printf("    ⚠️  Could not invalidate cached plans: %v\n", err)
	}
	return nil
}

// SeedWaitlist queues a few parties for today and seats one of them
func (s *Seeder) SeedWaitlist() error {
	fmt.Println("  🍽️  Seeding waitlist...")
	today := time.Now().Format(waitlist.DateLayout)

	for i := 0; i < 5; i++ {
		entry := waitlist.Entry{
			CustomerName:      gofakeit.Name(),
			CustomerEmail:     gofakeit.Email(),
			CustomerPhone:     gofakeit.Phone(),
			PartySize:         gofakeit.IntRange(1, 8),
			Date:              today,
			Time:              fmt.Sprintf("%02d:%02d", 18+i/2, (i%2)*30),
			SpecialRequests:   gofakeit.RandomString([]string{"", "High chair", "Window seat", "Birthday"}),
			Status:            waitlist.StatusWaiting,
			EstimatedWaitTime: i * 15,
		}
		if i == 0 {
			entry.Status = waitlist.StatusSeated
		}
		if err := s.db.GetSQL().Create(&entry).Error; err != nil {
			return fmt.Errorf("failed to create waitlist entry: %w", err)
		}
		if entry.IsSeated() {
			if err := s.db.GetSQL().Create(entry.ToReservation()).Error; err != nil {
				return fmt.Errorf("failed to create reservation: %w", err)
			}
		}
	}

	var count int64
	s.db.GetSQL().Model(&reservations.Reservation{}).Count(&count)
	fmt.Printf("    ✅ Waitlist seeded, %d reservation(s)\n", count)
	return nil
}
