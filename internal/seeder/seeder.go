package seeder

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"log/slog"

	"github.com/karloscodes/cartridge"
	"gorm.io/gorm"

	"attriflow/internal/attribution"
	"attriflow/internal/insights"
	"attriflow/internal/journeys"
	"attriflow/internal/users"
)

// Seeder populates the database with realistic demo journeys: multi-touch
// paths across marketing channels, a share of which convert, followed by a
// full attribution backfill so the dashboard has data on first login.
type Seeder struct {
	DBManager  cartridge.DBManager
	Logger     *slog.Logger
	TouchCount int
}

// NewSeeder creates a new seeder instance
func NewSeeder(dbManager cartridge.DBManager, logger *slog.Logger, touchCount int) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Seeder{
		DBManager:  dbManager,
		Logger:     logger,
		TouchCount: touchCount,
	}
}

// touchSpec describes one step of a journey template: the landing URL with
// its traffic tags plus the referrer that brought the visitor in.
type touchSpec struct {
	path     string
	query    string
	referrer string
}

// journeyTemplate is a realistic multi-touch path to (maybe) conversion.
type journeyTemplate struct {
	touches        []touchSpec
	conversionName string
	valueMin       float64
	valueMax       float64
	converts       bool
}

// journeyTemplates covers the channel mix the classifier recognizes: paid
// search, paid social, email, organic search and social, referral and direct.
var journeyTemplates = []journeyTemplate{
	{
		// Paid search -> email nurture -> direct conversion
		touches: []touchSpec{
			{path: "/pricing", query: "utm_source=google&utm_medium=cpc&utm_campaign=spring_sale&gclid=Cj0KCQ", referrer: "https://www.google.com/"},
			{path: "/features", query: "utm_source=mailchimp&utm_medium=email&utm_campaign=spring_sale", referrer: ""},
			{path: "/signup", query: "", referrer: ""},
		},
		conversionName: "subscription_started",
		valueMin:       29, valueMax: 299,
		converts: true,
	},
	{
		// LinkedIn ad -> organic search return -> demo request
		touches: []touchSpec{
			{path: "/", query: "utm_source=linkedin&utm_medium=paid_social&utm_campaign=b2b_awareness&li_fat_id=abc123", referrer: "https://www.linkedin.com/"},
			{path: "/customers", query: "", referrer: "https://www.google.com/"},
			{path: "/demo", query: "", referrer: "https://www.google.com/"},
		},
		conversionName: "demo_requested",
		valueMin:       500, valueMax: 2500,
		converts: true,
	},
	{
		// Newsletter reader converting on the second email
		touches: []touchSpec{
			{path: "/blog/attribution-guide", query: "utm_source=klaviyo&utm_medium=newsletter&utm_campaign=weekly_digest", referrer: ""},
			{path: "/pricing", query: "utm_source=klaviyo&utm_medium=newsletter&utm_campaign=weekly_digest", referrer: ""},
		},
		conversionName: "subscription_started",
		valueMin:       29, valueMax: 99,
		converts: true,
	},
	{
		// Facebook ad -> retargeting display -> purchase
		touches: []touchSpec{
			{path: "/products/analytics", query: "utm_source=facebook&utm_medium=paid_social&utm_campaign=q3_launch&fbclid=IwAR0", referrer: "https://www.facebook.com/"},
			{path: "/products/analytics", query: "utm_source=gdn&utm_medium=display&utm_campaign=q3_retargeting", referrer: ""},
			{path: "/checkout", query: "", referrer: ""},
		},
		conversionName: "purchase",
		valueMin:       49, valueMax: 499,
		converts: true,
	},
	{
		// Long research journey: organic, social, referral, then paid close
		touches: []touchSpec{
			{path: "/blog/what-is-attribution", query: "", referrer: "https://www.google.com/"},
			{path: "/", query: "", referrer: "https://www.reddit.com/r/marketing/"},
			{path: "/docs/getting-started", query: "", referrer: "https://news.ycombinator.com/"},
			{path: "/pricing", query: "utm_source=google&utm_medium=cpc&utm_campaign=brand&gclid=EAIaIQ", referrer: "https://www.google.com/"},
			{path: "/signup", query: "", referrer: ""},
		},
		conversionName: "subscription_started",
		valueMin:       99, valueMax: 999,
		converts: true,
	},
	{
		// Organic browse, no conversion
		touches: []touchSpec{
			{path: "/blog/attribution-guide", query: "", referrer: "https://duckduckgo.com/"},
			{path: "/blog/channel-mix", query: "", referrer: ""},
		},
		converts: false,
	},
	{
		// Paid click that bounced
		touches: []touchSpec{
			{path: "/", query: "utm_source=bing&utm_medium=cpc&utm_campaign=competitor&msclkid=xyz", referrer: "https://www.bing.com/"},
		},
		converts: false,
	},
	{
		// Social browser, still considering
		touches: []touchSpec{
			{path: "/", query: "", referrer: "https://twitter.com/"},
			{path: "/features", query: "", referrer: ""},
			{path: "/pricing", query: "", referrer: ""},
		},
		converts: false,
	},
}

// Run executes the seeding process
func (s *Seeder) Run(ctx context.Context) error {
	start := time.Now()
	s.Logger.Info("Starting database seeding...", slog.Int("touchCount", s.TouchCount))

	db := s.DBManager.GetConnection()

	if err := s.seedUser(); err != nil {
		return fmt.Errorf("failed to seed user: %w", err)
	}

	if err := attribution.EnsureStandardModels(db, s.Logger); err != nil {
		return fmt.Errorf("failed to seed attribution models: %w", err)
	}

	if err := s.generateJourneys(ctx); err != nil {
		return fmt.Errorf("failed to generate journeys: %w", err)
	}

	s.Logger.Info("Processing generated touch events...")
	closed, err := s.processAllTouchEvents()
	if err != nil {
		return fmt.Errorf("failed to process touch events: %w", err)
	}

	s.Logger.Info("Backfilling attribution results...", slog.Int("journeys", len(closed)))
	recalculated := attribution.RecalculateJourneys(db, s.Logger, closed)
	s.Logger.Info("Attribution backfill complete", slog.Int("recalculated", recalculated))

	windowEnd := time.Now().UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)
	windowStart := windowEnd.AddDate(0, 0, -30)
	written, err := insights.GenerateForAllActiveModels(ctx, db, s.Logger, windowStart, windowEnd)
	if err != nil {
		return fmt.Errorf("failed to generate insights: %w", err)
	}
	s.Logger.Info("Insight rollups generated", slog.Int("rows", written))

	s.Logger.Info("Seeding completed successfully", slog.Duration("elapsed", time.Since(start)))
	return nil
}

// seedUser ensures the default admin user exists
func (s *Seeder) seedUser() error {
	db := s.DBManager.GetConnection()
	user, err := users.FindByEmail(db, "admin@example.com")
	if err == nil {
		s.Logger.Info("Admin user already exists", slog.String("email", user.Email))
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to check for existing user: %w", err)
	}

	s.Logger.Info("Creating admin user")
	if err := users.CreateAdminUser(db, "admin@example.com", "password"); err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}
	return nil
}

// generateJourneys feeds touch events through the same collect path the
// public API uses, so seeded data exercises classification, journey assembly
// and campaign linking exactly like production traffic.
func (s *Seeder) generateJourneys(ctx context.Context) error {
	ipPool := generateIPPool(150)
	userAgents := getUserAgents()
	touchesCreated := 0

	avgTouchesPerJourney := 3
	numJourneys := s.TouchCount / avgTouchesPerJourney
	if numJourneys < 20 {
		numJourneys = 20
	}

	for journey := 0; journey < numJourneys; journey++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		template := journeyTemplates[rand.IntN(len(journeyTemplates))]
		ip := ipPool[rand.IntN(len(ipPool))]
		userAgent := userAgents[rand.IntN(len(userAgents))]
		customerID := fmt.Sprintf("seed-customer-%05d", journey)

		// Journeys start up to 30 days back; touches spread over hours to
		// days so time-decay credits differ visibly between touchpoints.
		baseTime := time.Now().UTC().Add(-time.Duration(rand.IntN(28*24)+24) * time.Hour)
		cumulative := time.Duration(0)

		for i, touch := range template.touches {
			if i > 0 {
				cumulative += time.Duration(rand.IntN(36)+4) * time.Hour
			}
			timestamp := baseTime.Add(cumulative)

			rawURL := fmt.Sprintf("https://demo.attriflow.test%s", touch.path)
			if touch.query != "" {
				rawURL += "?" + touch.query
			}

			input := &journeys.CollectTouchInput{
				IPAddress:   ip,
				UserAgent:   userAgent,
				CustomerID:  customerID,
				ReferrerURL: touch.referrer,
				EventType:   journeys.TouchEventTypeTouch,
				Timestamp:   timestamp,
				RawURL:      rawURL,
			}

			if err := journeys.CollectTouchEvent(s.DBManager, s.Logger, input); err != nil {
				s.Logger.Error("Failed to collect touch during seeding", slog.Any("error", err))
			} else {
				touchesCreated++
			}
		}

		if template.converts {
			value := template.valueMin + rand.Float64()*(template.valueMax-template.valueMin)
			value = float64(int(value*100)) / 100
			timestamp := baseTime.Add(cumulative + time.Duration(rand.IntN(50)+10)*time.Minute)
			lastPath := template.touches[len(template.touches)-1].path

			input := &journeys.CollectTouchInput{
				IPAddress:      ip,
				UserAgent:      userAgent,
				CustomerID:     customerID,
				EventType:      journeys.TouchEventTypeConversion,
				ConversionName: template.conversionName,
				EventValue:     &value,
				Timestamp:      timestamp,
				RawURL:         fmt.Sprintf("https://demo.attriflow.test%s", lastPath),
			}

			if err := journeys.CollectTouchEvent(s.DBManager, s.Logger, input); err != nil {
				s.Logger.Error("Failed to collect conversion during seeding", slog.Any("error", err))
			}
		}
	}

	s.Logger.Info("Generated template-based journeys",
		slog.Int("journeys", numJourneys),
		slog.Int("touches", touchesCreated))
	return nil
}

// processAllTouchEvents drains the ingest queue and returns the journeys
// closed by conversions so the caller can backfill their attribution.
func (s *Seeder) processAllTouchEvents() ([]uint, error) {
	result, err := journeys.ProcessUnprocessedTouchEvents(s.DBManager, s.Logger, 500)
	if err != nil {
		return nil, err
	}
	s.Logger.Info("Touch events processed",
		slog.Int("touchpoints", result.TouchpointCount),
		slog.Int("conversions", result.ConversionCount))
	return result.ClosedJourneyIDs, nil
}

// generateIPPool creates a pool of plausible public IPs so seeded customers
// spread across GeoIP countries when a database is configured.
func generateIPPool(size int) []string {
	pool := make([]string, 0, size)
	for i := 0; i < size; i++ {
		pool = append(pool, fmt.Sprintf("%d.%d.%d.%d",
			rand.IntN(190)+20, rand.IntN(254)+1, rand.IntN(254)+1, rand.IntN(254)+1))
	}
	return pool
}

// getUserAgents returns common browser user agents
func getUserAgents() []string {
	return []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
		"Mozilla/5.0 (iPhone; CPU iPhone OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1",
		"Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36",
	}
}
