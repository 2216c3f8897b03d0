package database

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/speaknowly/speaknowly-api/model"
	"github.com/speaknowly/speaknowly-api/utils/auth"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SeedOptions carries the optional staff account created by SeedAll
type SeedOptions struct {
	AdminEmail    string
	AdminPassword string
	SampleContent bool
}

// Seeder handles database seeding operations
type Seeder struct {
	db *gorm.DB
}

// NewSeeder creates a new seeder instance
func NewSeeder(db *gorm.DB) *Seeder {
	return &Seeder{db: db}
}

// SeedAll runs all seed functions
func (s *Seeder) SeedAll(opts SeedOptions) error {
	log.Info().Msg("starting database seeding")

	if err := s.SeedTariffs(); err != nil {
		return fmt.Errorf("failed to seed tariffs: %w", err)
	}

	if err := s.SeedTestPrices(); err != nil {
		return fmt.Errorf("failed to seed test prices: %w", err)
	}

	if err := s.SeedAdminUser(opts.AdminEmail, opts.AdminPassword); err != nil {
		return fmt.Errorf("failed to seed admin user: %w", err)
	}

	if opts.SampleContent {
		if err := s.SeedListeningExam(); err != nil {
			return fmt.Errorf("failed to seed listening exam: %w", err)
		}
		if err := s.SeedReadingPassages(); err != nil {
			return fmt.Errorf("failed to seed reading passages: %w", err)
		}
	}

	log.Info().Msg("database seeding completed")
	return nil
}

// SeedTariffs creates the free default plan and one paid plan
func (s *Seeder) SeedTariffs() error {
	var count int64
	if err := s.db.Model(&model.Tariff{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		log.Info().Msg("tariffs already exist, skipping")
		return nil
	}

	tariffs := []model.Tariff{
		{Name: "Free", Description: "Trial access", Price: 0, TokensGrant: 0, DurationDays: 0, IsDefault: true, IsActive: true},
		{Name: "Premium", Description: "Monthly plan", Price: 99000, TokensGrant: 300, DurationDays: 30, IsActive: true},
	}
	return s.db.Create(&tariffs).Error
}

// SeedTestPrices sets the token cost of each test kind
func (s *Seeder) SeedTestPrices() error {
	prices := map[model.TestKind][2]int{
		model.TestKindListening: {20, 10},
		model.TestKindReading:   {20, 10},
		model.TestKindWriting:   {30, 15},
		model.TestKindSpeaking:  {30, 15},
	}
	for _, kind := range model.AllTestKinds {
		p := prices[kind]
		price := model.TestPrice{TestKind: kind, PriceRegular: p[0], PriceTrial: p[1]}
		if err := s.db.Where(model.TestPrice{TestKind: kind}).FirstOrCreate(&price).Error; err != nil {
			return err
		}
	}
	return nil
}

// SeedAdminUser creates the default staff user
func (s *Seeder) SeedAdminUser(email, password string) error {
	if email == "" || password == "" {
		log.Warn().Msg("ADMIN_EMAIL and ADMIN_PASSWORD not set, skipping admin user creation")
		return nil
	}

	var existing model.User
	err := s.db.Where("email = ?", model.NormalizeEmail(email)).First(&existing).Error
	if err == nil {
		log.Info().Str("email", existing.Email).Msg("admin user already exists, skipping")
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	passwordHash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	admin := &model.User{
		Email:        email,
		PasswordHash: passwordHash,
		FirstName:    "System",
		LastName:     "Administrator",
		IsActive:     true,
		IsVerified:   true,
		IsStaff:      true,
		IsSuperuser:  true,
	}
	if err := s.db.Create(admin).Error; err != nil {
		return err
	}

	log.Info().Str("email", admin.Email).Msg("created admin user")
	return nil
}

// SeedListeningExam creates a one-part sample exam
func (s *Seeder) SeedListeningExam() error {
	var count int64
	if err := s.db.Model(&model.ListeningExam{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	exam := model.ListeningExam{
		Title:       "Sample Listening Test",
		Description: "Accommodation enquiry",
		IsActive:    true,
		Parts: []model.ListeningPart{{
			PartNumber: 1,
			AudioURI:   "audio/sample_part1.mp3",
			Sections: []model.ListeningSection{
				{
					SectionNumber: 1,
					StartIndex:    1,
					EndIndex:      3,
					QuestionType:  model.QuestionFormCompletion,
					QuestionText:  "Complete the form. Write ONE WORD for each answer.",
					Questions: []model.ListeningQuestion{
						{Index: 1, QuestionText: "Surname", CorrectAnswer: model.CorrectAnswer{Values: []string{"harper"}}},
						{Index: 2, QuestionText: "Street", CorrectAnswer: model.CorrectAnswer{Values: []string{"bridge street"}}},
					},
				},
				{
					SectionNumber: 2,
					StartIndex:    3,
					EndIndex:      5,
					QuestionType:  model.QuestionMultipleAnswers,
					QuestionText:  "Which TWO facilities does the flat have?",
					Options:       datatypes.JSON(`["garden","garage","balcony","gym"]`),
					Questions: []model.ListeningQuestion{
						{Index: 3, QuestionText: "Facilities", CorrectAnswer: model.CorrectAnswer{Values: []string{"garden", "balcony"}}},
					},
				},
			},
		}},
	}
	return s.db.Create(&exam).Error
}

// SeedReadingPassages creates sample passages
func (s *Seeder) SeedReadingPassages() error {
	var count int64
	if err := s.db.Model(&model.ReadingPassage{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	passage := model.ReadingPassage{
		Title:    "The History of Glass",
		Text:     "Glass was first made in Mesopotamia around 3500 BC. The Romans later spread glassmaking across Europe.",
		Level:    "B2",
		IsActive: true,
		Questions: []model.ReadingQuestion{
			{Index: 1, Text: "Where was glass first made?", Type: model.ReadingQuestionText, CorrectAnswer: "Mesopotamia"},
			{
				Index: 2,
				Text:  "Who spread glassmaking across Europe?",
				Type:  model.ReadingQuestionChoice,
				Variants: []model.ReadingVariant{
					{Text: "The Greeks"},
					{Text: "The Romans", IsCorrect: true},
					{Text: "The Egyptians"},
				},
			},
		},
	}
	return s.db.Create(&passage).Error
}
