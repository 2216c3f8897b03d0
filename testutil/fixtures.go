package testutil

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/speaknowly/speaknowly-api/model"
	"gorm.io/gorm"
)

// DefaultTariff returns the default tariff, creating it on first use
func DefaultTariff(t *testing.T, db *gorm.DB) *model.Tariff {
	t.Helper()
	var tariff model.Tariff
	err := db.Where(model.Tariff{IsDefault: true}).
		Attrs(model.Tariff{Name: "Free", IsActive: true}).
		FirstOrCreate(&tariff).Error
	if err != nil {
		t.Fatalf("default tariff: %v", err)
	}
	return &tariff
}

// PremiumTariff creates a paid tariff
func PremiumTariff(t *testing.T, db *gorm.DB) *model.Tariff {
	t.Helper()
	tariff := model.Tariff{Name: "Premium " + uuid.NewString()[:8], Price: 100, TokensGrant: 50, DurationDays: 30, IsActive: true}
	if err := db.Create(&tariff).Error; err != nil {
		t.Fatalf("premium tariff: %v", err)
	}
	return &tariff
}

// SetPrices stores the same regular and trial price for every kind
func SetPrices(t *testing.T, db *gorm.DB, regular, trial int) {
	t.Helper()
	for _, kind := range model.AllTestKinds {
		price := model.TestPrice{TestKind: kind, PriceRegular: regular, PriceTrial: trial}
		if err := db.Create(&price).Error; err != nil {
			t.Fatalf("test price: %v", err)
		}
	}
}

// UserOption customizes NewUser
type UserOption func(*model.User)

// WithTariff puts the user on tariff
func WithTariff(tariff *model.Tariff) UserOption {
	return func(u *model.User) {
		u.TariffID = &tariff.ID
		u.Tariff = nil
	}
}

// Inactive creates the user unverified and inactive
func Inactive() UserOption {
	return func(u *model.User) {
		u.IsActive = false
		u.IsVerified = false
	}
}

// Staff makes the user a staff member
func Staff() UserOption {
	return func(u *model.User) { u.IsStaff = true }
}

// NewUser creates an active user on the default tariff holding balance tokens.
// A non-zero balance is backed by one ledger row so the ledger stays consistent.
func NewUser(t *testing.T, db *gorm.DB, balance int, opts ...UserOption) *model.User {
	t.Helper()
	tariff := DefaultTariff(t, db)
	user := model.User{
		Email:      uuid.NewString()[:12] + "@example.com",
		FirstName:  "Test",
		LastName:   "User",
		IsActive:   true,
		IsVerified: true,
		TariffID:   &tariff.ID,
	}
	for _, opt := range opts {
		opt(&user)
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}

	if balance > 0 {
		tx := model.TokenTransaction{
			UserID:       user.ID,
			Kind:         model.TransactionCustomAddition,
			Amount:       balance,
			BalanceAfter: balance,
			Description:  "fixture",
			CreatedAt:    time.Now().UTC().Add(-time.Hour),
		}
		if err := db.Create(&tx).Error; err != nil {
			t.Fatalf("fixture ledger row: %v", err)
		}
		if err := db.Model(&user).UpdateColumn("token_balance", balance).Error; err != nil {
			t.Fatalf("fixture balance: %v", err)
		}
		user.TokenBalance = balance
	}

	if err := db.Preload("Tariff").First(&user, user.ID).Error; err != nil {
		t.Fatalf("reload user: %v", err)
	}
	return &user
}

// ListeningExam creates an active exam with two questions:
// Q1 accepts "a" and Q2 (multiple answers) accepts {"b","c"}.
func ListeningExam(t *testing.T, db *gorm.DB) *model.ListeningExam {
	t.Helper()
	exam := model.ListeningExam{
		Title:    "E1",
		IsActive: true,
		Parts: []model.ListeningPart{{
			PartNumber: 1,
			AudioURI:   "audio/e1.mp3",
			Sections: []model.ListeningSection{
				{
					SectionNumber: 1,
					StartIndex:    1,
					EndIndex:      2,
					QuestionType:  model.QuestionFormCompletion,
					Questions: []model.ListeningQuestion{
						{Index: 1, QuestionText: "Q1", CorrectAnswer: model.CorrectAnswer{Values: []string{"a"}}},
					},
				},
				{
					SectionNumber: 2,
					StartIndex:    2,
					EndIndex:      3,
					QuestionType:  model.QuestionMultipleAnswers,
					Questions: []model.ListeningQuestion{
						{Index: 2, QuestionText: "Q2", CorrectAnswer: model.CorrectAnswer{Values: []string{"b", "c"}}},
					},
				},
			},
		}},
	}
	if err := db.Create(&exam).Error; err != nil {
		t.Fatalf("listening exam: %v", err)
	}
	return &exam
}

// ReadingPassage creates an active passage with one text and one choice question.
// The text answer is "Mesopotamia" and the correct variant is returned second.
func ReadingPassage(t *testing.T, db *gorm.DB, title string) *model.ReadingPassage {
	t.Helper()
	passage := model.ReadingPassage{
		Title:    title,
		Text:     "Glass was first made in Mesopotamia.",
		IsActive: true,
		Questions: []model.ReadingQuestion{
			{Index: 1, Text: "Where?", Type: model.ReadingQuestionText, CorrectAnswer: "Mesopotamia"},
			{
				Index: 2,
				Text:  "Who?",
				Type:  model.ReadingQuestionChoice,
				Variants: []model.ReadingVariant{
					{Text: "Greeks"},
					{Text: "Romans", IsCorrect: true},
				},
			},
		},
	}
	if err := db.Create(&passage).Error; err != nil {
		t.Fatalf("reading passage: %v", err)
	}
	return &passage
}
