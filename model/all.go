package model

// All returns every persisted model in migration order
func All() []interface{} {
	return []interface{}{
		// Accounts & monetization
		&Tariff{},
		&User{},
		&TestPrice{},
		&TokenTransaction{},
		&TariffPayment{},
		&VerificationCode{},
		&JWTTokenBlacklist{},

		// Listening
		&ListeningExam{},
		&ListeningPart{},
		&ListeningSection{},
		&ListeningQuestion{},
		&ListeningSession{},
		&ListeningAnswer{},
		&ListeningAnalyse{},

		// Reading
		&ReadingPassage{},
		&ReadingQuestion{},
		&ReadingVariant{},
		&Reading{},
		&ReadingAnswer{},
		&ReadingAnalyse{},

		// Writing
		&Writing{},
		&WritingPart1{},
		&WritingPart2{},
		&WritingAnalyse{},

		// Speaking
		&Speaking{},
		&SpeakingQuestion{},
		&SpeakingAnswer{},
		&SpeakingAnalyse{},

		// Notifications & operations
		&UserNotification{},
		&OpsNotification{},
		&AnalysisDeadLetter{},
		&CronJobLog{},
	}
}
