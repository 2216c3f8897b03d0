package model

import (
	"time"

	"gorm.io/datatypes"
)

// ReadingQuestionType distinguishes free-text from multiple-choice items
type ReadingQuestionType string

const (
	ReadingQuestionText   ReadingQuestionType = "text"
	ReadingQuestionChoice ReadingQuestionType = "choice"
)

// ReadingPassage is a text with its questions
type ReadingPassage struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Title     string    `gorm:"type:varchar(255);not null" json:"title"`
	Text      string    `gorm:"type:text;not null" json:"text"`
	Level     string    `gorm:"type:varchar(20)" json:"level,omitempty"`
	IsActive  bool      `gorm:"not null;default:true;index" json:"is_active"`

	Questions []ReadingQuestion `gorm:"foreignKey:PassageID;constraint:OnDelete:CASCADE" json:"questions,omitempty"`
}

// TableName specifies the table name for ReadingPassage
func (ReadingPassage) TableName() string {
	return "reading_passages"
}

// ReadingQuestion belongs to a passage
type ReadingQuestion struct {
	ID            uint                `gorm:"primaryKey" json:"id"`
	PassageID     uint                `gorm:"not null;uniqueIndex:idx_reading_question_index,priority:1" json:"passage_id"`
	Index         int                 `gorm:"column:question_index;not null;uniqueIndex:idx_reading_question_index,priority:2" json:"index"`
	Text          string              `gorm:"type:text;not null" json:"text"`
	Type          ReadingQuestionType `gorm:"type:varchar(20);not null;default:'text'" json:"type"`
	CorrectAnswer string              `gorm:"type:text" json:"-"`

	Variants []ReadingVariant `gorm:"foreignKey:QuestionID;constraint:OnDelete:CASCADE" json:"variants,omitempty"`
}

// TableName specifies the table name for ReadingQuestion
func (ReadingQuestion) TableName() string {
	return "reading_questions"
}

// ReadingVariant is one option of a multiple-choice question
type ReadingVariant struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	QuestionID uint   `gorm:"not null;index" json:"question_id"`
	Text       string `gorm:"type:text;not null" json:"text"`
	IsCorrect  bool   `gorm:"not null;default:false" json:"-"`
}

// TableName specifies the table name for ReadingVariant
func (ReadingVariant) TableName() string {
	return "reading_variants"
}

// Reading is one attempt of the reading test over a set of passages
type Reading struct {
	ID        uint          `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
	UserID    uint          `gorm:"not null;index" json:"user_id"`
	Status    SessionStatus `gorm:"type:varchar(20);not null;default:'started';index" json:"status"`
	StartTime time.Time     `gorm:"not null" json:"start_time"`
	EndTime   *time.Time    `json:"end_time,omitempty"`

	Passages []ReadingPassage `gorm:"many2many:reading_session_passages;constraint:OnDelete:CASCADE" json:"passages,omitempty"`
	Answers  []ReadingAnswer  `gorm:"foreignKey:ReadingID;constraint:OnDelete:CASCADE" json:"answers,omitempty"`
	Analysis *ReadingAnalyse  `gorm:"foreignKey:ReadingID;constraint:OnDelete:CASCADE" json:"analysis,omitempty"`
}

// TableName specifies the table name for Reading
func (Reading) TableName() string {
	return "readings"
}

// ReadingAnswer stores the user's response with correctness computed at submission
type ReadingAnswer struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	ReadingID  uint      `gorm:"not null;uniqueIndex:idx_reading_answer_question,priority:1" json:"reading_id"`
	UserID     uint      `gorm:"not null;index" json:"user_id"`
	PassageID  uint      `gorm:"not null;index" json:"passage_id"`
	QuestionID uint      `gorm:"not null;uniqueIndex:idx_reading_answer_question,priority:2" json:"question_id"`
	VariantID  *uint     `json:"variant_id,omitempty"`
	Text       string    `gorm:"type:text" json:"text,omitempty"`
	IsCorrect  bool      `gorm:"not null;default:false" json:"is_correct"`
}

// TableName specifies the table name for ReadingAnswer
func (ReadingAnswer) TableName() string {
	return "reading_answers"
}

// PassageResult is the per-passage part of a reading analysis
type PassageResult struct {
	PassageID       uint    `json:"passage_id"`
	Title           string  `json:"title"`
	CorrectAnswers  int     `json:"correct_answers"`
	TotalQuestions  int     `json:"total_questions"`
	OverallScore    float64 `json:"overall_score"`
	DurationSeconds int     `json:"duration_seconds"`
	Feedback        string  `json:"feedback"`
}

// ReadingAnalyse is the graded result of a completed reading session
type ReadingAnalyse struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	ReadingID       uint           `gorm:"not null;uniqueIndex" json:"reading_id"`
	UserID          uint           `gorm:"not null;index" json:"user_id"`
	CorrectAnswers  int            `gorm:"not null;default:0" json:"correct_answers"`
	TotalQuestions  int            `gorm:"not null;default:0" json:"total_questions"`
	OverallScore    float64        `gorm:"type:numeric(3,1);not null;default:0" json:"overall_score"`
	DurationSeconds int            `gorm:"not null;default:0" json:"duration_seconds"`
	Passages        datatypes.JSON `gorm:"type:jsonb" json:"passages"`
	Status          AnalysisStatus `gorm:"type:varchar(20);not null;default:'completed'" json:"status"`
	AnalysisVersion int            `gorm:"not null;default:1" json:"analysis_version"`
}

// TableName specifies the table name for ReadingAnalyse
func (ReadingAnalyse) TableName() string {
	return "reading_analyses"
}
