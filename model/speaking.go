package model

import (
	"time"

	"gorm.io/datatypes"
)

// Speaking is one attempt of the three-part speaking test
type Speaking struct {
	ID        uint          `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
	UserID    uint          `gorm:"not null;index" json:"user_id"`
	Status    SessionStatus `gorm:"type:varchar(20);not null;default:'started';index" json:"status"`
	StartTime time.Time     `gorm:"not null" json:"start_time"`
	EndTime   *time.Time    `json:"end_time,omitempty"`
	Lang      string        `gorm:"type:varchar(8);not null;default:'en'" json:"lang"`

	Questions []SpeakingQuestion `gorm:"foreignKey:SpeakingID;constraint:OnDelete:CASCADE" json:"questions,omitempty"`
	Analysis  *SpeakingAnalyse   `gorm:"foreignKey:SpeakingID;constraint:OnDelete:CASCADE" json:"analysis,omitempty"`
}

// TableName specifies the table name for Speaking
func (Speaking) TableName() string {
	return "speakings"
}

// SpeakingQuestion is the prompt of one speaking part
type SpeakingQuestion struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	SpeakingID uint   `gorm:"not null;uniqueIndex:idx_speaking_question_part,priority:1" json:"speaking_id"`
	Part       int    `gorm:"not null;uniqueIndex:idx_speaking_question_part,priority:2;check:chk_speaking_part,part BETWEEN 1 AND 3" json:"part"`
	Title      string `gorm:"type:varchar(255)" json:"title"`
	Content    string `gorm:"type:text" json:"content"`

	Answer *SpeakingAnswer `gorm:"foreignKey:QuestionID;constraint:OnDelete:CASCADE" json:"answer,omitempty"`
}

// TableName specifies the table name for SpeakingQuestion
func (SpeakingQuestion) TableName() string {
	return "speaking_questions"
}

// SpeakingAnswer holds the text and/or recording for one part
type SpeakingAnswer struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	SpeakingID uint      `gorm:"not null;index" json:"speaking_id"`
	QuestionID uint      `gorm:"not null;uniqueIndex" json:"question_id"`
	TextAnswer string    `gorm:"type:text" json:"text_answer,omitempty"`
	AudioURI   string    `gorm:"type:varchar(512)" json:"audio_uri,omitempty"`
}

// TableName specifies the table name for SpeakingAnswer
func (SpeakingAnswer) TableName() string {
	return "speaking_answers"
}

// SpeakingAnalyse is the graded result of a completed speaking session
type SpeakingAnalyse struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	SpeakingID       uint           `gorm:"not null;uniqueIndex" json:"speaking_id"`
	UserID           uint           `gorm:"not null;index" json:"user_id"`
	Criteria         datatypes.JSON `gorm:"type:jsonb" json:"criteria"`
	Transcripts      datatypes.JSON `gorm:"type:jsonb" json:"transcripts,omitempty"`
	OverallBandScore float64        `gorm:"type:numeric(3,1);not null;default:0" json:"overall_band_score"`
	DurationSeconds  int            `gorm:"not null;default:0" json:"duration_seconds"`
	Status           AnalysisStatus `gorm:"type:varchar(20);not null;default:'completed'" json:"status"`
	AnalysisVersion  int            `gorm:"not null;default:1" json:"analysis_version"`
}

// TableName specifies the table name for SpeakingAnalyse
func (SpeakingAnalyse) TableName() string {
	return "speaking_analyses"
}
