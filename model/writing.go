package model

import (
	"time"

	"gorm.io/datatypes"
)

// Writing is one attempt of the two-task writing test
type Writing struct {
	ID        uint          `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
	UserID    uint          `gorm:"not null;index" json:"user_id"`
	Status    SessionStatus `gorm:"type:varchar(20);not null;default:'started';index" json:"status"`
	StartTime time.Time     `gorm:"not null" json:"start_time"`
	EndTime   *time.Time    `json:"end_time,omitempty"`
	Lang      string        `gorm:"type:varchar(8);not null;default:'en'" json:"lang"`

	Part1    *WritingPart1   `gorm:"foreignKey:WritingID;constraint:OnDelete:CASCADE" json:"part1,omitempty"`
	Part2    *WritingPart2   `gorm:"foreignKey:WritingID;constraint:OnDelete:CASCADE" json:"part2,omitempty"`
	Analysis *WritingAnalyse `gorm:"foreignKey:WritingID;constraint:OnDelete:CASCADE" json:"analysis,omitempty"`
}

// TableName specifies the table name for Writing
func (Writing) TableName() string {
	return "writings"
}

// WritingPart1 is the chart description task
type WritingPart1 struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	WritingID   uint           `gorm:"not null;uniqueIndex" json:"writing_id"`
	Question    string         `gorm:"type:text;not null" json:"question"`
	DiagramPath string         `gorm:"type:varchar(512)" json:"diagram_path"`
	DiagramURL  string         `gorm:"type:varchar(512)" json:"diagram_url"`
	DiagramData datatypes.JSON `gorm:"type:jsonb" json:"diagram_data"`
	Answer      string         `gorm:"type:text" json:"answer"`
}

// TableName specifies the table name for WritingPart1
func (WritingPart1) TableName() string {
	return "writing_part1"
}

// WritingPart2 is the essay task
type WritingPart2 struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	WritingID uint   `gorm:"not null;uniqueIndex" json:"writing_id"`
	Question  string `gorm:"type:text;not null" json:"question"`
	Answer    string `gorm:"type:text" json:"answer"`
}

// TableName specifies the table name for WritingPart2
func (WritingPart2) TableName() string {
	return "writing_part2"
}

// CriterionResult is one scored criterion of an AI-graded analysis
type CriterionResult struct {
	Score    float64 `json:"score"`
	Feedback string  `json:"feedback"`
}

// Criteria keys shared by writing and speaking analyses
const (
	CriterionTaskAchievement   = "task_achievement"
	CriterionLexicalResource   = "lexical_resource"
	CriterionCoherenceCohesion = "coherence_and_cohesion"
	CriterionGrammaticalRange  = "grammatical_range_and_accuracy"
	CriterionWordCount         = "word_count"
	CriterionFluencyCoherence  = "fluency_and_coherence"
	CriterionPronunciation     = "pronunciation"
)

// WritingAnalyse is the graded result of a completed writing session
type WritingAnalyse struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	WritingID        uint           `gorm:"not null;uniqueIndex" json:"writing_id"`
	UserID           uint           `gorm:"not null;index" json:"user_id"`
	Criteria         datatypes.JSON `gorm:"type:jsonb" json:"criteria"`
	OverallBandScore float64        `gorm:"type:numeric(3,1);not null;default:0" json:"overall_band_score"`
	DurationSeconds  int            `gorm:"not null;default:0" json:"duration_seconds"`
	Status           AnalysisStatus `gorm:"type:varchar(20);not null;default:'completed'" json:"status"`
	AnalysisVersion  int            `gorm:"not null;default:1" json:"analysis_version"`
}

// TableName specifies the table name for WritingAnalyse
func (WritingAnalyse) TableName() string {
	return "writing_analyses"
}
