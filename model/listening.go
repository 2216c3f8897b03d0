package model

import (
	"time"

	"gorm.io/datatypes"
)

// ListeningExam is a complete listening test made of up to four parts
type ListeningExam struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Title       string    `gorm:"type:varchar(255);not null" json:"title"`
	Description string    `gorm:"type:text" json:"description"`
	IsActive    bool      `gorm:"not null;default:true;index" json:"is_active"`

	Parts []ListeningPart `gorm:"foreignKey:ExamID;constraint:OnDelete:CASCADE" json:"parts,omitempty"`
}

// TableName specifies the table name for ListeningExam
func (ListeningExam) TableName() string {
	return "listening_exams"
}

// ListeningPart is one recording of an exam
type ListeningPart struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	ExamID     uint   `gorm:"not null;uniqueIndex:idx_listening_part_number,priority:1" json:"exam_id"`
	PartNumber int    `gorm:"not null;uniqueIndex:idx_listening_part_number,priority:2;check:chk_listening_part_number,part_number BETWEEN 1 AND 4" json:"part_number"`
	AudioURI   string `gorm:"type:varchar(512)" json:"audio_uri"`

	Sections []ListeningSection `gorm:"foreignKey:PartID;constraint:OnDelete:CASCADE" json:"sections,omitempty"`
}

// TableName specifies the table name for ListeningPart
func (ListeningPart) TableName() string {
	return "listening_parts"
}

// ListeningSection groups consecutive questions sharing one layout
type ListeningSection struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	PartID        uint           `gorm:"not null;uniqueIndex:idx_listening_section_number,priority:1" json:"part_id"`
	SectionNumber int            `gorm:"not null;uniqueIndex:idx_listening_section_number,priority:2" json:"section_number"`
	StartIndex    int            `gorm:"not null" json:"start_index"`
	EndIndex      int            `gorm:"not null;check:chk_listening_section_range,start_index < end_index" json:"end_index"`
	QuestionType  QuestionType   `gorm:"type:varchar(30);not null" json:"question_type"`
	QuestionText  string         `gorm:"type:text" json:"question_text"`
	Options       datatypes.JSON `gorm:"type:jsonb" json:"options,omitempty"`

	Questions []ListeningQuestion `gorm:"foreignKey:SectionID;constraint:OnDelete:CASCADE" json:"questions,omitempty"`
}

// TableName specifies the table name for ListeningSection
func (ListeningSection) TableName() string {
	return "listening_sections"
}

// ListeningQuestion is a single gradable item
type ListeningQuestion struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	SectionID     uint           `gorm:"not null;uniqueIndex:idx_listening_question_index,priority:1" json:"section_id"`
	Index         int            `gorm:"column:question_index;not null;uniqueIndex:idx_listening_question_index,priority:2" json:"index"`
	QuestionText  string         `gorm:"type:text" json:"question_text"`
	Options       datatypes.JSON `gorm:"type:jsonb" json:"options,omitempty"`
	CorrectAnswer CorrectAnswer  `json:"-"`

	Section *ListeningSection `gorm:"foreignKey:SectionID" json:"-"`
}

// TableName specifies the table name for ListeningQuestion
func (ListeningQuestion) TableName() string {
	return "listening_questions"
}

// ListeningSession is one attempt of a listening exam
type ListeningSession struct {
	ID        uint          `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
	UserID    uint          `gorm:"not null;index" json:"user_id"`
	ExamID    uint          `gorm:"not null;index" json:"exam_id"`
	Status    SessionStatus `gorm:"type:varchar(20);not null;default:'started';index" json:"status"`
	StartTime time.Time     `gorm:"not null" json:"start_time"`
	EndTime   *time.Time    `json:"end_time,omitempty"`
	Lang      string        `gorm:"type:varchar(8);not null;default:'en'" json:"lang"`

	Exam     *ListeningExam    `gorm:"foreignKey:ExamID;constraint:OnDelete:RESTRICT" json:"exam,omitempty"`
	Answers  []ListeningAnswer `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE" json:"answers,omitempty"`
	Analysis *ListeningAnalyse `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE" json:"analysis,omitempty"`
}

// TableName specifies the table name for ListeningSession
func (ListeningSession) TableName() string {
	return "listening_sessions"
}

// ListeningAnswer is the user's response to one question of a session
type ListeningAnswer struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	CreatedAt  time.Time  `json:"created_at"`
	SessionID  uint       `gorm:"not null;uniqueIndex:idx_listening_answer_question,priority:1" json:"session_id"`
	UserID     uint       `gorm:"not null;index" json:"user_id"`
	QuestionID uint       `gorm:"not null;uniqueIndex:idx_listening_answer_question,priority:2" json:"question_id"`
	UserAnswer StringList `json:"user_answer"`
	IsCorrect  bool       `gorm:"not null;default:false" json:"is_correct"`
	Score      int        `gorm:"not null;default:0;check:chk_listening_answer_score,score IN (0, 1)" json:"score"`

	Question *ListeningQuestion `gorm:"foreignKey:QuestionID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName specifies the table name for ListeningAnswer
func (ListeningAnswer) TableName() string {
	return "listening_answers"
}

// ListeningFeedback is the qualitative part of a listening analysis
type ListeningFeedback struct {
	ListeningSkills         string `json:"listening_skills"`
	Concentration           string `json:"concentration"`
	StrategyRecommendations string `json:"strategy_recommendations"`
}

// ListeningAnalyse is the graded result of a completed listening session
type ListeningAnalyse struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	SessionID       uint           `gorm:"not null;uniqueIndex" json:"session_id"`
	UserID          uint           `gorm:"not null;index" json:"user_id"`
	CorrectAnswers  int            `gorm:"not null;default:0" json:"correct_answers"`
	TotalQuestions  int            `gorm:"not null;default:0" json:"total_questions"`
	OverallScore    float64        `gorm:"type:numeric(3,1);not null;default:0" json:"overall_score"`
	DurationSeconds int            `gorm:"not null;default:0" json:"duration_seconds"`
	Feedback        datatypes.JSON `gorm:"type:jsonb" json:"feedback"`
	Status          AnalysisStatus `gorm:"type:varchar(20);not null;default:'completed'" json:"status"`
	AnalysisVersion int            `gorm:"not null;default:1" json:"analysis_version"`
}

// TableName specifies the table name for ListeningAnalyse
func (ListeningAnalyse) TableName() string {
	return "listening_analyses"
}
