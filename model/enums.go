package model

import (
	"fmt"
	"strings"
)

// TestKind identifies one of the four IELTS test modules
type TestKind string

const (
	TestKindListening TestKind = "listening"
	TestKindReading   TestKind = "reading"
	TestKindWriting   TestKind = "writing"
	TestKindSpeaking  TestKind = "speaking"
)

// AllTestKinds lists every kind in display order
var AllTestKinds = []TestKind{TestKindListening, TestKindReading, TestKindWriting, TestKindSpeaking}

// Valid reports whether k is a known kind
func (k TestKind) Valid() bool {
	switch k {
	case TestKindListening, TestKindReading, TestKindWriting, TestKindSpeaking:
		return true
	}
	return false
}

// TransactionKind returns the ledger kind used when a session of this kind is paid for
func (k TestKind) TransactionKind() TransactionKind {
	switch k {
	case TestKindListening:
		return TransactionTestListening
	case TestKindReading:
		return TransactionTestReading
	case TestKindWriting:
		return TransactionTestWriting
	case TestKindSpeaking:
		return TransactionTestSpeaking
	}
	return ""
}

// ParseTestKind parses a case-insensitive kind name
func ParseTestKind(s string) (TestKind, error) {
	k := TestKind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("unknown test kind %q", s)
	}
	return k, nil
}

// SessionStatus is the lifecycle state of a test session
type SessionStatus string

const (
	SessionStatusStarted   SessionStatus = "started"
	SessionStatusPending   SessionStatus = "pending"
	SessionStatusCancelled SessionStatus = "cancelled"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusExpired   SessionStatus = "expired"
)

// Valid reports whether s is a known status
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionStatusStarted, SessionStatusPending, SessionStatusCancelled, SessionStatusCompleted, SessionStatusExpired:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is allowed from s
func (s SessionStatus) IsTerminal() bool {
	return s == SessionStatusCompleted || s == SessionStatusCancelled || s == SessionStatusExpired
}

// TransactionKind classifies a ledger movement
type TransactionKind string

const (
	TransactionTestReading     TransactionKind = "test_reading"
	TransactionTestWriting     TransactionKind = "test_writing"
	TransactionTestListening   TransactionKind = "test_listening"
	TransactionTestSpeaking    TransactionKind = "test_speaking"
	TransactionDailyBonus      TransactionKind = "daily_bonus"
	TransactionReferralBonus   TransactionKind = "referral_bonus"
	TransactionCustomDeduction TransactionKind = "custom_deduction"
	TransactionCustomAddition  TransactionKind = "custom_addition"
	TransactionRefund          TransactionKind = "refund"
)

// Valid reports whether k is a known transaction kind
func (k TransactionKind) Valid() bool {
	switch k {
	case TransactionTestReading, TransactionTestWriting, TransactionTestListening, TransactionTestSpeaking,
		TransactionDailyBonus, TransactionReferralBonus, TransactionCustomDeduction, TransactionCustomAddition,
		TransactionRefund:
		return true
	}
	return false
}

// ParseTransactionKind accepts both "test_reading" and "TEST_READING"
func ParseTransactionKind(s string) (TransactionKind, error) {
	k := TransactionKind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("unknown transaction kind %q", s)
	}
	return k, nil
}

// QuestionType is the layout of a listening section
type QuestionType string

const (
	QuestionFormCompletion     QuestionType = "form_completion"
	QuestionChoice             QuestionType = "choice"
	QuestionMultipleAnswers    QuestionType = "multiple_answers"
	QuestionMatching           QuestionType = "matching"
	QuestionSentenceCompletion QuestionType = "sentence_completion"
	QuestionClozeTest          QuestionType = "cloze_test"
)

// Valid reports whether q is a known question type
func (q QuestionType) Valid() bool {
	switch q {
	case QuestionFormCompletion, QuestionChoice, QuestionMultipleAnswers, QuestionMatching,
		QuestionSentenceCompletion, QuestionClozeTest:
		return true
	}
	return false
}

// ChartType is the diagram kind drawn for Writing Task 1
type ChartType string

const (
	ChartBar  ChartType = "bar"
	ChartLine ChartType = "line"
	ChartPie  ChartType = "pie"
)

// Valid reports whether c is a known chart type
func (c ChartType) Valid() bool {
	return c == ChartBar || c == ChartLine || c == ChartPie
}

// AnalysisStatus reports the state of an analyse record
type AnalysisStatus string

const (
	AnalysisStatusPending   AnalysisStatus = "pending"
	AnalysisStatusCompleted AnalysisStatus = "completed"
)
