package tests

import (
	"github.com/gofiber/fiber/v2"
	"github.com/speaknowly/speaknowly-api/model"
	"github.com/speaknowly/speaknowly-api/services/session"
	"github.com/speaknowly/speaknowly-api/utils/response"
)

// ReadingView is a reading session with its passages
type ReadingView struct {
	SessionSummary
	Passages []model.ReadingPassage `json:"passages,omitempty"`
	Answers  []model.ReadingAnswer  `json:"answers,omitempty"`
}

func newReadingView(r *model.Reading) (ReadingView, error) {
	var view ReadingView
	if err := project(&view.SessionSummary, r); err != nil {
		return view, err
	}
	err := project(&view, r)
	return view, err
}

// ReadingAnswerRequest answers one question with a variant or free text
type ReadingAnswerRequest struct {
	QuestionID uint   `json:"question_id" validate:"required"`
	VariantID  *uint  `json:"variant_id"`
	Text       string `json:"text" validate:"max=1000"`
}

// PassageSubmitRequest answers the questions of one passage
type PassageSubmitRequest struct {
	PassageID uint                   `json:"passage_id" validate:"required"`
	Answers   []ReadingAnswerRequest `json:"answers" validate:"required,min=1,dive"`
}

// StartReading handles POST /tests/reading/start
func (h *TestsHandler) StartReading(c *fiber.Ctx) error {
	uid, err := userID(c)
	if err != nil {
		return response.FromError(c, err)
	}
	r, err := h.sessions.Reading.Start(c.UserContext(), uid)
	if err != nil {
		return response.FromError(c, err)
	}
	view, err := newReadingView(r)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Created(c, view)
}

// GetReading handles GET /tests/reading/:id
func (h *TestsHandler) GetReading(c *fiber.Ctx) error {
	uid, id, err := caller(c)
	if err != nil {
		return response.FromError(c, err)
	}
	r, err := h.sessions.Reading.Get(c.UserContext(), uid, id)
	if err != nil {
		return response.FromError(c, err)
	}
	view, err := newReadingView(r)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, view)
}

// SubmitPassage handles POST /tests/reading/:id/passage/submit
func (h *TestsHandler) SubmitPassage(c *fiber.Ctx) error {
	uid, id, err := caller(c)
	if err != nil {
		return response.FromError(c, err)
	}
	var req PassageSubmitRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.Check(&req); err != nil {
		return response.FromError(c, err)
	}

	answers := make([]session.ReadingAnswerInput, len(req.Answers))
	for i, a := range req.Answers {
		answers[i] = session.ReadingAnswerInput{QuestionID: a.QuestionID, VariantID: a.VariantID, Text: a.Text}
	}
	result, err := h.sessions.Reading.SubmitPassage(c.UserContext(), uid, id, req.PassageID, answers)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, result)
}

// FinishReading handles POST /tests/reading/:id/finish
func (h *TestsHandler) FinishReading(c *fiber.Ctx) error {
	uid, id, err := caller(c)
	if err != nil {
		return response.FromError(c, err)
	}
	result, err := h.sessions.Reading.Finish(c.UserContext(), uid, id)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, result)
}

// RestartReading handles POST /tests/reading/:id/restart
func (h *TestsHandler) RestartReading(c *fiber.Ctx) error {
	uid, id, err := caller(c)
	if err != nil {
		return response.FromError(c, err)
	}
	r, err := h.sessions.Reading.Restart(c.UserContext(), uid, id)
	if err != nil {
		return response.FromError(c, err)
	}
	view, err := newReadingView(r)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Created(c, view)
}

// CancelReading handles POST /tests/reading/:id/cancel
func (h *TestsHandler) CancelReading(c *fiber.Ctx) error {
	uid, id, err := caller(c)
	if err != nil {
		return response.FromError(c, err)
	}
	if err := h.sessions.Reading.Cancel(c.UserContext(), uid, id); err != nil {
		return response.FromError(c, err)
	}
	return response.SuccessWithMessage(c, "Session cancelled", nil)
}

// ReadingAnalysis handles GET /tests/reading/:id/analyse
func (h *TestsHandler) ReadingAnalysis(c *fiber.Ctx) error {
	uid, id, err := caller(c)
	if err != nil {
		return response.FromError(c, err)
	}
	view, err := h.sessions.Reading.GetAnalysis(c.UserContext(), uid, id)
	return analysis(c, view, err)
}
