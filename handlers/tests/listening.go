package tests

import (
	"github.com/gofiber/fiber/v2"
	"github.com/speaknowly/speaknowly-api/model"
	"github.com/speaknowly/speaknowly-api/services/grading"
	"github.com/speaknowly/speaknowly-api/utils/response"
)

// ListeningView is a listening session with its exam, never its answer key
type ListeningView struct {
	SessionSummary
	Exam    *model.ListeningExam    `json:"exam,omitempty"`
	Answers []model.ListeningAnswer `json:"answers,omitempty"`
}

func newListeningView(s *model.ListeningSession) (ListeningView, error) {
	var view ListeningView
	if err := project(&view.SessionSummary, s); err != nil {
		return view, err
	}
	err := project(&view, s)
	return view, err
}

// ListeningAnswerRequest is one submitted response. Answer may be a string or a list.
type ListeningAnswerRequest struct {
	QuestionID uint        `json:"question_id" validate:"required"`
	Answer     interface{} `json:"answer"`
}

// ListeningSubmitRequest carries every response of a listening session
type ListeningSubmitRequest struct {
	Answers []ListeningAnswerRequest `json:"answers" validate:"required,min=1,dive"`
}

func (r ListeningAnswerRequest) values() []string {
	switch v := r.Answer.(type) {
	case string:
		return []string{v}
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// StartListening handles POST /tests/listening/start
func (h *TestsHandler) StartListening(c *fiber.Ctx) error {
	uid, err := userID(c)
	if err != nil {
		return response.FromError(c, err)
	}
	s, err := h.sessions.Listening.Start(c.UserContext(), uid, language(c))
	if err != nil {
		return response.FromError(c, err)
	}
	view, err := newListeningView(s)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Created(c, view)
}

// GetListening handles GET /tests/listening/session/:id
func (h *TestsHandler) GetListening(c *fiber.Ctx) error {
	uid, id, err := caller(c)
	if err != nil {
		return response.FromError(c, err)
	}
	s, err := h.sessions.Listening.Get(c.UserContext(), uid, id)
	if err != nil {
		return response.FromError(c, err)
	}
	view, err := newListeningView(s)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, view)
}

// SubmitListening handles POST /tests/listening/session/:id/submit
func (h *TestsHandler) SubmitListening(c *fiber.Ctx) error {
	uid, id, err := caller(c)
	if err != nil {
		return response.FromError(c, err)
	}
	var req ListeningSubmitRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.Check(&req); err != nil {
		return response.FromError(c, err)
	}

	responses := make([]grading.ListeningResponse, len(req.Answers))
	for i, a := range req.Answers {
		responses[i] = grading.ListeningResponse{QuestionID: a.QuestionID, Answer: a.values()}
	}
	result, err := h.sessions.Listening.Submit(c.UserContext(), uid, id, responses)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, result)
}

// CancelListening handles POST /tests/listening/session/:id/cancel
func (h *TestsHandler) CancelListening(c *fiber.Ctx) error {
	uid, id, err := caller(c)
	if err != nil {
		return response.FromError(c, err)
	}
	if err := h.sessions.Listening.Cancel(c.UserContext(), uid, id); err != nil {
		return response.FromError(c, err)
	}
	return response.SuccessWithMessage(c, "Session cancelled", nil)
}

// ListeningAnalysis handles GET /tests/listening/session/:id/analyse
func (h *TestsHandler) ListeningAnalysis(c *fiber.Ctx) error {
	uid, id, err := caller(c)
	if err != nil {
		return response.FromError(c, err)
	}
	view, err := h.sessions.Listening.GetAnalysis(c.UserContext(), uid, id)
	return analysis(c, view, err)
}
