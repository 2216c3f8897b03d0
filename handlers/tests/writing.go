package tests

import (
	"github.com/gofiber/fiber/v2"
	"github.com/speaknowly/speaknowly-api/model"
	"github.com/speaknowly/speaknowly-api/utils/response"
)

// WritingView is a writing session with both task prompts
type WritingView struct {
	SessionSummary
	Part1 *model.WritingPart1 `json:"part1,omitempty"`
	Part2 *model.WritingPart2 `json:"part2,omitempty"`
}

func newWritingView(w *model.Writing) (WritingView, error) {
	var view WritingView
	if err := project(&view.SessionSummary, w); err != nil {
		return view, err
	}
	err := project(&view, w)
	return view, err
}

// WritingSubmitRequest carries both essays
type WritingSubmitRequest struct {
	Part1 string `json:"part1" validate:"max=20000"`
	Part2 string `json:"part2" validate:"max=20000"`
}

// StartWriting handles POST /tests/writing/start
func (h *TestsHandler) StartWriting(c *fiber.Ctx) error {
	uid, err := userID(c)
	if err != nil {
		return response.FromError(c, err)
	}
	w, err := h.sessions.Writing.Start(c.UserContext(), uid, language(c))
	if err != nil {
		return response.FromError(c, err)
	}
	view, err := newWritingView(w)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Created(c, view)
}

// GetWriting handles GET /tests/writing/:id
func (h *TestsHandler) GetWriting(c *fiber.Ctx) error {
	uid, id, err := caller(c)
	if err != nil {
		return response.FromError(c, err)
	}
	w, err := h.sessions.Writing.Get(c.UserContext(), uid, id)
	if err != nil {
		return response.FromError(c, err)
	}
	view, err := newWritingView(w)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, view)
}

// SubmitWriting handles POST /tests/writing/:id/submit
func (h *TestsHandler) SubmitWriting(c *fiber.Ctx) error {
	uid, id, err := caller(c)
	if err != nil {
		return response.FromError(c, err)
	}
	var req WritingSubmitRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.Check(&req); err != nil {
		return response.FromError(c, err)
	}

	w, err := h.sessions.Writing.Submit(c.UserContext(), uid, id, req.Part1, req.Part2)
	if err != nil {
		return response.FromError(c, err)
	}
	view, err := newWritingView(w)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, view)
}

// CancelWriting handles POST /tests/writing/:id/cancel
func (h *TestsHandler) CancelWriting(c *fiber.Ctx) error {
	uid, id, err := caller(c)
	if err != nil {
		return response.FromError(c, err)
	}
	if err := h.sessions.Writing.Cancel(c.UserContext(), uid, id); err != nil {
		return response.FromError(c, err)
	}
	return response.SuccessWithMessage(c, "Session cancelled", nil)
}

// WritingAnalysis handles GET /tests/writing/:id/analyse
func (h *TestsHandler) WritingAnalysis(c *fiber.Ctx) error {
	uid, id, err := caller(c)
	if err != nil {
		return response.FromError(c, err)
	}
	view, err := h.sessions.Writing.GetAnalysis(c.UserContext(), uid, id)
	return analysis(c, view, err)
}
