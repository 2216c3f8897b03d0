package tests

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/speaknowly/speaknowly-api/model"
	"github.com/speaknowly/speaknowly-api/services/media"
	"github.com/speaknowly/speaknowly-api/services/session"
	"github.com/speaknowly/speaknowly-api/utils/response"
)

// MaxAudioBytes bounds one uploaded speaking recording
const MaxAudioBytes = 25 << 20

// SpeakingParts is the number of parts in a speaking test
const SpeakingParts = 3

// SpeakingView is a speaking session with its three prompts
type SpeakingView struct {
	SessionSummary
	Questions []model.SpeakingQuestion `json:"questions,omitempty"`
}

func newSpeakingView(s *model.Speaking) (SpeakingView, error) {
	var view SpeakingView
	if err := project(&view.SessionSummary, s); err != nil {
		return view, err
	}
	err := project(&view, s)
	return view, err
}

// StartSpeaking handles POST /tests/speaking
func (h *TestsHandler) StartSpeaking(c *fiber.Ctx) error {
	uid, err := userID(c)
	if err != nil {
		return response.FromError(c, err)
	}
	s, err := h.sessions.Speaking.Start(c.UserContext(), uid, language(c))
	if err != nil {
		return response.FromError(c, err)
	}
	view, err := newSpeakingView(s)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Created(c, view)
}

// GetSpeaking handles GET /tests/speaking/:id
func (h *TestsHandler) GetSpeaking(c *fiber.Ctx) error {
	uid, id, err := caller(c)
	if err != nil {
		return response.FromError(c, err)
	}
	s, err := h.sessions.Speaking.Get(c.UserContext(), uid, id)
	if err != nil {
		return response.FromError(c, err)
	}
	view, err := newSpeakingView(s)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, view)
}

// SubmitSpeaking handles POST /tests/speaking/:id/answers. The multipart
// form carries part1..part3 recordings and/or part1_text..part3_text.
func (h *TestsHandler) SubmitSpeaking(c *fiber.Ctx) error {
	uid, id, err := caller(c)
	if err != nil {
		return response.FromError(c, err)
	}

	var inputs []session.SpeakingAnswerInput
	for part := 1; part <= SpeakingParts; part++ {
		field := fmt.Sprintf("part%d", part)
		in := session.SpeakingAnswerInput{Part: part, Text: c.FormValue(field + "_text")}

		if header, err := c.FormFile(field); err == nil {
			if header.Size > MaxAudioBytes {
				return response.BadRequest(c, fmt.Sprintf("%s recording is too large", field))
			}
			file, err := header.Open()
			if err != nil {
				return response.BadRequest(c, fmt.Sprintf("failed to read %s recording", field))
			}
			data, err := media.ReadAll(file, MaxAudioBytes)
			file.Close()
			if err != nil {
				return response.BadRequest(c, fmt.Sprintf("%s recording is too large", field))
			}
			in.Audio = data
			in.AudioExt = strings.TrimPrefix(filepath.Ext(header.Filename), ".")
		}

		if strings.TrimSpace(in.Text) != "" || len(in.Audio) > 0 {
			inputs = append(inputs, in)
		}
	}
	if len(inputs) == 0 {
		return response.BadRequest(c, "at least one answer is required")
	}

	s, err := h.sessions.Speaking.SubmitAnswers(c.UserContext(), uid, id, inputs)
	if err != nil {
		return response.FromError(c, err)
	}
	view, err := newSpeakingView(s)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, view)
}

// CancelSpeaking handles POST /tests/speaking/:id/cancel
func (h *TestsHandler) CancelSpeaking(c *fiber.Ctx) error {
	uid, id, err := caller(c)
	if err != nil {
		return response.FromError(c, err)
	}
	if err := h.sessions.Speaking.Cancel(c.UserContext(), uid, id); err != nil {
		return response.FromError(c, err)
	}
	return response.SuccessWithMessage(c, "Session cancelled", nil)
}

// SpeakingAnalysis handles GET /tests/speaking/:id/analyse
func (h *TestsHandler) SpeakingAnalysis(c *fiber.Ctx) error {
	uid, id, err := caller(c)
	if err != nil {
		return response.FromError(c, err)
	}
	view, err := h.sessions.Speaking.GetAnalysis(c.UserContext(), uid, id)
	return analysis(c, view, err)
}
