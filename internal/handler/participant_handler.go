package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/rating-flow-api/internal/dto"
	"github.com/noah-isme/rating-flow-api/internal/service"
	appErrors "github.com/noah-isme/rating-flow-api/pkg/errors"
	"github.com/noah-isme/rating-flow-api/pkg/response"
)

// ParticipantHandler exposes fill and review-chain endpoints.
type ParticipantHandler struct {
	participants *service.ParticipantService
	approvals    *service.ApprovalService
}

// NewParticipantHandler creates the handler.
func NewParticipantHandler(participants *service.ParticipantService, approvals *service.ApprovalService) *ParticipantHandler {
	return &ParticipantHandler{participants: participants, approvals: approvals}
}

// Fill godoc
// @Summary Submit scores and documents
// @Description All-or-nothing submission of every item's score and supporting documents
// @Tags Participants
// @Accept json
// @Produce json
// @Param id path string true "Participant ID"
// @Param payload body dto.FillParticipantRequest true "Scores and document references"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /participants/{id}/fill [post]
func (h *ParticipantHandler) Fill(c *gin.Context) {
	var req dto.FillParticipantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid fill payload"))
		return
	}
	participant, err := h.participants.Fill(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, participant, nil)
}

// Get godoc
// @Summary Get a participant with its submission
// @Tags Participants
// @Produce json
// @Param id path string true "Participant ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /participants/{id} [get]
func (h *ParticipantHandler) Get(c *gin.Context) {
	participant, err := h.participants.Get(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, participant, nil)
}

// Decide godoc
// @Summary Record a review decision
// @Description Approve the submission at one level or send it back for revision
// @Tags Approvals
// @Accept json
// @Produce json
// @Param id path string true "Participant ID"
// @Param payload body dto.DecideRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /participants/{id}/decide [post]
func (h *ParticipantHandler) Decide(c *gin.Context) {
	var req dto.DecideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid decision payload"))
		return
	}
	participant, err := h.approvals.Decide(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, participant, nil)
}

// Feedback godoc
// @Summary Reviewer feedback for the current submission
/// @Description Highest-level comments win: author over unit over department
// @Tags Approvals
// @Produce json
// @Param id path string true "Participant ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /participants/{id}/feedback [get]
func (h *ParticipantHandler) Feedback(c *gin.Context) {
	feedback, err := h.approvals.Feedback(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, feedback, nil)
}

// History godoc
// @Summary Approval history for a participant
// @Tags Approvals
// @Produce json
// @Param id path string true "Participant ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /participants/{id}/history [get]
func (h *ParticipantHandler) History(c *gin.Context) {
	detail, err := h.approvals.History(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// PendingActions godoc
// @Summary Pending actions for the current user
// @Description Fills awaiting the user as respondent and decisions awaiting them as reviewer
// @Tags Approvals
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /pending-actions [get]
func (h *ParticipantHandler) PendingActions(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	actions, err := h.approvals.PendingActionsFor(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, actions, nil)
}
