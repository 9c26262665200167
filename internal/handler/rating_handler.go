package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/rating-flow-api/internal/dto"
	"github.com/noah-isme/rating-flow-api/internal/models"
	"github.com/noah-isme/rating-flow-api/internal/service"
	appErrors "github.com/noah-isme/rating-flow-api/pkg/errors"
	"github.com/noah-isme/rating-flow-api/pkg/response"
)

// RatingHandler exposes rating lifecycle endpoints.
type RatingHandler struct {
	ratings      *service.RatingService
	participants *service.ParticipantService
}

// NewRatingHandler creates the handler.
func NewRatingHandler(ratings *service.RatingService, participants *service.ParticipantService) *RatingHandler {
	return &RatingHandler{ratings: ratings, participants: participants}
}

// Create godoc
// @Summary Create a rating
// @Description Define criteria, respondents and the reviewer assignment
// @Tags Ratings
// @Accept json
// @Produce json
// @Param payload body dto.CreateRatingRequest true "Rating definition"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /ratings [post]
func (h *RatingHandler) Create(c *gin.Context) {
	var req dto.CreateRatingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid rating payload"))
		return
	}
	rating, err := h.ratings.Create(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, rating)
}

// List godoc
// @Summary List ratings
// @Description Authors see their own ratings; admins see everything
// @Tags Ratings
// @Produce json
// @Param status query string false "Comma separated statuses (CREATED,PENDING,CLOSED)"
// @Param type query string false "Rating type"
// @Success 200 {object} response.Envelope
// @Router /ratings [get]
func (h *RatingHandler) List(c *gin.Context) {
	query := dto.RatingQuery{Type: c.Query("type")}
	if raw := c.Query("status"); raw != "" {
		for _, status := range strings.Split(raw, ",") {
			query.Status = append(query.Status, models.RatingStatus(strings.ToUpper(strings.TrimSpace(status))))
		}
	}
	if raw := c.Query("limit"); raw != "" {
		if limit, err := strconv.Atoi(raw); err == nil {
			query.Limit = limit
		}
	}
	if raw := c.Query("offset"); raw != "" {
		if offset, err := strconv.Atoi(raw); err == nil {
			query.Offset = offset
		}
	}
	ratings, err := h.ratings.List(c.Request.Context(), query, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, ratings, nil)
}

// Get godoc
// @Summary Get a rating
// @Tags Ratings
// @Produce json
// @Param id path string true "Rating ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /ratings/{id} [get]
func (h *RatingHandler) Get(c *gin.Context) {
	rating, err := h.ratings.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rating, nil)
}

// Update godoc
// @Summary Update a rating
// @Description Items and metadata are editable until the rating is completed
// @Tags Ratings
// @Accept json
// @Produce json
// @Param id path string true "Rating ID"
// @Param payload body dto.UpdateRatingRequest true "Rating changes"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /ratings/{id} [put]
func (h *RatingHandler) Update(c *gin.Context) {
	var req dto.UpdateRatingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid rating payload"))
		return
	}
	rating, err := h.ratings.Update(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rating, nil)
}

// Complete godoc
// @Summary Open a rating for filling
// @Description Moves the rating from created to pending; items freeze
// @Tags Ratings
// @Produce json
// @Param id path string true "Rating ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /ratings/{id}/complete [post]
func (h *RatingHandler) Complete(c *gin.Context) {
	rating, err := h.ratings.Complete(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rating, nil)
}

// Finalize godoc
// @Summary Force-close a rating
// @Description Closes the rating regardless of outstanding submissions
// @Tags Ratings
// @Produce json
// @Param id path string true "Rating ID"
// @Success 200 {object} response.Envelope
// @Router /ratings/{id}/finalize [post]
func (h *RatingHandler) Finalize(c *gin.Context) {
	rating, err := h.ratings.Finalize(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rating, nil)
}

// Delete godoc
// @Summary Delete a rating
// @Description Only ratings that never opened can be deleted
// @Tags Ratings
// @Produce json
// @Param id path string true "Rating ID"
// @Success 204 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /ratings/{id} [delete]
func (h *RatingHandler) Delete(c *gin.Context) {
	if err := h.ratings.Delete(c.Request.Context(), c.Param("id"), claimsFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Participants godoc
// @Summary List participants of a rating
// @Tags Ratings
// @Produce json
// @Param id path string true "Rating ID"
// @Success 200 {object} response.Envelope
// @Router /ratings/{id}/participants [get]
func (h *RatingHandler) Participants(c *gin.Context) {
	participants, err := h.participants.ListForRating(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, participants, nil)
}
