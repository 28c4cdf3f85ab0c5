package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/roach88/claimrecon/internal/claim"
	"github.com/roach88/claimrecon/internal/store"
)

// Error codes returned in ErrorResponse.Code.
const (
	CodeInvalidRequest   = "INVALID_REQUEST"
	CodeDuplicate        = "DUPLICATE_CLAIM"
	CodeNotFound         = "NOT_FOUND"
	CodeAlreadyConfirmed = "ALREADY_CONFIRMED"
	CodeTokenAlreadySet  = "TOKEN_ALREADY_SET"
	CodeInternal         = "INTERNAL"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	// Error is the error message.
	Error string `json:"error"`

	// Code is a stable machine-readable code.
	Code string `json:"code"`

	// Field names the offending input field for validation errors.
	Field string `json:"field,omitempty"`

	// ExistingID is the claim that caused a duplicate rejection.
	ExistingID string `json:"existingId,omitempty"`
}

// ListResponse is the body of GET /v1/claims.
type ListResponse struct {
	Claims []claim.Claim `json:"claims"`
	Count  int           `json:"count"`
}

// TokenRequest is the body of PUT /v1/claims/:id/token.
type TokenRequest struct {
	VerificationToken string `json:"verificationToken"`
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleSubmit handles POST /v1/claims.
//
// Responses: 201 with the created claim, 400 for a malformed or incomplete
// submission, 409 if a claim already exists for the subject and kind.
func (s *Server) handleSubmit(c *gin.Context) {
	var sub claim.Submission
	if err := c.ShouldBindJSON(&sub); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Code: CodeInvalidRequest})
		return
	}

	created, err := store.Submit(c.Request.Context(), s.store, sub)
	if err != nil {
		s.writeError(c, err)
		return
	}

	s.logger.Info("claim submitted", "claim_id", created.ID, "subject_id", created.SubjectID, "kind", created.Kind)
	c.JSON(http.StatusCreated, created)
}

// handleList handles GET /v1/claims. Without a status filter both
// unconfirmed and confirmed claims are returned, unconfirmed first.
//
// The listing is not a snapshot: each status is read in its own pass. A
// claim confirmed between the passes is listed once, in its confirmed form.
func (s *Server) handleList(c *gin.Context) {
	statuses := []claim.Status{claim.StatusUnconfirmed, claim.StatusConfirmed}
	if raw, ok := c.GetQuery("status"); ok {
		status, err := claim.ParseStatus(raw)
		if err != nil {
			s.writeError(c, err)
			return
		}
		statuses = []claim.Status{status}
	}

	resp := ListResponse{Claims: []claim.Claim{}}
	index := make(map[string]int)
	for _, status := range statuses {
		claims, err := store.List(c.Request.Context(), s.store, status)
		if err != nil {
			s.writeError(c, err)
			return
		}
		for _, cl := range claims {
			if i, ok := index[cl.ID]; ok {
				resp.Claims[i] = cl
				continue
			}
			index[cl.ID] = len(resp.Claims)
			resp.Claims = append(resp.Claims, cl)
		}
	}
	resp.Count = len(resp.Claims)
	c.JSON(http.StatusOK, resp)
}

// handleGet handles GET /v1/claims/:id.
func (s *Server) handleGet(c *gin.Context) {
	got, err := s.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, got)
}

// handleAttachToken handles PUT /v1/claims/:id/token.
//
// Responses: 200 with the updated claim, 400 for a blank token, 404 for an
// unknown claim, 409 if the claim is already confirmed or already holds a
// different token.
func (s *Server) handleAttachToken(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Code: CodeInvalidRequest})
		return
	}

	updated, err := store.AttachToken(c.Request.Context(), s.store, c.Param("id"), req.VerificationToken)
	if err != nil {
		s.writeError(c, err)
		return
	}

	s.logger.Info("verification token attached", "claim_id", updated.ID)
	c.JSON(http.StatusOK, updated)
}

// writeError maps domain errors to status codes.
func (s *Server) writeError(c *gin.Context, err error) {
	var (
		ve  *claim.ValidationError
		dup *claim.DuplicateError
	)
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: CodeInvalidRequest, Field: ve.Field})
	case errors.As(err, &dup):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error(), Code: CodeDuplicate, ExistingID: dup.ExistingID})
	case errors.Is(err, claim.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: CodeNotFound})
	case errors.Is(err, claim.ErrAlreadyConfirmed):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error(), Code: CodeAlreadyConfirmed})
	case errors.Is(err, claim.ErrTokenAlreadySet):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error(), Code: CodeTokenAlreadySet})
	default:
		s.logger.Error("request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error", Code: CodeInternal})
	}
}
