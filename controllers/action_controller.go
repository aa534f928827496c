package controllers

import (
	"errors"
	"net/http"

	"reconciliation-service/middleware"
	"reconciliation-service/repository"
	"reconciliation-service/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ActionController struct {
	enrollments    *services.EnrollmentService
	reconciliation *services.ReconciliationService
	logger         *zap.Logger
}

func NewActionController(enrollments *services.EnrollmentService, reconciliation *services.ReconciliationService, log *zap.Logger) *ActionController {
	return &ActionController{
		enrollments:    enrollments,
		reconciliation: reconciliation,
		logger:         log,
	}
}

type grantRequest struct {
	Confirm     bool   `json:"confirm"`
	OrderID     string `json:"order_id" binding:"required"`
	UserEmail   string `json:"user_email" binding:"required"`
	CourseID    string `json:"course_id" binding:"required"`
	CourseTitle string `json:"course_title"`
	Amount      int64  `json:"amount"`
	Method      string `json:"method"`
}

// Grant creates the missing enrollment for a settled payment, then
// re-classifies the order so the operator can see it converge.
func (ac *ActionController) Grant(c *gin.Context) {
	var req grantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !req.Confirm {
		c.JSON(http.StatusBadRequest, gin.H{"error": "explicit confirmation required"})
		return
	}

	operator := middleware.GetOperator(c)
	result, err := ac.enrollments.GrantEnrollment(c.Request.Context(), operator, services.GrantRequest{
		UserEmail:   req.UserEmail,
		CourseID:    req.CourseID,
		CourseTitle: req.CourseTitle,
		OrderID:     req.OrderID,
		Amount:      req.Amount,
		Method:      req.Method,
	})
	if err != nil {
		ac.respondActionError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"already_enrolled": result.AlreadyEnrolled,
		"enrollment":       result.Record,
		"classification":   ac.reclassify(c, req.OrderID, req.UserEmail),
	})
}

type revokeRequest struct {
	Confirm   bool   `json:"confirm"`
	OrderID   string `json:"order_id" binding:"required"`
	UserEmail string `json:"user_email" binding:"required"`
	CourseID  string `json:"course_id" binding:"required"`
}

// Revoke marks an enrollment revoked, then re-classifies the order.
func (ac *ActionController) Revoke(c *gin.Context) {
	var req revokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !req.Confirm {
		c.JSON(http.StatusBadRequest, gin.H{"error": "explicit confirmation required"})
		return
	}

	operator := middleware.GetOperator(c)
	if err := ac.enrollments.RevokeEnrollment(c.Request.Context(), operator, req.UserEmail, req.CourseID); err != nil {
		ac.respondActionError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"revoked":        true,
		"classification": ac.reclassify(c, req.OrderID, req.UserEmail),
	})
}

// reclassify is best-effort; the action itself already succeeded.
func (ac *ActionController) reclassify(c *gin.Context, orderID, userEmail string) interface{} {
	record, err := ac.reconciliation.ReclassifyOrder(c.Request.Context(), orderID, userEmail)
	if err != nil {
		ac.logger.Warn("post-action reclassification failed",
			zap.String("order_id", orderID),
			zap.Error(err))
		return nil
	}
	return record
}

func (ac *ActionController) respondActionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
	case errors.Is(err, services.ErrEnrollmentNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "enrollment not found"})
	case errors.Is(err, services.ErrMissingField):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
