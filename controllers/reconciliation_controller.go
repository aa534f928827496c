package controllers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"reconciliation-service/gateway"
	"reconciliation-service/models"
	"reconciliation-service/services"

	"github.com/gin-gonic/gin"
)

// PaymentLookup is the provider detail endpoint the controller proxies.
type PaymentLookup interface {
	GetPayment(ctx context.Context, paymentKey string) (*models.PaymentDetails, error)
}

type ReconciliationController struct {
	service  *services.ReconciliationService
	payments PaymentLookup
}

func NewReconciliationController(service *services.ReconciliationService, payments PaymentLookup) *ReconciliationController {
	return &ReconciliationController{
		service:  service,
		payments: payments,
	}
}

type runRequest struct {
	StartDate string   `json:"start_date" binding:"required"`
	EndDate   string   `json:"end_date" binding:"required"`
	Methods   []string `json:"methods"`
}

// Run executes a full reconciliation pass over an inclusive calendar
// date range. A failed fetch or load aborts with no partial results.
func (rc *ReconciliationController) Run(c *gin.Context) {
	var req runRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	start, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "start_date must be YYYY-MM-DD"})
		return
	}
	endDay, err := time.Parse("2006-01-02", req.EndDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "end_date must be YYYY-MM-DD"})
		return
	}
	end := endDay.AddDate(0, 0, 1) // inclusive calendar bound -> half-open interval

	if !start.Before(end) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "start_date must not be after end_date"})
		return
	}

	pass, err := rc.service.RunPass(c.Request.Context(), start, end, req.Methods)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, gateway.ErrFetchIncomplete) {
			status = http.StatusBadGateway
		}
		c.JSON(status, gin.H{
			"error":  err.Error(),
			"window": fmt.Sprintf("%s to %s", req.StartDate, req.EndDate),
			"detail": "reconciliation aborted; no results are available for this window",
		})
		return
	}

	c.JSON(http.StatusOK, pass)
}

// GetPass returns a stored pass, optionally filtered by classification
// (?status=all|mismatch|ok|<classification>) and free-text search (?q=).
func (rc *ReconciliationController) GetPass(c *gin.Context) {
	pass, ok := rc.service.GetPass(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "pass not found"})
		return
	}

	records := services.FilterRecords(pass.Records, c.Query("status"), c.Query("q"))
	c.JSON(http.StatusOK, gin.H{
		"id":           pass.ID,
		"startDate":    pass.StartDate,
		"endDate":      pass.EndDate,
		"ranAt":        pass.RanAt,
		"skippedUsers": pass.SkippedUsers,
		"summary":      pass.Summary,
		"records":      records,
	})
}

// ExportPass streams the pass as a CSV download.
func (rc *ReconciliationController) ExportPass(c *gin.Context) {
	pass, ok := rc.service.GetPass(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "pass not found"})
		return
	}

	data, err := services.ExportCSV(pass.Records)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to render export"})
		return
	}

	filename := fmt.Sprintf("payment_reconciliation_%s_%s.csv",
		pass.StartDate.Format("2006-01-02"),
		pass.EndDate.AddDate(0, 0, -1).Format("2006-01-02"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", data)
}

// GetPaymentDetails proxies the provider's single-payment detail lookup.
func (rc *ReconciliationController) GetPaymentDetails(c *gin.Context) {
	details, err := rc.payments.GetPayment(c.Request.Context(), c.Param("paymentKey"))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, details)
}
