package routes

import (
	"net/http"

	"reconciliation-service/controllers"
	"reconciliation-service/middleware"
	"reconciliation-service/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func RegisterRoutes(
	r *gin.Engine,
	reconciliation *services.ReconciliationService,
	enrollments *services.EnrollmentService,
	payments controllers.PaymentLookup,
	log *zap.Logger,
) {
	recController := controllers.NewReconciliationController(reconciliation, payments)
	actionController := controllers.NewActionController(enrollments, reconciliation, log)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Everything reconciliation-related is operator-only.
	admin := r.Group("/admin/reconciliation")
	admin.Use(middleware.AuthMiddleware())
	{
		admin.POST("/run", recController.Run)
		admin.GET("/passes/:id", recController.GetPass)
		admin.GET("/passes/:id/export", recController.ExportPass)
		admin.GET("/payments/:paymentKey", recController.GetPaymentDetails)
		admin.POST("/actions/grant", actionController.Grant)
		admin.POST("/actions/revoke", actionController.Revoke)
	}
}
