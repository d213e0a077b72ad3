package main

import (
	"log"
	"net/http"

	"booth/src/config"
	"booth/src/db"
	"booth/src/models"
	"booth/src/types"

	"github.com/gin-gonic/gin"
)

// configHandlers lets the operator read and tune the booth. Updates take
// effect on the next phase entry, the machine re-reads config itself.
func configHandlers(g *gin.RouterGroup) *gin.RouterGroup {
	g.
		GET("/booth/config", func(ctx *gin.Context) {
			var booth models.Booth
			db := db.GetDb()
			if err := db.
				Where(&models.Booth{ID: config.BoothID()}).
				First(&booth).Error; err != nil {
				log.Printf("Error retrieving Booth: %s\n", err.Error())
				ctx.Status(http.StatusNotFound)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": booth.Config()})
		}).
		PUT("/booth/config", func(ctx *gin.Context) {
			var body types.UpdateBoothConfigRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			updates := map[string]any{}
			if body.BasePrice != nil {
				if *body.BasePrice < 0 {
					ctx.JSON(http.StatusBadRequest, gin.H{"error": "base_price cannot be negative"})
					return
				}
				updates["base_price"] = *body.BasePrice
			}
			if body.PaymentBypass != nil {
				updates["payment_bypass"] = *body.PaymentBypass
			}
			if body.CountdownSeconds != nil {
				updates["countdown_seconds"] = *body.CountdownSeconds
			}
			if body.PreviewSeconds != nil {
				updates["preview_seconds"] = *body.PreviewSeconds
			}
			if body.ReviewTimeoutSeconds != nil {
				updates["review_timeout_seconds"] = *body.ReviewTimeoutSeconds
			}
			if body.PrintCopies != nil {
				updates["print_copies"] = *body.PrintCopies
			}
			if body.LocalBackupDir != nil {
				updates["local_backup_dir"] = *body.LocalBackupDir
			}
			if len(updates) == 0 {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": "no fields to update"})
				return
			}
			db := db.GetDb()
			if err := db.Model(&models.Booth{}).
				Where("id = ?", config.BoothID()).
				Updates(updates).Error; err != nil {
				log.Printf("Error updating Booth: %s\n", err.Error())
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			var booth models.Booth
			db.Where(&models.Booth{ID: config.BoothID()}).First(&booth)
			ctx.JSON(http.StatusOK, gin.H{"data": booth.Config()})
		})
	return g
}
