package main

import (
	"log"
	"net/http"

	"booth/src/config"
	"booth/src/db"
	"booth/src/models"
	"booth/src/types"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// frameHandlers is the operator surface for frame templates. Deactivation
// is the default removal path so past sessions keep their frame reference;
// force delete is for templates that never went live.
func frameHandlers(g *gin.RouterGroup) *gin.RouterGroup {
	g.
		GET("/frames", func(ctx *gin.Context) {
			var frames []models.Frame
			db := db.GetDb()
			if err := db.
				Where(&models.Frame{BoothID: config.BoothID()}).
				Order("created_at desc").
				Find(&frames).Error; err != nil {
				log.Printf("Error retrieving Frames: %s\n", err.Error())
				ctx.Status(http.StatusBadRequest)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": frames})
		}).
		POST("/frames", func(ctx *gin.Context) {
			var body types.CreateFrameRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			frame := models.Frame{
				BoothID:      config.BoothID(),
				Name:         body.Name,
				ImageURL:     body.ImageURL,
				Slots:        body.Slots,
				CanvasWidth:  body.CanvasWidth,
				CanvasHeight: body.CanvasHeight,
				IsActive:     true,
			}
			if body.IsActive != nil {
				frame.IsActive = *body.IsActive
			}
			db := db.GetDb()
			if err := db.Create(&frame).Error; err != nil {
				log.Printf("Error creating Frame: %s\n", err.Error())
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusCreated, gin.H{"data": frame})
		}).
		PATCH("/frames/:id", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			var body types.CreateFrameRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			db := db.GetDb()
			var frame models.Frame
			if err := db.
				Where(&models.Frame{ID: params.ID, BoothID: config.BoothID()}).
				First(&frame).Error; err != nil {
				ctx.Status(http.StatusNotFound)
				return
			}
			updates := map[string]any{
				"name":          body.Name,
				"image_url":     body.ImageURL,
				"slots":         body.Slots,
				"canvas_width":  body.CanvasWidth,
				"canvas_height": body.CanvasHeight,
			}
			if body.IsActive != nil {
				updates["is_active"] = *body.IsActive
			}
			if err := db.Model(&frame).Updates(updates).Error; err != nil {
				log.Printf("Error updating Frame: %s\n", err.Error())
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": frame})
		}).
		DELETE("/frames/:id", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			force := ctx.Query("force") == "true"
			db := db.GetDb()
			if !force {
				res := db.Model(&models.Frame{}).
					Where("id = ? AND booth_id = ?", params.ID, config.BoothID()).
					Update("is_active", false)
				if res.Error != nil {
					ctx.JSON(http.StatusBadRequest, gin.H{"error": res.Error.Error()})
					return
				}
				if res.RowsAffected < 1 {
					ctx.Status(http.StatusNotFound)
					return
				}
				ctx.Status(http.StatusOK)
				return
			}
			err := db.Transaction(func(tx *gorm.DB) error {
				// Sessions keep their rows; only the frame reference is cleared.
				if err := tx.Model(&models.Session{}).
					Where("frame_id = ?", params.ID).
					Update("frame_id", nil).Error; err != nil {
					return err
				}
				return tx.
					Where("id = ? AND booth_id = ?", params.ID, config.BoothID()).
					Delete(&models.Frame{}).Error
			})
			if err != nil {
				log.Printf("Error deleting Frame: %s\n", err.Error())
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			ctx.Status(http.StatusOK)
		})
	return g
}
