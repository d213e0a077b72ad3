package main

import (
	"log"
	"net/http"
	"strings"

	"booth/src/config"
	"booth/src/db"
	"booth/src/models"
	"booth/src/types"

	"github.com/gin-gonic/gin"
)

func voucherHandlers(g *gin.RouterGroup) *gin.RouterGroup {
	g.
		GET("/vouchers", func(ctx *gin.Context) {
			var vouchers []models.Voucher
			db := db.GetDb()
			if err := db.
				Where(&models.Voucher{BoothID: config.BoothID()}).
				Order("created_at desc").
				Find(&vouchers).Error; err != nil {
				log.Printf("Error retrieving Vouchers: %s\n", err.Error())
				ctx.Status(http.StatusBadRequest)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": vouchers})
		}).
		POST("/vouchers", func(ctx *gin.Context) {
			var body types.CreateVoucherRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			discountType := types.DiscountType(body.DiscountType)
			if discountType == types.DISCOUNT_PERCENTAGE && body.DiscountAmount > 100 {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": "percentage discount cannot exceed 100"})
				return
			}
			voucher := models.Voucher{
				BoothID:        config.BoothID(),
				Code:           strings.ToLower(strings.TrimSpace(body.Code)),
				DiscountType:   discountType,
				DiscountAmount: body.DiscountAmount,
				IsActive:       true,
				ExpiresAt:      body.ExpiresAt,
				MaxUses:        body.MaxUses,
			}
			if body.IsActive != nil {
				voucher.IsActive = *body.IsActive
			}
			db := db.GetDb()
			if err := db.Create(&voucher).Error; err != nil {
				log.Printf("Error creating Voucher: %s\n", err.Error())
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusCreated, gin.H{"data": voucher})
		}).
		DELETE("/vouchers/:id", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			db := db.GetDb()
			res := db.Model(&models.Voucher{}).
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
		})
	return g
}
