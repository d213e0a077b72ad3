package main

import (
	"errors"
	"log"
	"net/http"

	"booth/src/common"
	"booth/src/lib"
	"booth/src/types"
	"booth/src/utils"

	"github.com/gin-gonic/gin"
)

func machineErrorStatus(err error) int {
	switch {
	case errors.Is(err, common.ErrWrongPhase),
		errors.Is(err, common.ErrPhotoPending),
		errors.Is(err, common.ErrPipelineRunning):
		return http.StatusConflict
	case errors.Is(err, common.ErrGateway):
		return http.StatusBadGateway
	case errors.Is(err, lib.ErrCameraUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusBadRequest
}

// boothHandlers exposes the kiosk-facing machine operations. Every route
// operates on the single machine this daemon runs; the kiosk UI is a thin
// client that renders the state snapshot and posts intents.
func boothHandlers(g *gin.RouterGroup) *gin.RouterGroup {
	g.
		GET("/booth/state", func(ctx *gin.Context) {
			m := common.GetMachine()
			ctx.JSON(http.StatusOK, gin.H{"data": m.State()})
		}).
		GET("/booth/health", func(ctx *gin.Context) {
			m := common.GetMachine()
			ctx.JSON(http.StatusOK, gin.H{"data": gin.H{
				"phase":  m.State().Phase,
				"camera": m.CameraReady(ctx.Request.Context()),
			}})
		}).
		POST("/booth/start", func(ctx *gin.Context) {
			m := common.GetMachine()
			if err := m.Start(ctx.Request.Context()); err != nil {
				log.Printf("Error starting session: %s\n", err.Error())
				ctx.JSON(machineErrorStatus(err), gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": m.State()})
		}).
		POST("/booth/voucher", func(ctx *gin.Context) {
			var body types.ApplyVoucherRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			m := common.GetMachine()
			quote, err := m.ApplyVoucher(ctx.Request.Context(), body.Code)
			if err != nil {
				log.Printf("Error applying voucher: %s\n", err.Error())
				ctx.JSON(machineErrorStatus(err), gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": quote})
		}).
		DELETE("/booth/voucher", func(ctx *gin.Context) {
			m := common.GetMachine()
			m.ClearVoucher()
			ctx.JSON(http.StatusOK, gin.H{"data": m.State()})
		}).
		POST("/booth/frames/:id/select", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			m := common.GetMachine()
			if err := m.SelectFrame(params.ID); err != nil {
				ctx.JSON(machineErrorStatus(err), gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": m.State()})
		}).
		POST("/booth/confirm", func(ctx *gin.Context) {
			m := common.GetMachine()
			if err := m.Confirm(ctx.Request.Context()); err != nil {
				log.Printf("Error confirming frame: %s\n", err.Error())
				ctx.JSON(machineErrorStatus(err), gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": m.State()})
		}).
		POST("/booth/cancel", func(ctx *gin.Context) {
			m := common.GetMachine()
			if err := m.Cancel(); err != nil {
				ctx.JSON(machineErrorStatus(err), gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": m.State()})
		}).
		GET("/booth/payment/qr", func(ctx *gin.Context) {
			m := common.GetMachine()
			state := m.State()
			if state.PayURL == "" {
				ctx.Status(http.StatusNotFound)
				return
			}
			img, err := utils.PayQRCode(state.PayURL)
			if err != nil {
				ctx.Status(http.StatusInternalServerError)
				return
			}
			ctx.Data(http.StatusOK, "image/jpeg", img)
		}).
		POST("/booth/shoot", func(ctx *gin.Context) {
			m := common.GetMachine()
			if err := m.Shoot(ctx.Request.Context()); err != nil {
				ctx.JSON(machineErrorStatus(err), gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": m.State()})
		}).
		POST("/booth/photo/confirm", func(ctx *gin.Context) {
			m := common.GetMachine()
			if err := m.ConfirmPhoto(ctx.Request.Context()); err != nil {
				ctx.JSON(machineErrorStatus(err), gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": m.State()})
		}).
		POST("/booth/photo/retake", func(ctx *gin.Context) {
			m := common.GetMachine()
			if err := m.RetakePhoto(); err != nil {
				ctx.JSON(machineErrorStatus(err), gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": m.State()})
		}).
		POST("/booth/print", func(ctx *gin.Context) {
			m := common.GetMachine()
			if err := m.Print(); err != nil {
				ctx.JSON(machineErrorStatus(err), gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": m.State()})
		}).
		POST("/booth/upload/retry", func(ctx *gin.Context) {
			m := common.GetMachine()
			if err := m.RetryUpload(); err != nil {
				ctx.JSON(machineErrorStatus(err), gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": m.State()})
		}).
		POST("/booth/reset", func(ctx *gin.Context) {
			m := common.GetMachine()
			m.Reset()
			ctx.JSON(http.StatusOK, gin.H{"data": m.State()})
		})
	return g
}
