package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"booth/src/common"
	"booth/src/lib"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// stripeWebhookRoute receives vendor push notifications. The payment row
// is settled here even when the session is long gone from the machine;
// the machine only reacts if the notification concerns its active flow.
func stripeWebhookRoute(g *gin.Engine, gateway common.PaymentGateway) *gin.RouterGroup {
	apiv1 := apiv1Group(g)
	apiv1.POST("/webhook/stripe", func(ctx *gin.Context) {
		payload, err := io.ReadAll(ctx.Request.Body)
		if err != nil {
			log.Printf("Error reading request body: %s\n", err.Error())
			ctx.Status(http.StatusServiceUnavailable)
			return
		}
		event, err := gateway.VerifyCallback(payload, ctx.GetHeader("Stripe-Signature"))
		if err != nil {
			log.Printf("Error verifying webhook signature: %s\n", err.Error())
			ctx.Status(http.StatusBadRequest)
			return
		}
		if event == nil {
			// Verified but not a booth event.
			ctx.Status(http.StatusOK)
			return
		}
		if event.Status.Terminal() {
			// Dedupe retried deliveries; the DB update below is idempotent
			// anyway, this just skips the log noise.
			if rd := lib.GetRedisClient(); rd != nil {
				key := fmt.Sprintf("webhook:%s:%s", event.InvoiceID, event.Status)
				if ok, err := rd.SetNX(ctx.Request.Context(), key, 1, time.Hour).Result(); err == nil && !ok {
					log.Printf("Skipping duplicate webhook for invoice %s\n", event.InvoiceID)
					ctx.Status(http.StatusOK)
					return
				}
			}
			store := common.NewGormStore()
			payment, transitioned, err := store.MarkPaymentTerminalByInvoice(ctx.Request.Context(), event.InvoiceID, event.Status)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					log.Printf("No payment found for invoice %s\n", event.InvoiceID)
					ctx.Status(http.StatusOK)
					return
				}
				log.Printf("Error settling payment for invoice %s: %s\n", event.InvoiceID, err.Error())
				ctx.Status(http.StatusInternalServerError)
				return
			}
			if !transitioned {
				log.Printf("Payment %s already terminal\n", payment.ID.String())
			}
			if m := common.GetMachine(); m != nil {
				m.NotifyPayment(ctx.Request.Context(), event.InvoiceID, event.Status)
			}
		}
		ctx.Status(http.StatusOK)
	})
	return apiv1
}
