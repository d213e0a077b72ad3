package middlewares

import (
	"log"
	"net/http"
	"os"
	"strings"

	"booth/src/types"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

var jwtKey = []byte(os.Getenv("JWT_SECRET"))

// DeviceAuth guards the kiosk and admin surfaces. The booth device is
// provisioned with a long-lived token carrying its booth id; requests
// without a valid token never reach the machine.
func DeviceAuth(ctx *gin.Context) {
	bearerToken := ctx.Request.Header.Get("Authorization")
	if !strings.HasPrefix(bearerToken, "Bearer") {
		ctx.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	reqToken := strings.TrimSpace(strings.TrimPrefix(bearerToken, "Bearer"))
	if reqToken == "" {
		ctx.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	claims := &types.Claims{}
	tkn, err := jwt.ParseWithClaims(reqToken, claims, func(t *jwt.Token) (any, error) {
		return jwtKey, nil
	})
	if err != nil {
		log.Printf("token error: %s\n", err.Error())
		ctx.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	if !tkn.Valid || claims.BoothID < 1 {
		ctx.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	ctx.Set("booth_id", claims.BoothID)
	ctx.Set("device", claims.Device)
}
