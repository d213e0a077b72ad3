package main

import (
	"context"
	"io"
	"log"
	"net/http"
	"os"
	"path"
	"regexp"
	"strings"
	"time"

	"booth/src/boot"
	"booth/src/common"
	"booth/src/config"
	"booth/src/db"
	"booth/src/middlewares"
	"booth/src/models"
	"booth/src/types"
	"booth/src/utils"

	"github.com/covalenthq/lumberjack"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

const (
	apiPrefix string = "/api/v1"
)

var voucherCodePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{3,32}$`)

var voucherCodeValidatorFunc validator.Func = func(fl validator.FieldLevel) bool {
	code, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	return voucherCodePattern.MatchString(strings.TrimSpace(code))
}

var futureDateValidatorFunc validator.Func = func(fl validator.FieldLevel) bool {
	date, ok := fl.Field().Interface().(time.Time)
	if !ok {
		return false
	}
	return date.After(time.Now())
}

func registerValidations() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterValidation("vouchercode", voucherCodeValidatorFunc)
		v.RegisterValidation("futuredate", futureDateValidatorFunc)
	}
}

func setupRouter() *gin.Engine {
	router := gin.Default()
	router.Use(middlewares.SecureHeaders)
	router.GET("/", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, "ok")
	})
	return router
}

func apiv1Group(g *gin.Engine) *gin.RouterGroup {
	apiv1 := g.Group(apiPrefix)
	return apiv1
}

// publicRoutes serves the share page data: no device token, rate limited,
// only completed sessions are visible.
func publicRoutes(g *gin.Engine) *gin.RouterGroup {
	apiv1 := apiv1Group(g)
	apiv1.
		GET("/share/:id", middlewares.ShareRateLimit, func(ctx *gin.Context) {
			var params types.ShareURIParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.Status(http.StatusNotFound)
				return
			}
			id, err := uuid.Parse(params.ID)
			if err != nil {
				ctx.Status(http.StatusNotFound)
				return
			}
			var session models.Session
			db := db.GetDb()
			if err := db.
				Where(&models.Session{ID: id, Status: types.SESSION_COMPLETED}).
				First(&session).Error; err != nil {
				ctx.Status(http.StatusNotFound)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": gin.H{
				"final_image_url": session.FinalImageUrl,
				"photos_urls":     session.PhotosUrls,
				"video_url":       session.VideoUrl,
			}})
		})
	return apiv1
}

// provisionRoutes mints the device token a kiosk installs with. Guarded by
// the shared install secret instead of a device token, which the kiosk does
// not have yet.
func provisionRoutes(g *gin.Engine) *gin.RouterGroup {
	apiv1 := apiv1Group(g)
	apiv1.
		POST("/device/provision", func(ctx *gin.Context) {
			secret := os.Getenv("PROVISION_SECRET")
			if secret == "" || ctx.GetHeader("x-secret") != secret {
				ctx.Status(http.StatusUnauthorized)
				return
			}
			var body struct {
				Device string `json:"device" binding:"required"`
			}
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			token, err := utils.SignDeviceToken(config.BoothID(), body.Device)
			if err != nil {
				log.Printf("Error signing device token: %s\n", err.Error())
				ctx.Status(http.StatusInternalServerError)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"token": token})
		})
	return apiv1
}

func initLogger() {
	cwd, _ := os.Getwd()
	serverLogs := path.Join(cwd, "logs", "server.log")
	apiLogs := path.Join(cwd, "logs", "api.log")
	gin.ForceConsoleColor()

	f, _ := os.Create(apiLogs)
	gin.DefaultWriter = io.MultiWriter(f, os.Stdout)
	log.SetOutput(&lumberjack.Logger{
		Filename:   serverLogs,
		MaxSize:    500,
		MaxBackups: 3,
		MaxAge:     30,
		Compress:   true,
	})
}

func main() {
	apiEnv := os.Getenv("API_ENV")
	if apiEnv == "local" {
		cwd, _ := os.Getwd()
		if err := godotenv.Load(path.Join(cwd, ".env")); err != nil {
			panic(err)
		}
	}
	initLogger()

	boot.InitDb()
	boot.InitScheduler()
	defer boot.StopScheduler()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	boot.InitMachine(ctx)

	router := setupRouter()

	appHost := os.Getenv("APP_HOST")
	if apiEnv == "local" {
		router.Use(cors.Default())
	} else {
		cc := cors.DefaultConfig()
		cc.AllowMethods = append(cc.AllowMethods, "GET", "POST", "PATCH", "PUT", "DELETE", "HEAD")
		cc.AllowHeaders = append(cc.AllowHeaders, "Origin", "Authorization")
		cc.AllowOriginFunc = func(origin string) bool {
			match, _ := regexp.MatchString(appHost, origin)
			return match
		}
		cc.AllowCredentials = true
		cc.AllowAllOrigins = false
		router.Use(cors.New(cc))
	}

	registerValidations()

	publicRoutes(router)
	provisionRoutes(router)

	stripeWebhookRoute(router, common.NewStripeGateway())

	authorized := router.Group(apiPrefix)
	authorized.Use(middlewares.DeviceAuth)
	{
		boothHandlers(authorized)
		frameHandlers(authorized)
		voucherHandlers(authorized)
		configHandlers(authorized)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "9090"
	}
	log.Printf("Booth %d listening on :%s\n", config.BoothID(), port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("error starting server: %s", err.Error())
	}
}
