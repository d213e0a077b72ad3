package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"booth/src/common"
	"booth/src/db"
	"booth/src/middlewares"
	"booth/src/types"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"github.com/tidwall/gjson"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type TestSuite struct {
	suite.Suite
	DB    *gorm.DB
	Mock  sqlmock.Sqlmock
	Token string
}

func NewMockDB() (*gorm.DB, sqlmock.Sqlmock) {
	conn, mock, err := sqlmock.New()
	if err != nil {
		log.Fatalf("An error '%s' was not expected when opening a stub database connection", err)
	}
	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: conn}), &gorm.Config{})
	if err != nil {
		log.Fatalf("An error '%s' was not expected when opening gorm database", err)
	}
	return gormDB, mock
}

func deviceToken(boothID uint) string {
	claims := types.Claims{
		BoothID: boothID,
		Device:  "kiosk-test",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  fmt.Sprintf("booth:%d", boothID),
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(os.Getenv("JWT_SECRET")))
	if err != nil {
		log.Fatalf("Error signing device token: %s\n", err.Error())
	}
	return signed
}

func (s *TestSuite) SetupSuite() {
	gin.SetMode(gin.TestMode)
	registerValidations()

	d, mock := NewMockDB()
	db.NewDB(d)
	s.DB = d
	s.Mock = mock
	s.Token = deviceToken(1)

	common.SetMachine(common.NewMachine(1, common.MachineDeps{
		Clock: clockwork.NewFakeClock(),
	}))
}

func (s *TestSuite) authRouter() *gin.Engine {
	router := setupRouter()
	authorized := router.Group(apiPrefix)
	authorized.Use(middlewares.DeviceAuth)
	boothHandlers(authorized)
	frameHandlers(authorized)
	voucherHandlers(authorized)
	configHandlers(authorized)
	return router
}

func (s *TestSuite) authReq(method, url string, body io.Reader) *http.Request {
	req, _ := http.NewRequest(method, url, body)
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", s.Token))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

func (s *TestSuite) TestPingRoute() {
	router := setupRouter()

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/", nil)
	router.ServeHTTP(w, req)

	assert.Equal(s.T(), 200, w.Code)
}

func (s *TestSuite) TestRejectsMissingToken() {
	router := s.authRouter()

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/v1/booth/state", nil)
	router.ServeHTTP(w, req)

	assert.Equal(s.T(), 401, w.Code)
}

func (s *TestSuite) TestRejectsBadToken() {
	router := s.authRouter()

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/v1/booth/state", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	router.ServeHTTP(w, req)

	assert.Equal(s.T(), 401, w.Code)
}

func (s *TestSuite) TestProvisionRequiresSecret() {
	s.T().Setenv("PROVISION_SECRET", "install-secret")
	s.T().Setenv("JWT_SECRET", "test-secret")
	router := setupRouter()
	provisionRoutes(router)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/v1/device/provision", strings.NewReader(`{"device":"kiosk-1"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-secret", "wrong")
	router.ServeHTTP(w, req)

	assert.Equal(s.T(), 401, w.Code)
}

func (s *TestSuite) TestProvisionMintsToken() {
	s.T().Setenv("PROVISION_SECRET", "install-secret")
	s.T().Setenv("JWT_SECRET", "test-secret")
	router := setupRouter()
	provisionRoutes(router)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/v1/device/provision", strings.NewReader(`{"device":"kiosk-1"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-secret", "install-secret")
	router.ServeHTTP(w, req)

	assert.Equal(s.T(), 200, w.Code)
	token := gjson.Get(w.Body.String(), "token").String()
	assert.NotEmpty(s.T(), token)
}

func (s *TestSuite) TestBoothState() {
	router := s.authRouter()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, s.authReq("GET", "/api/v1/booth/state", nil))

	assert.Equal(s.T(), 200, w.Code)
	rbytes, err := io.ReadAll(w.Body)
	assert.Nil(s.T(), err)
	phase := gjson.GetBytes(rbytes, "data.phase").String()
	assert.Equal(s.T(), string(types.PHASE_IDLE), phase)
}

func (s *TestSuite) TestBoothHealth() {
	router := s.authRouter()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, s.authReq("GET", "/api/v1/booth/health", nil))

	assert.Equal(s.T(), 200, w.Code)
	body := w.Body.String()
	assert.Equal(s.T(), "idle", gjson.Get(body, "data.phase").String())
	assert.False(s.T(), gjson.Get(body, "data.camera").Bool())
}

func (s *TestSuite) TestBoothOperationsOutOfPhase() {
	router := s.authRouter()

	// Nothing here is legal from idle.
	for _, url := range []string{
		"/api/v1/booth/shoot",
		"/api/v1/booth/confirm",
		"/api/v1/booth/photo/confirm",
		"/api/v1/booth/print",
		"/api/v1/booth/cancel",
	} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, s.authReq("POST", url, nil))
		assert.Equalf(s.T(), 409, w.Code, "expected conflict for %s", url)
	}
}

func (s *TestSuite) TestApplyVoucherValidation() {
	router := s.authRouter()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, s.authReq("POST", "/api/v1/booth/voucher", strings.NewReader(`{}`)))

	assert.Equal(s.T(), 400, w.Code)
	rbytes, _ := io.ReadAll(w.Body)
	assert.NotEmpty(s.T(), gjson.GetBytes(rbytes, "error").String())
}

func (s *TestSuite) TestListFrames() {
	rows := sqlmock.NewRows([]string{"id", "booth_id", "name", "slots", "canvas_width", "canvas_height", "is_active"}).
		AddRow(1, 1, "classic strip", []byte(`[{"x":50,"y":25,"width":900,"height":280}]`), 400, 1200, true)
	s.Mock.ExpectQuery(`SELECT \* FROM "frames"`).WillReturnRows(rows)

	router := s.authRouter()
	w := httptest.NewRecorder()
	router.ServeHTTP(w, s.authReq("GET", "/api/v1/frames", nil))

	assert.Equal(s.T(), 200, w.Code)
	rbytes, err := io.ReadAll(w.Body)
	assert.Nil(s.T(), err)
	frames := gjson.GetBytes(rbytes, "data")
	assert.Equal(s.T(), 1, len(frames.Array()))
	assert.Equal(s.T(), "classic strip", frames.Get("0.name").String())
}

func (s *TestSuite) TestCreateFrameValidation() {
	router := s.authRouter()

	body := map[string]any{"name": "strip"}
	sbody, _ := json.Marshal(&body)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, s.authReq("POST", "/api/v1/frames", strings.NewReader(string(sbody))))

	assert.Equal(s.T(), 400, w.Code)
}

func (s *TestSuite) TestCreateVoucherRejectsBadCode() {
	router := s.authRouter()

	body := types.CreateVoucherRequestBody{
		Code:           "no spaces!",
		DiscountType:   "fixed",
		DiscountAmount: 100,
	}
	sbody, _ := json.Marshal(&body)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, s.authReq("POST", "/api/v1/vouchers", strings.NewReader(string(sbody))))

	assert.Equal(s.T(), 400, w.Code)
}

func (s *TestSuite) TestCreateVoucherRejectsOverHundredPercent() {
	router := s.authRouter()

	body := types.CreateVoucherRequestBody{
		Code:           "BIG",
		DiscountType:   "percentage",
		DiscountAmount: 150,
	}
	sbody, _ := json.Marshal(&body)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, s.authReq("POST", "/api/v1/vouchers", strings.NewReader(string(sbody))))

	assert.Equal(s.T(), 400, w.Code)
	rbytes, _ := io.ReadAll(w.Body)
	assert.Contains(s.T(), gjson.GetBytes(rbytes, "error").String(), "percentage")
}

func (s *TestSuite) TestShareRouteUnknownSession() {
	s.Mock.ExpectQuery(`SELECT \* FROM "sessions"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status"}))

	router := setupRouter()
	publicRoutes(router)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", fmt.Sprintf("/api/v1/share/%s", uuid.New().String()), nil)
	router.ServeHTTP(w, req)

	assert.Equal(s.T(), 404, w.Code)
}

func (s *TestSuite) TestShareRouteBadID() {
	router := setupRouter()
	publicRoutes(router)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/v1/share/not-a-uuid", nil)
	router.ServeHTTP(w, req)

	assert.Equal(s.T(), 404, w.Code)
}

func (s *TestSuite) TestShareRouteCompletedSession() {
	id := uuid.New()
	rows := sqlmock.NewRows([]string{"id", "booth_id", "status", "final_image_url", "photos_urls"}).
		AddRow(id.String(), 1, "completed", "https://cdn.example.com/final.jpg", []byte(`["https://cdn.example.com/p1.jpg"]`))
	s.Mock.ExpectQuery(`SELECT \* FROM "sessions"`).WillReturnRows(rows)

	router := setupRouter()
	publicRoutes(router)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", fmt.Sprintf("/api/v1/share/%s", id.String()), nil)
	router.ServeHTTP(w, req)

	assert.Equal(s.T(), 200, w.Code)
	rbytes, err := io.ReadAll(w.Body)
	assert.Nil(s.T(), err)
	assert.Equal(s.T(), "https://cdn.example.com/final.jpg", gjson.GetBytes(rbytes, "data.final_image_url").String())
}

func (s *TestSuite) TestStripeWebhookRejectsBadSignature() {
	router := setupRouter()
	stripeWebhookRoute(router, common.NewStripeGateway())

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/v1/webhook/stripe", strings.NewReader(`{"type":"checkout.session.completed"}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=bogus")
	router.ServeHTTP(w, req)

	assert.Equal(s.T(), 400, w.Code)
}

func (s *TestSuite) TestBoothConfig() {
	rows := sqlmock.NewRows([]string{"id", "name", "base_price", "payment_bypass", "countdown_seconds", "preview_seconds", "review_timeout_seconds", "print_copies"}).
		AddRow(1, "Photobooth", 500, false, 5, 5, 60, 1)
	s.Mock.ExpectQuery(`SELECT \* FROM "booths"`).WillReturnRows(rows)

	router := s.authRouter()
	w := httptest.NewRecorder()
	router.ServeHTTP(w, s.authReq("GET", "/api/v1/booth/config", nil))

	assert.Equal(s.T(), 200, w.Code)
	rbytes, err := io.ReadAll(w.Body)
	assert.Nil(s.T(), err)
	assert.Equal(s.T(), int64(500), gjson.GetBytes(rbytes, "data.base_price").Int())
}

func TestRunner(t *testing.T) {
	suite.Run(t, new(TestSuite))
}
