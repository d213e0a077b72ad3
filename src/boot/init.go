package boot

import (
	"context"
	"log"
	"time"

	"booth/src/common"
	"booth/src/config"
	"booth/src/db"
	"booth/src/lib"
	"booth/src/models"
	"booth/src/types"
	"booth/src/utils"

	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"
)

func InitDb() *gorm.DB {
	db := db.GetDb()

	err := db.AutoMigrate(
		&models.Booth{},
		&models.Frame{},
		&models.Voucher{},
		&models.Session{},
		&models.Payment{},
	)
	if err != nil {
		log.Fatalf("error migration: %s", err.Error())
	}

	SeedBooth(db)

	return db
}

// SeedBooth makes sure the configured booth row exists so a fresh install
// boots without manual SQL.
func SeedBooth(db *gorm.DB) {
	boothID := config.BoothID()
	var count int64
	db.Model(&models.Booth{}).Where("id = ?", boothID).Count(&count)
	if count > 0 {
		return
	}
	booth := models.Booth{
		ID:        boothID,
		Name:      "Photobooth",
		BasePrice: 500,
	}
	if err := db.Create(&booth).Error; err != nil {
		log.Printf("Error seeding booth: %s\n", err.Error())
		return
	}
	log.Printf("Seeded booth %d\n", boothID)
}

// InitMachine wires the production session machine and starts its runner.
func InitMachine(ctx context.Context) *common.Machine {
	store := common.NewGormStore()
	mirror := &common.LocalMirror{}
	if cfg, err := store.BoothConfig(ctx, config.BoothID()); err == nil {
		mirror.BaseDir = cfg.LocalBackupDir
	}
	uploader := common.NewRetryUploader(
		common.S3Transport{},
		common.NewProxyTransport(),
		config.UploadAttempts,
		1*time.Second,
		nil,
	)
	pipeline := common.NewAssetPipeline(uploader, store, mirror)
	m := common.NewMachine(config.BoothID(), common.MachineDeps{
		Store:      store,
		Gateway:    common.NewStripeGateway(),
		Camera:     lib.NewHTTPCamera(),
		Printer:    lib.NewLPPrinter(),
		Pipeline:   pipeline,
		Clock:      clockwork.NewRealClock(),
		FetchImage: utils.FetchImage,
	})
	common.SetMachine(m)
	go m.RunLoop(ctx)
	return m
}

// InitScheduler starts the background sweep that expires payments still
// pending long past their invoice lifetime. The vendor webhook usually
// lands first; this catches rows the booth never heard back about.
func InitScheduler() {
	_, err := lib.CreateCronJob(ExpireStalePayments, 1*time.Minute)
	if err != nil {
		log.Printf("Error scheduling payment sweep: %s\n", err.Error())
		return
	}
	sched, err := lib.GetScheduler()
	if err != nil {
		log.Println("An error has occurred. Check logs for info")
		return
	}
	sched.Start()
}

func StopScheduler() {
	sched, err := lib.GetScheduler()
	if err != nil {
		log.Println("Error retrieving Scheduler. Check logs for info")
		return
	}
	if err := sched.Shutdown(); err != nil {
		log.Println("An error has occurred while stopping Scheduler. Check logs for info")
	}
}

func ExpireStalePayments() {
	db := db.GetDb()
	cutoff := time.Now().Add(-2 * time.Duration(config.InvoiceTTLSeconds) * time.Second)
	res := db.Model(&models.Payment{}).
		Where("status = ? AND created_at < ?", types.PAYMENT_PENDING, cutoff).
		Updates(map[string]any{"status": types.PAYMENT_EXPIRED, "updated_at": time.Now()})
	if res.Error != nil {
		log.Printf("Error expiring stale payments: %s\n", res.Error.Error())
		return
	}
	if res.RowsAffected > 0 {
		log.Printf("Expired %d stale payments\n", res.RowsAffected)
	}
}
