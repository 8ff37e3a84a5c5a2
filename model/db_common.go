package model

import (
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store ist die Hauptstruktur des Modells
type Store struct {
	db     *gorm.DB
	Config *Config
}

type Config struct {
	Basedir      string
	CookieSecret string
	Mode         string
	Port         int
	// PDFDir holds the pre-rendered facture PDFs (<ref>.pdf, optional
	// <ref>.xml side car). Rendering happens outside this application.
	PDFDir  string
	Servers map[string]server
}

type server struct {
	Database   string
	DBName     string
	DBUser     string
	DBPassword string
	DBHost     string
	DBLogger   string
}

// shared helper for GORM logger
func gormLoggerFor(cfg *Config, svr server) *gorm.Config {
	gormConfig := &gorm.Config{}
	switch svr.DBLogger {
	case "info":
		gormConfig.Logger = logger.Default.LogMode(logger.Info)
	case "silent":
		gormConfig.Logger = logger.Default.LogMode(logger.Silent)
	default:
		if cfg.Mode == "development" {
			gormConfig.Logger = logger.Default.LogMode(logger.Info)
		} else {
			gormConfig.Logger = logger.Default.LogMode(logger.Silent)
		}
	}
	return gormConfig
}

// NewStore wraps an open gorm connection and migrates the schema. Used by
// the build-tagged InitDatabase variants and by the test fixtures.
func NewStore(db *gorm.DB, cfg *Config) (*Store, error) {
	s := &Store{db: db, Config: cfg}
	if err := s.autoMigrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) autoMigrate() error {
	var err error
	if err = s.db.AutoMigrate(&Facture{}); err != nil {
		return err
	}
	if err = s.db.AutoMigrate(&FactureLine{}); err != nil {
		return err
	}
	if err = s.db.AutoMigrate(&FactureCounter{}); err != nil {
		return err
	}
	if err = s.db.AutoMigrate(&User{}); err != nil {
		return err
	}
	return nil
}
