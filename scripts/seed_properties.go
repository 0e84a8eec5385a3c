package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"staybook/internal/config"
	"staybook/internal/database"
	"staybook/internal/models"
	"staybook/internal/service"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

type PropertiesFile struct {
	Properties []config.PropertySeed `yaml:"properties"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	var (
		propertiesPath = flag.String("properties", "configs/properties.yaml", "path to properties.yaml")
		dbPath         = flag.String("db", "./data/staybook.db", "path to sqlite db")
		horizon        = flag.Int("horizon", 365, "days a property without windows stays open")
	)
	flag.Parse()

	data, err := os.ReadFile(*propertiesPath)
	if err != nil {
		return fmt.Errorf("read properties: %w", err)
	}
	var file PropertiesFile
	if err = yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse properties: %w", err)
	}
	if len(file.Properties) == 0 {
		return fmt.Errorf("no properties in yaml")
	}
	if err = config.ValidatePropertySeeds(file.Properties); err != nil {
		return err
	}

	db, err := database.NewDB(*dbPath, &logger)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	properties := make([]*models.Property, 0, len(file.Properties))
	for _, seed := range file.Properties {
		properties = append(properties, seed.ToProperty())
	}

	svc := service.NewReservationService(db, nil, nil, nil, service.Options{AvailabilityHorizonDays: *horizon}, &logger)
	created, err := svc.SeedProperties(ctx, properties)
	if err != nil {
		return err
	}

	logger.Info().Int("created", created).Int("skipped", len(properties)-created).Msg("seed completed")
	return nil
}
