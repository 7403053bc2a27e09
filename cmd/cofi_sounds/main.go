package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/rx3lixir/cofi_rooms/internal/config"
	"github.com/rx3lixir/cofi_rooms/internal/sound"
	"github.com/rx3lixir/cofi_rooms/internal/storage/s3"
	"github.com/rx3lixir/cofi_rooms/pkg/logger"
)

// cofi_sounds uploads a local <dir>/<theme>/<file> tree into the sound bucket
func main() {
	configPath := pflag.StringP("config", "c", "internal/config/config.yaml", "path to the yaml config")
	dir := pflag.StringP("dir", "d", "public/sounds", "local sounds directory")
	force := pflag.BoolP("force", "f", false, "upload even when the stored copy has the same size")
	pflag.Parse()

	cm, err := config.NewConfigManager(*configPath)
	if err != nil {
		fmt.Printf("Error getting config file: %v\n", err)
		os.Exit(1)
	}
	c := cm.GetConfig()
	if err := c.Validate(); err != nil {
		fmt.Printf("Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.Must(logger.New(logger.Config{
		Env:   c.GeneralParams.Env,
		Level: c.GeneralParams.LogLevel,
	}))

	if !c.S3Params.Enabled {
		log.Error("Object storage is disabled, set s3_params.enabled to upload sounds")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := s3.Connect(
		ctx,
		c.S3Params.Endpoint,
		c.S3Params.AccessKeyID,
		c.S3Params.SecretAccessKey,
		c.S3Params.BucketName,
		c.S3Params.UseSSL,
	)
	if err != nil {
		log.Error("Failed to init object storage", "error", err, "endpoint", c.S3Params.Endpoint)
		os.Exit(1)
	}

	report, err := sound.SyncDir(ctx, sound.NewMinIOStore(client, c.S3Params.BucketName), *dir, *force, log.Component("sounds"))
	if err != nil {
		log.Error("Sound upload failed", "error", err, "dir", *dir)
		os.Exit(1)
	}

	log.Info("Sound upload finished",
		"bucket", c.S3Params.BucketName,
		"uploaded", report.Uploaded,
		"skipped", report.Skipped,
		"missing", len(report.Missing))

	if len(report.Missing) > 0 {
		os.Exit(2)
	}
}
