package sound

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/rx3lixir/cofi_rooms/internal/theme"
	"github.com/rx3lixir/cofi_rooms/pkg/audio"
)

// Bucket is the part of the object store the uploader needs
type Bucket interface {
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
	Size(ctx context.Context, key string) (int64, error)
}

type UploadReport struct {
	Uploaded int
	Skipped  int
	Missing  []string
}

// SyncDir uploads <dir>/<theme>/<file> for every sound the catalogs name.
// Files whose stored size already matches are skipped unless force is set
func SyncDir(ctx context.Context, bucket Bucket, dir string, force bool, log *slog.Logger) (*UploadReport, error) {
	report := &UploadReport{}

	for _, t := range theme.All() {
		cfg, _ := theme.Lookup(t)

		files := []string{cfg.Background}
		for _, o := range cfg.Objects {
			files = append(files, o.Sound)
		}

		for _, file := range files {
			path := filepath.Join(dir, string(t), file)
			key := theme.SoundKey(t, file)

			uploaded, err := syncFile(ctx, bucket, path, key, force)
			if err != nil {
				if os.IsNotExist(err) {
					log.Warn("sound file missing", "path", path)
					report.Missing = append(report.Missing, path)
					continue
				}
				return report, err
			}

			if uploaded {
				log.Info("sound uploaded", "key", key)
				report.Uploaded++
			} else {
				log.Debug("sound unchanged", "key", key)
				report.Skipped++
			}
		}
	}

	return report, nil
}

func syncFile(ctx context.Context, bucket Bucket, path, key string, force bool) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", path, err)
	}

	if !force {
		stored, err := bucket.Size(ctx, key)
		if err != nil {
			return false, err
		}
		if stored == info.Size() {
			return false, nil
		}
	}

	sniffed, err := mimetype.DetectReader(f)
	if err != nil {
		return false, fmt.Errorf("sniff %s: %w", path, err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return false, fmt.Errorf("rewind %s: %w", path, err)
	}

	// The extension wins; the sniffed type only fills in when it is missing
	format := audio.DetectAudioFormat(sniffed.String(), path)
	if format == "" {
		return false, fmt.Errorf("%s: unsupported audio format %s", path, sniffed.String())
	}
	if !strings.HasPrefix(sniffed.String(), "audio/") {
		return false, fmt.Errorf("%s: content looks like %s, not audio", path, sniffed.String())
	}

	if err := bucket.Upload(ctx, key, f, info.Size(), audio.ContentType(format)); err != nil {
		return false, fmt.Errorf("upload %s: %w", key, err)
	}

	return true, nil
}
