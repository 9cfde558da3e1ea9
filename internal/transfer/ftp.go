package transfer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/vaidashi/invoice-reconciler/internal/config"
	"github.com/vaidashi/invoice-reconciler/internal/notify"
	"github.com/vaidashi/invoice-reconciler/pkg/apperrors"
	"github.com/vaidashi/invoice-reconciler/pkg/logger"
	"github.com/vaidashi/invoice-reconciler/pkg/retry"
)

// Remote directory layout on the partner-facing FTP server
const (
	logDirPattern  = "dropshipper_logs/invoice_logs/%s"
	dropDirPattern = "dropshipper/%s/invoices"
)

// Uploader pushes export files to the partner FTP server: one copy into the
// log archive and one into the partner's drop folder
type Uploader struct {
	cfg         config.FTPConfig
	baseDir     string
	notifier    notify.Notifier
	logger      logger.Logger
	retryConfig *retry.Config
}

// NewUploader creates a new Uploader. baseDir is the local export root the
// partner folder name is derived from.
func NewUploader(cfg config.FTPConfig, baseDir string, notifier notify.Notifier, logger logger.Logger) *Uploader {
	return &Uploader{
		cfg:      cfg,
		baseDir:  baseDir,
		notifier: notifier,
		logger:   logger,
		retryConfig: &retry.Config{
			MaxAttempts: 3,
			Backoff:     retry.NewDefaultExponentialBackoff(),
			Logger:      logger,
		},
	}
}

// Upload stores every file in both remote locations for its partner. Any
// failure sends one manual-intervention notification listing the paths and
// never fails the run.
func (u *Uploader) Upload(ctx context.Context, paths []string) {
	if len(paths) == 0 {
		return
	}

	conn, err := u.dial(ctx)

	if err != nil {
		u.reportFailure(err, paths)
		return
	}
	defer func() {
		if quitErr := conn.Quit(); quitErr != nil {
			u.logger.Warn("Failed to close FTP connection", "error", quitErr)
		}
	}()

	for _, path := range paths {
		if err := u.uploadFile(conn, path); err != nil {
			u.reportFailure(err, paths)
			return
		}
	}

	u.logger.Info("Uploaded export files", "files", len(paths))
}

// dial connects and logs in, retrying transient failures; this is a
// run-level boundary
func (u *Uploader) dial(ctx context.Context) (*ftp.ServerConn, error) {
	var conn *ftp.ServerConn

	connect := func() error {
		c, err := ftp.Dial(u.cfg.Host, ftp.DialWithContext(ctx), ftp.DialWithTimeout(10*time.Second))

		if err != nil {
			return apperrors.NewTransportError(fmt.Sprintf("failed to dial FTP server: %v", err))
		}

		if err := c.Login(u.cfg.Username, u.cfg.Password); err != nil {
			if quitErr := c.Quit(); quitErr != nil {
				u.logger.Warn("Failed to close FTP connection", "error", quitErr)
			}
			return apperrors.NewRejectedError(fmt.Sprintf("FTP login failed: %v", err))
		}

		conn = c
		return nil
	}

	if err := retry.Do(ctx, connect, u.retryConfig); err != nil {
		return nil, err
	}

	return conn, nil
}

func (u *Uploader) uploadFile(conn *ftp.ServerConn, path string) error {
	folder, err := u.partnerFolder(path)

	if err != nil {
		return err
	}

	remoteDirs := []string{
		fmt.Sprintf(logDirPattern, folder),
		fmt.Sprintf(dropDirPattern, folder),
	}

	for _, dir := range remoteDirs {
		if err := conn.ChangeDir("/"); err != nil {
			return fmt.Errorf("failed to reset remote directory: %w", err)
		}

		if err := conn.ChangeDir(dir); err != nil {
			return fmt.Errorf("failed to change to remote directory %s: %w", dir, err)
		}

		file, err := os.Open(path)

		if err != nil {
			return fmt.Errorf("failed to open %s: %w", path, err)
		}

		err = conn.Stor(filepath.Base(path), file)
		file.Close()

		if err != nil {
			return fmt.Errorf("failed to store %s in %s: %w", filepath.Base(path), dir, err)
		}
	}

	return nil
}

// partnerFolder extracts the partner folder from a local export path of the
// form <base>/<folder>/<timestamp>/<file>
func (u *Uploader) partnerFolder(path string) (string, error) {
	rel, err := filepath.Rel(u.baseDir, path)

	if err != nil {
		return "", fmt.Errorf("export path %s is not under %s: %w", path, u.baseDir, err)
	}

	parts := strings.Split(filepath.ToSlash(rel), "/")

	if len(parts) < 3 {
		return "", fmt.Errorf("unexpected export path layout: %s", path)
	}

	return parts[0], nil
}

func (u *Uploader) reportFailure(err error, paths []string) {
	u.logger.Error("Failed to upload export files", "error", err)

	notify.BestEffort(u.notifier, u.logger,
		"There was an error uploading the invoice files to the FTP server",
		fmt.Sprintf("The following invoice files were not uploaded to the FTP server, please upload them manually:\n\t%s",
			strings.Join(paths, "\n\t")))
}
