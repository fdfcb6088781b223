/*
Package receipts stores the uploaded receipt files that back a liquidation.

PURPOSE:
  Implements approval.BlobStore. Receipt rows in the database only hold a
  storage key; the bytes live here.

BACKENDS:
  local: Files under a base directory (default, used in development)
  s3:    Any S3-compatible object store (AWS S3, MinIO, RustFS)
  none:  Receipt uploads are rejected

KEYS:
  Keys are slash-separated and generated by the liquidation workflow:

    liquidations/<liquidation-id>/<receipt-id>.pdf

SEE ALSO:
  - approval/liquidation.go: AttachReceipt, Delete
  - config/config.go: ReceiptsConfig
*/
package receipts

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/warp/approval-engine/approval"
)

// Backend names accepted in configuration.
const (
	BackendLocal = "local"
	BackendS3    = "s3"
	BackendNone  = "none"
)

// Config selects and configures a backend.
type Config struct {
	Backend  string   `mapstructure:"backend"`
	LocalDir string   `mapstructure:"local_dir"`
	S3       S3Config `mapstructure:"s3"`
}

// Open builds the configured backend. A nil store with a nil error means
// receipts are disabled.
func Open(cfg Config, logger *zap.Logger) (approval.BlobStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Backend {
	case "", BackendLocal:
		dir := cfg.LocalDir
		if dir == "" {
			dir = "./data/receipts"
		}
		return NewLocalStore(dir, logger)
	case BackendS3:
		return NewS3Store(cfg.S3, logger)
	case BackendNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown receipts backend %q", cfg.Backend)
	}
}
