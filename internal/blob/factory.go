package blob

import (
	"context"
	"fmt"
	"os"

	fsblob "procurecore/internal/infra/blob/fs"
	memoryblob "procurecore/internal/infra/blob/memory"
	s3blob "procurecore/internal/infra/blob/s3"
)

// Open selects a document Store implementation from environment variables.
//
//	PROCURECORE_BLOB_DRIVER: fs|s3|memory (default fs)
//	PROCURECORE_BLOB_FS_ROOT: directory root when driver=fs (default ./documents)
//	(S3-specific variables documented in the s3 package)
func Open(ctx context.Context) (Store, error) {
	driver := os.Getenv("PROCURECORE_BLOB_DRIVER")
	if driver == "" {
		driver = string(DriverFilesystem)
	}
	switch Driver(driver) {
	case DriverFilesystem:
		return fsblob.New(os.Getenv("PROCURECORE_BLOB_FS_ROOT"))
	case DriverS3:
		return s3blob.OpenFromEnv(ctx)
	case DriverMemory:
		return memoryblob.New(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}
