package config

const (
	StorageSQLite = "sqlite"
	StorageFS     = "fs"
	StorageS3     = "s3"

	DraftsMemory = "memory"
	DraftsFS     = "fs"
	DraftsSQLite = "sqlite"

	DefaultConfigPath = "config.yaml"
)
