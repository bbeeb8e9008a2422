package filestore

// Provider identifies the file storage backend.
type Provider string

const (
	ProviderMinIO Provider = "minio"
)

// Config holds the settings needed to reach an object store.
type Config struct {
	Provider Provider `yaml:"provider" validate:"omitempty,oneof=minio"`

	// Endpoint is the host:port of the storage server, e.g. "localhost:9000".
	Endpoint string `yaml:"endpoint" validate:"required"`

	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`

	// Region is used by region-aware backends. Leave empty for MinIO.
	Region string `yaml:"region"`

	// Bucket receives archived query logs.
	Bucket string `yaml:"bucket" validate:"required"`

	// Prefix is prepended to every archive key.
	Prefix string `yaml:"prefix"`
}

// DefaultConfig returns a local-dev config for MinIO.
func DefaultConfig(endpoint, accessKey, secretKey string) *Config {
	return &Config{
		Provider:  ProviderMinIO,
		Endpoint:  endpoint,
		AccessKey: accessKey,
		SecretKey: secretKey,
		Bucket:    "xdb-querylog",
		Prefix:    "querylog/",
	}
}
