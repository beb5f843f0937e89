package filestore

// Provider identifies the document storage backend.
type Provider string

const (
	ProviderLocal Provider = "local"
	ProviderMinIO Provider = "minio"
)

// Config holds all settings needed to open a document backend.
type Config struct {
	// Provider is the storage backend. Empty means ProviderLocal.
	Provider Provider

	// Dir is the data directory for ProviderLocal.
	Dir string

	// Endpoint is the host:port of the storage server.
	// Example: "localhost:9000" for local MinIO.
	Endpoint string

	// AccessKey is the access key ID (MinIO / S3 style).
	AccessKey string

	// SecretKey is the secret access key.
	SecretKey string

	// UseSSL controls whether TLS is used for the connection.
	UseSSL bool

	// Region is used by region-aware backends (e.g. AWS S3).
	// Leave empty for MinIO.
	Region string

	// Bucket holds the documents. It is created on first use.
	Bucket string

	// Prefix is prepended to every object key, e.g. "alice/".
	Prefix string
}

// DefaultConfig returns a local-directory config rooted at dir.
func DefaultConfig(dir string) *Config {
	return &Config{
		Provider: ProviderLocal,
		Dir:      dir,
	}
}
