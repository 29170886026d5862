package storage

// Provider names accepted in Config.Provider.
const (
	ProviderMinio = "minio"
	ProviderGCS   = "gcs"
)

// Config holds configuration for one object store.
type Config struct {
	// Provider selects the backend (minio, gcs).
	Provider string `mapstructure:"provider" default:"minio"`
	// Endpoint is the URL of the S3-compatible service.
	Endpoint string `mapstructure:"endpoint" default:"localhost:9000"`
	// AccessKey is the access key ID for authentication.
	AccessKey string `mapstructure:"access_key" default:"minioadmin"`
	// SecretKey is the secret access key for authentication.
	SecretKey string `mapstructure:"secret_key" default:"minioadmin"`
	// UseSSL indicates whether to use SSL/TLS for connections.
	UseSSL bool `mapstructure:"use_ssl" default:"false"`
	// Bucket is the bucket name.
	Bucket string `mapstructure:"bucket" default:"assets"`
	// Region is the location of the bucket (e.g., us-east-1).
	Region string `mapstructure:"region" default:""`
	// CredentialsFile is a service account JSON file for gcs. Empty uses
	// application default credentials.
	CredentialsFile string `mapstructure:"credentials_file" default:""`
	// TimeoutSeconds is the connection timeout in seconds.
	TimeoutSeconds int `mapstructure:"timeout_seconds" default:"30"`
}
