package treestore

// Driver names accepted in Config.Driver.
const (
	DriverRTDB = "rtdb"
	DriverFile = "file"
)

// Config holds configuration for the source tree.
type Config struct {
	// Driver selects the source (rtdb, file).
	Driver string `mapstructure:"driver" default:"rtdb"`
	// URL is the realtime database URL, e.g. https://project.firebaseio.com.
	URL string `mapstructure:"url" default:""`
	// CredentialsFile is a service account JSON file. Empty uses
	// application default credentials.
	CredentialsFile string `mapstructure:"credentials_file" default:""`
	// Path is the JSON export read by the file driver.
	Path string `mapstructure:"path" default:"export.json"`
	// TimeoutSeconds bounds one REST request.
	TimeoutSeconds int `mapstructure:"timeout_seconds" default:"60"`
	// MaxRetries bounds retries of a transient read failure.
	MaxRetries int `mapstructure:"max_retries" default:"3"`
}
