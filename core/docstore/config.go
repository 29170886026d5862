package docstore

// Config holds configuration for the target document store.
type Config struct {
	// Driver selects the backend: mongo or sql.
	Driver string `mapstructure:"driver" default:"mongo"`
	// URI is the MongoDB connection string.
	URI string `mapstructure:"uri" default:"mongodb://localhost:27017"`
	// Database is the MongoDB database name.
	Database string `mapstructure:"database" default:"migrator"`
	// Collection is the MongoDB collection (or SQL table) holding all documents.
	Collection string `mapstructure:"collection" default:"documents"`
	// Transactions wraps each batch in a multi-document transaction (needs a replica set).
	Transactions bool `mapstructure:"transactions" default:"true"`
	// TimeoutSeconds bounds connection setup.
	TimeoutSeconds int `mapstructure:"timeout_seconds" default:"30"`
}

const (
	DriverMongo = "mongo"
	DriverSQL   = "sql"
)
