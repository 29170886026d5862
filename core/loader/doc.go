// Package loader registers the HTTP features of the serve command.
//
// Each feature implements the Feature interface:
//
//	type Feature interface {
//	    Name() string
//	    IsEnabled() bool
//	    Load(app fiber.Router) error
//	}
//
// The Manager keeps the registry and mounts every enabled feature with
// LoadAll. The reconcile report and the migration validator are both
// exposed this way.
package loader
