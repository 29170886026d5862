// Package references finds object URLs stored in documents and reconciles
// them with the bucket they point into.
//
// URLs are decoded with regular expressions exposing "bucket" and
// "object" groups; the object path is percent-decoded and the query string
// dropped. The default patterns cover download URLs, direct and signed
// URLs and gs:// locations.
package references
