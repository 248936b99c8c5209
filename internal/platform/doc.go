// Package platform isolates operating-system specific file metadata lookups.
package platform
