// Package seed implements the first-run seed fetch subsystem: a bounded-time
// HTTP download of the server-provided experiment-configuration blob that is
// attempted at most once for the lifetime of an install.
package seed
