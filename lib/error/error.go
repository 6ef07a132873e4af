/*package error contains simple functions for reporting errors from the
swarm driver, along with the error classes shared by the library packages.*/
package error

import (
	"errors"
	"fmt"
	"log"
	"os"
	"runtime/debug"
)

// The three error classes every library error belongs to. Wrap them with
// the *f constructors below and test for them with errors.Is.
var (
	// Configuration marks a mesh or domain setup the subsystem does not
	// support, e.g. a non-periodic boundary.
	Configuration = errors.New("configuration error")
	// Precondition marks an invalid request from the caller, e.g. a
	// non-growing resize or a duplicate attribute label.
	Precondition = errors.New("precondition violation")
	// Invariant marks an internal protocol defect, e.g. a received byte
	// count that is not a whole number of records. These are not
	// recoverable at the point raised.
	Invariant = errors.New("invariant violation")
)

// Configf creates an error wrapping Configuration. It has the same
// signature as the standard fmt.*printf() functions.
func Configf(format string, a ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, a...), Configuration)
}

// Preconditionf creates an error wrapping Precondition. It has the same
// signature as the standard fmt.*printf() functions.
func Preconditionf(format string, a ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, a...), Precondition)
}

// Invariantf creates an error wrapping Invariant. It has the same
// signature as the standard fmt.*printf() functions.
func Invariantf(format string, a ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, a...), Invariant)
}

// External reports an error to stderr and kills the program. It should be
// used when an error is something a user could reasonably be expected to fix
// through changes in configuration/data/environment. It has the same
// signature as the standard fmt.*printf() functions.
func External(format string, a ...interface{}) {
	log.Printf("swarm exited early with the following error:\n"+format, a...)
	os.Exit(1)
}

// Internal reports an error to stderr along with a stack trace and kills the
// program. It should be used when the error requires a code dive to fix. It
// has the same signature as the standard fmt.*printf() functions.
func Internal(format string, a ...interface{}) {
	log.Println("swarm exited early with the following error:")
	fmt.Fprintf(os.Stderr, format, a...)
	fmt.Fprintf(os.Stderr, "\n\n")
	debug.PrintStack()
	os.Exit(1)
}
