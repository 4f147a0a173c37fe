package qc

import (
	"io"
	"log"
)

var diagLogger *log.Logger

// SetLogWriters configures logging for the qc package. Only the diag stream
// is used; ops and trace are accepted to match the other packages.
func SetLogWriters(ops, diag, trace io.Writer) {
	diagLogger = nil
	if diag != nil {
		diagLogger = log.New(diag, "[qc] ", log.LstdFlags|log.Lmicroseconds)
	}
}

func diagf(format string, args ...interface{}) {
	if diagLogger != nil {
		diagLogger.Printf(format, args...)
	}
}
