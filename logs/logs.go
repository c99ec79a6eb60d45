/******************************************************************************
 *
 *  Description :
 *    Package exposes info, warning and error loggers used by the SDK.
 *    Loggers are initialized to io.Discard so a host application which
 *    does not care about SDK logging gets none.
 *
 *****************************************************************************/
package logs

import (
	"io"
	"log"
	"os"
)

var (
	Info    *log.Logger
	Warning *log.Logger
	Err     *log.Logger
)

func init() {
	discard := log.New(io.Discard, "", 0)
	Info = discard
	Warning = discard
	Err = discard
}

// Init directs SDK logging to stdout. Debug adds microsecond timestamps.
func Init(debug bool) {
	flags := log.LstdFlags | log.Lshortfile
	if debug {
		flags |= log.Lmicroseconds
	}
	Info = log.New(os.Stdout, "I", flags)
	Warning = log.New(os.Stdout, "W", flags)
	Err = log.New(os.Stdout, "E", flags)
}

// SetOutput sends all SDK logging to the given writer.
func SetOutput(w io.Writer) {
	flags := log.LstdFlags | log.Lshortfile
	Info = log.New(w, "I", flags)
	Warning = log.New(w, "W", flags)
	Err = log.New(w, "E", flags)
}
