//go:build cgo

package native

/*
#include <stddef.h>
*/
import "C"

// send_terminal_data is called by the native core for every chunk of
// console output. Both arguments are NUL-terminated; invalid UTF-8 is passed
// through and decoded by the sink.
//
//export send_terminal_data
func send_terminal_data(terminalID *C.char, text *C.char) {
	if terminalID == nil || text == nil {
		droppedTerminal.Add(1)
		return
	}
	deliverTerminalData(C.GoString(terminalID), C.GoString(text))
}
