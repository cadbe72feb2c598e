//go:build cgo

package native

/*
#include <stdlib.h>
*/
import "C"

import "unsafe"

// callSendTerminalData drives send_terminal_data the way the core does, with
// C strings it owns for the duration of the call. A nil argument is passed as
// NULL.
func callSendTerminalData(terminalID, text *string) {
	cID, cText := cString(terminalID), cString(text)
	defer C.free(unsafe.Pointer(cID))
	defer C.free(unsafe.Pointer(cText))
	send_terminal_data(cID, cText)
}

func cString(s *string) *C.char {
	if s == nil {
		return nil
	}
	return C.CString(*s)
}
