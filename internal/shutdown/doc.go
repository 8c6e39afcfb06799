// Package shutdown implements the remote control channel of the tcp server:
// a newline-delimited request/response codec and a blocking client.
//
// A request is a single line:
//
//	PING
//	OPEN "<database>"
//	SHUTDOWN "<credential>" <force 0|1> <all instances 0|1>
//
// and is answered by a single line, either "OK [detail]" or "ERR "<message>"".
// Strings are Go-quoted so that credentials and database names may contain
// spaces.
package shutdown
