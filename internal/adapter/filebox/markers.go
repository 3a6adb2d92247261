package filebox

import "strings"

// Marker is a control line with fixed meaning on the wire. Markers are
// recognized only at the protocol position where one is expected; payload
// bytes are never scanned for them.
type Marker string

const (
	// MarkerBeginTransfer opens a server-to-client file payload.
	MarkerBeginTransfer Marker = "BEGIN_FILE_TRANSFER"
	// MarkerEndTransfer closes a server-to-client file payload.
	MarkerEndTransfer Marker = "END_FILE_TRANSFER"
	// MarkerBeginUpload tells the client to start sending its payload.
	MarkerBeginUpload Marker = "BEGIN_FILE_UPLOAD"
	// MarkerEndUpload closes a client-to-server file payload.
	MarkerEndUpload Marker = "END_FILE_UPLOAD"
	// MarkerEnd terminates every command reply.
	MarkerEnd Marker = "END"
)

// Authentication replies.
const (
	AuthSuccess = "SUCCESS"
	AuthFailure = "FAILURE"
)

// Reply lines shared by the server and the client.
const (
	ReplyInvalidCommand = "Invalid command"
	ReplyFileNotFound   = "File not found"
	ReplyErrorPrefix    = "Error: "
	ReplyUsagePrefix    = "Usage: "
	ReplyUploadComplete = "File upload complete: "
	ReplyFileFound      = "File found in "
	ReplyFileEntry      = "File: "
	ReplyChangedDir     = "Changed directory to "
)

func (m Marker) String() string { return string(m) }

var markers = []Marker{MarkerBeginTransfer, MarkerEndTransfer, MarkerBeginUpload, MarkerEndUpload, MarkerEnd}

// IsMarker reports whether line reads as a marker.
func IsMarker(line string) bool {
	for _, m := range markers {
		if line == string(m) {
			return true
		}
	}
	return false
}

// Listable reports whether a file name can be sent as a bare reply line.
// A listable name holds no line break, is not a marker and does not read as
// a failure reply.
func Listable(name string) bool {
	switch {
	case name == "", strings.ContainsAny(name, "\r\n"), IsMarker(name):
		return false
	case name == ReplyInvalidCommand, strings.HasPrefix(name, ReplyErrorPrefix), strings.HasPrefix(name, ReplyUsagePrefix):
		return false
	}
	return true
}
