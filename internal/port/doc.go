// Package port implements host port availability checks for the
// stackd CLI.
//
// A stack manifest declares fixed host ports (e.g. 2939→8080 for the
// api service), so there is no allocation to perform — but starting a
// stack whose declared ports are already bound would either fail at
// container start or silently shadow another process. The Scanner
// verifies OS-level availability via net.Listen(), and CheckBindings
// validates a whole stack's published ports (uniqueness plus
// availability) before any container is created.
package port
